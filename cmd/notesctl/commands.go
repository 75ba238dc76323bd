package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/notelytic/internal/notes"
)

func newListCmd(opts *globalOpts) *cobra.Command {
	var (
		query  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, pinned first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()

			items := ws.notes.List(cmd.Context(), query)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for _, it := range items {
				pin := " "
				if it.IsPinned {
					pin = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\n", pin, it.ID, it.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive search over title and text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newExportCmd(opts *globalOpts) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every note with timestamps as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()

			all, err := ws.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if all == nil {
				all = []notes.Note{}
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeExport(w, format, all)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func writeExport(w io.Writer, format string, all []notes.Note) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(all); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func newImportCmd(opts *globalOpts) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge a browser-storage notes dump (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()

			res, err := ws.notes.Import(cmd.Context(), payload, overwrite)
			if err != nil {
				return err
			}
			if res.Corrupt {
				return fmt.Errorf("%s: %w", args[0], notes.ErrCorruptPayload)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace notes that already exist with different content")
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func newBackupCmd(opts *globalOpts, e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage note snapshots in S3",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of every note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()
			svc, err := e.newBackup(cmd.Context(), ws.cfg)
			if err != nil {
				return err
			}

			all, err := ws.store.List(cmd.Context())
			if err != nil {
				return err
			}
			records := make(map[string]notes.Record, len(all))
			for _, n := range all {
				records[n.ID] = n.Record()
			}
			key, err := svc.Snapshot(cmd.Context(), records)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshot keys, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := e.newBackup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			keys, err := svc.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	var overwrite bool
	restore := &cobra.Command{
		Use:   "restore [KEY]",
		Short: "Import a snapshot (the newest when KEY is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()
			svc, err := e.newBackup(cmd.Context(), ws.cfg)
			if err != nil {
				return err
			}

			var key string
			if len(args) == 1 {
				key = args[0]
			} else if key, err = svc.Latest(cmd.Context()); err != nil {
				return err
			}
			payload, err := svc.Fetch(cmd.Context(), key)
			if err != nil {
				return err
			}
			res, err := ws.notes.Import(cmd.Context(), payload, overwrite)
			if err != nil {
				return err
			}
			if res.Corrupt {
				return fmt.Errorf("%s: %w", key, notes.ErrCorruptPayload)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s: imported %d, skipped %d\n", key, res.Imported, res.Skipped)
			return nil
		},
	}
	restore.Flags().BoolVar(&overwrite, "overwrite", false, "Replace notes that already exist with different content")

	cmd.AddCommand(create, list, restore)
	return cmd
}

func newRotateKeyCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key",
		Short: "Rewrap the database key under the next master-key derivation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			km := opts.keyManager(cfg)
			if err := km.RotateKEK(); err != nil {
				return err
			}
			v, err := km.KEKVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key version %d\n", v)
			return nil
		},
	}
}

func newCheckCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify database integrity and print the notes checksum",
		Long: "Runs SQLite's quick_check and prints a SHA3-256 checksum over every note's\n" +
			"id, title, content and pin flag. Compare checksums to confirm a restore.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open()
			if err != nil {
				return err
			}
			defer ws.Close()

			if h := ws.store.Check(cmd.Context()); h.Degraded {
				return fmt.Errorf("integrity check: %s", h.Reason)
			}
			sum, err := ws.store.Checksum(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", sum)
			return nil
		},
	}
}
