package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kuitang/notelytic/internal/backup"
	"github.com/kuitang/notelytic/internal/config"
	"github.com/kuitang/notelytic/internal/crypto"
	"github.com/kuitang/notelytic/internal/db"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

const dbKeyScope = "notes"

// env holds what the commands need from outside the flag set.
type env struct {
	// newBackup builds the snapshot target. Tests swap in a fake S3.
	newBackup func(ctx context.Context, cfg *config.Config) (*backup.Service, error)
}

func defaultEnv() *env {
	return &env{newBackup: s3Backup}
}

func s3Backup(ctx context.Context, cfg *config.Config) (*backup.Service, error) {
	if cfg.NoS3 {
		return nil, fmt.Errorf("backups need S3: set AWS_ENDPOINT_URL_S3 and BUCKET_NAME")
	}
	client, err := backup.New(ctx, backup.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.AWSBucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, err
	}
	return backup.NewService(client, cfg.BackupPrefix), nil
}

// globalOpts are the persistent flags shared by every subcommand.
type globalOpts struct {
	configPath string
	dbPath     string
	withS3     bool
	verbose    bool
}

func newRootCmd(e *env) *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "notesctl",
		Short:         "Administer a notelytic note database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.Init()
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			obs.SetLevel(level)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Optional TOML file with defaults below the environment")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Database path (overrides DATABASE_PATH)")
	root.PersistentFlags().BoolVar(&opts.withS3, "s3", false, "Load S3 settings (required by backup commands)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newListCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newBackupCmd(opts, e),
		newRotateKeyCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

func (o *globalOpts) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(config.Flags{NoAI: true, NoS3: !o.withS3, ConfigPath: o.configPath})
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	return cfg, nil
}

func (o *globalOpts) keyManager(cfg *config.Config) *crypto.KeyManager {
	return crypto.NewKeyManager(cfg.MasterKeyBytes(), dbKeyScope, crypto.KeyPathFor(cfg.DatabasePath))
}

// workspace is an opened database with the note service over it.
type workspace struct {
	cfg   *config.Config
	db    *db.DB
	store *notes.SQLStore
	notes *notes.Service
}

func (w *workspace) Close() {
	_ = w.db.Close()
}

func (o *globalOpts) open() (*workspace, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	dek, err := o.keyManager(cfg).GetOrCreateDEK()
	if err != nil {
		return nil, fmt.Errorf("database key: %w", err)
	}
	d, err := db.Open(cfg.DatabasePath, dek)
	if err != nil {
		return nil, err
	}
	store := notes.NewSQLStore(d)
	return &workspace{
		cfg:   cfg,
		db:    d,
		store: store,
		notes: notes.NewService(store, cfg.EditMaxChars),
	}, nil
}
