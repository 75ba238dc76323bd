// Command server runs the notelytic HTTP API and MCP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/notelytic/internal/api"
	"github.com/kuitang/notelytic/internal/assist"
	"github.com/kuitang/notelytic/internal/backup"
	"github.com/kuitang/notelytic/internal/config"
	"github.com/kuitang/notelytic/internal/crypto"
	"github.com/kuitang/notelytic/internal/db"
	"github.com/kuitang/notelytic/internal/editor"
	"github.com/kuitang/notelytic/internal/mcp"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
	"github.com/kuitang/notelytic/internal/prefs"
	"github.com/kuitang/notelytic/internal/ratelimit"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	dbKeyScope      = "notes"
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "notelytic: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}

	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	cfg.PrintStartupSummary(stdout)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.Pkg("server").Info("server_listening", "addr", cfg.ListenAddr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	obs.Pkg("server").Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app holds the wired services and their cleanup.
type app struct {
	handler http.Handler
	notes   *notes.Service

	closers []func()
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	log := obs.Pkg("server")

	km := crypto.NewKeyManager(cfg.MasterKeyBytes(), dbKeyScope, crypto.KeyPathFor(cfg.DatabasePath))
	dek, err := km.GetOrCreateDEK()
	if err != nil {
		return nil, fmt.Errorf("database key: %w", err)
	}
	database, err := db.Open(cfg.DatabasePath, dek)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = database.Close() })

	store := notes.NewSQLStore(database)
	a.notes = notes.NewService(store, cfg.EditMaxChars)

	backups, err := newBackupService(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	a.notes.WithArchiver(backups)

	var generator assist.Generator
	if cfg.NoAI {
		generator = &assist.CannedGenerator{}
	} else {
		generator = assist.NewOpenAIGenerator(assist.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.AIModel,
			MaxTokens:   cfg.AIMaxTokens,
			Temperature: cfg.AITemperature,
		})
	}

	sessions := editor.NewManager(a.notes, generator, editor.Config{
		EditMaxChars:    cfg.EditMaxChars,
		AIMaxChars:      cfg.AIMaxChars,
		GenerateTimeout: cfg.AITimeout,
		IdleTimeout:     cfg.SessionIdleTimeout,
	})
	a.closers = append(a.closers, sessions.Stop)

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	a.closers = append(a.closers, limiter.Stop)

	a.handler = api.NewHandler(api.Deps{
		Notes:    a.notes,
		Sessions: sessions,
		Prefs:    prefs.NewStore(database),
		Backup:   backups,
		Limiter:  limiter,
		MCP:      mcp.NewServer(a.notes, version),
		Version:  version,
	}).Routes()

	if err := a.notes.EnsureIntro(ctx); err != nil {
		log.Warn("intro_note_seed_failed", "error", err)
	}
	return a, nil
}

func newBackupService(ctx context.Context, cfg *config.Config, a *app) (*backup.Service, error) {
	if cfg.NoS3 {
		client, closeFn, err := backup.NewInMemory(ctx, "notelytic-backups")
		if err != nil {
			return nil, fmt.Errorf("in-memory S3: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		return backup.NewService(client, cfg.BackupPrefix), nil
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
