package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/desertthunder/harmoni/internal/ui"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:     "harmoni",
		Usage:    "Build a music catalog from Spotify and Exportify exports, then fill the gaps on disk",
		Version:  "0.1.0",
		Flags:    rootFlags(),
		Before:   runner.before,
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			os.Exit(130)
		case errors.Is(err, shared.ErrMissingCredentials):
			logger.Error(err.Error())
			fmt.Fprintln(os.Stderr, ui.Help("Run `harmoni spotify status` for setup instructions."))
			os.Exit(1)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// Init writes config.toml from the embedded template and applies database migrations.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err == nil {
		r.logger.Info("config file already exists", "path", r.configPath)
	} else {
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		r.logger.Info("config file created", "path", r.configPath)
	}

	config := r.cfg()
	r.logger.Info("initializing database", "path", config.Storage.Database)
	db, err := shared.OpenDatabase(config.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	version, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}

	if err := r.fs.MkdirAll(config.Sync.WatchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	r.writePlain("%s\n", ui.Success("Setup complete"))
	r.writePlain("Config:   %s\nDatabase: %s (schema v%d)\nExports:  %s\n", r.configPath, config.Storage.Database, version, config.Sync.WatchDir)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set [spotify] client_id in %s\n", r.configPath)
	r.writePlain("2. Run 'harmoni spotify auth'\n")
	return r.writePlain("3. Drop Exportify CSV files into %s and run 'harmoni sync run'\n", config.Sync.WatchDir)
}
