package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the template if needed, initializes the database and
// runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Config written to %s, fill in your Spotify client_id and client_secret\n", r.configPath)

		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return err
		}
		if err := config.Resolve(); err != nil {
			return err
		}
		r.config = config
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (%d migrations applied)\n", r.config.Database.Path, applied)

	if path, err := exec.LookPath(r.config.YouTube.YtdlpPath); err != nil {
		r.logger.Warn("yt-dlp not found, install it before running sync", "ytdlp_path", r.config.YouTube.YtdlpPath)
	} else {
		r.logger.Debug("found yt-dlp", "path", path)
	}

	return nil
}
