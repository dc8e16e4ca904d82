package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/services"
	"github.com/desertthunder/cvsync/internal/shared"
)

// SetupDatabase initializes the database and runs migrations.
//
// A missing configuration file is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.path(cmd)

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && r.config == nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			r.config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if config.Database.Path != ":memory:" {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	} else {
		r.logger.Info("running database migrations")
		if err := shared.RunMigrationsContext(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	statuses, err := shared.Migrations(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range statuses {
		mark := "✗"
		if m.Applied {
			mark = "✓"
		}
		r.writePlain("%s %03d %s\n", mark, m.Version, m.Name)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}

// SetupConfig writes the example configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := r.path(cmd)

	if cmd.Bool("force") {
		if err := os.Remove(configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to replace config file: %w", err)
		}
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlain("✓ Configuration written to %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set canvas.base_url and add course ids to courses.whitelist (see 'cvsync courses')\n")
	r.writePlain("2. Run 'cvsync setup token' or export %s\n", shared.EnvAPIToken)
	r.writePlain("3. Run 'cvsync sync --dry-run' to preview the first pass\n")
	return nil
}

// SetupToken verifies an API token against the configured Canvas instance and saves it to the configuration file.
//
// The file is re-read without environment overrides so that secrets from the environment are not written out.
func (r *Runner) SetupToken(ctx context.Context, cmd *cli.Command) error {
	configPath := r.path(cmd)

	config, err := shared.ReadConfig(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s (run 'cvsync setup config' first)", shared.ErrMissingConfig, configPath)
		}
		return err
	}

	token := cmd.String("token")
	if token == "" {
		r.writePlain("Create a token under Account > Settings > Approved Integrations in Canvas.\n")
		if token, err = r.promptSecret("API token"); err != nil {
			return err
		}
	}
	if token == "" {
		return fmt.Errorf("%w: api token", shared.ErrMissingArgument)
	}

	canvasCfg := config.Canvas
	canvasCfg.APIToken = token
	svc, err := services.NewCanvasService(canvasCfg, r.httpClient)
	if err != nil {
		return err
	}

	r.logger.Info("verifying token", "base_url", canvasCfg.BaseURL)
	name, err := svc.Ping(ctx)
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	config.Canvas.APIToken = token
	if err := shared.SaveConfig(config, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.config = nil

	r.writePlain("✓ Authenticated as %s\n", name)
	r.writePlain("Token saved to %s\n", configPath)
	return nil
}

type connectionTester interface {
	TestConnection(ctx context.Context) error
}

type testSender interface {
	SendTest(ctx context.Context) error
}

// TestEmail checks the SMTP connection and sends a test message to the configured recipient.
func (r *Runner) TestEmail(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	email := config.Notification.Email
	if !email.Enabled {
		r.logger.Warn("email notifications are disabled; testing settings anyway")
	}
	if email.Recipient == "" {
		return fmt.Errorf("%w: notification.email.recipient is required", shared.ErrInvalidConfig)
	}
	if email.Username == "" || email.Password == "" {
		return fmt.Errorf("%w: email username/password (set %s and %s)",
			shared.ErrMissingCredentials, shared.EnvEmailUsername, shared.EnvEmailPassword)
	}

	notifier, err := r.emailNotifier(config)
	if err != nil {
		return err
	}

	r.writePlain("Connecting to %s:%d...\n", email.SMTPServer, email.SMTPPort)
	if t, ok := notifier.(connectionTester); ok {
		if err := t.TestConnection(ctx); err != nil {
			return err
		}
		r.writePlain("✓ SMTP connection and login succeeded\n")
	}

	if s, ok := notifier.(testSender); ok {
		err = s.SendTest(ctx)
	} else {
		err = notifier.Send(ctx, "Canvas Scraper - Test Email", "<p>Your email settings work.</p>")
	}
	if err != nil {
		return err
	}

	r.writePlain("✓ Test email sent to %s\n", email.Recipient)
	return nil
}
