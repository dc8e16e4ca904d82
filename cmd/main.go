package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	app := newApp(NewRunner(RunnerOpts{Logger: logger}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.Is(err, shared.ErrCancelled):
			logger.Warn("interrupted", "error", err)
			os.Exit(130)
		case errors.Is(err, shared.ErrMissingConfig),
			errors.Is(err, shared.ErrInvalidConfig),
			errors.Is(err, shared.ErrMissingCredentials):
			logger.Fatalf("configuration error:\n%v", err)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// newApp builds the root command around runner.
func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "cvsync",
		Usage:   "Mirror Canvas course files locally and report what changed",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (.toml, .yaml)",
				Value:   "config.toml",
				Sources: cli.EnvVars("CVSYNC_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
				Action: func(ctx context.Context, cmd *cli.Command, verbose bool) error {
					if verbose {
						shared.SetLogLevel(runner.logger, log.DebugLevel)
					}
					return nil
				},
			},
		},
		Commands: runner.register(),
	}
}
