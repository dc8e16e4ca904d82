// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// syncCommand runs one sync pass
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass over the whitelisted courses",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Classify remote files without downloading or recording a run",
			},
			&cli.BoolFlag{
				Name:  "no-email",
				Usage: "Do not deliver the report by email",
			},
			&cli.StringFlag{
				Name:    "report-file",
				Aliases: []string{"o"},
				Usage:   "Also write the report to a file (.html, .md or .txt)",
			},
		},
		Action: r.Sync,
	}
}

// coursesCommand lists active courses
func coursesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "List active courses and mark the whitelisted ones",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Courses,
	}
}

// historyCommand shows recent runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of runs to show",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// statusCommand summarises the mirror and the report backlog
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the last run, tracked files and unreported items",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "course",
				Usage: "List the tracked files of one course id",
			},
		},
		Action: r.Status,
	}
}

// testEmailCommand checks the SMTP settings
func testEmailCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "test-email",
		Usage:  "Check the SMTP connection and send a test message",
		Action: r.TestEmail,
	}
}

// setupCommand groups first-run helpers
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the configuration, database and API token",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest applied migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Replace an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "token",
				Usage: "Verify a Canvas API token and save it to the configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token",
						Usage: "API token (prompted for when omitted)",
					},
				},
				Action: r.SetupToken,
			},
		},
	}
}

// tuiCommand launches the interactive monitor
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the interactive sync monitor",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-email",
				Usage: "Do not deliver reports by email",
			},
		},
		Action: r.TUI,
	}
}
