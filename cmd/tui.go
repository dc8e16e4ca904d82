package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/shared"
	"github.com/desertthunder/cvsync/internal/tasks"
	"github.com/desertthunder/cvsync/internal/ui"
)

// TUI launches the interactive sync monitor.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/cvsync-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	store, err := r.openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	lister, err := r.canvas(config)
	if err != nil {
		return err
	}
	r.lister = lister

	progress := make(chan tasks.ProgressUpdate, 100)
	engine, err := r.buildEngine(config, store, progress)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, lister, engine, progress, ui.Options{
		Whitelist:  config.Courses.Whitelist,
		EmitReport: !cmd.Bool("no-email"),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
