package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/formatter"
	"github.com/desertthunder/cvsync/internal/shared"
	"github.com/desertthunder/cvsync/internal/tasks"
	"github.com/desertthunder/cvsync/internal/ui"
)

// Sync runs one pass and prints progress followed by a summary.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	store, err := r.openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	progressCh := make(chan tasks.ProgressUpdate, 100)
	engine, err := r.buildEngine(config, store, progressCh)
	if err != nil {
		return err
	}

	opts := tasks.SyncOptions{
		DryRun:     cmd.Bool("dry-run"),
		EmitReport: !cmd.Bool("no-email"),
	}
	if opts.DryRun {
		r.writePlain("Dry run: nothing will be downloaded or recorded as a run\n\n")
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			r.printProgress(update)
		}
	}()

	result, err := engine.RunSyncPass(ctx, opts)
	close(progressCh)
	<-printed

	r.writePlain("\n%s\n", ui.RenderSummary(result, err))

	if result != nil && cmd.String("report-file") != "" {
		path := cmd.String("report-file")
		if werr := formatter.WriteReport(r.fs, path, result.Report); werr != nil {
			r.logger.Error("failed to write report file", "path", path, "error", werr)
		} else {
			r.writePlain("Report written to %s\n", path)
		}
	}

	if err != nil {
		if errors.Is(err, shared.ErrCancelled) {
			return err
		}
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchCourses:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.ScanCourse:
		r.writePlain("\n📚 %s\n", update.Message)
	case tasks.DownloadFiles:
		if update.Step == 0 {
			r.writePlain("   ⬇️  %s\n", update.Message)
		} else {
			r.writePlain("      %s\n", update.Message)
		}
	case tasks.FetchAnnouncements:
		r.writePlain("   📢 %s\n", update.Message)
	case tasks.FetchAssignments:
		r.writePlain("   📝 %s\n", update.Message)
	case tasks.BuildReport:
		r.writePlain("\n🧾 %s\n", update.Message)
	case tasks.SendReport:
		r.writePlain("✉️  %s\n", update.Message)
	case tasks.Complete:
		r.writePlain("✅ %s\n", update.Message)
	}
}
