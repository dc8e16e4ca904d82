package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cvsync/internal/formatter"
	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/shared"
)

// History lists recent runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		return fmt.Errorf("%w: --limit must be positive", shared.ErrInvalidFlag)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := r.openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs.List(ctx, limit)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if runs == nil {
			runs = []*models.RunRecord{}
		}
		return r.writeJSON(runs, true)
	}

	if len(runs) == 0 {
		r.writePlain("No sync runs recorded yet\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Recent Runs (%d)", len(runs)))
	r.writePlain("%-20s %-6s %5s %5s %5s %5s %10s\n", "When", "Status", "New", "Upd", "Skip", "Fail", "Size")
	for _, run := range runs {
		r.writePlain("%-20s %-6s %5d %5d %5d %5d %10s\n",
			run.RunAt.Local().Format("2006-01-02 15:04"), runStatus(run),
			run.FilesDownloaded, run.FilesUpdated, run.FilesSkipped, run.FilesFailed,
			formatter.FormatSize(run.TotalBytes))
		if run.Error != "" {
			r.writePlain("  └ %s\n", run.Error)
		}
	}
	return nil
}

// Status prints the last run, the tracked totals and the unreported backlog, or the files of one course.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := r.openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	if courseID := cmd.String("course"); courseID != "" {
		files, err := store.Files.ListByCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			r.writePlain("No tracked files for course %s\n", courseID)
			return nil
		}

		r.writePlainHeader(fmt.Sprintf("%s (%d files)", files[0].CourseName, len(files)))
		for _, f := range files {
			r.writePlain("%-50s %10s  %s\n", f.LocalPath, formatter.FormatSize(f.SizeBytes),
				f.DownloadedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}

	r.writePlainHeader("Sync Status")

	last, err := store.Runs.Last(ctx)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		r.writePlain("Last run:        never\n")
	case err != nil:
		return err
	default:
		r.writePlain("Last run:        %s (%s)\n", formatter.FormatTime(last.RunAt), runStatus(last))
		if last.Error != "" {
			r.writePlain("Last error:      %s\n", last.Error)
		}
	}

	count, size, err := store.Files.Count(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Tracked files:   %d (%s)\n", count, formatter.FormatSize(size))

	skipped, err := store.Skipped.ListUnnotified(ctx)
	if err != nil {
		return err
	}
	announcements, err := store.Announcements.ListUnnotified(ctx)
	if err != nil {
		return err
	}
	assignments, err := store.Assignments.ListUnnotified(ctx)
	if err != nil {
		return err
	}

	r.writePlainln("Unreported")
	r.writePlain("  Skipped files: %d\n", len(skipped))
	r.writePlain("  Announcements: %d\n", len(announcements))
	r.writePlain("  Assignments:   %d\n", len(assignments))

	if next, err := config.Scheduling.NextRun(time.Now()); err == nil {
		r.writePlainln("Next scheduled run: %s", formatter.FormatTime(next))
	}
	return nil
}

func runStatus(run *models.RunRecord) string {
	switch {
	case run.DryRun:
		return "dry"
	case run.Success:
		return "ok"
	default:
		return "failed"
	}
}
