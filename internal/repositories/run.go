package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/cvsync/internal/models"
)

const runColumns = `id, run_id, run_date, files_downloaded, files_updated, files_skipped, files_failed,
	total_size_bytes, success, error_message, dry_run`

// RunRepository appends and reads [models.RunRecord] rows. Records are never updated.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Append inserts a run record and sets its sequence id
func (r *RunRepository) Append(ctx context.Context, run *models.RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("validation failed: run id is required")
	}

	query := `
		INSERT INTO run_history (run_id, run_date, files_downloaded, files_updated, files_skipped, files_failed,
			total_size_bytes, success, error_message, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		run.RunID,
		formatTime(run.RunAt),
		run.FilesDownloaded,
		run.FilesUpdated,
		run.FilesSkipped,
		run.FilesFailed,
		run.TotalBytes,
		boolToInt(run.Success),
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		boolToInt(run.DryRun),
	)
	if err != nil {
		return writeErr("append run", run.RunID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return writeErr("read id of run", run.RunID, err)
	}
	run.ID = id
	return nil
}

// Last returns the most recent run
func (r *RunRepository) Last(ctx context.Context) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM run_history ORDER BY id DESC LIMIT 1`

	run, err := r.scan(r.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, notFound("run", "latest", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first. A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM run_history ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) scan(s scanner) (*models.RunRecord, error) {
	var (
		run             models.RunRecord
		runAt           string
		success, dryRun int
		errText         sql.NullString
	)

	err := s.Scan(&run.ID, &run.RunID, &runAt, &run.FilesDownloaded, &run.FilesUpdated, &run.FilesSkipped,
		&run.FilesFailed, &run.TotalBytes, &success, &errText, &dryRun)
	if err != nil {
		return nil, err
	}

	if run.RunAt, err = parseTime(runAt); err != nil {
		return nil, err
	}
	run.Success = success != 0
	run.DryRun = dryRun != 0
	run.Error = errText.String

	return &run, nil
}
