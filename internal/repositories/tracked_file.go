package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/models"
)

var _ models.Repository[*models.TrackedFile] = (*TrackedFileRepository)(nil)

const trackedFileColumns = `file_id, course_id, course_name, filename, local_path, size_bytes, canvas_modified_at,
	download_date, first_captured_at, last_seen_date, checksum`

// TrackedFileRepository persists [models.TrackedFile] rows in downloaded_files.
type TrackedFileRepository struct {
	db *sql.DB
}

// NewTrackedFileRepository creates a new TrackedFileRepository with the given database connection
func NewTrackedFileRepository(db *sql.DB) *TrackedFileRepository {
	return &TrackedFileRepository{db: db}
}

// Get retrieves a tracked file by remote id
func (r *TrackedFileRepository) Get(ctx context.Context, id string) (*models.TrackedFile, error) {
	query := `SELECT ` + trackedFileColumns + ` FROM downloaded_files WHERE file_id = ?`

	f, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("tracked file", id, err)
	}
	return f, nil
}

// Upsert inserts a tracked file or replaces the existing row with the same id.
//
// The second write wins for every column except first_captured_at, which keeps the original capture instant.
func (r *TrackedFileRepository) Upsert(ctx context.Context, f *models.TrackedFile) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO downloaded_files (` + trackedFileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			filename = excluded.filename,
			local_path = excluded.local_path,
			size_bytes = excluded.size_bytes,
			canvas_modified_at = excluded.canvas_modified_at,
			download_date = excluded.download_date,
			last_seen_date = excluded.last_seen_date,
			checksum = excluded.checksum
	`

	var modified any
	if !f.RemoteModifiedAt.IsZero() {
		modified = formatTime(f.RemoteModifiedAt)
	}

	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.CourseID,
		f.CourseName,
		f.Filename,
		f.LocalPath,
		f.SizeBytes,
		modified,
		formatTime(f.DownloadedAt),
		formatTime(f.FirstCapturedAt),
		formatTime(f.LastSeenAt),
		sql.NullString{String: f.Checksum, Valid: f.Checksum != ""},
	)
	if err != nil {
		return writeErr("upsert tracked file", f.ID, err)
	}
	return nil
}

// TouchLastSeen refreshes last_seen_date without changing the download date
func (r *TrackedFileRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return touch(ctx, r.db, "downloaded_files", "file_id", "tracked file", id, at)
}

// Delete removes a tracked file row
func (r *TrackedFileRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM downloaded_files WHERE file_id = ?", id); err != nil {
		return writeErr("delete tracked file", id, err)
	}
	return nil
}

// ListByCourse returns the tracked files of a course ordered by filename
func (r *TrackedFileRepository) ListByCourse(ctx context.Context, courseID string) ([]*models.TrackedFile, error) {
	query := `SELECT ` + trackedFileColumns + ` FROM downloaded_files WHERE course_id = ? ORDER BY filename`

	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked files: %w", err)
	}
	defer rows.Close()

	var files []*models.TrackedFile
	for rows.Next() {
		f, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

// Count returns the number of tracked files and their total size
func (r *TrackedFileRepository) Count(ctx context.Context) (int, int64, error) {
	var (
		count int
		total int64
	)
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM downloaded_files").Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tracked files: %w", err)
	}
	return count, total, nil
}

// scan reads one row from a [sql.Row] or [sql.Rows]
func (r *TrackedFileRepository) scan(s scanner) (*models.TrackedFile, error) {
	var (
		f                                  models.TrackedFile
		modified, checksum                 sql.NullString
		downloaded, firstCaptured, seenStr string
	)

	err := s.Scan(&f.ID, &f.CourseID, &f.CourseName, &f.Filename, &f.LocalPath, &f.SizeBytes, &modified,
		&downloaded, &firstCaptured, &seenStr, &checksum)
	if err != nil {
		return nil, err
	}

	if f.DownloadedAt, err = parseTime(downloaded); err != nil {
		return nil, err
	}
	if f.FirstCapturedAt, err = parseTime(firstCaptured); err != nil {
		return nil, err
	}
	if f.LastSeenAt, err = parseTime(seenStr); err != nil {
		return nil, err
	}
	if m, err := parseNullTime(modified); err != nil {
		return nil, err
	} else if m != nil {
		f.RemoteModifiedAt = *m
	}
	f.Checksum = checksum.String

	return &f, nil
}

// scanner is satisfied by [sql.Row] and [sql.Rows]
type scanner interface {
	Scan(dest ...any) error
}
