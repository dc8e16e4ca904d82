package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/models"
)

var _ models.NotifiableRepository[*models.SkippedFile] = (*SkippedFileRepository)(nil)

const skippedFileColumns = `file_id, course_id, course_name, filename, folder_path, size_bytes, canvas_url, skip_reason,
	first_seen_date, last_seen_date, notified`

// SkippedFileRepository persists [models.SkippedFile] rows in skipped_files.
type SkippedFileRepository struct {
	db *sql.DB
}

// NewSkippedFileRepository creates a new SkippedFileRepository with the given database connection
func NewSkippedFileRepository(db *sql.DB) *SkippedFileRepository {
	return &SkippedFileRepository{db: db}
}

// Get retrieves a skipped file by remote id
func (r *SkippedFileRepository) Get(ctx context.Context, id string) (*models.SkippedFile, error) {
	query := `SELECT ` + skippedFileColumns + ` FROM skipped_files WHERE file_id = ?`

	f, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("skipped file", id, err)
	}
	return f, nil
}

// Upsert inserts a skipped file or refreshes the existing row.
//
// An existing row keeps its notified flag and first-seen date; a new row takes both from f.
func (r *SkippedFileRepository) Upsert(ctx context.Context, f *models.SkippedFile) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO skipped_files (` + skippedFileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			filename = excluded.filename,
			folder_path = excluded.folder_path,
			size_bytes = excluded.size_bytes,
			canvas_url = excluded.canvas_url,
			skip_reason = excluded.skip_reason,
			last_seen_date = excluded.last_seen_date
	`

	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.CourseID,
		f.CourseName,
		f.Filename,
		f.FolderPath,
		f.SizeBytes,
		f.RemoteURL,
		f.Reason,
		formatTime(f.FirstSeenAt),
		formatTime(f.LastSeenAt),
		boolToInt(f.Notified),
	)
	if err != nil {
		return writeErr("upsert skipped file", f.ID, err)
	}
	return nil
}

// TouchLastSeen refreshes last_seen_date
func (r *SkippedFileRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return touch(ctx, r.db, "skipped_files", "file_id", "skipped file", id, at)
}

// Delete removes a skipped file so its next observation is reported again
func (r *SkippedFileRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM skipped_files WHERE file_id = ?", id); err != nil {
		return writeErr("delete skipped file", id, err)
	}
	return nil
}

// ListUnnotified returns unreported skipped files ordered by course and filename
func (r *SkippedFileRepository) ListUnnotified(ctx context.Context) ([]*models.SkippedFile, error) {
	query := `SELECT ` + skippedFileColumns + ` FROM skipped_files WHERE notified = 0 ORDER BY course_name, filename`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query skipped files: %w", err)
	}
	defer rows.Close()

	var files []*models.SkippedFile
	for rows.Next() {
		f, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skipped file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

// MarkAllNotified flags every skipped file that is unnotified at call time
func (r *SkippedFileRepository) MarkAllNotified(ctx context.Context) (int64, error) {
	return markAllNotified(ctx, r.db, "skipped_files", "file_id")
}

func (r *SkippedFileRepository) scan(s scanner) (*models.SkippedFile, error) {
	var (
		f               models.SkippedFile
		firstSeen, seen string
		notified        int
	)

	err := s.Scan(&f.ID, &f.CourseID, &f.CourseName, &f.Filename, &f.FolderPath, &f.SizeBytes, &f.RemoteURL, &f.Reason,
		&firstSeen, &seen, &notified)
	if err != nil {
		return nil, err
	}

	if f.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if f.LastSeenAt, err = parseTime(seen); err != nil {
		return nil, err
	}
	f.Notified = notified != 0

	return &f, nil
}
