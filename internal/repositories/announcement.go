package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/models"
)

var _ models.NotifiableRepository[*models.Announcement] = (*AnnouncementRepository)(nil)

const announcementColumns = `id, course_id, course_name, title, message, author, posted_at, canvas_url,
	first_seen_date, last_seen_date, notified`

// AnnouncementRepository persists [models.Announcement] rows.
type AnnouncementRepository struct {
	db *sql.DB
}

// NewAnnouncementRepository creates a new AnnouncementRepository with the given database connection
func NewAnnouncementRepository(db *sql.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Get retrieves an announcement by remote id
func (r *AnnouncementRepository) Get(ctx context.Context, id string) (*models.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE id = ?`

	a, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("announcement", id, err)
	}
	return a, nil
}

// Upsert inserts an announcement or refreshes the existing row, keeping its notified flag and first-seen date
func (r *AnnouncementRepository) Upsert(ctx context.Context, a *models.Announcement) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO announcements (` + announcementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			title = excluded.title,
			message = excluded.message,
			author = excluded.author,
			posted_at = excluded.posted_at,
			canvas_url = excluded.canvas_url,
			last_seen_date = excluded.last_seen_date
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.CourseID,
		a.CourseName,
		a.Title,
		a.Message,
		a.Author,
		nullTime(a.PostedAt),
		a.RemoteURL,
		formatTime(a.FirstSeenAt),
		formatTime(a.LastSeenAt),
		boolToInt(a.Notified),
	)
	if err != nil {
		return writeErr("upsert announcement", a.ID, err)
	}
	return nil
}

// TouchLastSeen refreshes last_seen_date
func (r *AnnouncementRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return touch(ctx, r.db, "announcements", "id", "announcement", id, at)
}

// ListUnnotified returns unreported announcements by course, newest first
func (r *AnnouncementRepository) ListUnnotified(ctx context.Context) ([]*models.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE notified = 0 ORDER BY course_name, posted_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query announcements: %w", err)
	}
	defer rows.Close()

	var announcements []*models.Announcement
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		announcements = append(announcements, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return announcements, nil
}

// MarkAllNotified flags every announcement that is unnotified at call time
func (r *AnnouncementRepository) MarkAllNotified(ctx context.Context) (int64, error) {
	return markAllNotified(ctx, r.db, "announcements", "id")
}

func (r *AnnouncementRepository) scan(s scanner) (*models.Announcement, error) {
	var (
		a               models.Announcement
		posted          sql.NullString
		firstSeen, seen string
		notified        int
	)

	err := s.Scan(&a.ID, &a.CourseID, &a.CourseName, &a.Title, &a.Message, &a.Author, &posted, &a.RemoteURL,
		&firstSeen, &seen, &notified)
	if err != nil {
		return nil, err
	}

	if a.PostedAt, err = parseNullTime(posted); err != nil {
		return nil, err
	}
	if a.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if a.LastSeenAt, err = parseTime(seen); err != nil {
		return nil, err
	}
	a.Notified = notified != 0

	return &a, nil
}
