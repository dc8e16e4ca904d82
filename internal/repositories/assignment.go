package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/models"
)

var _ models.NotifiableRepository[*models.Assignment] = (*AssignmentRepository)(nil)

const assignmentColumns = `id, course_id, course_name, name, description, due_at, points_possible, submission_types,
	canvas_url, first_seen_date, last_seen_date, notified`

// AssignmentRepository persists [models.Assignment] rows.
//
// Submission types are stored as a JSON array to keep their order.
type AssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new AssignmentRepository with the given database connection
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Get retrieves an assignment by remote id
func (r *AssignmentRepository) Get(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = ?`

	a, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("assignment", id, err)
	}
	return a, nil
}

// Upsert inserts an assignment or refreshes the existing row, keeping its notified flag and first-seen date
func (r *AssignmentRepository) Upsert(ctx context.Context, a *models.Assignment) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	kinds := a.SubmissionTypes
	if kinds == nil {
		kinds = []string{}
	}
	encoded, err := json.Marshal(kinds)
	if err != nil {
		return fmt.Errorf("failed to encode submission types: %w", err)
	}

	var points sql.NullFloat64
	if a.Points != nil {
		points = sql.NullFloat64{Float64: *a.Points, Valid: true}
	}

	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			name = excluded.name,
			description = excluded.description,
			due_at = excluded.due_at,
			points_possible = excluded.points_possible,
			submission_types = excluded.submission_types,
			canvas_url = excluded.canvas_url,
			last_seen_date = excluded.last_seen_date
	`

	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.CourseID,
		a.CourseName,
		a.Name,
		a.Description,
		nullTime(a.DueAt),
		points,
		string(encoded),
		a.RemoteURL,
		formatTime(a.FirstSeenAt),
		formatTime(a.LastSeenAt),
		boolToInt(a.Notified),
	)
	if err != nil {
		return writeErr("upsert assignment", a.ID, err)
	}
	return nil
}

// TouchLastSeen refreshes last_seen_date
func (r *AssignmentRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return touch(ctx, r.db, "assignments", "id", "assignment", id, at)
}

// ListUnnotified returns every unreported assignment, past due or not, by course and due date
func (r *AssignmentRepository) ListUnnotified(ctx context.Context) ([]*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE notified = 0 ORDER BY course_name, due_at`
	return r.list(ctx, query)
}

// ListUpcoming returns unreported assignments without a due date or due at or after now.
//
// Undated assignments sort after dated ones within a course.
func (r *AssignmentRepository) ListUpcoming(ctx context.Context, now time.Time) ([]*models.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + ` FROM assignments
		WHERE notified = 0 AND (due_at IS NULL OR due_at >= ?)
		ORDER BY course_name, due_at IS NULL, due_at
	`
	return r.list(ctx, query, formatTime(now))
}

// MarkAllNotified flags every assignment that is unnotified at call time, including past-due ones
func (r *AssignmentRepository) MarkAllNotified(ctx context.Context) (int64, error) {
	return markAllNotified(ctx, r.db, "assignments", "id")
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...any) ([]*models.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return assignments, nil
}

func (r *AssignmentRepository) scan(s scanner) (*models.Assignment, error) {
	var (
		a               models.Assignment
		due             sql.NullString
		points          sql.NullFloat64
		kinds           string
		firstSeen, seen string
		notified        int
	)

	err := s.Scan(&a.ID, &a.CourseID, &a.CourseName, &a.Name, &a.Description, &due, &points, &kinds,
		&a.RemoteURL, &firstSeen, &seen, &notified)
	if err != nil {
		return nil, err
	}

	if a.DueAt, err = parseNullTime(due); err != nil {
		return nil, err
	}
	if points.Valid {
		p := points.Float64
		a.Points = &p
	}
	if err := json.Unmarshal([]byte(kinds), &a.SubmissionTypes); err != nil {
		return nil, fmt.Errorf("failed to decode submission types: %w", err)
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
