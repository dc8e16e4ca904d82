package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/shared"
)

// storedTimeLayout keeps a fixed number of fractional digits so stored instants sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// naiveTimeLayouts are accepted for rows written without an offset; they are read as UTC.
var naiveTimeLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Store groups the repositories backed by one database.
type Store struct {
	db            *sql.DB
	Files         *TrackedFileRepository
	Skipped       *SkippedFileRepository
	Announcements *AnnouncementRepository
	Assignments   *AssignmentRepository
	Runs          *RunRepository
}

// NewStore creates a [Store] over an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		Files:         NewTrackedFileRepository(db),
		Skipped:       NewSkippedFileRepository(db),
		Announcements: NewAnnouncementRepository(db),
		Assignments:   NewAssignmentRepository(db),
		Runs:          NewRunRepository(db),
	}
}

// OpenStore opens the database at path, applies pending migrations and returns the [Store].
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}

	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewStore(db), nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// nullTime maps a nil pointer to SQL NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime reads a stored instant. Values without an offset are treated as UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeErr tags a failed write so callers can match [shared.ErrStoreWrite].
func writeErr(op, id string, err error) error {
	return fmt.Errorf("%w: failed to %s %s: %w", shared.ErrStoreWrite, op, id, err)
}

// notFound maps [sql.ErrNoRows] to [shared.ErrNotFound].
func notFound(entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return fmt.Errorf("failed to scan %s: %w", entity, err)
}

// touch refreshes last_seen_date of one row in table.
func touch(ctx context.Context, db *sql.DB, table, keyCol, entity, id string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET last_seen_date = ? WHERE %s = ?", table, keyCol)

	result, err := db.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return writeErr("touch "+entity, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return writeErr("touch "+entity, id, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return nil
}

// markAllNotified flags the rows of table that are unnotified when the transaction starts.
//
// Ids are read and updated inside one transaction, so rows inserted concurrently by another connection are
// left for the next report.
func markAllNotified(ctx context.Context, db *sql.DB, table, keyCol string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, writeErr("begin notify batch on", table, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE notified = 0", keyCol, table))
	if err != nil {
		return 0, writeErr("snapshot unnotified", table, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, writeErr("scan unnotified", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, writeErr("iterate unnotified", table, err)
	}
	rows.Close()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET notified = 1 WHERE %s = ? AND notified = 0", table, keyCol))
	if err != nil {
		return 0, writeErr("prepare notify on", table, err)
	}
	defer stmt.Close()

	var total int64
	for _, id := range ids {
		result, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, writeErr("mark notified", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, writeErr("mark notified", id, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, writeErr("commit notify batch on", table, err)
	}
	return total, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
