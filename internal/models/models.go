// package models defines the data model for the course mirror
package models

import (
	"context"
	"time"
)

// Record defines the base interface for all persisted entities.
// Implementations include TrackedFile, SkippedFile, Announcement and Assignment.
type Record interface {
	// Key returns the stable remote identifier
	Key() string
	// Validate checks required fields before a write
	Validate() error
}

// Repository defines the operations every persisted entity supports.
type Repository[T Record] interface {
	// Get retrieves a record by id or fails with shared.ErrNotFound
	Get(ctx context.Context, id string) (T, error)
	// Upsert inserts or replaces a record
	Upsert(ctx context.Context, record T) error
	// TouchLastSeen refreshes the last-seen instant
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// NotifiableRepository adds report bookkeeping for entities surfaced in reports.
type NotifiableRepository[T Record] interface {
	Repository[T]
	// ListUnnotified returns rows not yet reported
	ListUnnotified(ctx context.Context) ([]T, error)
	// MarkAllNotified flags every currently unreported row and returns how many changed
	MarkAllNotified(ctx context.Context) (int64, error)
}
