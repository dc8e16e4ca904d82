package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/shared"
)

func TestRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			if _, err := NewTrackedFileRepository(db).Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for tracked file, got %v", err)
			}
			if _, err := NewSkippedFileRepository(db).Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for skipped file, got %v", err)
			}
			if _, err := NewAnnouncementRepository(db).Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for announcement, got %v", err)
			}
			if _, err := NewAssignmentRepository(db).Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for assignment, got %v", err)
			}
		})

		t.Run("CorruptTimestamp", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			_, err := db.Exec(`INSERT INTO announcements (id, course_id, course_name, title, first_seen_date, last_seen_date)
				VALUES ('1', '7', 'CS', 'T', 'yesterday', 'yesterday')`)
			if err != nil {
				t.Fatalf("failed to insert raw row: %v", err)
			}

			_, err = NewAnnouncementRepository(db).Get(ctx, "1")
			if err == nil || errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected scan error, got %v", err)
			}
		})
	})

	t.Run("Upsert", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			f := models.NewTrackedFile("", "7", "CS", "a.pdf", "/tmp/a.pdf", 1, baseTime, baseTime)
			if err := NewTrackedFileRepository(db).Upsert(ctx, f); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}

			a := models.NewAssignment("1", "7", "CS", "", baseTime)
			if err := NewAssignmentRepository(db).Upsert(ctx, a); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("ClosedDatabase", func(t *testing.T) {
			db := setupTestDB(t)
			db.Close()

			s := models.NewSkippedFile("1", "7", "CS", "a.mp4", 1, "r", baseTime)
			if err := NewSkippedFileRepository(db).Upsert(ctx, s); !errors.Is(err, shared.ErrStoreWrite) {
				t.Errorf("expected ErrStoreWrite, got %v", err)
			}

			run := models.NewRunRecord(baseTime)
			if err := NewRunRepository(db).Append(ctx, run); !errors.Is(err, shared.ErrStoreWrite) {
				t.Errorf("expected ErrStoreWrite, got %v", err)
			}
		})
	})

	t.Run("TouchLastSeen", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			err := NewSkippedFileRepository(db).TouchLastSeen(ctx, "missing", time.Now())
			if !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("MarkAllNotified", func(t *testing.T) {
		t.Run("Cancelled", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewAnnouncementRepository(db)
			if err := repo.Upsert(ctx, models.NewAnnouncement("1", "7", "CS", "A", baseTime)); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			if _, err := repo.MarkAllNotified(cancelled); !errors.Is(err, shared.ErrStoreWrite) {
				t.Errorf("expected ErrStoreWrite, got %v", err)
			}

			list, _ := repo.ListUnnotified(ctx)
			if len(list) != 1 {
				t.Errorf("expected row to stay unnotified, got %d unnotified", len(list))
			}
		})
	})

	t.Run("Append", func(t *testing.T) {
		t.Run("DuplicateRunID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			run := models.NewRunRecord(baseTime)
			if err := repo.Append(ctx, run); err != nil {
				t.Fatalf("failed to append: %v", err)
			}

			dup := *run
			if err := repo.Append(ctx, &dup); !errors.Is(err, shared.ErrStoreWrite) {
				t.Errorf("expected ErrStoreWrite for duplicate run id, got %v", err)
			}
		})

		t.Run("MissingRunID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			if err := NewRunRepository(db).Append(ctx, &models.RunRecord{}); err == nil {
				t.Error("expected validation error")
			}
		})
	})
}
