package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/cvsync/internal/shared"
)

var (
	_ Record = (*TrackedFile)(nil)
	_ Record = (*SkippedFile)(nil)
	_ Record = (*Announcement)(nil)
	_ Record = (*Assignment)(nil)
)

// TrackedFile is a remote file that has been captured locally.
//
// DownloadedAt is the local capture instant of the latest successful download and is what staleness checks compare
// against the remote modified timestamp.
type TrackedFile struct {
	ID               string    `json:"id"`
	CourseID         string    `json:"course_id"`
	CourseName       string    `json:"course_name"`
	Filename         string    `json:"filename"`
	LocalPath        string    `json:"local_path"`
	SizeBytes        int64     `json:"size_bytes"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
	DownloadedAt     time.Time `json:"downloaded_at"`
	FirstCapturedAt  time.Time `json:"first_captured_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	Checksum         string    `json:"checksum,omitempty"`
}

// NewTrackedFile creates a [TrackedFile] captured at capturedAt.
func NewTrackedFile(id, courseID, courseName, filename, localPath string, size int64, remoteModified, capturedAt time.Time) *TrackedFile {
	return &TrackedFile{
		ID:               id,
		CourseID:         courseID,
		CourseName:       courseName,
		Filename:         filename,
		LocalPath:        localPath,
		SizeBytes:        size,
		RemoteModifiedAt: remoteModified,
		DownloadedAt:     capturedAt,
		FirstCapturedAt:  capturedAt,
		LastSeenAt:       capturedAt,
	}
}

func (f *TrackedFile) Key() string { return f.ID }

func (f *TrackedFile) Validate() error {
	if err := requireFields("tracked file", "id", f.ID, "course_id", f.CourseID, "filename", f.Filename, "local_path", f.LocalPath); err != nil {
		return err
	}
	if f.LastSeenAt.Before(f.FirstCapturedAt) {
		return fmt.Errorf("%w: tracked file %s last seen before first capture", shared.ErrInvalidInput, f.ID)
	}
	return nil
}

// IsStale reports whether the remote copy changed after the local capture.
//
// Both instants are compared in UTC. The comparison basis is the capture instant, not the remote timestamp
// observed at capture, so two remote edits within one capture window look like one.
func (f *TrackedFile) IsStale(remoteModified time.Time) bool {
	return remoteModified.UTC().After(f.DownloadedAt.UTC())
}

// SkippedFile is a remote file rejected by the admission filter.
type SkippedFile struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	CourseName  string    `json:"course_name"`
	Filename    string    `json:"filename"`
	FolderPath  string    `json:"folder_path"`
	SizeBytes   int64     `json:"size_bytes"`
	RemoteURL   string    `json:"remote_url"`
	Reason      string    `json:"reason"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Notified    bool      `json:"notified"`
}

// NewSkippedFile creates an unnotified [SkippedFile] first seen at seenAt.
func NewSkippedFile(id, courseID, courseName, filename string, size int64, reason string, seenAt time.Time) *SkippedFile {
	return &SkippedFile{
		ID:          id,
		CourseID:    courseID,
		CourseName:  courseName,
		Filename:    filename,
		SizeBytes:   size,
		Reason:      reason,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	}
}

func (f *SkippedFile) Key() string { return f.ID }

func (f *SkippedFile) Validate() error {
	return requireFields("skipped file", "id", f.ID, "course_id", f.CourseID, "filename", f.Filename)
}

// Announcement is a course announcement.
type Announcement struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	CourseName  string     `json:"course_name"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Author      string     `json:"author"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	RemoteURL   string     `json:"remote_url"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	Notified    bool       `json:"notified"`
}

// NewAnnouncement creates an unnotified [Announcement] first seen at seenAt.
func NewAnnouncement(id, courseID, courseName, title string, seenAt time.Time) *Announcement {
	return &Announcement{
		ID:          id,
		CourseID:    courseID,
		CourseName:  courseName,
		Title:       title,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	}
}

func (a *Announcement) Key() string { return a.ID }

func (a *Announcement) Validate() error {
	return requireFields("announcement", "id", a.ID, "course_id", a.CourseID, "title", a.Title)
}

// Assignment is a course assignment. DueAt and Points are optional.
type Assignment struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"course_id"`
	CourseName      string     `json:"course_name"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	Points          *float64   `json:"points,omitempty"`
	SubmissionTypes []string   `json:"submission_types"`
	RemoteURL       string     `json:"remote_url"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	Notified        bool       `json:"notified"`
}

// NewAssignment creates an unnotified [Assignment] first seen at seenAt.
func NewAssignment(id, courseID, courseName, name string, seenAt time.Time) *Assignment {
	return &Assignment{
		ID:              id,
		CourseID:        courseID,
		CourseName:      courseName,
		Name:            name,
		SubmissionTypes: []string{},
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
	}
}

func (a *Assignment) Key() string { return a.ID }

func (a *Assignment) Validate() error {
	return requireFields("assignment", "id", a.ID, "course_id", a.CourseID, "name", a.Name)
}

// IsUpcoming reports whether the assignment has no due date or is due at or after now.
func (a *Assignment) IsUpcoming(now time.Time) bool {
	return a.DueAt == nil || !a.DueAt.Before(now)
}

// RunRecord is the append-only audit entry of one sync pass.
type RunRecord struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	RunAt           time.Time `json:"run_at"`
	FilesDownloaded int       `json:"files_downloaded"`
	FilesUpdated    int       `json:"files_updated"`
	FilesSkipped    int       `json:"files_skipped"`
	FilesFailed     int       `json:"files_failed"`
	TotalBytes      int64     `json:"total_bytes"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	DryRun          bool      `json:"dry_run"`
}

// NewRunRecord creates a [RunRecord] with a generated run id.
func NewRunRecord(runAt time.Time) *RunRecord {
	return &RunRecord{RunID: shared.GenerateID(), RunAt: runAt}
}

// requireFields takes alternating name/value pairs and fails on the first empty value.
func requireFields(entity string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s %s is required", shared.ErrInvalidInput, entity, pairs[i])
		}
	}
	return nil
}
