package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Course is an active course returned by the remote API.
type Course struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Term string `json:"term"`
}

// Label returns "{code} - {name}", the name stored alongside every row of the course.
func (c Course) Label() string {
	return fmt.Sprintf("%s - %s", c.Code, c.Name)
}

// RemoteFile is a file listed by the remote API, either a course file or an assignment attachment.
type RemoteFile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	URL         string    `json:"url"`       // authenticated download URL
	FolderID    string    `json:"folder_id"` // empty for the course root and attachments
	MimeClass   string    `json:"mime_class"`
	RemoteURL   string    `json:"remote_url"` // browser URL for reports
}

// Name returns the display name, falling back to the stored filename.
func (f RemoteFile) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Filename
}

// Ext returns the lowercased extension of [RemoteFile.Name].
func (f RemoteFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name()))
}

// RemoteAnnouncement is an announcement listed by the remote API.
type RemoteAnnouncement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Author    string     `json:"author"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
	RemoteURL string     `json:"remote_url"`
}

// RemoteAssignment is an assignment listed by the remote API.
type RemoteAssignment struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	DueAt           *time.Time   `json:"due_at,omitempty"`
	Points          *float64     `json:"points,omitempty"`
	SubmissionTypes []string     `json:"submission_types"`
	RemoteURL       string       `json:"remote_url"`
	Attachments     []RemoteFile `json:"attachments,omitempty"`
}
