package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/cvsync/internal/shared"
)

const testToken = "secret-token"

// newCanvasServer serves a small course catalogue and counts folder listings.
func newCanvasServer(t *testing.T, folderCalls *atomic.Int32) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/users/self", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "name": "Ada Student"}`))
	})

	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") == "" {
			if q.Get("enrollment_state") != "active" || q.Get("enrollment_type") != "student" || q.Get("include[]") != "term" {
				t.Errorf("unexpected course query %s", r.URL.RawQuery)
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=2&per_page=100>; rel="next"`, server.URL))
			w.Write([]byte(`[
				{"id": 9007199254740993, "course_code": "CS 101", "name": "Intro", "term": {"name": "Fall 2025"}},
				{"id": 12, "name": "No code"}
			]`))
			return
		}
		w.Write([]byte(`[{"id": 13, "course_code": "MATH 2", "name": "Calculus", "term": null}]`))
	})

	mux.HandleFunc("/api/v1/courses/7/files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 101, "display_name": "Syllabus.pdf", "filename": "syllabus.pdf", "size": 2048,
			 "modified_at": "2025-09-01T12:00:00Z", "url": "https://files/101", "folder_id": 55, "mime_class": "pdf"},
			{"id": 102, "display_name": "", "filename": "notes.txt", "size": 10,
			 "modified_at": "2025-09-02T08:30:00.5-04:00", "url": "https://files/102", "folder_id": null, "mime_class": "text"}
		]`))
	})

	mux.HandleFunc("/api/v1/courses/7/folders", func(w http.ResponseWriter, r *http.Request) {
		folderCalls.Add(1)
		w.Write([]byte(`[
			{"id": 54, "full_name": "course files"},
			{"id": 55, "full_name": "course files/Lectures/Week 1"}
		]`))
	})

	mux.HandleFunc("/api/v1/courses/7/discussion_topics", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("only_announcements") != "true" {
			t.Errorf("expected only_announcements=true, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"id": 301, "title": "Welcome", "message": "<p>Hi</p>", "posted_at": "2025-09-01T09:00:00Z", "author": {"display_name": "Prof X"}},
			{"id": 302, "title": "Quiz", "message": null, "posted_at": null, "user_name": "TA"}
		]`))
	})

	mux.HandleFunc("/api/v1/courses/7/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 401, "name": "HW 1", "description": null, "due_at": "2025-09-10T23:59:00Z", "points_possible": 10,
			 "submission_types": ["online_upload"], "html_url": "https://canvas.test/courses/7/assignments/401",
			 "attachments": [{"id": 501, "display_name": "hw1.pdf", "size": 100, "url": "https://files/501", "folder_id": 55}]},
			{"id": 402, "name": "Reading", "due_at": null, "points_possible": null, "submission_types": null}
		]`))
	})

	mux.HandleFunc("/api/v1/courses/8/files", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
			t.Errorf("expected bearer token, got %q", got)
		}
		mux.ServeHTTP(w, r)
	}))
	return server
}

func newTestCanvas(t *testing.T, server *httptest.Server) *CanvasService {
	t.Helper()
	svc, err := NewCanvasService(shared.CanvasConfig{BaseURL: server.URL + "/", APIToken: testToken, RateLimit: 1000}, nil)
	if err != nil {
		t.Fatalf("failed to create canvas service: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestCanvasService(t *testing.T) {
	var folderCalls atomic.Int32
	server := newCanvasServer(t, &folderCalls)
	defer server.Close()

	ctx := context.Background()
	svc := newTestCanvas(t, server)

	t.Run("New", func(t *testing.T) {
		if _, err := NewCanvasService(shared.CanvasConfig{APIToken: "x"}, nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
		if _, err := NewCanvasService(shared.CanvasConfig{BaseURL: "https://x"}, nil); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		name, err := svc.Ping(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if name != "Ada Student" {
			t.Errorf("expected Ada Student, got %q", name)
		}
	})

	t.Run("ListCourses", func(t *testing.T) {
		courses, err := svc.ListCourses(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(courses) != 2 {
			t.Fatalf("expected 2 courses with codes, got %d", len(courses))
		}
		if courses[0].ID != "9007199254740993" {
			t.Errorf("expected full precision id, got %s", courses[0].ID)
		}
		if courses[0].Term != "Fall 2025" {
			t.Errorf("expected Fall 2025, got %s", courses[0].Term)
		}
		if courses[1].Term != "Term 2026" {
			t.Errorf("expected fallback term, got %s", courses[1].Term)
		}
	})

	t.Run("ListFiles", func(t *testing.T) {
		files, err := svc.ListFiles(ctx, "7")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("expected 2 files, got %d", len(files))
		}

		f := files[0]
		if f.ID != "101" || f.FolderID != "55" || f.Size != 2048 || f.MimeClass != "pdf" {
			t.Errorf("unexpected file %+v", f)
		}
		if f.RemoteURL != server.URL+"/courses/7/files/101" {
			t.Errorf("unexpected remote url %s", f.RemoteURL)
		}
		if !f.ModifiedAt.Equal(time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected modified time %v", f.ModifiedAt)
		}

		g := files[1]
		if g.Name() != "notes.txt" || g.FolderID != "" {
			t.Errorf("expected filename fallback and empty folder, got %+v", g)
		}
		want := time.Date(2025, 9, 2, 12, 30, 0, 500_000_000, time.UTC)
		if !g.ModifiedAt.Equal(want) {
			t.Errorf("expected %v, got %v", want, g.ModifiedAt)
		}
	})

	t.Run("ListFiles API error", func(t *testing.T) {
		_, err := svc.ListFiles(ctx, "8")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 APIError, got %v", err)
		}
	})

	t.Run("FolderPath", func(t *testing.T) {
		folderCalls.Store(0)
		fresh := newTestCanvas(t, server)

		path, err := fresh.FolderPath(ctx, "7", "55")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if path != "Lectures/Week 1" {
			t.Errorf("expected prefix stripped, got %q", path)
		}

		if root, _ := fresh.FolderPath(ctx, "7", "54"); root != "" {
			t.Errorf("expected root to be empty, got %q", root)
		}
		if empty, _ := fresh.FolderPath(ctx, "7", ""); empty != "" {
			t.Errorf("expected empty id to be empty, got %q", empty)
		}
		if _, err := fresh.FolderPath(ctx, "7", "999"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if n := folderCalls.Load(); n != 1 {
			t.Errorf("expected folder listing to be cached, got %d calls", n)
		}
	})

	t.Run("ListAnnouncements", func(t *testing.T) {
		anns, err := svc.ListAnnouncements(ctx, "7")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(anns) != 2 {
			t.Fatalf("expected 2 announcements, got %d", len(anns))
		}
		if anns[0].Author != "Prof X" || anns[0].PostedAt == nil {
			t.Errorf("unexpected announcement %+v", anns[0])
		}
		if anns[1].Author != "TA" || anns[1].PostedAt != nil || anns[1].Message != "" {
			t.Errorf("unexpected announcement %+v", anns[1])
		}
		if !strings.HasSuffix(anns[0].RemoteURL, "/courses/7/discussion_topics/301") {
			t.Errorf("unexpected url %s", anns[0].RemoteURL)
		}
	})

	t.Run("ListAssignments", func(t *testing.T) {
		list, err := svc.ListAssignments(ctx, "7")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 assignments, got %d", len(list))
		}

		hw := list[0]
		if hw.RemoteURL != "https://canvas.test/courses/7/assignments/401" {
			t.Errorf("expected html_url, got %s", hw.RemoteURL)
		}
		if hw.Points == nil || *hw.Points != 10 || hw.DueAt == nil {
			t.Errorf("unexpected assignment %+v", hw)
		}
		if len(hw.Attachments) != 1 || hw.Attachments[0].ID != "501" || hw.Attachments[0].FolderID != "" {
			t.Errorf("unexpected attachments %+v", hw.Attachments)
		}

		reading := list[1]
		if reading.DueAt != nil || reading.Points != nil {
			t.Errorf("expected nil due and points, got %+v", reading)
		}
		if reading.SubmissionTypes == nil {
			t.Error("expected empty submission types, got nil")
		}
		if !strings.HasSuffix(reading.RemoteURL, "/courses/7/assignments/402") {
			t.Errorf("expected constructed url, got %s", reading.RemoteURL)
		}
	})
}
