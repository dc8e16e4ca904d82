// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/shared"
)

// MockLister is an in-memory course listing keyed by course id.
type MockLister struct {
	Courses       []models.Course
	Files         map[string][]models.RemoteFile
	Folders       map[string]string // "{courseID}/{folderID}" to folder path
	Announcements map[string][]models.RemoteAnnouncement
	Assignments   map[string][]models.RemoteAssignment

	CoursesErr       error
	FilesErr         map[string]error
	AnnouncementsErr error
	AssignmentsErr   error

	mu        sync.Mutex
	FileCalls []string
}

func (m *MockLister) ListCourses(ctx context.Context) ([]models.Course, error) {
	if m.CoursesErr != nil {
		return nil, m.CoursesErr
	}
	return m.Courses, nil
}

func (m *MockLister) ListFiles(ctx context.Context, courseID string) ([]models.RemoteFile, error) {
	m.mu.Lock()
	m.FileCalls = append(m.FileCalls, courseID)
	m.mu.Unlock()

	if err := m.FilesErr[courseID]; err != nil {
		return nil, err
	}
	return m.Files[courseID], nil
}

func (m *MockLister) FolderPath(ctx context.Context, courseID, folderID string) (string, error) {
	if folderID == "" {
		return "", nil
	}
	return m.Folders[courseID+"/"+folderID], nil
}

func (m *MockLister) ListAnnouncements(ctx context.Context, courseID string) ([]models.RemoteAnnouncement, error) {
	if m.AnnouncementsErr != nil {
		return nil, m.AnnouncementsErr
	}
	return m.Announcements[courseID], nil
}

func (m *MockLister) ListAssignments(ctx context.Context, courseID string) ([]models.RemoteAssignment, error) {
	if m.AssignmentsErr != nil {
		return nil, m.AssignmentsErr
	}
	return m.Assignments[courseID], nil
}

// MockTransferrer writes Content to the destination on an [afero.Fs].
//
// FailTimes maps a URL to the number of attempts that fail before one succeeds; a negative count always fails.
// With Block set, every call waits for its context to end. OnTransfer runs after each successful write.
type MockTransferrer struct {
	Fs         afero.Fs
	Content    []byte
	FailTimes  map[string]int
	Block      bool
	Started    chan string
	OnTransfer func(url string)

	mu    sync.Mutex
	calls map[string]int
}

func NewMockTransferrer(fsys afero.Fs, content string) *MockTransferrer {
	return &MockTransferrer{Fs: fsys, Content: []byte(content), FailTimes: map[string]int{}}
}

func (m *MockTransferrer) Transfer(ctx context.Context, url, dest string) (int64, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[url]++
	attempt := m.calls[url]
	fails := m.FailTimes[url]
	m.mu.Unlock()

	if m.Started != nil {
		m.Started <- url
	}

	if m.Block {
		<-ctx.Done()
		return 0, fmt.Errorf("%w: %s", shared.ErrCancelled, dest)
	}
	if fails < 0 || attempt <= fails {
		return 0, fmt.Errorf("%w: attempt %d for %s", shared.ErrTransport, attempt, url)
	}

	if err := afero.WriteFile(m.Fs, dest, m.Content, 0644); err != nil {
		return 0, err
	}
	if m.OnTransfer != nil {
		m.OnTransfer(url)
	}
	return int64(len(m.Content)), nil
}

// Calls returns the number of Transfer calls made for url.
func (m *MockTransferrer) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

// SentMessage is one message captured by [MockNotifier].
type SentMessage struct {
	Subject string
	Body    string
}

// MockNotifier records messages and returns Err from every Send.
type MockNotifier struct {
	Err error

	mu   sync.Mutex
	Sent []SentMessage
}

func (m *MockNotifier) Send(ctx context.Context, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{Subject: subject, Body: htmlBody})
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

// AssertFsMissing fails when path exists on fsys.
func AssertFsMissing(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()
	if ok, _ := afero.Exists(fsys, path); ok {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
