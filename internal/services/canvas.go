// Canvas LMS implementation of the listing collaborator
//
// Canvas API reference: https://canvas.instructure.com/doc/api/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/shared"
)

// DefaultRateLimit is the default number of Canvas requests per second.
const DefaultRateLimit = 10.0

const rootFolderPrefix = "course files"

type canvasUser struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type canvasTerm struct {
	Name string `json:"name"`
}

type canvasCourse struct {
	ID         json.Number `json:"id"`
	CourseCode string      `json:"course_code"`
	Name       string      `json:"name"`
	Term       *canvasTerm `json:"term"`
}

type canvasFile struct {
	ID          json.Number `json:"id"`
	DisplayName string      `json:"display_name"`
	Filename    string      `json:"filename"`
	Size        int64       `json:"size"`
	ModifiedAt  string      `json:"modified_at"`
	URL         string      `json:"url"`
	FolderID    json.Number `json:"folder_id"`
	MimeClass   string      `json:"mime_class"`
}

type canvasFolder struct {
	ID       json.Number `json:"id"`
	FullName string      `json:"full_name"`
}

type canvasAuthor struct {
	DisplayName string `json:"display_name"`
}

type canvasTopic struct {
	ID       json.Number   `json:"id"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	PostedAt string        `json:"posted_at"`
	UserName string        `json:"user_name"`
	Author   *canvasAuthor `json:"author"`
}

type canvasAssignment struct {
	ID              json.Number  `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	DueAt           string       `json:"due_at"`
	PointsPossible  *float64     `json:"points_possible"`
	SubmissionTypes []string     `json:"submission_types"`
	HTMLURL         string       `json:"html_url"`
	Attachments     []canvasFile `json:"attachments"`
}

// CanvasService lists courses and their content from a Canvas instance.
//
// Every request carries the API token as a Bearer credential and waits on a shared rate limiter.
// Folder listings are cached per course for the lifetime of the service.
type CanvasService struct {
	api     *APIService
	baseURL string
	now     func() time.Time

	mu      sync.Mutex
	folders map[string]map[string]string
}

// NewCanvasService creates a Canvas client for cfg.
//
// base supplies the underlying transport and may be nil. A zero rate limit uses [DefaultRateLimit].
func NewCanvasService(cfg shared.CanvasConfig, base *http.Client) (*CanvasService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: canvas base URL is required", shared.ErrInvalidConfig)
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: canvas API token is required", shared.ErrMissingCredentials)
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	client := NewTokenClient(cfg.APIToken, base)

	return &CanvasService{
		api:     NewAPIService(baseURL, client, rate.NewLimiter(rate.Limit(limit), 1)),
		baseURL: baseURL,
		now:     time.Now,
		folders: make(map[string]map[string]string),
	}, nil
}

// NewTokenClient returns an HTTP client that adds "Authorization: Bearer <token>" to every request.
func NewTokenClient(token string, base *http.Client) *http.Client {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func (c *CanvasService) Name() string { return "Canvas" }

// Ping verifies the credentials and returns the name of the token owner.
func (c *CanvasService) Ping(ctx context.Context) (string, error) {
	var user canvasUser
	if err := c.api.GetJSON(ctx, "/api/v1/users/self", nil, &user); err != nil {
		return "", err
	}
	return user.Name, nil
}

// ListCourses returns the active student enrollments. Courses without a code are omitted.
func (c *CanvasService) ListCourses(ctx context.Context) ([]models.Course, error) {
	query := url.Values{
		"enrollment_state": {"active"},
		"enrollment_type":  {"student"},
		"include[]":        {"term"},
	}

	raw, err := GetAll[canvasCourse](ctx, c.api, "/api/v1/courses", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	courses := make([]models.Course, 0, len(raw))
	for _, rc := range raw {
		if rc.CourseCode == "" {
			continue
		}
		term := fmt.Sprintf("Term %d", c.now().Year())
		if rc.Term != nil && rc.Term.Name != "" {
			term = rc.Term.Name
		}
		courses = append(courses, models.Course{ID: rc.ID.String(), Code: rc.CourseCode, Name: rc.Name, Term: term})
	}
	return courses, nil
}

// ListFiles returns every file of a course.
func (c *CanvasService) ListFiles(ctx context.Context, courseID string) ([]models.RemoteFile, error) {
	raw, err := GetAll[canvasFile](ctx, c.api, "/api/v1/courses/"+url.PathEscape(courseID)+"/files", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of course %s: %w", courseID, err)
	}

	files := make([]models.RemoteFile, 0, len(raw))
	for _, rf := range raw {
		f := toRemoteFile(rf)
		f.RemoteURL = fmt.Sprintf("%s/courses/%s/files/%s", c.baseURL, courseID, f.ID)
		files = append(files, f)
	}
	return files, nil
}

// FolderPath resolves a folder id to its slash-separated path below the course root.
//
// The root folder and an empty id resolve to "". Unknown ids are an error matching [shared.ErrNotFound].
func (c *CanvasService) FolderPath(ctx context.Context, courseID, folderID string) (string, error) {
	if folderID == "" {
		return "", nil
	}

	folders, err := c.courseFolders(ctx, courseID)
	if err != nil {
		return "", err
	}

	full, ok := folders[folderID]
	if !ok {
		return "", fmt.Errorf("%w: folder %s in course %s", shared.ErrNotFound, folderID, courseID)
	}
	return trimRootFolder(full), nil
}

// ListAnnouncements returns the announcements of a course.
func (c *CanvasService) ListAnnouncements(ctx context.Context, courseID string) ([]models.RemoteAnnouncement, error) {
	query := url.Values{"only_announcements": {"true"}}

	raw, err := GetAll[canvasTopic](ctx, c.api, "/api/v1/courses/"+url.PathEscape(courseID)+"/discussion_topics", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements of course %s: %w", courseID, err)
	}

	out := make([]models.RemoteAnnouncement, 0, len(raw))
	for _, rt := range raw {
		author := "Unknown"
		switch {
		case rt.Author != nil && rt.Author.DisplayName != "":
			author = rt.Author.DisplayName
		case rt.UserName != "":
			author = rt.UserName
		}

		out = append(out, models.RemoteAnnouncement{
			ID:        rt.ID.String(),
			Title:     rt.Title,
			Message:   rt.Message,
			Author:    author,
			PostedAt:  parseOptionalTime(rt.PostedAt),
			RemoteURL: fmt.Sprintf("%s/courses/%s/discussion_topics/%s", c.baseURL, courseID, rt.ID),
		})
	}
	return out, nil
}

// ListAssignments returns the assignments of a course with their attachments.
func (c *CanvasService) ListAssignments(ctx context.Context, courseID string) ([]models.RemoteAssignment, error) {
	raw, err := GetAll[canvasAssignment](ctx, c.api, "/api/v1/courses/"+url.PathEscape(courseID)+"/assignments", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments of course %s: %w", courseID, err)
	}

	out := make([]models.RemoteAssignment, 0, len(raw))
	for _, ra := range raw {
		link := ra.HTMLURL
		if link == "" {
			link = fmt.Sprintf("%s/courses/%s/assignments/%s", c.baseURL, courseID, ra.ID)
		}

		kinds := ra.SubmissionTypes
		if kinds == nil {
			kinds = []string{}
		}

		a := models.RemoteAssignment{
			ID:              ra.ID.String(),
			Name:            ra.Name,
			Description:     ra.Description,
			DueAt:           parseOptionalTime(ra.DueAt),
			Points:          ra.PointsPossible,
			SubmissionTypes: kinds,
			RemoteURL:       link,
		}
		for _, att := range ra.Attachments {
			f := toRemoteFile(att)
			f.FolderID = ""
			f.RemoteURL = fmt.Sprintf("%s/courses/%s/files/%s", c.baseURL, courseID, f.ID)
			a.Attachments = append(a.Attachments, f)
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *CanvasService) courseFolders(ctx context.Context, courseID string) (map[string]string, error) {
	c.mu.Lock()
	cached, ok := c.folders[courseID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	raw, err := GetAll[canvasFolder](ctx, c.api, "/api/v1/courses/"+url.PathEscape(courseID)+"/folders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders of course %s: %w", courseID, err)
	}

	folders := make(map[string]string, len(raw))
	for _, f := range raw {
		folders[f.ID.String()] = f.FullName
	}

	c.mu.Lock()
	c.folders[courseID] = folders
	c.mu.Unlock()
	return folders, nil
}

func toRemoteFile(f canvasFile) models.RemoteFile {
	rf := models.RemoteFile{
		ID:          f.ID.String(),
		DisplayName: f.DisplayName,
		Filename:    f.Filename,
		Size:        f.Size,
		URL:         f.URL,
		FolderID:    f.FolderID.String(),
		MimeClass:   f.MimeClass,
	}
	if t := parseOptionalTime(f.ModifiedAt); t != nil {
		rf.ModifiedAt = *t
	}
	return rf
}

func trimRootFolder(full string) string {
	if full == rootFolderPrefix {
		return ""
	}
	return strings.TrimPrefix(full, rootFolderPrefix+"/")
}

// parseOptionalTime parses an ISO 8601 timestamp; empty or malformed input yields nil.
func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
