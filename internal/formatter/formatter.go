// package formatter renders sync reports to HTML, Markdown and plain text
package formatter

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"html/template"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/desertthunder/cvsync/internal/models"
)

// TimestampLayout renders instants in reports, e.g. "September 01, 2025 at 12:00 PM".
const TimestampLayout = "January 02, 2006 at 03:04 PM"

// SubjectPrefix starts the subject line of every emailed report.
const SubjectPrefix = "Canvas Scraper Report - "

const excerptLength = 300

//go:embed report.html.tmpl
var reportHTML string

var (
	reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
		"size":    FormatSize,
		"when":    FormatTime,
		"due":     formatDue,
		"posted":  formatPosted,
		"points":  formatPoints,
		"excerpt": Excerpt,
		"folder":  folderOrRoot,
	}).Parse(reportHTML))

	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// FormatSize returns a human-readable size with one decimal, e.g. "1.5 MB".
func FormatSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

// FormatTime renders t in local time with [TimestampLayout].
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimestampLayout)
}

// Subject returns the email subject line for r.
func Subject(r *models.Report) string {
	return SubjectPrefix + FormatTime(r.GeneratedAt)
}

// Excerpt strips markup from an HTML fragment and shortens it to a single paragraph.
func Excerpt(fragment string) string {
	text := html.UnescapeString(tagPattern.ReplaceAllString(fragment, " "))
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "No due date"
	}
	return FormatTime(*t)
}

func formatPosted(t *time.Time) string {
	if t == nil {
		return "Unknown date"
	}
	return FormatTime(*t)
}

func formatPoints(p *float64) string {
	if p == nil || *p == 0 {
		return ""
	}
	return fmt.Sprintf("%.0f", *p)
}

func folderOrRoot(path string) string {
	if path == "" {
		return "Root"
	}
	return path
}

// RenderHTML renders r as the HTML body of a report email.
func RenderHTML(r *models.Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// RenderMarkdown renders r as a Markdown document with one section per course.
func RenderMarkdown(r *models.Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Canvas Scraper Report\n\n_%s_\n\n", FormatTime(r.GeneratedAt)))
	if r.DryRun {
		buf.WriteString("> Dry run: nothing was downloaded.\n\n")
	}

	buf.WriteString(fmt.Sprintf("**New**: %d\n", r.NewCount))
	buf.WriteString(fmt.Sprintf("**Updated**: %d\n", r.UpdatedCount))
	buf.WriteString(fmt.Sprintf("**Skipped**: %d\n", r.SkippedCount))
	buf.WriteString(fmt.Sprintf("**Failed**: %d\n", r.FailedCount))
	buf.WriteString(fmt.Sprintf("**Total size**: %s\n\n", FormatSize(r.TotalBytes)))

	for _, c := range r.Courses {
		buf.WriteString(fmt.Sprintf("## %s\n\n", c.Name))

		for _, f := range c.New {
			buf.WriteString(fmt.Sprintf("- New: `%s` (%s)\n", f.RelativePath, FormatSize(f.SizeBytes)))
		}
		for _, f := range c.Updated {
			buf.WriteString(fmt.Sprintf("- Updated: `%s` (%s)\n", f.RelativePath, FormatSize(f.SizeBytes)))
		}
		for _, f := range c.Failed {
			buf.WriteString(fmt.Sprintf("- Failed: %s: %s\n", f.Filename, f.Error))
		}
		for _, f := range c.Skipped {
			buf.WriteString(fmt.Sprintf("- Skipped: [%s](%s) in %s (%s): %s\n",
				f.Filename, f.RemoteURL, folderOrRoot(f.FolderPath), FormatSize(f.SizeBytes), f.Reason))
		}
		if c.HasFiles() {
			buf.WriteString("\n")
		}

		if len(c.Announcements) > 0 {
			buf.WriteString("### Announcements\n\n")
			for _, a := range c.Announcements {
				buf.WriteString(fmt.Sprintf("- [%s](%s) by %s, %s\n", a.Title, a.RemoteURL, a.Author, formatPosted(a.PostedAt)))
				if msg := Excerpt(a.Message); msg != "" {
					buf.WriteString(fmt.Sprintf("  > %s\n", msg))
				}
			}
			buf.WriteString("\n")
		}

		if len(c.Assignments) > 0 {
			buf.WriteString("### Upcoming assignments\n\n")
			for _, a := range c.Assignments {
				line := fmt.Sprintf("- [%s](%s), due %s", a.Name, a.RemoteURL, formatDue(a.DueAt))
				if pts := formatPoints(a.Points); pts != "" {
					line += fmt.Sprintf(" (%s pts)", pts)
				}
				buf.WriteString(line + "\n")
			}
			buf.WriteString("\n")
		}
	}

	if !r.NextRun.IsZero() {
		buf.WriteString(fmt.Sprintf("Next run: %s\n", FormatTime(r.NextRun)))
	}
	return buf.Bytes(), nil
}

// RenderText renders r as plain text.
func RenderText(r *models.Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Canvas Scraper Report (%s)\n", FormatTime(r.GeneratedAt)))
	buf.WriteString(fmt.Sprintf("New: %d  Updated: %d  Skipped: %d  Failed: %d  Size: %s\n",
		r.NewCount, r.UpdatedCount, r.SkippedCount, r.FailedCount, FormatSize(r.TotalBytes)))
	buf.WriteString(fmt.Sprintf("Announcements: %d  Upcoming assignments: %d\n", r.AnnouncementCount, r.AssignmentCount))

	for _, c := range r.Courses {
		buf.WriteString(fmt.Sprintf("\n%s\n", c.Name))
		for _, f := range c.New {
			buf.WriteString(fmt.Sprintf("  + %s (%s)\n", f.RelativePath, FormatSize(f.SizeBytes)))
		}
		for _, f := range c.Updated {
			buf.WriteString(fmt.Sprintf("  ~ %s (%s)\n", f.RelativePath, FormatSize(f.SizeBytes)))
		}
		for _, f := range c.Failed {
			buf.WriteString(fmt.Sprintf("  ! %s: %s\n", f.Filename, f.Error))
		}
		for _, f := range c.Skipped {
			buf.WriteString(fmt.Sprintf("  - %s (%s): %s\n", f.Filename, FormatSize(f.SizeBytes), f.Reason))
		}
		for _, a := range c.Announcements {
			buf.WriteString(fmt.Sprintf("  * %s (%s)\n", a.Title, a.Author))
		}
		for _, a := range c.Assignments {
			buf.WriteString(fmt.Sprintf("  > %s, due %s\n", a.Name, formatDue(a.DueAt)))
		}
	}

	return buf.Bytes(), nil
}

// WriteReport renders r in the format implied by the extension of path and writes it to fsys.
//
// ".html" and ".htm" produce the email body, ".md" Markdown, anything else plain text.
func WriteReport(fsys afero.Fs, path string, r *models.Report) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		var body string
		body, err = RenderHTML(r)
		data = []byte(body)
	case ".md", ".markdown":
		data, err = RenderMarkdown(r)
	default:
		data, err = RenderText(r)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
