package models

import (
	"sort"
	"time"
)

// Report is the payload of one notification: what changed in this pass plus every unreported observation.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	NextRun     time.Time `json:"next_run,omitzero"`
	DryRun      bool      `json:"dry_run"`

	NewCount          int   `json:"new_count"`
	UpdatedCount      int   `json:"updated_count"`
	SkippedCount      int   `json:"skipped_count"`
	FailedCount       int   `json:"failed_count"`
	AnnouncementCount int   `json:"announcement_count"`
	AssignmentCount   int   `json:"assignment_count"`
	TotalBytes        int64 `json:"total_bytes"`

	Courses []*CourseReport `json:"courses"`
}

// CourseReport groups report entries under one course label.
type CourseReport struct {
	Name          string          `json:"name"`
	New           []ReportFile    `json:"new,omitempty"`
	Updated       []ReportFile    `json:"updated,omitempty"`
	Failed        []ReportFailure `json:"failed,omitempty"`
	Skipped       []SkippedFile   `json:"skipped,omitempty"`
	Announcements []Announcement  `json:"announcements,omitempty"`
	Assignments   []Assignment    `json:"assignments,omitempty"`
}

// ReportFile is a file captured during the pass.
type ReportFile struct {
	Filename     string `json:"filename"`
	RelativePath string `json:"relative_path"`
	SizeBytes    int64  `json:"size_bytes"`
}

// ReportFailure is a file whose transfer failed during the pass.
type ReportFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// NewReport creates an empty [Report].
func NewReport(generatedAt time.Time) *Report {
	return &Report{GeneratedAt: generatedAt, Courses: []*CourseReport{}}
}

// Course returns the group for name, creating it on first use.
func (r *Report) Course(name string) *CourseReport {
	for _, c := range r.Courses {
		if c.Name == name {
			return c
		}
	}
	c := &CourseReport{Name: name}
	r.Courses = append(r.Courses, c)
	return c
}

func (r *Report) AddNew(course string, f ReportFile) {
	c := r.Course(course)
	c.New = append(c.New, f)
	r.NewCount++
	r.TotalBytes += f.SizeBytes
}

func (r *Report) AddUpdated(course string, f ReportFile) {
	c := r.Course(course)
	c.Updated = append(c.Updated, f)
	r.UpdatedCount++
	r.TotalBytes += f.SizeBytes
}

func (r *Report) AddFailed(course string, f ReportFailure) {
	c := r.Course(course)
	c.Failed = append(c.Failed, f)
	r.FailedCount++
}

func (r *Report) AddSkipped(f SkippedFile) {
	c := r.Course(f.CourseName)
	c.Skipped = append(c.Skipped, f)
	r.SkippedCount++
}

func (r *Report) AddAnnouncement(a Announcement) {
	c := r.Course(a.CourseName)
	c.Announcements = append(c.Announcements, a)
	r.AnnouncementCount++
}

func (r *Report) AddAssignment(a Assignment) {
	c := r.Course(a.CourseName)
	c.Assignments = append(c.Assignments, a)
	r.AssignmentCount++
}

// Sort orders course groups by name. Entries keep insertion order.
func (r *Report) Sort() {
	sort.SliceStable(r.Courses, func(i, j int) bool { return r.Courses[i].Name < r.Courses[j].Name })
}

// Empty reports whether there is nothing to tell the user.
func (r *Report) Empty() bool {
	return r.NewCount+r.UpdatedCount+r.SkippedCount+r.FailedCount+r.AnnouncementCount+r.AssignmentCount == 0
}

// HasFiles reports whether the group has any file entries.
func (c *CourseReport) HasFiles() bool {
	return len(c.New)+len(c.Updated)+len(c.Failed)+len(c.Skipped) > 0
}
