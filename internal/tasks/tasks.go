package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/desertthunder/cvsync/internal/filter"
	"github.com/desertthunder/cvsync/internal/formatter"
	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/repositories"
	"github.com/desertthunder/cvsync/internal/shared"
)

// AssignmentsFolder is the folder path under which assignment attachments are stored.
const AssignmentsFolder = "Assignments"

const finalizeTimeout = 2 * time.Minute

// Lister enumerates remote collections and their contents.
type Lister interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListFiles(ctx context.Context, courseID string) ([]models.RemoteFile, error)
	FolderPath(ctx context.Context, courseID, folderID string) (string, error)
	ListAnnouncements(ctx context.Context, courseID string) ([]models.RemoteAnnouncement, error)
	ListAssignments(ctx context.Context, courseID string) ([]models.RemoteAssignment, error)
}

// Transferrer copies the bytes at url to dest and returns how many were written.
//
// Implementations remove any partial file before returning an error and report cancellation with an error matching
// [shared.ErrCancelled].
type Transferrer interface {
	Transfer(ctx context.Context, url, dest string) (int64, error)
}

// PathResolver names local copies.
type PathResolver interface {
	CourseDir(course models.Course) string
	ResolvePath(courseDir, folderPath, filename string) (string, error)
	Reserve(path string)
	Reset()
	Relative(path string) string
}

// Notifier delivers a rendered report.
type Notifier interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// AssignmentStore adds the upcoming view to the assignment repository.
type AssignmentStore interface {
	models.NotifiableRepository[*models.Assignment]
	ListUpcoming(ctx context.Context, now time.Time) ([]*models.Assignment, error)
}

// RunAppender records finished passes.
type RunAppender interface {
	Append(ctx context.Context, run *models.RunRecord) error
}

// Stores is the subset of the metadata store a sync pass uses.
type Stores struct {
	Files         models.Repository[*models.TrackedFile]
	Skipped       models.NotifiableRepository[*models.SkippedFile]
	Announcements models.NotifiableRepository[*models.Announcement]
	Assignments   AssignmentStore
	Runs          RunAppender
}

// StoresFrom adapts a [repositories.Store].
func StoresFrom(s *repositories.Store) Stores {
	return Stores{
		Files:         s.Files,
		Skipped:       s.Skipped,
		Announcements: s.Announcements,
		Assignments:   s.Assignments,
		Runs:          s.Runs,
	}
}

// Deps are the collaborators of a [SyncEngine]. Notifier, Clock, Logger and Progress are optional.
type Deps struct {
	Config    *shared.Config
	Lister    Lister
	Stores    Stores
	Filter    *filter.Engine
	Paths     PathResolver
	Downloads *DownloadManager
	Notifier  Notifier
	Clock     clockwork.Clock
	Logger    *log.Logger
	Progress  chan<- ProgressUpdate
}

// SyncOptions controls one pass.
type SyncOptions struct {
	DryRun     bool // classify and record observations without transferring or appending a run record
	EmitReport bool // deliver the report when email is enabled
}

// PassResult summarises one pass.
type PassResult struct {
	Run    *models.RunRecord
	Report *models.Report

	Courses          int
	FilesChecked     int
	Downloaded       int
	Updated          int
	Rejected         int
	Failed           int
	WouldDownload    int
	NewAnnouncements int
	NewAssignments   int
	ItemErrors       int

	Failures    []DownloadResult
	Delivered   bool
	Interrupted bool
}

// SyncEngine runs sync passes: enumerate, classify, dispatch, persist, report.
type SyncEngine struct {
	cfg       *shared.Config
	lister    Lister
	stores    Stores
	filter    *filter.Engine
	paths     PathResolver
	downloads *DownloadManager
	notifier  Notifier
	clock     clockwork.Clock
	logger    *log.Logger
	progress  chan<- ProgressUpdate
}

// NewSyncEngine creates a [SyncEngine].
func NewSyncEngine(d Deps) (*SyncEngine, error) {
	switch {
	case d.Config == nil:
		return nil, fmt.Errorf("%w: config is required", shared.ErrInvalidConfig)
	case d.Lister == nil:
		return nil, fmt.Errorf("%w: course lister not initialized", shared.ErrServiceUnavailable)
	case d.Stores.Files == nil || d.Stores.Skipped == nil || d.Stores.Announcements == nil ||
		d.Stores.Assignments == nil || d.Stores.Runs == nil:
		return nil, fmt.Errorf("%w: metadata store not initialized", shared.ErrServiceUnavailable)
	case d.Filter == nil || d.Paths == nil || d.Downloads == nil:
		return nil, fmt.Errorf("%w: filter, path resolver and download manager are required", shared.ErrServiceUnavailable)
	}

	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = shared.NewLogger(nil)
	}

	return &SyncEngine{
		cfg:       d.Config,
		lister:    d.Lister,
		stores:    d.Stores,
		filter:    d.Filter,
		paths:     d.Paths,
		downloads: d.Downloads,
		notifier:  d.Notifier,
		clock:     d.Clock,
		logger:    d.Logger,
		progress:  d.Progress,
	}, nil
}

// pass carries the state of one RunSyncPass call.
type pass struct {
	opts   SyncOptions
	now    time.Time
	logger *log.Logger
	result *PassResult
	seen   map[string]struct{}
	errs   []string
}

func (p *pass) itemError(msg string, kv ...any) {
	p.logger.Error(msg, kv...)
	p.result.ItemErrors++
}

// RunSyncPass runs one pass over the whitelisted courses.
//
// The configuration is validated before anything else. Per-item failures are logged and counted without stopping
// the pass. When ctx is cancelled, no further course is started; the report is still built from what was gathered
// and the returned error matches [shared.ErrCancelled].
func (e *SyncEngine) RunSyncPass(ctx context.Context, opts SyncOptions) (*PassResult, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	run := models.NewRunRecord(now)
	run.DryRun = opts.DryRun

	p := &pass{
		opts:   opts,
		now:    now,
		logger: shared.WithLogger(e.logger, "run", run.RunID),
		result: &PassResult{Run: run, Report: models.NewReport(now)},
		seen:   make(map[string]struct{}),
	}
	p.result.Report.DryRun = opts.DryRun
	if next, err := e.cfg.Scheduling.NextRun(e.clock.Now()); err == nil {
		p.result.Report.NextRun = next
	}

	stats := e.filter.Stats()
	p.logger.Info("starting sync pass", "dry_run", opts.DryRun,
		"max_mb", stats.MaxSizeMB, "pdf_max_mb", stats.PDFMaxSizeMB,
		"blacklist", strings.Join(stats.Blacklist, " "), "patterns", len(stats.SkipPatterns))

	e.paths.Reset()

	sendProgress(e.progress, fetchCoursesUpdate())
	courses, err := e.tracked(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Warn("shutdown requested while listing courses")
			p.result.Interrupted = true
			e.finish(ctx, p)
			return p.result, fmt.Errorf("%w: %w", shared.ErrCancelled, err)
		}
		p.errs = append(p.errs, err.Error())
		e.finish(ctx, p)
		return p.result, err
	}
	p.result.Courses = len(courses)

	for i, course := range courses {
		if ctx.Err() != nil {
			p.logger.Warn("shutdown requested, stopping sync early", "remaining", len(courses)-i)
			p.result.Interrupted = true
			break
		}
		sendProgress(e.progress, scanCourseUpdate(i+1, len(courses), course))
		e.syncCourse(ctx, p, course)
	}
	if ctx.Err() != nil {
		p.result.Interrupted = true
	}

	e.finish(ctx, p)

	if p.result.Interrupted {
		return p.result, fmt.Errorf("%w: sync interrupted", shared.ErrCancelled)
	}
	return p.result, nil
}

// tracked resolves the configured whitelist against the active courses, keeping whitelist order.
func (e *SyncEngine) tracked(ctx context.Context, p *pass) ([]models.Course, error) {
	all, err := e.lister.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	byID := make(map[string]models.Course, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	courses := make([]models.Course, 0, len(e.cfg.Courses.Whitelist))
	for _, id := range e.cfg.Courses.Whitelist {
		c, ok := byID[id]
		if !ok {
			p.logger.Warn("whitelisted course is not active, skipping", "course_id", id)
			continue
		}
		courses = append(courses, c)
	}

	p.logger.Info("syncing courses", "tracked", len(courses), "active", len(all))
	return courses, nil
}

func (e *SyncEngine) syncCourse(ctx context.Context, p *pass, course models.Course) {
	label := course.Label()
	logger := shared.WithLogger(p.logger, "course", label)
	courseDir := e.paths.CourseDir(course)

	logger.Info("processing course")

	var tasks []DownloadTask

	files, err := e.lister.ListFiles(ctx, course.ID)
	if err != nil {
		p.itemError("failed to list files", "course", label, "error", err)
		p.errs = append(p.errs, fmt.Sprintf("%s: failed to list files: %v", label, err))
	} else {
		logger.Info("found files", "count", len(files))
		for _, f := range files {
			if task := e.classify(ctx, p, course, courseDir, f, ""); task != nil {
				tasks = append(tasks, *task)
			}
		}
	}

	e.observeAnnouncements(ctx, p, course)
	tasks = append(tasks, e.observeAssignments(ctx, p, course, courseDir)...)

	if len(tasks) == 0 {
		return
	}
	if p.opts.DryRun {
		logger.Info("[DRY RUN] would download files", "count", len(tasks))
		p.result.WouldDownload += len(tasks)
		return
	}

	successes, failures := e.downloads.Run(ctx, tasks)
	e.persist(ctx, p, course, successes, failures)
}

// classify decides what happens to one remote file and returns a task when it should be transferred.
//
// folderPath is used as given when non-empty; otherwise it is looked up from the file's folder id.
func (e *SyncEngine) classify(ctx context.Context, p *pass, course models.Course, courseDir string, f models.RemoteFile, folderPath string) *DownloadTask {
	if _, dup := p.seen[f.ID]; dup {
		return nil
	}
	p.seen[f.ID] = struct{}{}
	p.result.FilesChecked++

	tracked, err := e.stores.Files.Get(ctx, f.ID)
	switch {
	case err == nil:
		if !tracked.IsStale(f.ModifiedAt) {
			if err := e.stores.Files.TouchLastSeen(ctx, f.ID, p.now); err != nil {
				p.itemError("failed to refresh tracked file", "id", f.ID, "error", err)
			}
			return nil
		}
		p.logger.Info("file needs update", "file", f.Name(), "id", f.ID)
	case errors.Is(err, shared.ErrNotFound):
		tracked = nil
	default:
		p.itemError("failed to look up tracked file", "id", f.ID, "error", err)
		return nil
	}

	ok, reason := e.filter.Decide(filter.Item{Name: f.Name(), Size: f.Size, MimeHint: f.MimeClass})
	if !ok {
		p.result.Rejected++
		e.recordSkip(ctx, p, course, f, folderPath, reason)
		return nil
	}

	task := &DownloadTask{
		ItemID:           f.ID,
		URL:              f.URL,
		Filename:         f.Name(),
		SizeBytes:        f.Size,
		CourseID:         course.ID,
		CourseName:       course.Label(),
		RemoteModifiedAt: f.ModifiedAt,
		IsUpdate:         tracked != nil,
	}

	if tracked != nil {
		task.Destination = tracked.LocalPath
		e.paths.Reserve(tracked.LocalPath)
		return task
	}

	if folderPath == "" {
		if folderPath, err = e.lister.FolderPath(ctx, course.ID, f.FolderID); err != nil {
			p.logger.Warn("failed to resolve folder, using course root", "id", f.ID, "error", err)
			folderPath = ""
		}
	}

	dest, err := e.paths.ResolvePath(courseDir, folderPath, f.Name())
	if err != nil {
		p.itemError("failed to resolve local path", "id", f.ID, "error", err)
		return nil
	}
	task.Destination = dest
	return task
}

func (e *SyncEngine) recordSkip(ctx context.Context, p *pass, course models.Course, f models.RemoteFile, folderPath, reason string) {
	_, err := e.stores.Skipped.Get(ctx, f.ID)
	switch {
	case err == nil:
		if err := e.stores.Skipped.TouchLastSeen(ctx, f.ID, p.now); err != nil {
			p.itemError("failed to refresh skipped file", "id", f.ID, "error", err)
		}
		return
	case !errors.Is(err, shared.ErrNotFound):
		p.itemError("failed to look up skipped file", "id", f.ID, "error", err)
		return
	}

	if folderPath == "" {
		if folderPath, err = e.lister.FolderPath(ctx, course.ID, f.FolderID); err != nil {
			p.logger.Warn("failed to resolve folder", "id", f.ID, "error", err)
			folderPath = ""
		}
	}

	skip := models.NewSkippedFile(f.ID, course.ID, course.Label(), f.Name(), f.Size, reason, p.now)
	skip.FolderPath = folderPath
	skip.RemoteURL = f.RemoteURL
	if err := e.stores.Skipped.Upsert(ctx, skip); err != nil {
		p.itemError("failed to record skipped file", "id", f.ID, "error", err)
		return
	}
	p.logger.Debug("new skipped file", "file", f.Name(), "reason", reason)
}

func (e *SyncEngine) observeAnnouncements(ctx context.Context, p *pass, course models.Course) {
	anns, err := e.lister.ListAnnouncements(ctx, course.ID)
	if err != nil {
		p.itemError("failed to list announcements", "course", course.Label(), "error", err)
		return
	}
	sendProgress(e.progress, sideCollectionUpdate(FetchAnnouncements, course, len(anns)))

	for _, ra := range anns {
		_, err := e.stores.Announcements.Get(ctx, ra.ID)
		switch {
		case err == nil:
			if err := e.stores.Announcements.TouchLastSeen(ctx, ra.ID, p.now); err != nil {
				p.itemError("failed to refresh announcement", "id", ra.ID, "error", err)
			}
			continue
		case !errors.Is(err, shared.ErrNotFound):
			p.itemError("failed to look up announcement", "id", ra.ID, "error", err)
			continue
		}

		a := models.NewAnnouncement(ra.ID, course.ID, course.Label(), ra.Title, p.now)
		a.Message = ra.Message
		a.Author = ra.Author
		a.PostedAt = ra.PostedAt
		a.RemoteURL = ra.RemoteURL
		if err := e.stores.Announcements.Upsert(ctx, a); err != nil {
			p.itemError("failed to record announcement", "id", ra.ID, "error", err)
			continue
		}
		p.result.NewAnnouncements++
	}
}

// observeAssignments records assignments and returns download tasks for their admitted attachments.
func (e *SyncEngine) observeAssignments(ctx context.Context, p *pass, course models.Course, courseDir string) []DownloadTask {
	list, err := e.lister.ListAssignments(ctx, course.ID)
	if err != nil {
		p.itemError("failed to list assignments", "course", course.Label(), "error", err)
		return nil
	}
	sendProgress(e.progress, sideCollectionUpdate(FetchAssignments, course, len(list)))

	var tasks []DownloadTask
	for _, ra := range list {
		_, err := e.stores.Assignments.Get(ctx, ra.ID)
		switch {
		case err == nil:
			if err := e.stores.Assignments.TouchLastSeen(ctx, ra.ID, p.now); err != nil {
				p.itemError("failed to refresh assignment", "id", ra.ID, "error", err)
			}
		case errors.Is(err, shared.ErrNotFound):
			a := models.NewAssignment(ra.ID, course.ID, course.Label(), ra.Name, p.now)
			a.Description = ra.Description
			a.DueAt = ra.DueAt
			a.Points = ra.Points
			a.RemoteURL = ra.RemoteURL
			if ra.SubmissionTypes != nil {
				a.SubmissionTypes = ra.SubmissionTypes
			}
			if err := e.stores.Assignments.Upsert(ctx, a); err != nil {
				p.itemError("failed to record assignment", "id", ra.ID, "error", err)
			} else {
				p.result.NewAssignments++
			}
		default:
			p.itemError("failed to look up assignment", "id", ra.ID, "error", err)
		}

		for _, att := range ra.Attachments {
			if att.URL == "" {
				continue
			}
			if task := e.classify(ctx, p, course, courseDir, att, AssignmentsFolder); task != nil {
				tasks = append(tasks, *task)
			}
		}
	}
	return tasks
}

func (e *SyncEngine) persist(ctx context.Context, p *pass, course models.Course, successes, failures []DownloadResult) {
	report := p.result.Report
	// Rows are written even if ctx ended mid-dispatch; the files are already on disk.
	ctx = context.WithoutCancel(ctx)

	for _, res := range successes {
		t := res.Task
		captured := e.clock.Now().UTC()

		tf := models.NewTrackedFile(t.ItemID, course.ID, t.CourseName, t.Filename, t.Destination, t.SizeBytes, t.RemoteModifiedAt, captured)
		if err := e.stores.Files.Upsert(ctx, tf); err != nil {
			p.itemError("failed to record download", "id", t.ItemID, "path", t.Destination, "error", err)
		}

		entry := models.ReportFile{Filename: t.Filename, RelativePath: e.paths.Relative(t.Destination), SizeBytes: t.SizeBytes}
		if t.IsUpdate {
			p.result.Updated++
			report.AddUpdated(t.CourseName, entry)
		} else {
			p.result.Downloaded++
			report.AddNew(t.CourseName, entry)
		}
	}

	for _, res := range failures {
		p.result.Failed++
		p.result.Failures = append(p.result.Failures, res)
		report.AddFailed(res.Task.CourseName, models.ReportFailure{Filename: res.Task.Filename, Error: res.Error})
	}
}

// finish builds the report from the unreported backlog, delivers it and appends the run record.
//
// It runs on a context detached from cancellation so an interrupted pass still records what it did.
func (e *SyncEngine) finish(parent context.Context, p *pass) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), finalizeTimeout)
	defer cancel()

	r := p.result
	report := r.Report

	sendProgress(e.progress, buildReportUpdate())
	e.gatherBacklog(ctx, p)
	report.Sort()

	p.logger.Info("sync complete",
		"checked", r.FilesChecked, "new", r.Downloaded, "updated", r.Updated, "skipped", r.Rejected,
		"failed", r.Failed, "announcements", report.AnnouncementCount, "assignments", report.AssignmentCount)

	if r.Interrupted {
		p.errs = append(p.errs, "interrupted before all courses were processed")
	}
	if r.ItemErrors > 0 {
		p.errs = append(p.errs, fmt.Sprintf("%d item errors", r.ItemErrors))
	}

	if p.opts.EmitReport && !p.opts.DryRun && e.cfg.Notification.Email.Enabled {
		e.deliver(ctx, p)
	}

	if p.opts.DryRun {
		sendProgress(e.progress, completeUpdate(r))
		return
	}

	run := r.Run
	run.FilesDownloaded = r.Downloaded
	run.FilesUpdated = r.Updated
	run.FilesSkipped = report.SkippedCount
	run.FilesFailed = r.Failed
	run.TotalBytes = report.TotalBytes
	run.Success = r.Failed == 0 && len(p.errs) == 0
	run.Error = strings.Join(p.errs, "; ")

	if err := e.stores.Runs.Append(ctx, run); err != nil {
		p.logger.Error("failed to append run record", "error", err)
	}
	sendProgress(e.progress, completeUpdate(r))
}

func (e *SyncEngine) gatherBacklog(ctx context.Context, p *pass) {
	report := p.result.Report

	if skipped, err := e.stores.Skipped.ListUnnotified(ctx); err != nil {
		p.itemError("failed to list unreported skipped files", "error", err)
	} else {
		for _, s := range skipped {
			report.AddSkipped(*s)
		}
	}

	if anns, err := e.stores.Announcements.ListUnnotified(ctx); err != nil {
		p.itemError("failed to list unreported announcements", "error", err)
	} else {
		for _, a := range anns {
			report.AddAnnouncement(*a)
		}
	}

	if upcoming, err := e.stores.Assignments.ListUpcoming(ctx, p.now); err != nil {
		p.itemError("failed to list upcoming assignments", "error", err)
	} else {
		for _, a := range upcoming {
			report.AddAssignment(*a)
		}
	}
}

// deliver sends the report and, only on success, marks the backlog as reported.
func (e *SyncEngine) deliver(ctx context.Context, p *pass) {
	if e.notifier == nil {
		p.logger.Warn("email enabled but no notifier configured")
		return
	}
	sendProgress(e.progress, sendReportUpdate())

	body, err := formatter.RenderHTML(p.result.Report)
	if err == nil {
		err = e.notifier.Send(ctx, formatter.Subject(p.result.Report), body)
	}
	if err != nil {
		p.logger.Error("failed to send email notification", "error", err)
		p.errs = append(p.errs, fmt.Sprintf("report delivery failed: %v", err))
		return
	}
	p.result.Delivered = true

	marks := []struct {
		name string
		mark func(context.Context) (int64, error)
	}{
		{"skipped files", e.stores.Skipped.MarkAllNotified},
		{"announcements", e.stores.Announcements.MarkAllNotified},
		{"assignments", e.stores.Assignments.MarkAllNotified},
	}
	for _, m := range marks {
		n, err := m.mark(ctx)
		if err != nil {
			p.logger.Error("failed to mark as notified", "collection", m.name, "error", err)
			p.errs = append(p.errs, fmt.Sprintf("failed to mark %s notified: %v", m.name, err))
			continue
		}
		p.logger.Debug("marked as notified", "collection", m.name, "rows", n)
	}
}
