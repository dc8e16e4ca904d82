package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/cvsync/internal/formatter"
	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/shared"
	"github.com/desertthunder/cvsync/internal/tasks"
)

// maxLogLines caps the progress messages kept for the sync view.
const maxLogLines = 8

// maxFailures caps the failed downloads listed in a summary.
const maxFailures = 10

// ViewState represents the current view in the TUI.
type ViewState int

const (
	CourseListView ViewState = iota
	ConfirmView
	SyncView
	ResultView
)

// CourseSource lists the active courses.
type CourseSource interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
}

// Syncer runs one sync pass.
type Syncer interface {
	RunSyncPass(ctx context.Context, opts tasks.SyncOptions) (*tasks.PassResult, error)
}

// Options configures a [Model].
type Options struct {
	Whitelist  []string
	EmitReport bool
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	courses    CourseSource
	engine     Syncer
	whitelist  map[string]struct{}
	emitReport bool

	width      int
	height     int
	loaded     bool
	courseList list.Model

	dryRun   bool
	progress <-chan tasks.ProgressUpdate
	done     chan syncOutcome
	cancel   context.CancelFunc
	latest   tasks.ProgressUpdate
	lines    []string
	stopping bool

	result  *tasks.PassResult
	err     error
	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model. progress must be the channel the engine was built with; it may be nil.
func NewModel(ctx context.Context, courses CourseSource, engine Syncer, progress <-chan tasks.ProgressUpdate, opts Options) *Model {
	whitelist := make(map[string]struct{}, len(opts.Whitelist))
	for _, id := range opts.Whitelist {
		whitelist[id] = struct{}{}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	return &Model{
		ctx:        ctx,
		view:       CourseListView,
		courses:    courses,
		engine:     engine,
		whitelist:  whitelist,
		emitReport: opts.EmitReport,
		progress:   progress,
		spinner:    s,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init initializes the TUI by fetching the active courses.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCourses(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.loaded {
			m.courseList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case CourseListView:
			return m.handleCourseListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgCoursesFetched:
		data := msg.data.(coursesFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.courses))
		for i, c := range data.courses {
			_, tracked := m.whitelist[c.ID]
			items[i] = courseItem{course: c, tracked: tracked}
		}
		m.courseList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.courseList.Title = fmt.Sprintf("Active Courses (%d tracked)", len(m.whitelist))
		m.courseList.SetSize(m.width-4, m.height-8)
		m.loaded = true
		return m, nil

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.latest = update
		if update.Message != "" {
			m.lines = append(m.lines, update.Message)
			if len(m.lines) > maxLogLines {
				m.lines = m.lines[len(m.lines)-maxLogLines:]
			}
		}
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncOutcome)
		m.result = data.result
		m.err = data.err
		m.view = ResultView
		m.stopping = false
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.drainProgress()
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case CourseListView:
		return m.renderCourseList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleCourseListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loaded && m.courseList.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case m.err != nil:
		return m, nil
	case key.Matches(msg, m.keys.sync):
		m.dryRun = false
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.dryRun):
		m.dryRun = true
		m.view = ConfirmView
		return m, nil
	}
	return m.updateList(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, m.startSync()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = CourseListView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && m.cancel != nil {
		m.stopping = true
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = CourseListView
		m.result = nil
		m.err = nil
		m.lines = nil
		m.latest = tasks.ProgressUpdate{}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != CourseListView || !m.loaded {
		return m, nil
	}
	var cmd tea.Cmd
	m.courseList, cmd = m.courseList.Update(msg)
	return m, cmd
}

func (m *Model) fetchCourses() tea.Cmd {
	return func() tea.Msg {
		courses, err := m.courses.ListCourses(m.ctx)
		return coursesFetchedMsg(courses, err)
	}
}

func (m *Model) startSync() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.lines = nil
	m.latest = tasks.ProgressUpdate{}

	done := make(chan syncOutcome, 1)
	m.done = done
	opts := tasks.SyncOptions{DryRun: m.dryRun, EmitReport: m.emitReport}

	go func() {
		result, err := m.engine.RunSyncPass(ctx, opts)
		done <- syncOutcome{result: result, err: err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progress, m.done
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case out := <-done:
			return syncCompleteMsg(out.result, out.err)
		}
	}
}

// drainProgress drops updates left over from a finished pass.
func (m *Model) drainProgress() {
	for {
		select {
		case <-m.progress:
		default:
			return
		}
	}
}

func (m *Model) renderCourseList() string {
	if !m.loaded {
		return fmt.Sprintf("%s Loading courses...", m.spinner.View())
	}
	helpKeys := []key.Binding{m.keys.sync, m.keys.dryRun, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.courseList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	action := "Sync tracked courses now?"
	if m.dryRun {
		action = "Dry run tracked courses now? Nothing will be downloaded."
	}
	title := styles.title.Render(action)
	info := fmt.Sprintf("Tracked courses: %d\nEmail report: %v\n", len(m.whitelist), m.emitReport && !m.dryRun)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSync() string {
	heading := "Syncing Courses"
	if m.dryRun {
		heading += " (dry run)"
	}
	title := styles.title.Render(heading)

	status := fmt.Sprintf("%s %s", m.spinner.View(), phaseLabel(m.latest))
	if m.stopping {
		status += "\n" + styles.warn.Render("Stopping after the current course...")
	}

	log := styles.help.Render(strings.Join(m.lines, "\n"))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, status, log, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", RenderSummary(m.result, m.err), helpView)
}

func phaseLabel(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.FetchCourses:
		return "Fetching courses..."
	case tasks.ScanCourse:
		return fmt.Sprintf("Scanning courses (%d/%d)", u.Step, u.Total)
	case tasks.DownloadFiles:
		return fmt.Sprintf("Downloading files (%d/%d)", u.Step, u.Total)
	case tasks.FetchAnnouncements:
		return "Checking announcements..."
	case tasks.FetchAssignments:
		return "Checking assignments..."
	case tasks.BuildReport:
		return "Building report..."
	case tasks.SendReport:
		return "Sending report..."
	case tasks.Complete:
		return "Finishing..."
	default:
		return "Starting..."
	}
}

// RenderSummary renders the outcome of a pass as a bordered box.
func RenderSummary(result *tasks.PassResult, err error) string {
	if result == nil {
		if err == nil {
			err = errors.New("no result available")
		}
		return styles.err.Render(fmt.Sprintf("✗ Sync failed: %v", err))
	}

	var title string
	switch {
	case errors.Is(err, shared.ErrCancelled):
		title = styles.warn.Render("⚠ Sync Interrupted")
	case err != nil || (result.Run != nil && result.Run.Error != ""), result.Failed > 0:
		title = styles.warn.Render("⚠ Sync Finished With Errors")
	case result.Report != nil && result.Report.DryRun:
		title = styles.ok.Render("✓ Dry Run Complete")
	default:
		title = styles.ok.Render("✓ Sync Complete")
	}

	row := func(label string, value any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, styles.label.Render(label), fmt.Sprint(value))
	}

	rows := []string{
		row("Courses", result.Courses),
		row("Files checked", result.FilesChecked),
	}
	if result.Report != nil && result.Report.DryRun {
		rows = append(rows, row("Would download", result.WouldDownload))
	} else {
		rows = append(rows, row("New", result.Downloaded), row("Updated", result.Updated))
	}
	rows = append(rows,
		row("Skipped", result.Rejected),
		row("Failed", result.Failed),
		row("Announcements", result.NewAnnouncements),
		row("Assignments", result.NewAssignments),
	)
	if result.Report != nil {
		rows = append(rows, row("Downloaded", formatter.FormatSize(result.Report.TotalBytes)))
	}
	if result.Delivered {
		rows = append(rows, row("Report", "emailed"))
	}

	body := []string{title, styles.box.Render(strings.Join(rows, "\n"))}

	if len(result.Failures) > 0 {
		lines := []string{styles.warn.Render(fmt.Sprintf("Failed downloads (%d):", len(result.Failures)))}
		for i, f := range result.Failures {
			if i == maxFailures {
				lines = append(lines, fmt.Sprintf("  … and %d more", len(result.Failures)-maxFailures))
				break
			}
			lines = append(lines, fmt.Sprintf("  • %s: %s", f.Task.Filename, f.Error))
		}
		body = append(body, strings.Join(lines, "\n"))
	}

	if result.Run != nil && result.Run.Error != "" {
		body = append(body, styles.err.Render(result.Run.Error))
	}

	return strings.Join(body, "\n")
}
