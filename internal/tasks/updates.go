package tasks

import (
	"fmt"

	"github.com/desertthunder/cvsync/internal/models"
)

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchCourses Phase = iota
	ScanCourse
	DownloadFiles
	FetchAnnouncements
	FetchAssignments
	BuildReport
	SendReport
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchCourses:
		return "fetch_courses"
	case ScanCourse:
		return "scan_course"
	case DownloadFiles:
		return "download_files"
	case FetchAnnouncements:
		return "fetch_announcements"
	case FetchAssignments:
		return "fetch_assignments"
	case BuildReport:
		return "build_report"
	case SendReport:
		return "send_report"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// sendProgress sends an update without blocking; a full or nil channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchCoursesUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCourses,
		Step:    1,
		Total:   1,
		Message: "Fetching active courses...",
	}
}

func scanCourseUpdate(step, total int, course models.Course) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanCourse,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, course.Label()),
		Data:    course,
	}
}

func downloadStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DownloadFiles,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Downloading %d files...", total),
	}
}

func downloadDoneUpdate(step, total int, result DownloadResult) ProgressUpdate {
	mark := "✓"
	if !result.Success {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   DownloadFiles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, mark, result.Task.Filename),
		Data:    result,
	}
}

func sideCollectionUpdate(phase Phase, course models.Course, count int) ProgressUpdate {
	noun := "announcements"
	if phase == FetchAssignments {
		noun = "assignments"
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s: %d %s", course.Code, count, noun),
	}
}

func buildReportUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   BuildReport,
		Step:    1,
		Total:   1,
		Message: "Building report...",
	}
}

func sendReportUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   SendReport,
		Step:    1,
		Total:   1,
		Message: "Sending email report...",
	}
}

func completeUpdate(result *PassResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Complete,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Sync complete: %d new, %d updated, %d skipped, %d failed",
			result.Downloaded, result.Updated, result.Rejected, result.Failed),
		Data: result,
	}
}
