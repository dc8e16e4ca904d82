package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cvsync/internal/models"
	"github.com/desertthunder/cvsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgCoursesFetched MsgKind = iota
	MsgProgressUpdate
	MsgSyncComplete
)

type coursesFetched struct {
	courses []models.Course
	err     error
}

type syncOutcome struct {
	result *tasks.PassResult
	err    error
}

// coursesFetchedMsg is the constructor for [MsgCoursesFetched]
func coursesFetchedMsg(courses []models.Course, err error) Msg {
	return Msg{kind: MsgCoursesFetched, data: coursesFetched{courses, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.PassResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncOutcome{result, err}}
}
