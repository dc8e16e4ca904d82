// Package ui implements an interactive terminal monitor for sync passes using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow:
//  1. [CourseListView] : Browse active courses, tracked ones marked
//  2. [ConfirmView] : Confirm a sync pass or a dry run
//  3. [SyncView] : Monitor real-time progress updates
//  4. [ResultView] : Display pass counters, failed downloads and report delivery
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the SyncEngine; the pass result arrives on a separate channel so the
// progress channel can be reused by later passes.
//
// [RenderSummary] renders the same result box for the plain CLI.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, d, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
