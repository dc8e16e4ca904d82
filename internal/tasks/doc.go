// Package tasks orchestrates sync passes between the remote course API, the local mirror and the metadata store,
// with real-time progress reporting.
//
// # Sync Pass
//
// [SyncEngine.RunSyncPass] runs one pass:
//
//  1. Enumerate: resolve the course whitelist against the active courses, in whitelist order
//  2. Classify: each remote file is unchanged (last seen refreshed), rejected by the [filter.Engine] (recorded as
//     skipped), or admitted as a new or updated download
//  3. Observe: announcements and assignments are recorded once; assignment attachments are classified like files
//  4. Dispatch: admitted files go to the [DownloadManager]
//  5. Persist: successful downloads are upserted with the capture instant as their download date
//  6. Report: the unreported backlog is rendered, delivered through a [Notifier] and, only after delivery succeeds,
//     marked as reported
//
// A run record is appended at the end of every pass that is not a dry run, including interrupted and failed ones.
//
// # Downloads
//
// The [DownloadManager] runs transfers on a bounded pool. A failed attempt is retried after base * 2^(attempt-1);
// cancellation stops new attempts and interrupts backoff waits.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [SyncEngine] depends on narrow interfaces so tests can substitute any collaborator:
//   - [Lister] : remote courses, files, folders, announcements and assignments (services.CanvasService)
//   - [Transferrer] : byte transfer to a local path (services.Downloader)
//   - [PathResolver] : collision-free local naming (organizer.Organizer)
//   - [Stores] : the metadata repositories (repositories.Store)
//   - [Notifier] : report delivery (services.SMTPNotifier)
package tasks
