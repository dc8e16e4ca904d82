// Package repositories implements SQLite persistence for the metadata store.
//
// Every row is keyed by the remote identifier, so writes are upserts: replaying a sync pass after a crash or restart
// converges on the same rows.
//
// Key Implementations:
//   - [TrackedFileRepository] : Files captured locally, compared against remote modified times
//   - [SkippedFileRepository] : Files rejected by the admission filter
//   - [AnnouncementRepository] : Announcements seen so far
//   - [AssignmentRepository] : Assignments, with an upcoming view that hides past-due rows
//   - [RunRepository] : Append-only run history
//   - [Store] : Groups the repositories over one database
//
// Upserts of skipped files, announcements and assignments never clear the notified flag of an existing row.
// MarkAllNotified snapshots the unnotified ids and updates exactly those in one transaction.
//
// Timestamps are stored as UTC text with fixed precision. Rows written without an offset are read back as UTC.
// Failed writes match [shared.ErrStoreWrite] and missing rows match [shared.ErrNotFound].
package repositories
