// Package models defines domain entities and persistence interfaces for the course mirror.
//
// The package contains two categories of types:
//
// 1. Remote DTOs: Lightweight structs describing what the remote API lists
//   - [Course] : Active course with code, name and term
//   - [RemoteFile] : Course file or assignment attachment with size, modified time and download URL
//   - [RemoteAnnouncement] : Announcement with author and posted time
//   - [RemoteAssignment] : Assignment with due date, points and attachments
//
// 2. Persistent Entities: Rows owned by the metadata store
//   - [TrackedFile] : Files captured locally, keyed by remote id
//   - [SkippedFile] : Files rejected by the admission filter, with the reason
//   - [Announcement] : Announcements seen so far
//   - [Assignment] : Assignments seen so far
//   - [RunRecord] : Append-only audit entry per sync pass
//
// Skipped files, announcements and assignments carry a notified flag that flips to true only after a report
// containing them was delivered.
//
// All persistent entities implement [Record]. [Repository] and [NotifiableRepository] describe the store operations.
package models
