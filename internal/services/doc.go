// Package services implements the network collaborators of the sync engine.
//
// # Canvas
//
// [CanvasService] lists courses, files, folders, announcements and assignments through the Canvas REST API.
// Requests go through [APIService], which waits on a shared [rate.Limiter], follows Link rel="next" pagination and
// turns non-2xx responses into [*APIError]. The API token is attached by an [oauth2.StaticTokenSource] transport.
//
// Remote identifiers are decoded as [json.Number] and kept as strings, so 64-bit ids keep full precision.
//
// # Transfer
//
// [Downloader] streams a file in fixed-size chunks to an [afero.Fs], checking for cancellation between chunks.
// A failed or cancelled transfer leaves no partial file behind.
//
// # Notification
//
// [SMTPNotifier] sends the HTML report over SMTP with STARTTLS and PLAIN authentication.
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrAPIRequest] : Canvas returned a non-2xx status
//   - [shared.ErrNotFound] : 404, or a folder id the course does not have
//   - [shared.ErrTransport] : a download failed and may be retried
//   - [shared.ErrCancelled] : the context ended during a download
//   - [shared.ErrNotifyFailed] : the report could not be delivered
package services
