// Package mirror serves a read-only HTTP view of the local mirror.
//
// Titles are discovered from their manifests, so only titles that finished
// at least one pass are listed. When the download ledger is configured, the
// title detail also carries the most recent outcomes.
//
// # HTTP Endpoints
//
//   - GET /titles : every mirrored title.
//   - GET /titles/:publisher/:title : files, archived copies and history of one title.
//   - GET /errors : the blocks of the shared error log.
package mirror
