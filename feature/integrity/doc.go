// Package integrity verifies a local mirror offline.
//
// Every mirrored file is hashed and compared with its sidecar. The checks
// subpackage does the walk; this package wraps it in a Service used by the
// verify command and by the mirror API.
//
// # Verdicts
//
//   - ok: the file matches its sidecar.
//   - mismatch: the file changed since it was verified.
//   - missing_sidecar: the file was never verified.
//   - orphan_sidecar: the sidecar's file is gone.
//
// Fixing removes the sidecars of mismatched files and orphan sidecars. The
// next download pass then rehashes those files and refetches them if needed.
//
// # HTTP Endpoints
//
//   - GET /integrity : verifies the mirror (supports ?fix=true).
package integrity
