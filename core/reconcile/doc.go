// Package reconcile keeps one title's local mirror consistent with the
// storefront.
//
// For every upload of a title, in listing order, the Engine decides between:
//
//   - skip: the platform filter excludes the upload, or the local file's
//     sidecar (or, failing that, its freshly computed hash) matches the remote
//     digest. A hash match without sidecar backfills the sidecar.
//   - fetch: no local file exists.
//   - replace: a local file exists but its checksum differs. The file is moved
//     to old/<YYYY-MM-DD>-<name> and a fresh copy is fetched.
//
// Fetched files are hashed again and get a sidecar only when the digest
// matches, so a sidecar always describes bytes that were verified.
//
// # Failure isolation
//
// Per-file failures (transport, HTTP status, not-a-download, verification,
// archive) are written to the shared error log and the engine moves on to the
// next upload. Only failures that make the whole title unprocessable (listing
// uploads, creating the title directory, writing the manifest) are returned.
//
// # Concurrency
//
// Files of one title are handled strictly sequentially; callers may reconcile
// different titles in parallel since titles never share a directory.
// Cancellation is observed between uploads; an interrupted transfer discards
// its partial file.
//
// # Usage
//
//	engine := reconcile.New(root, apiClient, transferClient, errlog.NewFileSink(path),
//	    reconcile.WithLogger(logger))
//	m, report, err := engine.Reconcile(ctx, title, apiKey, "linux")
package reconcile
