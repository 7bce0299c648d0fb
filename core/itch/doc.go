// Package itch is a small client for the storefront's REST API.
//
// It covers the four calls the archiver needs:
//   - OwnedKeys: the paginated list of purchases (download keys).
//   - ListUploads: the downloadable files of one title.
//   - NewDownloadSession: a one-time session id authorizing a transfer.
//   - DownloadURL: the signed URL of one upload.
//
// Every request waits on a shared token-bucket limiter so concurrent title
// workers stay under the API's rate limit. Retries are left to the caller.
package itch
