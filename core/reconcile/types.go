package reconcile

import (
	"context"
	"fmt"

	"itch-archiver/core/catalog"
	"itch-archiver/core/errlog"

	"github.com/hashicorp/go-multierror"
)

// Action is the decision taken for one upload.
type Action string

const (
	// ActionSkipPlatform means the platform filter excluded the upload.
	ActionSkipPlatform Action = "skip_platform"
	// ActionSkipUnchanged means the local copy already matches.
	ActionSkipUnchanged Action = "skip_unchanged"
	// ActionBackfill means the local copy matched by hash and its sidecar was created.
	ActionBackfill Action = "backfill"
	// ActionFetch means the upload was downloaded for the first time.
	ActionFetch Action = "fetch"
	// ActionReplace means a changed local copy was archived and downloaded again.
	ActionReplace Action = "replace"
	// ActionFailed means the upload could not be brought up to date.
	ActionFailed Action = "failed"
)

// Outcome is the result for one upload.
type Outcome struct {
	// UploadID is the remote file id.
	UploadID int64 `json:"upload_id"`
	// File is the sanitized local file name.
	File string `json:"file"`
	// Path is the local path, empty when it could not be resolved.
	Path string `json:"path,omitempty"`
	// Action is the decision taken.
	Action Action `json:"action"`
	// Planned is the decision before execution, set when Action is ActionFailed.
	Planned Action `json:"planned,omitempty"`
	// Kind classifies the failure when Action is ActionFailed.
	Kind errlog.Kind `json:"kind,omitempty"`
	// Digest is the verified digest, if any.
	Digest string `json:"digest,omitempty"`
	// Verified reports whether the local bytes were checked against the remote digest.
	Verified bool `json:"verified"`
	// Bytes is the number of bytes downloaded.
	Bytes int64 `json:"bytes,omitempty"`
	// ArchivedTo is where the superseded copy went on replace.
	ArchivedTo string `json:"archived_to,omitempty"`
	// Err is the failure, if any.
	Err error `json:"-"`
}

// Report collects the outcomes of one title, in listing order.
type Report struct {
	Title    string    `json:"title"`
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes took action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Fetched returns how many uploads were downloaded.
func (r *Report) Fetched() int {
	return r.Count(ActionFetch) + r.Count(ActionReplace)
}

// Err returns the per-file failures combined, or nil.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", o.File, o.Err))
		}
	}
	return result.ErrorOrNil()
}

// VerifyError reports a downloaded file whose digest does not match.
type VerifyError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Source is the remote side the engine reads from.
type Source interface {
	ListUploads(ctx context.Context, token string, gameID, downloadKeyID int64) ([]catalog.FileVariant, error)
	NewDownloadSession(ctx context.Context, token string, gameID int64) (string, error)
	DownloadURL(token string, uploadID, downloadKeyID int64, sessionID string) string
}

// Fetcher streams one remote file to dir/filename.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir, displayName, filename string) (int64, error)
}

// Archiver moves a superseded file aside and returns its new path.
type Archiver interface {
	Archive(path string) (string, error)
}

// Recorder persists outcomes, e.g. into a download ledger.
type Recorder interface {
	Record(ctx context.Context, t *catalog.Title, o Outcome) error
}

// Replicator copies a verified file to secondary storage.
type Replicator interface {
	Replicate(ctx context.Context, path, key, digest string) error
}
