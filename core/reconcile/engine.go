package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"itch-archiver/core/archive"
	"itch-archiver/core/catalog"
	"itch-archiver/core/checksum"
	"itch-archiver/core/errlog"
	"itch-archiver/core/manifest"
	"itch-archiver/core/transfer"

	"go.uber.org/zap"
)

// Engine reconciles titles into a local mirror rooted at root.
type Engine struct {
	root       string
	source     Source
	fetcher    Fetcher
	archiver   Archiver
	errors     errlog.Sink
	recorder   Recorder
	replicator Replicator
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchiver replaces the default archiver.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		e.archiver = a
	}
}

// WithRecorder records every outcome.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithReplicator copies every verified download to secondary storage.
func WithReplicator(r Replicator) Option {
	return func(e *Engine) {
		e.replicator = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine.
func New(root string, source Source, fetcher Fetcher, sink errlog.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = &errlog.Collector{}
	}
	e := &Engine{
		root:     root,
		source:   source,
		fetcher:  fetcher,
		archiver: archive.New(),
		errors:   sink,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Root returns the mirror root.
func (e *Engine) Root() string {
	return e.root
}

// Reconcile brings one title up to date and writes its manifest.
// platform, when non-empty, restricts tagged uploads to that platform.
func (e *Engine) Reconcile(ctx context.Context, t *catalog.Title, token, platform string) (*manifest.Manifest, *Report, error) {
	report := &Report{Title: t.String()}
	log := e.logger.With(zap.String("publisher", t.PublisherSlug()), zap.String("title", t.Slug()))

	variants, err := e.source.ListUploads(ctx, token, t.GameID, t.DownloadKeyID)
	if err != nil {
		return nil, report, fmt.Errorf("failed to list uploads of %s: %w", t, err)
	}

	layout, err := catalog.NewLayout(e.root, t)
	if err != nil {
		return nil, report, err
	}
	if err := layout.Ensure(); err != nil {
		return nil, report, err
	}

	considered := make([]catalog.FileVariant, 0, len(variants))
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			log.Warn("Reconciliation interrupted", zap.Int("done", len(report.Outcomes)), zap.Int("total", len(variants)))
			return nil, report, err
		}

		o := e.reconcileFile(ctx, log, layout, t, token, platform, v)
		report.Outcomes = append(report.Outcomes, o)
		if o.Action != ActionSkipPlatform {
			considered = append(considered, v)
		}

		if e.recorder != nil {
			if err := e.recorder.Record(ctx, t, o); err != nil {
				log.Warn("Failed to record outcome", zap.String("file", o.File), zap.Error(err))
			}
		}
	}

	m, err := manifest.Write(layout.ManifestPath(), t, considered)
	if err != nil {
		return nil, report, err
	}

	log.Info("Title reconciled",
		zap.Int("files", len(variants)),
		zap.Int("fetched", report.Fetched()),
		zap.Int("failed", report.Count(ActionFailed)))

	return m, report, nil
}

func (e *Engine) reconcileFile(ctx context.Context, log *zap.Logger, layout catalog.Layout, t *catalog.Title, token, platform string, v catalog.FileVariant) Outcome {
	o := Outcome{UploadID: v.ID, File: catalog.CleanFilename(v.Name())}
	log = log.With(zap.String("file", o.File), zap.Int64("upload_id", v.ID))

	if !v.SupportsPlatform(platform) {
		log.Info("Skipping file for platform", zap.String("platform", platform), zap.Strings("traits", v.Traits))
		o.Action = ActionSkipPlatform
		return o
	}

	path, err := layout.File(v.Name())
	if err != nil {
		return e.fail(log, t, layout, o, "", errlog.KindFilesystem, err)
	}
	o.Path = path

	action, state, err := Plan(path, v.Digest)
	if err != nil {
		return e.fail(log, t, layout, o, "", errlog.KindFilesystem, err)
	}

	switch action {
	case ActionSkipUnchanged:
		log.Debug("File unchanged")
		o.Action = action
		o.Digest = state.Sidecar
		o.Verified = !v.Digest.IsZero()
		return o

	case ActionBackfill:
		if err := checksum.Write(path, state.Sum); err != nil {
			return e.fail(log, t, layout, o, "", errlog.KindFilesystem, err)
		}
		log.Info("File unchanged, sidecar backfilled")
		o.Action = action
		o.Digest = state.Sum
		o.Verified = true
		return o

	case ActionReplace:
		dest, err := e.archiver.Archive(path)
		if err != nil {
			o.Planned = ActionReplace
			return e.fail(log, t, layout, o, "", errlog.KindArchive, err)
		}
		log.Info("Archived superseded file", zap.String("archived_to", dest))
		o.ArchivedTo = dest
	}

	o.Planned = action
	return e.fetch(ctx, log, layout, t, token, v, o)
}

func (e *Engine) fetch(ctx context.Context, log *zap.Logger, layout catalog.Layout, t *catalog.Title, token string, v catalog.FileVariant, o Outcome) Outcome {
	// Only a sidecar written after verification may describe the new bytes.
	if err := checksum.Remove(o.Path); err != nil {
		return e.fail(log, t, layout, o, "", errlog.KindFilesystem, err)
	}

	session, err := e.source.NewDownloadSession(ctx, token, t.GameID)
	if err != nil {
		return e.fail(log, t, layout, o, "", errlog.KindSession, err)
	}

	url := e.source.DownloadURL(token, v.ID, t.DownloadKeyID, session)
	n, err := e.fetcher.Fetch(ctx, url, layout.TitleDir(), t.Name, filepath.Base(o.Path))
	if err != nil {
		return e.fail(log, t, layout, o, url, classify(err), err)
	}
	o.Bytes = n

	if v.Digest.IsZero() {
		log.Warn("Downloaded file has no remote checksum, leaving it unverified")
		o.Action = o.Planned
		o.Planned = ""
		return o
	}

	sum, err := checksum.Sum(o.Path)
	if err != nil {
		return e.fail(log, t, layout, o, url, errlog.KindFilesystem, err)
	}
	if !v.Digest.Matches(sum) {
		verr := &VerifyError{Path: o.Path, Expected: v.Digest.Expected(), Actual: sum}
		return e.fail(log, t, layout, o, url, errlog.KindVerify, verr)
	}

	if err := checksum.Write(o.Path, sum); err != nil {
		return e.fail(log, t, layout, o, url, errlog.KindFilesystem, err)
	}
	o.Action = o.Planned
	o.Planned = ""
	o.Digest = sum
	o.Verified = true
	log.Info("File downloaded and verified", zap.Int64("size", n))

	if e.replicator != nil {
		if err := e.replicator.Replicate(ctx, o.Path, layout.ObjectKey(o.File), sum); err != nil {
			log.Warn("Replication failed", zap.Error(err))
			e.appendError(log, t, layout, o, "", errlog.KindReplicate, err)
		}
	}
	return o
}

// fail marks o failed, writes the error log entry and returns o.
func (e *Engine) fail(log *zap.Logger, t *catalog.Title, layout catalog.Layout, o Outcome, url string, kind errlog.Kind, err error) Outcome {
	if o.Planned == "" {
		o.Planned = ActionFetch
	}
	o.Action = ActionFailed
	o.Kind = kind
	o.Err = err

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn("File interrupted", zap.Error(err))
		return o
	}

	log.Error("File failed", zap.String("kind", string(kind)), zap.Error(err))
	e.appendError(log, t, layout, o, url, kind, err)
	return o
}

func (e *Engine) appendError(log *zap.Logger, t *catalog.Title, layout catalog.Layout, o Outcome, url string, kind errlog.Kind, err error) {
	entry := errlog.Entry{
		Kind:      kind,
		Time:      time.Now(),
		Title:     t.Slug(),
		Publisher: t.PublisherSlug(),
		Path:      layout.TitleDir(),
		File:      o.File,
		URL:       url,
		Reason:    err.Error(),
	}

	var httpErr *transfer.HTTPError
	if errors.As(err, &httpErr) {
		entry.StatusCode = httpErr.StatusCode
		entry.Reason = httpErr.Reason
	}

	if appendErr := e.errors.Append(entry); appendErr != nil {
		log.Error("Failed to write error log", zap.Error(appendErr))
	}
}

func classify(err error) errlog.Kind {
	var httpErr *transfer.HTTPError
	var noDownload *transfer.NoDownloadError
	switch {
	case errors.As(err, &httpErr):
		return errlog.KindHTTP
	case errors.As(err, &noDownload):
		return errlog.KindNoDownload
	default:
		return errlog.KindTransport
	}
}
