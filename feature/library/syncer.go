package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"itch-archiver/core/catalog"
	"itch-archiver/core/manifest"
	"itch-archiver/core/reconcile"

	"github.com/hashicorp/go-multierror"
	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Lister enumerates the purchases of an account.
type Lister interface {
	OwnedKeys(ctx context.Context, token string) ([]catalog.Record, error)
}

// Reconciler brings one title up to date.
type Reconciler interface {
	Reconcile(ctx context.Context, t *catalog.Title, token, platform string) (*manifest.Manifest, *reconcile.Report, error)
	Root() string
}

// Summary describes a finished pass.
type Summary struct {
	// Titles is the number of owned records.
	Titles int `json:"titles"`
	// Skipped counts titles skipped because a manifest exists.
	Skipped int `json:"skipped"`
	// Failed counts titles that could not be reconciled at all.
	Failed int `json:"failed"`
	// Files counts per-file outcomes by action.
	Files map[reconcile.Action]int `json:"files"`
	// Reports holds one report per reconciled title, in listing order.
	Reports []*reconcile.Report `json:"reports"`
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithProgress renders the progress bar to w. A nil writer disables it.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) {
		s.progress = w
	}
}

// Syncer runs download passes.
type Syncer struct {
	lister   Lister
	engine   Reconciler
	cfg      Config
	logger   *zap.Logger
	progress io.Writer
}

// NewSyncer creates a Syncer.
func NewSyncer(lister Lister, engine Reconciler, cfg Config, logger *zap.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}
	s := &Syncer{
		lister:   lister,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		progress: ansi.NewAnsiStdout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type titleResult struct {
	report  *reconcile.Report
	skipped bool
	err     error
}

// Run reconciles every owned title. The returned error combines the
// title-level failures; per-file failures are only counted in the Summary.
func (s *Syncer) Run(ctx context.Context, token string) (*Summary, error) {
	records, err := s.lister.OwnedKeys(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned titles: %w", err)
	}
	s.logger.Info("Starting download pass",
		zap.Int("titles", len(records)),
		zap.Int("jobs", s.cfg.Jobs),
		zap.String("platform", s.cfg.Platform))

	bar := s.newBar(len(records))
	results := make([]titleResult, len(records))

	var g errgroup.Group
	g.SetLimit(s.cfg.Jobs)

	var barMu sync.Mutex
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = s.syncTitle(ctx, token, rec)
			barMu.Lock()
			_ = bar.Add(1)
			barMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	summary := &Summary{Titles: len(records), Files: map[reconcile.Action]int{}}
	var result *multierror.Error
	for _, r := range results {
		if r.skipped {
			summary.Skipped++
			continue
		}
		if r.report != nil {
			summary.Reports = append(summary.Reports, r.report)
			for _, o := range r.report.Outcomes {
				summary.Files[o.Action]++
			}
		}
		if r.err != nil {
			summary.Failed++
			result = multierror.Append(result, r.err)
		}
	}

	s.logger.Info("Download pass finished",
		zap.Int("titles", summary.Titles),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed_titles", summary.Failed),
		zap.Int("fetched", summary.Files[reconcile.ActionFetch]+summary.Files[reconcile.ActionReplace]),
		zap.Int("failed_files", summary.Files[reconcile.ActionFailed]))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, result.ErrorOrNil()
}

func (s *Syncer) syncTitle(ctx context.Context, token string, rec catalog.Record) titleResult {
	if ctx.Err() != nil {
		return titleResult{err: ctx.Err()}
	}

	t, err := catalog.NewTitle(rec)
	if err != nil {
		s.logger.Warn("Skipping unusable record", zap.Int64("key_id", rec.ID), zap.Error(err))
		return titleResult{err: err}
	}

	if s.cfg.SkipExisting {
		layout, err := catalog.NewLayout(s.engine.Root(), t)
		if err != nil {
			return titleResult{err: err}
		}
		if _, err := os.Stat(layout.ManifestPath()); err == nil {
			s.logger.Debug("Manifest exists, skipping title", zap.String("title", t.String()))
			return titleResult{skipped: true}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return titleResult{err: err}
		}
	}

	_, report, err := s.engine.Reconcile(ctx, t, token, s.cfg.Platform)
	if err != nil {
		s.logger.Error("Title failed", zap.String("title", t.String()), zap.Error(err))
		return titleResult{report: report, err: err}
	}
	if ferr := report.Err(); ferr != nil {
		s.logger.Warn("Title reconciled with failures", zap.String("title", t.String()), zap.Error(ferr))
	}
	return titleResult{report: report}
}

func (s *Syncer) newBar(n int) *progressbar.ProgressBar {
	w := s.progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(
		n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Reconciling titles...[reset]"),
	)
}
