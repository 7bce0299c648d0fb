package integrity

import (
	"context"

	"itch-archiver/feature/integrity/checks"

	"go.uber.org/zap"
)

// Report is the result of a verification, with the sidecars removed by a fix.
type Report struct {
	checks.MirrorReport `yaml:",inline"`
	Fixed                []string `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

// Service verifies a local mirror.
type Service struct {
	root   string
	logger *zap.Logger
}

// NewService creates a new integrity service for the mirror at root.
func NewService(root string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{root: root, logger: logger}
}

// Verify checks every mirrored file against its sidecar. With fix, stale
// sidecars are removed so the next download pass re-examines those files.
func (s *Service) Verify(ctx context.Context, fix bool) (*Report, error) {
	scan, err := checks.ScanMirror(ctx, s.root)
	if err != nil {
		return nil, err
	}
	report := &Report{MirrorReport: *scan}

	s.logger.Info("Mirror verified",
		zap.String("root", s.root),
		zap.Int("checked", scan.Checked),
		zap.Int("mismatch", scan.Counts[checks.StatusMismatch]),
		zap.Int("missing_sidecar", scan.Counts[checks.StatusMissingSidecar]),
		zap.Int("orphan_sidecar", scan.Counts[checks.StatusOrphanSidecar]))

	if !fix {
		return report, nil
	}

	report.Fixed, err = checks.RemoveStaleSidecars(scan.Findings)
	if err != nil {
		return report, err
	}
	if len(report.Fixed) > 0 {
		s.logger.Info("Removed stale sidecars", zap.Int("count", len(report.Fixed)))
	}
	return report, nil
}

// Healthy reports whether the verification found nothing to repair.
// Files without a sidecar are tolerated.
func (r *Report) Healthy() bool {
	return r.Counts[checks.StatusMismatch] == 0 && r.Counts[checks.StatusOrphanSidecar] == 0
}
