package checks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"itch-archiver/core/checksum"
)

// Status is the verdict for one mirror entry.
type Status string

const (
	// StatusOK means the file matches its sidecar.
	StatusOK Status = "ok"
	// StatusMismatch means the file no longer matches its sidecar.
	StatusMismatch Status = "mismatch"
	// StatusMissingSidecar means the file has no sidecar.
	StatusMissingSidecar Status = "missing_sidecar"
	// StatusOrphanSidecar means a sidecar has no data file.
	StatusOrphanSidecar Status = "orphan_sidecar"
)

// Finding describes one entry that is not StatusOK.
type Finding struct {
	Path     string `json:"path" yaml:"path"`
	Status   Status `json:"status" yaml:"status"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   string `json:"actual,omitempty" yaml:"actual,omitempty"`
}

// MirrorReport is the result of ScanMirror.
type MirrorReport struct {
	Root     string         `json:"root" yaml:"root"`
	Checked  int            `json:"checked" yaml:"checked"`
	Counts   map[Status]int `json:"counts" yaml:"counts"`
	Findings []Finding      `json:"findings" yaml:"findings"`
}

// ScanMirror walks root and checks every title file against its sidecar.
// Title files live at <root>/<publisher>/<title>/<file>; archive directories
// and hidden temp files are ignored.
func ScanMirror(ctx context.Context, root string) (*MirrorReport, error) {
	report := &MirrorReport{Root: root, Counts: map[Status]int{}, Findings: []Finding{}}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))

		if d.IsDir() {
			if rel != "." && (depth > 2 || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if depth != 3 || strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}

		if checksum.IsSidecar(path) {
			orphan, err := isOrphan(path)
			if err != nil {
				return err
			}
			if orphan {
				report.Counts[StatusOrphanSidecar]++
				report.Findings = append(report.Findings, Finding{Path: path, Status: StatusOrphanSidecar})
			}
			return nil
		}

		f, err := checkFile(path)
		if err != nil {
			return err
		}
		report.Checked++
		report.Counts[f.Status]++
		if f.Status != StatusOK {
			report.Findings = append(report.Findings, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror %s: %w", root, err)
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].Path < report.Findings[j].Path
	})
	return report, nil
}

func isOrphan(sidecar string) (bool, error) {
	_, err := os.Stat(strings.TrimSuffix(sidecar, checksum.Suffix))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, err
}

func checkFile(path string) (Finding, error) {
	expected, ok, err := checksum.Read(path)
	if err != nil {
		return Finding{}, err
	}
	if !ok {
		return Finding{Path: path, Status: StatusMissingSidecar}, nil
	}

	actual, err := checksum.Sum(path)
	if err != nil {
		return Finding{}, err
	}
	if !strings.EqualFold(expected, actual) {
		return Finding{Path: path, Status: StatusMismatch, Expected: expected, Actual: actual}, nil
	}
	return Finding{Path: path, Status: StatusOK}, nil
}

// RemoveStaleSidecars deletes the sidecars of mismatched files and orphan
// sidecars so the next download pass re-examines those files. It returns the
// removed sidecar paths.
func RemoveStaleSidecars(findings []Finding) ([]string, error) {
	removed := []string{}
	for _, f := range findings {
		var data string
		switch f.Status {
		case StatusOrphanSidecar:
			data = strings.TrimSuffix(f.Path, checksum.Suffix)
		case StatusMismatch:
			data = f.Path
		default:
			continue
		}
		if err := checksum.Remove(data); err != nil {
			return removed, err
		}
		removed = append(removed, checksum.SidecarPath(data))
	}
	return removed, nil
}
