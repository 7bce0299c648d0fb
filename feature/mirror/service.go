package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"itch-archiver/core/catalog"
	"itch-archiver/core/checksum"
	"itch-archiver/core/errlog"
	"itch-archiver/core/history"
	"itch-archiver/core/manifest"

	"go.uber.org/zap"
)

// historyLimit caps the events returned with a title.
const historyLimit = 50

// ErrNotFound is returned for unknown titles.
var ErrNotFound = errors.New("title not found")

// HistoryReader reads the download ledger.
type HistoryReader interface {
	History(ctx context.Context, publisher, title string, limit int) ([]history.Event, error)
}

// TitleSummary is one entry of the title listing.
type TitleSummary struct {
	Publisher string `json:"publisher"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	Link      string `json:"link"`
	GameID    int64  `json:"game_id"`
	ItchID    int64  `json:"itch_id"`
	Files     int    `json:"files"`
}

// FileInfo describes one mirrored file.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Digest   string `json:"digest,omitempty"`
	Verified bool   `json:"verified"`
}

// TitleDetail is the full view of one title.
type TitleDetail struct {
	Manifest *manifest.Manifest `json:"manifest"`
	Files    []FileInfo         `json:"files"`
	Archived []FileInfo         `json:"archived"`
	History  []history.Event    `json:"history,omitempty"`
}

// Service reads the mirror.
type Service struct {
	root    string
	history HistoryReader
	logger  *zap.Logger
}

// NewService creates a new mirror service. history may be nil.
func NewService(root string, history HistoryReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{root: root, history: history, logger: logger}
}

// ListTitles returns every title with a manifest, sorted by publisher and slug.
func (s *Service) ListTitles(ctx context.Context) ([]TitleSummary, error) {
	paths, err := filepath.Glob(filepath.Join(s.root, "*", "*"+catalog.ManifestExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	titles := make([]TitleSummary, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := manifest.Read(p)
		if err != nil {
			s.logger.Warn("Skipping unreadable manifest", zap.String("path", p), zap.Error(err))
			continue
		}
		titles = append(titles, TitleSummary{
			Publisher: filepath.Base(filepath.Dir(p)),
			Title:     strings.TrimSuffix(filepath.Base(p), catalog.ManifestExt),
			Name:      m.Name,
			Link:      m.Link,
			GameID:    m.GameID,
			ItchID:    m.ItchID,
			Files:     len(m.Files),
		})
	}
	return titles, nil
}

// GetTitle returns the detail of publisher/title.
func (s *Service) GetTitle(ctx context.Context, publisher, title string) (*TitleDetail, error) {
	if !catalog.ValidSlug(publisher) || !catalog.ValidSlug(title) {
		return nil, ErrNotFound
	}

	pubDir := filepath.Join(s.root, publisher)
	m, err := manifest.Read(filepath.Join(pubDir, title+catalog.ManifestExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	titleDir := filepath.Join(pubDir, title)
	detail := &TitleDetail{Manifest: m}
	if detail.Files, err = listFiles(titleDir, true); err != nil {
		return nil, err
	}
	if detail.Archived, err = listFiles(filepath.Join(titleDir, catalog.ArchiveDir), false); err != nil {
		return nil, err
	}

	if s.history != nil {
		events, err := s.history.History(ctx, publisher, title, historyLimit)
		if err != nil {
			s.logger.Warn("Failed to load history", zap.String("title", publisher+"/"+title), zap.Error(err))
		} else {
			detail.History = events
		}
	}
	return detail, nil
}

// Errors returns the blocks of the shared error log.
func (s *Service) Errors(ctx context.Context) ([]string, error) {
	return errlog.ReadBlocks(filepath.Join(s.root, catalog.ErrorLogName))
}

func listFiles(dir string, withDigest bool) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := []FileInfo{}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || checksum.IsSidecar(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		f := FileInfo{Name: name, Size: info.Size()}
		if withDigest {
			digest, ok, err := checksum.Read(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			f.Digest, f.Verified = digest, ok
		}
		files = append(files, f)
	}
	return files, nil
}
