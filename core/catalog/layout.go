package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"itch-archiver/core/checksum"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	// ArchiveDir is the per-title directory holding superseded files.
	ArchiveDir = "old"
	// ManifestExt is the extension of a title's manifest file.
	ManifestExt = ".json"
	// ErrorLogName is the shared diagnostic log at the mirror root.
	ErrorLogName = "errors.txt"
)

var unsafeFilenameChars = strings.NewReplacer(
	"/", "-",
	`\`, "-",
	":", "-",
	"|", "-",
	`"`, "'",
	"*", "",
	"?", "",
	"<", "",
	">", "",
)

// CleanFilename makes a remote filename safe to use as a single path segment.
func CleanFilename(name string) string {
	name = unsafeFilenameChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..":
		return "_"
	case ArchiveDir:
		return "_" + ArchiveDir
	}
	// A data file must never look like another file's sidecar.
	if checksum.IsSidecar(name) {
		return name + "_"
	}
	return name
}

// Layout locates one title inside the mirror.
type Layout struct {
	root      string
	publisher string
	title     string
}

// NewLayout validates the title's slugs and returns its layout under root.
func NewLayout(root string, t *Title) (Layout, error) {
	if !ValidSlug(t.PublisherSlug()) || !ValidSlug(t.Slug()) {
		return Layout{}, fmt.Errorf("title %q has invalid slugs", t.Name)
	}
	return Layout{root: root, publisher: t.PublisherSlug(), title: t.Slug()}, nil
}

// PublisherDir returns <root>/<publisher-slug>.
func (l Layout) PublisherDir() string {
	return filepath.Join(l.root, l.publisher)
}

// TitleDir returns <root>/<publisher-slug>/<title-slug>.
func (l Layout) TitleDir() string {
	return filepath.Join(l.root, l.publisher, l.title)
}

// ManifestPath returns <root>/<publisher-slug>/<title-slug>.json.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.root, l.publisher, l.title+ManifestExt)
}

// ObjectKey returns the slash separated key of a file relative to the root.
func (l Layout) ObjectKey(filename string) string {
	return l.publisher + "/" + l.title + "/" + filename
}

// File returns the local path for a remote file name.
func (l Layout) File(name string) (string, error) {
	path, err := securejoin.SecureJoin(l.TitleDir(), CleanFilename(name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q under %s: %w", name, l.TitleDir(), err)
	}
	if filepath.Dir(path) != filepath.Clean(l.TitleDir()) {
		return "", fmt.Errorf("file %q resolves outside %s", name, l.TitleDir())
	}
	return path, nil
}

// Ensure creates the publisher and title directories.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.TitleDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", l.TitleDir(), err)
	}
	return nil
}
