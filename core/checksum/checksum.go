// Package checksum keeps the sidecar integrity records of mirrored files.
//
// Every verified file <name> has a companion <name>.md5 holding the hex digest
// it had when it was last verified. Reading the sidecar lets a rerun skip
// rehashing large files.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Suffix is appended to a data file's path to name its sidecar.
const Suffix = ".md5"

// SidecarPath returns the sidecar path for a data file.
func SidecarPath(path string) string {
	return path + Suffix
}

// IsSidecar reports whether path names a sidecar.
func IsSidecar(path string) bool {
	return strings.HasSuffix(path, Suffix)
}

// Read returns the digest recorded for path. ok is false when no sidecar exists.
func Read(path string) (digest string, ok bool, err error) {
	b, err := os.ReadFile(SidecarPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read sidecar for %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), true, nil
}

// Write records digest as the verified checksum of path, replacing any
// previous record.
func Write(path, digest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create sidecar for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(digest); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sidecar for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write sidecar for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), SidecarPath(path)); err != nil {
		return fmt.Errorf("failed to install sidecar for %s: %w", path, err)
	}
	return nil
}

// Remove deletes the sidecar of path. A missing sidecar is not an error.
func Remove(path string) error {
	err := os.Remove(SidecarPath(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove sidecar for %s: %w", path, err)
	}
	return nil
}

// Sum streams path through MD5 and returns the lowercase hex digest.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
