// Package archive moves superseded mirror files out of the way before they
// are replaced.
//
// A file <dir>/<name> is renamed to <dir>/old/<YYYY-MM-DD>-<name>. When that
// name is already taken the date gets a counter: <YYYY-MM-DD>.1-<name>,
// <YYYY-MM-DD>.2-<name> and so on. The move is a single rename, so either the
// file is archived or it is still where it was.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"itch-archiver/core/catalog"
	"itch-archiver/core/checksum"
)

// DateLayout formats the archive prefix.
const DateLayout = "2006-01-02"

// maxSameDay bounds the counter search for one name on one day.
const maxSameDay = 1000

// Error reports a failed archive step.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Archiver moves files into their title's archive directory.
type Archiver struct {
	now func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the clock used for the date prefix.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New creates an Archiver.
func New(opts ...Option) *Archiver {
	a := &Archiver{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive moves path into the archive directory and returns its new location.
// The file's sidecar, if any, moves with it. A sidecar that cannot be moved
// is removed, or the data file is put back when even that fails.
func (a *Archiver) Archive(path string) (string, error) {
	dir := filepath.Join(filepath.Dir(path), catalog.ArchiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Op: "mkdir", Path: dir, Err: err}
	}

	dest, err := a.destination(dir, filepath.Base(path))
	if err != nil {
		return "", err
	}

	if err := os.Rename(path, dest); err != nil {
		return "", &Error{Op: "rename", Path: path, Err: err}
	}

	sidecar := checksum.SidecarPath(path)
	if _, err := os.Stat(sidecar); err == nil {
		if err := os.Rename(sidecar, checksum.SidecarPath(dest)); err != nil {
			// The sidecar must not stay beside the now empty data path.
			if rmErr := os.Remove(sidecar); rmErr == nil {
				return dest, nil
			}
			if rbErr := os.Rename(dest, path); rbErr != nil {
				return dest, &Error{Op: "rollback", Path: dest, Err: rbErr}
			}
			return "", &Error{Op: "rename", Path: sidecar, Err: err}
		}
	}

	return dest, nil
}

func (a *Archiver) destination(dir, name string) (string, error) {
	date := a.now().Format(DateLayout)
	for i := 0; i < maxSameDay; i++ {
		prefix := date
		if i > 0 {
			prefix += "." + strconv.Itoa(i)
		}
		candidate := filepath.Join(dir, prefix+"-"+name)
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", &Error{Op: "stat", Path: candidate, Err: err}
		}
	}
	return "", &Error{Op: "name", Path: filepath.Join(dir, name), Err: fmt.Errorf("more than %d archives today", maxSameDay)}
}
