package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"itch-archiver/core/catalog"
	"itch-archiver/core/checksum"
)

// LocalState describes what is on disk for one upload at decision time.
type LocalState struct {
	// Exists reports whether the data file exists.
	Exists bool
	// Sidecar is the recorded digest, valid when HasSidecar is true.
	Sidecar    string
	HasSidecar bool
	// Sum is the computed digest, set only when it had to be computed.
	Sum string
}

// Plan inspects path and decides what to do with it given the remote digest.
// It returns ActionSkipUnchanged, ActionBackfill, ActionFetch or ActionReplace.
// The sidecar is trusted when present; the file is hashed only without one.
func Plan(path string, digest catalog.Digest) (Action, LocalState, error) {
	var state LocalState

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ActionFetch, state, nil
	}
	if err != nil {
		return "", state, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", state, fmt.Errorf("%s is a directory", path)
	}
	state.Exists = true

	// Nothing to compare against: keep what we have.
	if digest.IsZero() {
		return ActionSkipUnchanged, state, nil
	}

	state.Sidecar, state.HasSidecar, err = checksum.Read(path)
	if err != nil {
		return "", state, err
	}
	if state.HasSidecar {
		if digest.Matches(state.Sidecar) {
			return ActionSkipUnchanged, state, nil
		}
		return ActionReplace, state, nil
	}

	state.Sum, err = checksum.Sum(path)
	if err != nil {
		return "", state, err
	}
	if digest.Matches(state.Sum) {
		return ActionBackfill, state, nil
	}
	return ActionReplace, state, nil
}
