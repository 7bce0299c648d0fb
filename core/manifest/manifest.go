// Package manifest persists the per-title summary written after every
// reconciliation pass.
//
// The JSON shape is fixed:
//
//	{"name", "dl_version", "publisher", "link", "itch_id", "game_id", "itch_data"}
//
// plus an optional "files" list of the local file names the pass considered.
// dl_version lets readers tell mirrors written by older tools apart.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"itch-archiver/core/catalog"
)

// Version is the current manifest schema version.
const Version = 2

// Manifest is the persisted record of one title.
type Manifest struct {
	Name      string          `json:"name"`
	Version   int             `json:"dl_version"`
	Publisher string          `json:"publisher"`
	Link      string          `json:"link"`
	ItchID    int64           `json:"itch_id"`
	GameID    int64           `json:"game_id"`
	Files     []string        `json:"files,omitempty"`
	Data      json.RawMessage `json:"itch_data"`
}

// New builds the manifest of a title. variants are the files the pass
// considered, in listing order.
func New(t *catalog.Title, variants []catalog.FileVariant) *Manifest {
	m := &Manifest{
		Name:      t.Name,
		Version:   Version,
		Publisher: t.Publisher,
		Link:      t.Link,
		ItchID:    t.DownloadKeyID,
		GameID:    t.GameID,
		Data:      t.Data,
	}
	for _, v := range variants {
		m.Files = append(m.Files, catalog.CleanFilename(v.Name()))
	}
	if len(m.Data) == 0 {
		m.Data = json.RawMessage("null")
	}
	return m
}

// Write serializes the manifest of t to path, replacing any previous one.
func Write(path string, t *catalog.Title, variants []catalog.FileVariant) (*Manifest, error) {
	m := New(t, variants)

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest for %s: %w", t, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to install manifest %s: %w", path, err)
	}
	return m, nil
}

// Read loads a manifest from path.
func Read(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
