package catalog

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(url string) Record {
	game, _ := json.Marshal(map[string]any{
		"title": "Cool Game",
		"url":   url,
		"user":  map[string]any{"username": "Cool Studio"},
	})
	return Record{ID: 77, GameID: 12, Game: game}
}

func TestNewTitle(t *testing.T) {
	title, err := NewTitle(record("https://coolstudio.itch.io/cool-game"))
	require.NoError(t, err)

	assert.Equal(t, int64(77), title.DownloadKeyID)
	assert.Equal(t, int64(12), title.GameID)
	assert.Equal(t, "Cool Game", title.Name)
	assert.Equal(t, "Cool Studio", title.Publisher)
	assert.Equal(t, "coolstudio", title.PublisherSlug())
	assert.Equal(t, "cool-game", title.Slug())
	assert.Equal(t, "coolstudio/cool-game", title.String())
	assert.JSONEq(t, string(record("https://coolstudio.itch.io/cool-game").Game), string(title.Data))
}

func TestNewTitle_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"NoGame", Record{ID: 1}},
		{"BadJSON", Record{ID: 1, Game: json.RawMessage(`{`)}},
		{"OtherHost", record("https://example.com/cool-game")},
		{"NoSlug", record("https://coolstudio.itch.io/")},
		{"NestedPath", record("https://coolstudio.itch.io/a/b")},
		{"Traversal", record("https://coolstudio.itch.io/..")},
		{"FTP", record("ftp://coolstudio.itch.io/game")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTitle(tt.rec)
			assert.Error(t, err)
		})
	}
}

func TestDigest(t *testing.T) {
	assert.True(t, Digest{}.IsZero())
	assert.Equal(t, "bbb", Digest{Legacy: "aaa", Hex: "bbb"}.Expected())
	assert.Equal(t, "aaa", Digest{Legacy: "aaa"}.Expected())

	d := Digest{Legacy: "AAA", Hex: "bbb"}
	assert.True(t, d.Matches("aaa"))
	assert.True(t, d.Matches("BBB\n"))
	assert.False(t, d.Matches("ccc"))
	assert.False(t, d.Matches(""))
	assert.False(t, Digest{}.Matches(""))
}

func TestFileVariant_Name(t *testing.T) {
	assert.Equal(t, "game.zip", FileVariant{ID: 5, Filename: "game.zip", DisplayName: "Game"}.Name())
	assert.Equal(t, "Game", FileVariant{ID: 5, DisplayName: "Game"}.Name())
	assert.Equal(t, "5", FileVariant{ID: 5}.Name())
}

func TestFileVariant_SupportsPlatform(t *testing.T) {
	linux := FileVariant{Traits: []string{"p_linux"}}
	windows := FileVariant{Traits: []string{"p_windows", "demo"}}
	untagged := FileVariant{}

	assert.True(t, linux.SupportsPlatform("linux"))
	assert.False(t, windows.SupportsPlatform("linux"))
	assert.True(t, untagged.SupportsPlatform("linux"))
	assert.True(t, windows.SupportsPlatform(""))
}

func TestCleanFilename(t *testing.T) {
	tests := map[string]string{
		"game.zip":         "game.zip",
		"../../etc/passwd": "..-..-etc-passwd",
		`a\b:c`:            "a-b-c",
		"what?.txt":        "what.txt",
		"..":               "_",
		"":                 "_",
		"  spaced  ":       "spaced",
		"tab\tname":        "tabname",
		"old":              "_old",
		"game.zip.md5":     "game.zip.md5_",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanFilename(in), in)
	}
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	title, err := NewTitle(record("https://coolstudio.itch.io/cool-game"))
	require.NoError(t, err)

	l, err := NewLayout(root, title)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "coolstudio"), l.PublisherDir())
	assert.Equal(t, filepath.Join(root, "coolstudio", "cool-game"), l.TitleDir())
	assert.Equal(t, filepath.Join(root, "coolstudio", "cool-game.json"), l.ManifestPath())
	assert.Equal(t, "coolstudio/cool-game/game.zip", l.ObjectKey("game.zip"))

	require.NoError(t, l.Ensure())
	assert.DirExists(t, l.TitleDir())

	path, err := l.File("../../escape.zip")
	require.NoError(t, err)
	assert.Equal(t, l.TitleDir(), filepath.Dir(path))
	assert.Equal(t, "..-..-escape.zip", filepath.Base(path))

	path, err = l.File("game.zip.md5")
	require.NoError(t, err)
	assert.Equal(t, "game.zip.md5_", filepath.Base(path))
}
