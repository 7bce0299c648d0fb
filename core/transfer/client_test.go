package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New(5 * time.Second)

	n, err := c.Fetch(context.Background(), srv.URL+"/uploads/1/download", dir, "Cool Game", "game.zip")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	b, err := os.ReadFile(filepath.Join(dir, "game.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetch_ChunkedBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("chunk-1"))
		w.(http.Flusher).Flush()
		w.Write([]byte("chunk-2"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	n, err := New(5*time.Second).Fetch(context.Background(), srv.URL, dir, "Cool Game", "game.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)

	b, err := os.ReadFile(filepath.Join(dir, "game.bin"))
	require.NoError(t, err)
	assert.Equal(t, "chunk-1chunk-2", string(b))
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := New(5*time.Second).Fetch(context.Background(), srv.URL, dir, "Cool Game", "game.zip")
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "Forbidden", httpErr.Reason)
	assert.NoFileExists(t, filepath.Join(dir, "game.zip"))
}

func TestFetch_NoDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>please log in</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := New(5*time.Second).Fetch(context.Background(), srv.URL, dir, "Cool Game", "game.zip")
	require.Error(t, err)

	var noDownload *NoDownloadError
	require.True(t, errors.As(err, &noDownload))
	assert.Contains(t, noDownload.Reason, "text/html")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := New(5*time.Second).Fetch(ctx, srv.URL, dir, "Cool Game", "game.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNotADownload(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		length int64
		want   bool
	}{
		{"Binary", http.Header{"Content-Type": {"application/octet-stream"}}, 10, false},
		{"HTML", http.Header{"Content-Type": {"text/html"}}, 10, true},
		{"JSON", http.Header{"Content-Type": {"application/json"}}, 10, true},
		{"NoLength", http.Header{}, -1, true},
		{"NoLengthAttachment", http.Header{"Content-Disposition": {`attachment; filename="a.zip"`}}, -1, false},
		{"NoLengthBinary", http.Header{"Content-Type": {"application/octet-stream"}}, -1, false},
		{"NoLengthZip", http.Header{"Content-Type": {"application/zip"}}, -1, false},
		{"NoLengthText", http.Header{"Content-Type": {"text/plain"}}, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: tt.header, ContentLength: tt.length}
			assert.Equal(t, tt.want, notADownload(resp) != "")
		})
	}
}
