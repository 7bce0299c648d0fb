package reconcile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"itch-archiver/core/archive"
	"itch-archiver/core/catalog"
	"itch-archiver/core/checksum"
	"itch-archiver/core/errlog"
	"itch-archiver/core/manifest"
	"itch-archiver/core/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func upper(s string) string {
	return strings.ToUpper(s)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func testTitle(t *testing.T) *catalog.Title {
	t.Helper()
	title, err := catalog.NewTitle(catalog.Record{
		ID:     99,
		GameID: 10,
		Game:   json.RawMessage(`{"title":"Cool Game","url":"https://pub.itch.io/cool","user":{"username":"Pub"}}`),
	})
	require.NoError(t, err)
	return title
}

type fakeSource struct {
	mu       sync.Mutex
	variants []catalog.FileVariant
	listErr  error
	sessErr  error
	sessions int
}

func (s *fakeSource) ListUploads(ctx context.Context, token string, gameID, downloadKeyID int64) ([]catalog.FileVariant, error) {
	return s.variants, s.listErr
}

func (s *fakeSource) NewDownloadSession(ctx context.Context, token string, gameID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessErr != nil {
		return "", s.sessErr
	}
	s.sessions++
	return fmt.Sprintf("session-%d", s.sessions), nil
}

func (s *fakeSource) DownloadURL(token string, uploadID, downloadKeyID int64, sessionID string) string {
	return fmt.Sprintf("https://api.test/uploads/%d/download?api_key=%s", uploadID, token)
}

func uploadURL(id int64) string {
	return fmt.Sprintf("https://api.test/uploads/%d/download?api_key=secret", id)
}

// fakeFetcher serves content by URL and counts requests.
type fakeFetcher struct {
	mu      sync.Mutex
	content map[string]string
	errs    map[string]error
	calls   []string
	onFetch func()
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{content: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dir, displayName, filename string) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch()
	}
	if err, ok := f.errs[url]; ok {
		return 0, err
	}
	body, ok := f.content[url]
	if !ok {
		return 0, &transfer.HTTPError{URL: url, StatusCode: 404, Reason: "Not Found"}
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func variant(id int64, name, content string, traits ...string) catalog.FileVariant {
	return catalog.FileVariant{
		ID:       id,
		Filename: name,
		Traits:   traits,
		Digest:   catalog.Digest{Hex: md5Hex(content)},
	}
}

type testEnv struct {
	root    string
	title   *catalog.Title
	source  *fakeSource
	fetcher *fakeFetcher
	errors  *errlog.Collector
	engine  *Engine
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{
		root:    t.TempDir(),
		title:   testTitle(t),
		source:  &fakeSource{},
		fetcher: newFakeFetcher(),
		errors:  &errlog.Collector{},
	}
	clock := archive.WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	})
	opts = append([]Option{WithArchiver(archive.New(clock))}, opts...)
	env.engine = New(env.root, env.source, env.fetcher, env.errors, opts...)
	return env
}

func (env *testEnv) serve(id int64, name, content string, traits ...string) {
	env.source.variants = append(env.source.variants, variant(id, name, content, traits...))
	env.fetcher.content[uploadURL(id)] = content
}

func (env *testEnv) titleDir() string {
	return filepath.Join(env.root, "pub", "cool")
}

func (env *testEnv) run(t *testing.T, platform string) (*manifest.Manifest, *Report) {
	t.Helper()
	m, report, err := env.engine.Reconcile(context.Background(), env.title, "secret", platform)
	require.NoError(t, err)
	return m, report
}

func TestReconcile_FreshDownload(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "payload")

	m, report := env.run(t, "")

	path := filepath.Join(env.titleDir(), "game.zip")
	assert.Equal(t, "payload", readFile(t, path))

	digest, ok, err := checksum.Read(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, md5Hex("payload"), digest)

	require.Len(t, report.Outcomes, 1)
	o := report.Outcomes[0]
	assert.Equal(t, ActionFetch, o.Action)
	assert.True(t, o.Verified)
	assert.Equal(t, int64(7), o.Bytes)

	assert.Equal(t, "Cool Game", m.Name)
	assert.Equal(t, manifest.Version, m.Version)
	assert.FileExists(t, filepath.Join(env.root, "pub", "cool.json"))
	assert.Empty(t, env.errors.Entries())
}

func TestReconcile_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "payload")
	env.serve(2, "soundtrack.zip", "music")

	env.run(t, "")
	require.Equal(t, 2, env.fetcher.count())

	_, report := env.run(t, "")
	assert.Equal(t, 2, env.fetcher.count())
	assert.Equal(t, 2, report.Count(ActionSkipUnchanged))
	assert.Zero(t, report.Fetched())
	assert.NoDirExists(t, filepath.Join(env.titleDir(), catalog.ArchiveDir))
}

func TestReconcile_BackfillsMissingSidecar(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "payload")

	path := filepath.Join(env.titleDir(), "game.zip")
	writeFile(t, path, "payload")

	_, report := env.run(t, "")
	assert.Zero(t, env.fetcher.count())
	assert.Equal(t, ActionBackfill, report.Outcomes[0].Action)

	digest, ok, err := checksum.Read(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, md5Hex("payload"), digest)
}

func TestReconcile_ArchivesChangedFile(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "version 2")

	path := filepath.Join(env.titleDir(), "game.zip")
	writeFile(t, path, "version 1")
	require.NoError(t, checksum.Write(path, md5Hex("version 1")))

	_, report := env.run(t, "")

	archived := filepath.Join(env.titleDir(), catalog.ArchiveDir, "2024-03-05-game.zip")
	assert.Equal(t, "version 1", readFile(t, archived))
	assert.Equal(t, "version 2", readFile(t, path))

	o := report.Outcomes[0]
	assert.Equal(t, ActionReplace, o.Action)
	assert.Equal(t, archived, o.ArchivedTo)

	digest, _, err := checksum.Read(path)
	require.NoError(t, err)
	assert.Equal(t, md5Hex("version 2"), digest)
}

func TestReconcile_ArchivesChangedFileWithoutSidecar(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "version 2")

	path := filepath.Join(env.titleDir(), "game.zip")
	writeFile(t, path, "version 1")

	_, report := env.run(t, "")
	assert.Equal(t, ActionReplace, report.Outcomes[0].Action)
	assert.FileExists(t, filepath.Join(env.titleDir(), catalog.ArchiveDir, "2024-03-05-game.zip"))
	assert.Equal(t, "version 2", readFile(t, path))
}

func TestReconcile_PlatformFilter(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game-linux.zip", "linux", "p_linux")
	env.serve(2, "game-windows.zip", "windows", "p_windows")
	env.serve(3, "manual.pdf", "manual")

	m, report := env.run(t, "linux")

	assert.FileExists(t, filepath.Join(env.titleDir(), "game-linux.zip"))
	assert.NoFileExists(t, filepath.Join(env.titleDir(), "game-windows.zip"))
	assert.FileExists(t, filepath.Join(env.titleDir(), "manual.pdf"))

	assert.Equal(t, 1, report.Count(ActionSkipPlatform))
	assert.Equal(t, 2, env.fetcher.count())

	assert.Equal(t, []string{"game-linux.zip", "manual.pdf"}, m.Files)
}

func TestReconcile_NoPlatformFetchesAll(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game-linux.zip", "linux", "p_linux")
	env.serve(2, "game-windows.zip", "windows", "p_windows")

	_, report := env.run(t, "")
	assert.Equal(t, 2, report.Fetched())
}

func TestReconcile_FilenameFallback(t *testing.T) {
	env := newTestEnv(t)
	env.source.variants = []catalog.FileVariant{
		{ID: 7, DisplayName: "Soundtrack", Digest: catalog.Digest{Hex: md5Hex("music")}},
		{ID: 8, Digest: catalog.Digest{Hex: md5Hex("art")}},
	}
	env.fetcher.content[uploadURL(7)] = "music"
	env.fetcher.content[uploadURL(8)] = "art"

	env.run(t, "")

	assert.FileExists(t, filepath.Join(env.titleDir(), "Soundtrack"))
	assert.FileExists(t, filepath.Join(env.titleDir(), "8"))
}

func TestReconcile_FailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "a.zip", "a")
	env.serve(2, "b.zip", "b")
	env.serve(3, "c.zip", "c")
	env.fetcher.errs[uploadURL(2)] = errors.New("connection reset")

	m, report := env.run(t, "")
	require.NotNil(t, m)

	assert.FileExists(t, filepath.Join(env.titleDir(), "a.zip"))
	assert.NoFileExists(t, filepath.Join(env.titleDir(), "b.zip"))
	assert.FileExists(t, filepath.Join(env.titleDir(), "c.zip"))

	failed := report.Outcomes[1]
	assert.Equal(t, ActionFailed, failed.Action)
	assert.Equal(t, errlog.KindTransport, failed.Kind)
	assert.Error(t, report.Err())

	entries := env.errors.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "b.zip", entries[0].File)
	assert.Equal(t, "cool", entries[0].Title)
	assert.Len(t, m.Files, 3)
}

func TestReconcile_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   errlog.Kind
		status int
	}{
		{"HTTP", &transfer.HTTPError{URL: uploadURL(1), StatusCode: 403, Reason: "Forbidden"}, errlog.KindHTTP, 403},
		{"NoDownload", &transfer.NoDownloadError{URL: uploadURL(1), Reason: "html page"}, errlog.KindNoDownload, 0},
		{"Transport", errors.New("timeout"), errlog.KindTransport, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.serve(1, "game.zip", "payload")
			env.fetcher.errs[uploadURL(1)] = tt.err

			_, report := env.run(t, "")
			assert.Equal(t, tt.kind, report.Outcomes[0].Kind)

			entries := env.errors.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.kind, entries[0].Kind)
			assert.Equal(t, tt.status, entries[0].StatusCode)
			assert.Equal(t, uploadURL(1), entries[0].URL)
		})
	}
}

func TestReconcile_VerifyMismatchLeavesNoSidecar(t *testing.T) {
	env := newTestEnv(t)
	env.source.variants = []catalog.FileVariant{variant(1, "game.zip", "expected")}
	env.fetcher.content[uploadURL(1)] = "corrupted"

	_, report := env.run(t, "")

	path := filepath.Join(env.titleDir(), "game.zip")
	assert.FileExists(t, path)
	assert.NoFileExists(t, checksum.SidecarPath(path))

	o := report.Outcomes[0]
	assert.Equal(t, ActionFailed, o.Action)
	assert.Equal(t, errlog.KindVerify, o.Kind)
	var verr *VerifyError
	assert.True(t, errors.As(o.Err, &verr))

	// The next pass sees no sidecar, hashes the bad copy and replaces it.
	env.fetcher.content[uploadURL(1)] = "expected"
	_, report = env.run(t, "")
	assert.Equal(t, ActionReplace, report.Outcomes[0].Action)
	assert.Equal(t, "expected", readFile(t, path))
}

func TestReconcile_NoRemoteDigest(t *testing.T) {
	env := newTestEnv(t)
	env.source.variants = []catalog.FileVariant{{ID: 1, Filename: "game.zip"}}
	env.fetcher.content[uploadURL(1)] = "payload"

	_, report := env.run(t, "")
	o := report.Outcomes[0]
	assert.Equal(t, ActionFetch, o.Action)
	assert.False(t, o.Verified)
	assert.NoFileExists(t, checksum.SidecarPath(filepath.Join(env.titleDir(), "game.zip")))

	_, report = env.run(t, "")
	assert.Equal(t, ActionSkipUnchanged, report.Outcomes[0].Action)
	assert.Equal(t, 1, env.fetcher.count())
}

type failingArchiver struct{}

func (failingArchiver) Archive(path string) (string, error) {
	return "", &archive.Error{Op: "rename", Path: path, Err: os.ErrPermission}
}

func TestReconcile_ArchiveFailureKeepsOldFile(t *testing.T) {
	env := newTestEnv(t, WithArchiver(failingArchiver{}))
	env.serve(1, "game.zip", "version 2")

	path := filepath.Join(env.titleDir(), "game.zip")
	writeFile(t, path, "version 1")

	_, report := env.run(t, "")

	o := report.Outcomes[0]
	assert.Equal(t, ActionFailed, o.Action)
	assert.Equal(t, ActionReplace, o.Planned)
	assert.Equal(t, errlog.KindArchive, o.Kind)
	assert.Equal(t, "version 1", readFile(t, path))
	assert.Zero(t, env.fetcher.count())
}

func TestReconcile_SessionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "game.zip", "payload")
	env.source.sessErr = errors.New("api error: status 500")

	_, report := env.run(t, "")
	assert.Equal(t, errlog.KindSession, report.Outcomes[0].Kind)
	assert.Zero(t, env.fetcher.count())
}

func TestReconcile_ListingFailure(t *testing.T) {
	env := newTestEnv(t)
	env.source.listErr = errors.New("api error: status 500")

	m, _, err := env.engine.Reconcile(context.Background(), env.title, "secret", "")
	require.Error(t, err)
	assert.Nil(t, m)
	assert.NoFileExists(t, filepath.Join(env.root, "pub", "cool.json"))
}

func TestReconcile_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.serve(1, "a.zip", "a")
	env.serve(2, "b.zip", "b")

	ctx, cancel := context.WithCancel(context.Background())
	env.fetcher.onFetch = cancel

	m, report, err := env.engine.Reconcile(ctx, env.title, "secret", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
	assert.Len(t, report.Outcomes, 1)
	assert.Equal(t, 1, env.fetcher.count())
	assert.Empty(t, env.errors.Entries())
}

type recordingRecorder struct {
	outcomes []Outcome
}

func (r *recordingRecorder) Record(ctx context.Context, t *catalog.Title, o Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

type stubReplicator struct {
	keys []string
	err  error
}

func (r *stubReplicator) Replicate(ctx context.Context, path, key, digest string) error {
	r.keys = append(r.keys, key)
	return r.err
}

func TestReconcile_RecordsAndReplicates(t *testing.T) {
	rec := &recordingRecorder{}
	rep := &stubReplicator{}
	env := newTestEnv(t, WithRecorder(rec), WithReplicator(rep))
	env.serve(1, "game.zip", "payload")
	env.serve(2, "windows.zip", "windows", "p_windows")

	env.run(t, "linux")

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, ActionFetch, rec.outcomes[0].Action)
	assert.Equal(t, ActionSkipPlatform, rec.outcomes[1].Action)
	assert.Equal(t, []string{"pub/cool/game.zip"}, rep.keys)
}

func TestReconcile_ReplicationFailureIsNotFatal(t *testing.T) {
	rep := &stubReplicator{err: errors.New("bucket unavailable")}
	env := newTestEnv(t, WithReplicator(rep))
	env.serve(1, "game.zip", "payload")

	_, report := env.run(t, "")

	assert.Equal(t, ActionFetch, report.Outcomes[0].Action)
	entries := env.errors.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, errlog.KindReplicate, entries[0].Kind)
}

func TestReconcile_StaleSidecarDoesNotVouchForCorruptFetch(t *testing.T) {
	env := newTestEnv(t)
	env.source.variants = []catalog.FileVariant{variant(1, "game.zip", "expected")}
	env.fetcher.content[uploadURL(1)] = "corrupted"

	path := filepath.Join(env.titleDir(), "game.zip")
	require.NoError(t, os.MkdirAll(env.titleDir(), 0o755))
	require.NoError(t, checksum.Write(path, md5Hex("expected")))

	_, report := env.run(t, "")
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ActionFailed, report.Outcomes[0].Action)
	assert.Equal(t, errlog.KindVerify, report.Outcomes[0].Kind)

	_, ok, err := checksum.Read(path)
	require.NoError(t, err)
	assert.False(t, ok)

	_, report = env.run(t, "")
	require.Len(t, report.Outcomes, 1)
	o := report.Outcomes[0]
	assert.NotEqual(t, ActionSkipUnchanged, o.Action)
	assert.False(t, o.Verified)
	assert.Equal(t, 2, env.fetcher.count())
}

func TestReconcile_UnverifiedFetchDropsOldSidecar(t *testing.T) {
	env := newTestEnv(t)
	env.source.variants = []catalog.FileVariant{{ID: 1, Filename: "game.zip"}}
	env.fetcher.content[uploadURL(1)] = "payload"

	path := filepath.Join(env.titleDir(), "game.zip")
	require.NoError(t, os.MkdirAll(env.titleDir(), 0o755))
	require.NoError(t, checksum.Write(path, md5Hex("something else")))

	_, report := env.run(t, "")
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ActionFetch, report.Outcomes[0].Action)
	assert.False(t, report.Outcomes[0].Verified)

	_, ok, err := checksum.Read(path)
	require.NoError(t, err)
	assert.False(t, ok)
}
