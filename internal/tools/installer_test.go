package tools

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlectl/internal/bundle"
	"bundlectl/internal/download"
	"bundlectl/internal/logx"
	"bundlectl/internal/toolcache"
)

func bundleArchive(t *testing.T) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	body := []byte("#!/bin/sh\necho codeql\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "codeql/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "codeql/codeql", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err = gw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gz.Bytes()
}

type bundleServer struct {
	*httptest.Server
	hits atomic.Int32
	mu   sync.Mutex
	auth []string
}

func newBundleServer(t *testing.T, status int) *bundleServer {
	t.Helper()
	payload := bundleArchive(t)
	bs := &bundleServer{}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.hits.Add(1)
		bs.mu.Lock()
		bs.auth = append(bs.auth, r.Header.Get("Authorization"))
		bs.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if !strings.HasSuffix(r.URL.Path, ".tar.gz") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(bs.Close)
	return bs
}

type recorder struct {
	mu     sync.Mutex
	stages []Stage
}

func (r *recorder) Stage(_ string, stage Stage, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func newTestInstaller(t *testing.T, cfg Config) (*Installer, string) {
	t.Helper()
	tempRoot := t.TempDir()
	cfg.TempRoot = tempRoot
	cache := toolcache.New(t.TempDir(), logx.Nop())
	client := download.NewClient(download.ClientConfig{})
	return NewInstaller(cache, client, logx.Nop(), cfg), tempRoot
}

func TestAcquireDownloadsThenHitsCache(t *testing.T) {
	srv := newBundleServer(t, http.StatusOK)
	inst, tempRoot := newTestInstaller(t, Config{})
	rec := &recorder{}
	inst = inst.WithReporter(rec)

	locator := srv.URL + "/codeql-bundle-v2.19.0/codeql-bundle-linux64.tar.gz"
	first, err := inst.Acquire(context.Background(), AcquireRequest{Locator: locator, Authorization: "token abc"})
	require.NoError(t, err)
	assert.Equal(t, SourceDownload, first.Source)
	assert.Equal(t, "v2.19.0", first.RawVersion)
	assert.Equal(t, "2.19.0", first.CanonicalSemver)
	require.NotNil(t, first.Extraction)
	assert.False(t, first.Extraction.Streamed)
	assert.FileExists(t, filepath.Join(first.Path, "codeql", "codeql"))
	assert.Equal(t, []Stage{StageResolving, StageDownloading, StageExtracting, StageStoring, StageComplete}, rec.stages)

	second, err := inst.Acquire(context.Background(), AcquireRequest{Locator: locator})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Path, second.Path)
	assert.Nil(t, second.Extraction)
	assert.Equal(t, int32(1), srv.hits.Load(), "cache hit must not touch the network")

	leftovers, err := os.ReadDir(tempRoot)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAcquireDistinctVersionsGetDistinctEntries(t *testing.T) {
	srv := newBundleServer(t, http.StatusOK)
	inst, _ := newTestInstaller(t, Config{})

	a, err := inst.Acquire(context.Background(), AcquireRequest{Locator: srv.URL + "/codeql-bundle-20200601/codeql-bundle.tar.gz"})
	require.NoError(t, err)
	b, err := inst.Acquire(context.Background(), AcquireRequest{Locator: srv.URL + "/codeql-bundle-20200601.0.0/codeql-bundle.tar.gz"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0-20200601", a.CanonicalSemver)
	assert.Equal(t, "20200601.0.0", b.CanonicalSemver)
	assert.NotEqual(t, a.Path, b.Path)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestAcquireSkipsAuthorizationWithTokenParam(t *testing.T) {
	srv := newBundleServer(t, http.StatusOK)
	inst, _ := newTestInstaller(t, Config{})

	_, err := inst.Acquire(context.Background(), AcquireRequest{
		Locator:       srv.URL + "/codeql-bundle-v2.19.0/codeql-bundle.tar.gz?token=xyz",
		Authorization: "token abc",
	})
	require.NoError(t, err)
	_, err = inst.Acquire(context.Background(), AcquireRequest{
		Locator:       srv.URL + "/codeql-bundle-v2.20.0/codeql-bundle.tar.gz",
		Authorization: "token abc",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "token abc"}, srv.auth)
}

func TestAcquireFromReleaseTag(t *testing.T) {
	srv := newBundleServer(t, http.StatusOK)
	inst, _ := newTestInstaller(t, Config{ReleaseBaseURL: srv.URL})

	res, err := inst.Acquire(context.Background(), AcquireRequest{Locator: "codeql-bundle-v2.19.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.19.0", res.CanonicalSemver)
	assert.Equal(t, SourceDownload, res.Source)
}

func TestAcquireMalformedLocator(t *testing.T) {
	inst, _ := newTestInstaller(t, Config{})
	rec := &recorder{}
	inst = inst.WithReporter(rec)

	_, err := inst.Acquire(context.Background(), AcquireRequest{Locator: "https://example.com/releases/bundle.tar.gz"})
	require.Error(t, err)
	var cfgErr *bundle.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "Malformed tools url")
	assert.Equal(t, StageError, rec.stages[len(rec.stages)-1])
}

func TestAcquireNon200LeavesNothingBehind(t *testing.T) {
	srv := newBundleServer(t, http.StatusForbidden)
	inst, tempRoot := newTestInstaller(t, Config{})

	_, err := inst.Acquire(context.Background(), AcquireRequest{Locator: srv.URL + "/codeql-bundle-v2.19.0/codeql-bundle.tar.gz"})
	require.Error(t, err)
	var dlErr *download.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusForbidden, dlErr.StatusCode)
	assert.Contains(t, err.Error(), "403")

	leftovers, err := os.ReadDir(tempRoot)
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	_, ok := inst.cache.Find(DefaultToolName, "2.19.0")
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	inst, _ := newTestInstaller(t, Config{MinimumVersion: "2.20.0"})

	st := inst.StatusFor("loc", AcquireResult{RawVersion: "v2.19.0", CanonicalSemver: "2.19.0", Source: SourceCache, Path: "/p"}, nil)
	assert.False(t, st.Satisfied)
	assert.Equal(t, SourceCache, st.Source)
	assert.NotEmpty(t, st.Notes)

	st = inst.StatusFor("loc", AcquireResult{}, errors.New("boom"))
	assert.Equal(t, "boom", st.Error)
	assert.False(t, st.Satisfied)
}

func TestReleaseURL(t *testing.T) {
	got := releaseURL("https://example.com/dl/", "codeql-bundle-v2.19.0", true)
	assert.True(t, strings.HasPrefix(got, "https://example.com/dl/codeql-bundle-v2.19.0/codeql-bundle-"))
	assert.True(t, strings.HasSuffix(got, ".tar.zst"))
	assert.True(t, strings.HasSuffix(releaseURL("", "t", false), ".tar.gz"))
}
