package replayer

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/stretchr/testify/require"
)

func writeFixtureContainer(t *testing.T, frames ...frame.Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.ghostline")
	w, err := container.Create(path, container.Header{StartedAt: 1000})
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, w.Append(f))
	}
	require.NoError(t, w.Finish())
	return path
}

func TestStatusReportsCacheSizeAndCounters(t *testing.T) {
	f := frame.New([]byte("hello"), []byte(`{"ok":true}`), 12, 1000)
	path := writeFixtureContainer(t, f)
	cache, err := LoadCache(path)
	require.NoError(t, err)
	s := NewServer(cache, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true,"cached_frames":1,"hits":0,"misses":0}`, rec.Body.String())
}

func TestServeHTTPReturnsCachedResponseOnHit(t *testing.T) {
	f := frame.New([]byte("hello"), []byte(`{"ok":true}`), 42, 1000)
	path := writeFixtureContainer(t, f)
	cache, err := LoadCache(path)
	require.NoError(t, err)
	s := NewServer(cache, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("x-ghostline-replay"))
	require.Equal(t, "42", rec.Header().Get("x-ghostline-latency-ms"))
	require.Equal(t, `{"ok":true}`, rec.Body.String())
}

func TestServeHTTPReturns404OnMiss(t *testing.T) {
	f := frame.New([]byte("hello"), []byte(`{"ok":true}`), 42, 1000)
	path := writeFixtureContainer(t, f)
	cache, err := LoadCache(path)
	require.NoError(t, err)
	s := NewServer(cache, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("never seen"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "miss", rec.Header().Get("x-ghostline-replay"))
}

func TestLoadCacheKeepsEarliestFrameOnDuplicateHash(t *testing.T) {
	first := frame.New([]byte("dup"), []byte("first"), 1, 1000)
	second := frame.New([]byte("dup"), []byte("second"), 2, 2000)
	path := writeFixtureContainer(t, first, second)

	cache, err := LoadCache(path)
	require.NoError(t, err)

	f, ok := cache.lookup(frame.HashRequest([]byte("dup")))
	require.True(t, ok)
	require.Equal(t, []byte("first"), f.ResponseBytes)
}
