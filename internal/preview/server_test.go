package preview

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	out := filepath.Join(root, "book")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("<html>hello</html>"), 0o644))

	cfg := &config.Config{}
	cfg.Book.Title = "t"
	cfg.ApplyDefaults()
	cfg.Book.Src = filepath.Join(root, "src")
	cfg.Build.Output = out
	return NewServer(cfg)
}

func TestHandlerServesOutput(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerExposesMetrics(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzReflectsLastBuild(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.mu.Lock()
	s.lastError = fmt.Errorf("render exploded")
	s.mu.Unlock()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestShouldIgnoreEvent(t *testing.T) {
	assert.True(t, shouldIgnoreEvent("/src/.intro.md.swp"))
	assert.True(t, shouldIgnoreEvent("/src/intro.md~"))
	assert.True(t, shouldIgnoreEvent("/src/#intro.md#"))
	assert.True(t, shouldIgnoreEvent("/src/.DS_Store"))
	assert.False(t, shouldIgnoreEvent("/src/intro.md"))
	assert.False(t, shouldIgnoreEvent("/src/SUMMARY.md"))
}
