package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testSite(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("historical"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pr"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pr", "index.html"), []byte("table"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "runs"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "runs", "20261018T120000Z.json"), []byte(`{"run_id":"1"}`), 0o644))

	return dir
}

func newTestServer(t *testing.T, cfg *config.PreviewConfig) (*server, http.Handler) {
	t.Helper()

	s, ok := NewServer(testLogger(), cfg, testSite(t)).(*server)
	require.True(t, ok)

	t.Cleanup(func() { close(s.done) })

	return s, s.buildRouter()
}

func get(h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:40000"

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestIsAllowedPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		allowed bool
	}{
		{name: "empty", path: "", allowed: false},
		{name: "simple file", path: "index.html", allowed: true},
		{name: "nested file", path: "runs/20261018T120000Z.json", allowed: true},
		{name: "traversal", path: "../etc/passwd", allowed: false},
		{name: "embedded traversal", path: "runs/../../secret", allowed: false},
		{name: "absolute", path: "/etc/passwd", allowed: false},
		{name: "double slash", path: "runs//x.json", allowed: false},
		{name: "dot segment", path: "./index.html", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, isAllowedPath(tt.path))
		})
	}
}

func TestServeSite(t *testing.T) {
	_, h := newTestServer(t, &config.PreviewConfig{})

	tests := []struct {
		name   string
		target string
		status int
		body   string
	}{
		{name: "root serves historical", target: "/", status: http.StatusOK, body: "historical"},
		{name: "explicit index", target: "/index.html", status: http.StatusOK, body: "historical"},
		{name: "table directory", target: "/pr/", status: http.StatusOK, body: "table"},
		{name: "table directory without slash", target: "/pr", status: http.StatusOK, body: "table"},
		{name: "run file", target: "/runs/20261018T120000Z.json", status: http.StatusOK, body: `{"run_id":"1"}`},
		{name: "missing", target: "/nope.html", status: http.StatusNotFound},
		{name: "directory without index", target: "/runs/", status: http.StatusNotFound},
		{name: "traversal", target: "/../secret", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)

			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, &config.PreviewConfig{})

	rec := get(h, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRateLimit(t *testing.T) {
	_, h := newTestServer(t, &config.PreviewConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2},
	})

	assert.Equal(t, http.StatusOK, get(h, "/", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/", nil).Code)

	// Another client has its own budget.
	assert.Equal(t, http.StatusOK, get(h, "/", map[string]string{"X-Forwarded-For": "198.51.100.7"}).Code)

	// Health checks are never limited.
	assert.Equal(t, http.StatusOK, get(h, "/healthz", nil).Code)
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		_, h := newTestServer(t, &config.PreviewConfig{})

		rec := get(h, "/", map[string]string{"Origin": "https://example.org"})
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("configured origins", func(t *testing.T) {
		_, h := newTestServer(t, &config.PreviewConfig{CORSOrigins: []string{"https://results.example.org"}})

		rec := get(h, "/", map[string]string{"Origin": "https://results.example.org"})
		assert.Equal(t, "https://results.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

		rec = get(h, "/", map[string]string{"Origin": "https://evil.example.com"})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	assert.Equal(t, "203.0.113.5", extractIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", extractIP(req))
}

func TestStartStop(t *testing.T) {
	srv := NewServer(testLogger(), &config.PreviewConfig{Listen: "127.0.0.1:0"}, testSite(t))
	require.NoError(t, srv.Start(context.Background()))

	resp, err := http.Get(fmt.Sprintf("http://%s/pr/", srv.Addr()))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "table", string(body))

	require.NoError(t, srv.Stop())
}
