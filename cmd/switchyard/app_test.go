package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/switchyard/internal/config"
	"github.com/vango-dev/switchyard/pkg/router"
)

const testConfig = `{
  "name": "edge",
  "throttle": {"limit": 100},
  "canonical": {"enabled": true},
  "tracing": {"enabled": true},
  "admin": {"enabled": true},
  "routes": [
    {"method": "GET", "path": "/hello/:name", "name": "hello", "body": "hello {name}",
     "headers": {"Content-Type": "text/plain; charset=utf-8", "X-Edge": "1"}},
    {"method": "GET", "path": "/v", "version": "1.x", "body": "one"},
    {"method": "GET", "path": "/v", "version": "2.x", "body": "two"},
    {"method": "POST", "path": "/things", "status": 201, "body": "{}"}
  ]
}`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return path
}

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	cfg, err := loadConfig(writeTestConfig(t))
	require.NoError(t, err)
	cfg.Log.Level = "debug"

	var logs bytes.Buffer
	a, err := newApp(cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(a.closeAuxiliary)
	return a, &logs
}

func serve(a *app, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

func TestAppStaticRoutes(t *testing.T) {
	a, logs := newTestApp(t)

	rec := serve(a, http.MethodGet, "/hello/ada")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello ada", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Edge"))
	assert.Equal(t, "edge", rec.Header().Get("Server"))

	rec = serve(a, http.MethodPost, "/things")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(a, http.MethodGet, "/v", "Accept-Version", "2.1.0")
	assert.Equal(t, "two", rec.Body.String())

	rec = serve(a, http.MethodGet, "/hello//ada")
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/hello/ada", rec.Header().Get("Location"))

	rec = serve(a, http.MethodDelete, "/things")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	out := logs.String()
	assert.Contains(t, out, "component=access")
	assert.Contains(t, out, "route=hello")
	assert.Contains(t, out, `"Name":"GET /hello/:name"`)
}

func TestAppAdminSurface(t *testing.T) {
	a, _ := newTestApp(t)
	require.NotNil(t, a.admin)
	serve(a, http.MethodGet, "/hello/ada")

	ts := httptest.NewServer(a.admin.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `switchyard_requests_total{method="GET",route="hello",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAddress, cfg.Server.Address)

	_, err = loadConfig(filepath.Join(dir, "nope.json"))
	assert.ErrorIs(t, err, config.ErrNotFound)
}

func TestRoutesCommand(t *testing.T) {
	path := writeTestConfig(t)

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes", "--config", path})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "GET     /hello/:name"))
	assert.Contains(t, lines[0], "hello")
	assert.Contains(t, lines[1], "1.x")

	out.Reset()
	cmd = rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes", "--json", "--config", path})
	require.NoError(t, cmd.Execute())

	var routes []router.RouteInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &routes))
	require.Len(t, routes, 4)
	assert.Equal(t, "POST", routes[3].Method)
	assert.Equal(t, []string{"hello"}, routes[0].Handlers)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
