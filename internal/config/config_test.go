package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.MaxParamLength != 100 {
		t.Errorf("Server.MaxParamLength = %d, want 100", cfg.Server.MaxParamLength)
	}
	if cfg.Admin.Address != DefaultAdminAddress {
		t.Errorf("Admin.Address = %q, want %q", cfg.Admin.Address, DefaultAdminAddress)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to true")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := Load(tmpDir)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty dir error = %v, want ErrNotFound", err)
	}

	writeConfig(t, tmpDir, `{
  "name": "edge",
  "server": {
    "address": ":9000",
    "strictNext": true,
    "requestTimeout": "1m30s",
    "idleTimeout": 5000000000
  },
  "throttle": {"limit": 8, "retryAfter": "2s"},
  "log": {"level": "debug", "format": "json"},
  "routes": [
    {"method": "get", "path": "/hello/:name", "body": "hi {name}"}
  ]
}
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Name != "edge" {
		t.Errorf("Name = %q, want edge", cfg.Name)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("Server.Address = %q, want :9000", cfg.Server.Address)
	}
	if !cfg.Server.StrictNext {
		t.Error("Server.StrictNext should be true")
	}
	if got := time.Duration(cfg.Server.RequestTimeout); got != 90*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 1m30s", got)
	}
	if got := time.Duration(cfg.Server.IdleTimeout); got != 5*time.Second {
		t.Errorf("Server.IdleTimeout = %v, want 5s", got)
	}
	if got := time.Duration(cfg.Server.ReadHeaderTimeout); got != 10*time.Second {
		t.Errorf("Server.ReadHeaderTimeout = %v, want default 10s", got)
	}
	if cfg.Throttle.Limit != 8 || time.Duration(cfg.Throttle.RetryAfter) != 2*time.Second {
		t.Errorf("Throttle = %+v", cfg.Throttle)
	}
	if len(cfg.Routes) != 1 {
		t.Fatalf("Routes = %d, want 1", len(cfg.Routes))
	}
	if r := cfg.Routes[0]; r.Method != "GET" || r.Status != 200 {
		t.Errorf("Routes[0] = %+v, want GET with status 200", r)
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "parse"},
		{"bad duration", `{"server": {"requestTimeout": "soon"}}`, "invalid duration"},
		{"bad level", `{"log": {"level": "loud"}}`, "invalid log level"},
		{"bad format", `{"log": {"format": "xml"}}`, "unknown log format"},
		{"route without path", `{"routes": [{"method": "GET"}]}`, "needs a method and a path"},
		{"relative route", `{"routes": [{"method": "GET", "path": "x"}]}`, "must start with /"},
		{"bad status", `{"routes": [{"method": "GET", "path": "/", "status": 42}]}`, "invalid status"},
		{"negative param length", `{"server": {"maxParamLength": -1}}`, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := New()
	cfg.Name = "saved"
	cfg.Server.RequestTimeout = Duration(3 * time.Second)

	path := filepath.Join(tmpDir, ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"requestTimeout": "3s"`) {
		t.Errorf("saved file does not encode durations as strings:\n%s", data)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Name != "saved" || time.Duration(loaded.Server.RequestTimeout) != 3*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestServerConfig(t *testing.T) {
	cfg := New()
	cfg.Name = "edge"
	cfg.Server.StrictNext = true
	cfg.Server.IgnoreTrailingSlash = true
	cfg.Server.MaxParamLength = 20
	cfg.Server.RequestTimeout = Duration(time.Second)
	cfg.Server.VersionHeader = "X-Api-Version"

	sc := cfg.ServerConfig(nil)
	if sc.Name != "edge" {
		t.Errorf("Name = %q, want edge", sc.Name)
	}
	if !sc.StrictNext || !sc.IgnoreTrailingSlash {
		t.Errorf("flags not carried over: %+v", sc)
	}
	if sc.MaxParamLength != 20 {
		t.Errorf("MaxParamLength = %d, want 20", sc.MaxParamLength)
	}
	if sc.RequestTimeout != time.Second {
		t.Errorf("RequestTimeout = %v, want 1s", sc.RequestTimeout)
	}
	if sc.VersionHeader != "X-Api-Version" {
		t.Errorf("VersionHeader = %q", sc.VersionHeader)
	}
	if sc.Logger != nil {
		t.Error("Logger should stay nil when none is given")
	}
}

func TestLogger(t *testing.T) {
	cfg := New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot error: %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindRoot = %q, want %q", got, want)
	}

	if _, err := FindRoot(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindRoot without config error = %v, want ErrNotFound", err)
	}
}
