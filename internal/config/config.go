package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vango-dev/switchyard/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "switchyard.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultAdminAddress is the default admin listen address.
	DefaultAdminAddress = "127.0.0.1:9090"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "switchyard"
)

// ErrNotFound is returned when no switchyard.json exists.
var ErrNotFound = errors.New("config: switchyard.json not found")

// Duration is a time.Duration that reads and writes as a Go duration
// string such as "1m30s".
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(data, &n); nerr != nil {
			return errors.Errorf("config: invalid duration %s", data)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config represents the complete switchyard.json configuration.
type Config struct {
	// Name is the server name, sent in the Server header.
	Name string `json:"name,omitempty"`

	// Server contains the request pipeline and listener settings.
	Server ServerConfig `json:"server,omitempty"`

	// Admin contains the admin listener settings.
	Admin AdminConfig `json:"admin,omitempty"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing,omitempty"`

	// Throttle contains the in-flight throttle settings.
	Throttle ThrottleConfig `json:"throttle,omitempty"`

	// Canonical contains the canonical path redirect settings.
	Canonical CanonicalConfig `json:"canonical,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty"`

	// Routes are static routes served by "switchyard serve".
	Routes []RouteConfig `json:"routes,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig mirrors server.Config in JSON form.
type ServerConfig struct {
	Address                  string   `json:"address,omitempty"`
	StrictNext               bool     `json:"strictNext,omitempty"`
	HandleUncaughtExceptions bool     `json:"handleUncaughtExceptions,omitempty"`
	IgnoreTrailingSlash      bool     `json:"ignoreTrailingSlash,omitempty"`
	MaxParamLength           int      `json:"maxParamLength,omitempty"`
	VersionHeader            string   `json:"versionHeader,omitempty"`
	RequestIDHeader          string   `json:"requestIdHeader,omitempty"`
	RequestTimeout           Duration `json:"requestTimeout,omitempty"`
	ReadHeaderTimeout        Duration `json:"readHeaderTimeout,omitempty"`
	ReadTimeout              Duration `json:"readTimeout,omitempty"`
	WriteTimeout             Duration `json:"writeTimeout,omitempty"`
	IdleTimeout              Duration `json:"idleTimeout,omitempty"`
	ShutdownTimeout          Duration `json:"shutdownTimeout,omitempty"`
	MaxHeaderBytes           int      `json:"maxHeaderBytes,omitempty"`
}

// AdminConfig contains admin listener settings.
type AdminConfig struct {
	// Enabled starts the admin listener.
	Enabled bool `json:"enabled,omitempty"`

	// Address is the admin listen address.
	Address string `json:"address,omitempty"`

	// TailBuffer is the number of after events buffered per tail client.
	TailBuffer int `json:"tailBuffer,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Subsystem string `json:"subsystem,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	TracerName string `json:"tracerName,omitempty"`
}

// ThrottleConfig contains the in-flight throttle settings.
type ThrottleConfig struct {
	// Limit is the in-flight count at which requests are rejected.
	// Zero disables the throttle.
	Limit      int64    `json:"limit,omitempty"`
	RetryAfter Duration `json:"retryAfter,omitempty"`
}

// CanonicalConfig contains the canonical path redirect settings.
type CanonicalConfig struct {
	Enabled           bool `json:"enabled,omitempty"`
	KeepTrailingSlash bool `json:"keepTrailingSlash,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `json:"level,omitempty"`

	// Format is text or json (default: text).
	Format string `json:"format,omitempty"`
}

// RouteConfig is a static route answering with a fixed response.
type RouteConfig struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Name    string            `json:"name,omitempty"`
	Version string            `json:"version,omitempty"`
	Status  int               `json:"status,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	defaults := server.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:                  DefaultAddress,
			HandleUncaughtExceptions: defaults.HandleUncaughtExceptions,
			MaxParamLength:           defaults.MaxParamLength,
			VersionHeader:            defaults.VersionHeader,
			RequestIDHeader:          defaults.RequestIDHeader,
			RequestTimeout:           Duration(defaults.RequestTimeout),
			ReadHeaderTimeout:        Duration(defaults.ReadHeaderTimeout),
			ReadTimeout:              Duration(defaults.ReadTimeout),
			WriteTimeout:             Duration(defaults.WriteTimeout),
			IdleTimeout:              Duration(defaults.IdleTimeout),
			ShutdownTimeout:          Duration(defaults.ShutdownTimeout),
			MaxHeaderBytes:           defaults.MaxHeaderBytes,
		},
		Admin: AdminConfig{
			Address:    DefaultAdminAddress,
			TailBuffer: 64,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: DefaultNamespace,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for switchyard.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "no %s in %s", ConfigFileName, filepath.Dir(path))
		}
		return nil, errors.Wrapf(err, "config: read %s", path)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "config: encode")
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "config: write %s", path)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for fields zeroed by the file.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Admin.Address == "" {
		c.Admin.Address = DefaultAdminAddress
	}
	if c.Admin.TailBuffer <= 0 {
		c.Admin.TailBuffer = 64
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Routes {
		r := &c.Routes[i]
		r.Method = strings.ToUpper(r.Method)
		if r.Status == 0 {
			r.Status = 200
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Server.MaxParamLength < 0 {
		return errors.Errorf("config: maxParamLength must not be negative, got %d", c.Server.MaxParamLength)
	}
	for i, r := range c.Routes {
		if r.Method == "" || r.Path == "" {
			return errors.Errorf("config: route %d needs a method and a path", i)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return errors.Errorf("config: route %d path %q must start with /", i, r.Path)
		}
		if r.Status < 100 || r.Status > 599 {
			return errors.Errorf("config: route %d has invalid status %d", i, r.Status)
		}
	}
	return nil
}

// ServerConfig converts the file settings into a server configuration.
// logger may be nil.
func (c *Config) ServerConfig(logger *slog.Logger) *server.Config {
	s := c.Server
	cfg := server.DefaultConfig().
		WithAddress(s.Address).
		WithStrictNext(s.StrictNext).
		WithHandleUncaughtExceptions(s.HandleUncaughtExceptions).
		WithIgnoreTrailingSlash(s.IgnoreTrailingSlash).
		WithRequestTimeout(time.Duration(s.RequestTimeout))
	cfg.Name = c.Name
	cfg.MaxParamLength = s.MaxParamLength
	cfg.VersionHeader = s.VersionHeader
	cfg.RequestIDHeader = s.RequestIDHeader
	cfg.ReadHeaderTimeout = time.Duration(s.ReadHeaderTimeout)
	cfg.ReadTimeout = time.Duration(s.ReadTimeout)
	cfg.WriteTimeout = time.Duration(s.WriteTimeout)
	cfg.IdleTimeout = time.Duration(s.IdleTimeout)
	cfg.ShutdownTimeout = time.Duration(s.ShutdownTimeout)
	cfg.MaxHeaderBytes = s.MaxHeaderBytes
	if logger != nil {
		cfg = cfg.WithLogger(logger)
	}
	return cfg
}

// Logger builds the logger described by the log settings.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(err, "config: invalid log level %q", s)
	}
	return level, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindRoot walks up directories to find the directory holding
// switchyard.json.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", errors.WithStack(err)
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrapf(ErrNotFound, "no %s in %s or any parent directory", ConfigFileName, startDir)
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working
// directory or its closest parent holding switchyard.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	root, err := FindRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

// String returns a short description for log lines.
func (r RouteConfig) String() string {
	if r.Version != "" {
		return fmt.Sprintf("%s %s (%s)", r.Method, r.Path, r.Version)
	}
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}
