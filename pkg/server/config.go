package server

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Config holds configuration for a Server.
type Config struct {
	// Address is the address Run listens on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// Name is reported in the Server response header when non-empty.
	// Default: "" (no header).
	Name string

	// Chain semantics

	// StrictNext turns a second call to a handler's next into a fault that
	// ends the request with a 500. When false the extra call is ignored.
	// Default: false.
	StrictNext bool

	// HandleUncaughtExceptions recovers panics raised by callback handlers
	// and routes them to UncaughtException listeners. When false such a
	// panic is not recovered and takes the process down.
	// Default: false.
	HandleUncaughtExceptions bool

	// Routing

	// IgnoreTrailingSlash makes "/foo" and "/foo/" resolve to the same route.
	// Default: false.
	IgnoreTrailingSlash bool

	// MaxParamLength limits the length of a captured path parameter.
	// Default: 100.
	MaxParamLength int

	// VersionHeader carries the request's version token.
	// Default: "Accept-Version".
	VersionHeader string

	// RequestIDHeader, when present on a request, supplies its ID.
	// Default: "X-Request-Id".
	RequestIDHeader string

	// Timeouts

	// RequestTimeout is the longest a request may take before its connection
	// is torn down. 0 means no limit.
	// Default: 0.
	RequestTimeout time.Duration

	// ReadHeaderTimeout is the time allowed to read request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out response writes.
	// Default: 0 (none; RequestTimeout bounds handler time instead).
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120 seconds.
	IdleTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxHeaderBytes bounds the request header size. Larger requests are
	// answered with 431 before any handler runs.
	// Default: 16KB.
	MaxHeaderBytes int

	// Collaborators

	// Logger receives server logs.
	// Default: slog.Default() with component=server.
	Logger *slog.Logger

	// Clock drives handler timers and request timeouts.
	// Default: the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		MaxParamLength:    100,
		VersionHeader:     "Accept-Version",
		RequestIDHeader:   "X-Request-Id",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxHeaderBytes:    16 * 1024, // 16KB
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithAddress sets the listen address and returns the config for chaining.
func (c *Config) WithAddress(addr string) *Config {
	c.Address = addr
	return c
}

// WithStrictNext sets StrictNext and returns the config for chaining.
func (c *Config) WithStrictNext(strict bool) *Config {
	c.StrictNext = strict
	return c
}

// WithHandleUncaughtExceptions sets HandleUncaughtExceptions and returns the
// config for chaining.
func (c *Config) WithHandleUncaughtExceptions(handle bool) *Config {
	c.HandleUncaughtExceptions = handle
	return c
}

// WithIgnoreTrailingSlash sets IgnoreTrailingSlash and returns the config for chaining.
func (c *Config) WithIgnoreTrailingSlash(ignore bool) *Config {
	c.IgnoreTrailingSlash = ignore
	return c
}

// WithRequestTimeout sets RequestTimeout and returns the config for chaining.
func (c *Config) WithRequestTimeout(d time.Duration) *Config {
	c.RequestTimeout = d
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}

// WithClock sets the clock and returns the config for chaining.
func (c *Config) WithClock(clk clock.Clock) *Config {
	c.Clock = clk
	return c
}

// fillDefaults sets every unset field to its default.
func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.MaxParamLength == 0 {
		c.MaxParamLength = defaults.MaxParamLength
	}
	if c.VersionHeader == "" {
		c.VersionHeader = defaults.VersionHeader
	}
	if c.RequestIDHeader == "" {
		c.RequestIDHeader = defaults.RequestIDHeader
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = defaults.MaxHeaderBytes
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}
