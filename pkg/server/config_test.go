package server

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address)
	}
	if cfg.MaxParamLength != 100 {
		t.Errorf("MaxParamLength = %d, want 100", cfg.MaxParamLength)
	}
	if cfg.VersionHeader != "Accept-Version" {
		t.Errorf("VersionHeader = %q", cfg.VersionHeader)
	}
	if cfg.StrictNext || cfg.HandleUncaughtExceptions {
		t.Error("strict next and uncaught interception should be off by default")
	}
}

func TestConfigClone(t *testing.T) {
	cfg := DefaultConfig().WithStrictNext(true)
	clone := cfg.Clone()
	clone.Address = ":9090"
	if cfg.Address == ":9090" {
		t.Error("Clone shares state with original")
	}
	if !clone.StrictNext {
		t.Error("Clone lost StrictNext")
	}
	var nilCfg *Config
	if nilCfg.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestNewFillsDefaults(t *testing.T) {
	cfg := &Config{RequestTimeout: time.Second}
	s := New(cfg)
	got := s.Config()
	if got.VersionHeader != "Accept-Version" || got.ShutdownTimeout != 30*time.Second {
		t.Errorf("defaults not filled: %+v", got)
	}
	if got.RequestTimeout != time.Second {
		t.Errorf("RequestTimeout = %v, want 1s", got.RequestTimeout)
	}
	if got.Clock == nil {
		t.Error("Clock not set")
	}
	if cfg.VersionHeader != "" {
		t.Error("New modified the caller's config")
	}
}
