package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultVerifies(t *testing.T) {
	cfg := Default()
	if err := Verify(cfg); err != nil {
		t.Fatalf("default config must verify: %v", err)
	}
	if cfg.Storage.Cache != "hash" {
		t.Fatalf("default cache = %q, want hash", cfg.Storage.Cache)
	}
}

func TestVerifyRejectsUnknownCache(t *testing.T) {
	cfg := Default()
	cfg.Storage.Cache = "btree"
	if err := Verify(cfg); err == nil {
		t.Fatal("unknown cache kind must be rejected")
	}
}

func TestVerifyBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend.Enabled = true
	cfg.Storage.Backend.Dir = ""
	if err := Verify(cfg); err == nil {
		t.Fatal("enabled backend without a dir must be rejected")
	}

	cfg.Storage.Backend.Dir = filepath.Join(t.TempDir(), "data")
	if err := Verify(cfg); err != nil {
		t.Fatalf("backend with a creatable dir must verify: %v", err)
	}

	cfg.Storage.Backend.EncryptionKey = "not-hex"
	if err := Verify(cfg); err == nil {
		t.Fatal("a bad encryption key must be rejected")
	}
	cfg.Storage.Backend.EncryptionKey = strings.Repeat("ab", 32)
	if err := Verify(cfg); err != nil {
		t.Fatalf("a 64-hex-char key must verify: %v", err)
	}
}

func TestVerifyMetrics(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Addr = ""
	if err := Verify(cfg); err == nil {
		t.Fatal("enabled metrics without an addr must be rejected")
	}
	cfg.Metrics.Enabled = false
	if err := Verify(cfg); err != nil {
		t.Fatalf("disabled metrics need no addr: %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.ID = 7
	Sanitize(cfg)

	if cfg.Storage.Name != "7" {
		t.Fatalf("Name = %q, want 7", cfg.Storage.Name)
	}
	if cfg.Storage.Cache != DefaultCache {
		t.Fatalf("Cache = %q, want %q", cfg.Storage.Cache, DefaultCache)
	}
	if cfg.Storage.Backend.QueueSize != DefaultBackendQueueSize {
		t.Fatalf("QueueSize = %d", cfg.Storage.Backend.QueueSize)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Fatalf("log = %q/%q", cfg.Log.Level, cfg.Log.Format)
	}

	// explicit values survive
	cfg.Storage.Name = "main"
	Sanitize(cfg)
	if cfg.Storage.Name != "main" {
		t.Fatal("Sanitize must not overwrite explicit values")
	}
}
