// Package config defines the kvstash-server configuration structure.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/nvialko/kvstash/pkg/crypto/adaptive"
)

// CacheKinds lists the accepted cache variants.
var CacheKinds = []string{"hash", "radix", "trie"}

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	ok := false
	for _, kind := range CacheKinds {
		if cfg.Cache == kind {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("storage.cache must be one of %v, got %q", CacheKinds, cfg.Cache)
	}

	if !cfg.Backend.Enabled {
		return nil
	}
	if cfg.Backend.Dir == "" {
		return errors.New("storage.backend.dir is required")
	}
	if err := os.MkdirAll(cfg.Backend.Dir, 0o750); err != nil {
		return fmt.Errorf("cannot create backend directory: %w", err)
	}
	if cfg.Backend.EncryptionKey != "" {
		if _, err := adaptive.ParseKey(cfg.Backend.EncryptionKey); err != nil {
			return fmt.Errorf("storage.backend.encryption_key: %w", err)
		}
	}
	return nil
}
