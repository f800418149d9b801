// Package config defines the kvstash-server configuration structure.
package config

import "strconv"

// Sanitize fills gaps a loaded configuration may leave.
func Sanitize(cfg *Config) {
	if cfg.Storage.Name == "" {
		cfg.Storage.Name = strconv.Itoa(cfg.Storage.ID)
	}
	if cfg.Storage.Cache == "" {
		cfg.Storage.Cache = DefaultCache
	}
	if cfg.Storage.Backend.QueueSize <= 0 {
		cfg.Storage.Backend.QueueSize = DefaultBackendQueueSize
	}
	if cfg.Storage.Backend.GCInterval <= 0 {
		cfg.Storage.Backend.GCInterval = DefaultBackendGCInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
