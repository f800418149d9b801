// Package config defines the kvstash-server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultMaxElements = 65536
	DefaultMaxMemory   = 256 << 20 // 256MB
	DefaultCache       = "hash"

	DefaultBackendDir        = "/var/lib/kvstash/data"
	DefaultBackendQueueSize  = 4096
	DefaultBackendGCInterval = 10 * time.Minute

	DefaultMetricsAddr = "127.0.0.1:9321"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			ID:             1,
			MaxElements:    DefaultMaxElements,
			MaxMemoryBytes: DefaultMaxMemory,
			Cache:          DefaultCache,
			Backend: BackendSection{
				Enabled:    false,
				Dir:        DefaultBackendDir,
				QueueSize:  DefaultBackendQueueSize,
				GCInterval: DefaultBackendGCInterval,
			},
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
