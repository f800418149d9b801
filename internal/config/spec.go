// Package config defines the kvstash-server configuration structure.
package config

import "time"

// Config is the root configuration for kvstash-server.
type Config struct {
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// ID is the numeric storage id.
	ID int `koanf:"id"`

	// Name is the printable storage name; defaults to the decimal ID.
	Name string `koanf:"name"`

	// MaxElements caps the element count. 0 means unlimited.
	MaxElements uint64 `koanf:"max_elements"`

	// MaxMemoryBytes caps the accounted memory. 0 means unlimited.
	MaxMemoryBytes uint64 `koanf:"max_memory_bytes"`

	// Cache selects the index variant: hash, radix, or trie.
	Cache string `koanf:"cache"`

	// Backend configures the optional durable store.
	Backend BackendSection `koanf:"backend"`
}

// BackendSection configures the write-behind backend.
type BackendSection struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`

	// QueueSize bounds the pending-write queue.
	QueueSize int `koanf:"queue_size"`

	// SyncWrites enables fsync after each write.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is the value-log GC period.
	GCInterval time.Duration `koanf:"gc_interval"`

	// FlushRateBytes caps the drain rate in bytes per second;
	// 0 means unlimited.
	FlushRateBytes int `koanf:"flush_rate_bytes"`

	// EncryptionKey optionally seals values at rest. 64 hex chars.
	EncryptionKey string `koanf:"encryption_key"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
