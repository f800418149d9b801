// Package metric provides Prometheus collectors for the storage engine.
//
// Collectors are labelled by storage name so several Storage instances
// can share one registry.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Storage holds the per-storage collectors.
type Storage struct {
	Elements  prometheus.Gauge
	Memory    prometheus.Gauge
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Rejected  prometheus.Counter
}

// NewStorage creates and registers collectors for one storage.
//
// reg may be nil, in which case the default registerer is used.
func NewStorage(reg prometheus.Registerer, storage string) *Storage {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"storage": storage}

	m := &Storage{
		Elements: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "kvstash_storage_elements",
			Help:        "Number of elements reachable through the cache.",
			ConstLabels: labels,
		}),
		Memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "kvstash_storage_memory_bytes",
			Help:        "Accounted memory of all reachable elements.",
			ConstLabels: labels,
		}),
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_storage_hits_total",
			Help:        "Lookups that returned a live element.",
			ConstLabels: labels,
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_storage_misses_total",
			Help:        "Lookups that returned no element.",
			ConstLabels: labels,
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_storage_evictions_total",
			Help:        "Elements removed by the expire strategy.",
			ConstLabels: labels,
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_storage_rejected_total",
			Help:        "Mutations refused by caps or the eviction budget.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.Elements, m.Memory, m.Hits, m.Misses, m.Evictions, m.Rejected)
	return m
}

// Backend holds the collectors of a write-behind backend.
type Backend struct {
	QueueDepth prometheus.Gauge
	Flushed    prometheus.Counter
	FlushError prometheus.Counter
}

// NewBackend creates and registers collectors for one backend.
func NewBackend(reg prometheus.Registerer, storage string) *Backend {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"storage": storage}

	m := &Backend{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "kvstash_backend_queue_depth",
			Help:        "Pending writes in the backend queue.",
			ConstLabels: labels,
		}),
		Flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_backend_flushed_total",
			Help:        "Writes drained to the durable store.",
			ConstLabels: labels,
		}),
		FlushError: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kvstash_backend_flush_errors_total",
			Help:        "Writes that failed against the durable store.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.QueueDepth, m.Flushed, m.FlushError)
	return m
}
