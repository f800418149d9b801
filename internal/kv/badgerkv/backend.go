// Package badgerkv provides a durable write-behind backend for the
// storage engine on top of Badger.
//
// Writes are accepted immediately: the element is marked DIRTY, parked
// in a pending index, and drained to Badger by a flusher goroutine.
// Only this package clears DIRTY; elements that were logically removed
// while queued (NEED_FREE) are simply dropped once their write lands.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"golang.org/x/time/rate"

	"github.com/nvialko/kvstash/internal/kv"
	"github.com/nvialko/kvstash/internal/telemetry/metric"
	"github.com/nvialko/kvstash/pkg/cmap"
	"github.com/nvialko/kvstash/pkg/crypto/adaptive"
)

// Default configuration values.
const (
	DefaultQueueSize   = 4096
	DefaultGCInterval  = 10 * time.Minute
	DefaultGCThreshold = 0.5
)

// Config configures the backend.
type Config struct {
	// Dir is the Badger directory.
	Dir string

	// QueueSize bounds the pending-write queue. When the queue is
	// full, Insert reports failure instead of blocking.
	QueueSize int

	// SyncWrites enables fsync after each write batch.
	SyncWrites bool

	// GCInterval is the interval between value-log GC runs.
	GCInterval time.Duration

	// GCThreshold is the value-log GC discard ratio (0.0-1.0).
	GCThreshold float64

	// FlushRate caps the drain rate in bytes per second; 0 means
	// unlimited.
	FlushRate int

	// Cipher optionally seals values at rest.
	Cipher adaptive.Cipher

	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics holds optional backend collectors.
	Metrics *metric.Backend
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		QueueSize:   DefaultQueueSize,
		GCInterval:  DefaultGCInterval,
		GCThreshold: DefaultGCThreshold,
	}
}

type opKind uint8

const (
	opWrite opKind = iota
	opDelete
)

type op struct {
	kind opKind
	key  []byte
	elt  *kv.Element
}

// Backend implements kv.Backend over Badger.
type Backend struct {
	db      *badger.DB
	cfg     Config
	log     *slog.Logger
	metrics *metric.Backend

	queue   chan op
	pending *cmap.Map[*kv.Element]
	limiter *rate.Limiter

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
	gcDone chan struct{}
}

// New opens the Badger store and starts the flusher and GC loops.
func New(cfg Config) (*Backend, error) {
	if cfg.Dir == "" {
		return nil, errors.New("badgerkv: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = DefaultGCThreshold
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{log: cfg.Logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open db: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.FlushRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FlushRate), cfg.FlushRate)
	}

	b := &Backend{
		db:      db,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		queue:   make(chan op, cfg.QueueSize),
		pending: cmap.New[*kv.Element](),
		limiter: limiter,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		gcDone:  make(chan struct{}),
	}

	go b.flushLoop()
	go b.gcLoop()

	b.log.Info("badger backend started", "dir", cfg.Dir, "queue", cfg.QueueSize)
	return b, nil
}

// Insert queues a durable write and marks elt dirty until it drains.
func (b *Backend) Insert(key []byte, elt *kv.Element) bool {
	return b.enqueueWrite(key, elt)
}

// Replace queues a durable overwrite.
func (b *Backend) Replace(key []byte, elt *kv.Element) bool {
	return b.enqueueWrite(key, elt)
}

func (b *Backend) enqueueWrite(key []byte, elt *kv.Element) bool {
	if b.closed.Load() {
		return false
	}
	elt.MarkDirty()
	k := append([]byte(nil), key...)
	b.pending.Set(string(k), elt)
	select {
	case b.queue <- op{kind: opWrite, key: k, elt: elt}:
		if b.metrics != nil {
			b.metrics.QueueDepth.Inc()
		}
		return true
	default:
		// queue full: back out, the write is refused
		b.pending.Delete(string(k))
		elt.ClearDirty()
		b.log.Warn("backend queue full, write refused", "key", string(key))
		return false
	}
}

// Lookup returns the element for key, serving the pending queue first
// so un-drained writes stay visible: a queued element is returned as-is
// (still dirty), otherwise a fresh element is decoded from Badger.
func (b *Backend) Lookup(key []byte) *kv.Element {
	if elt, ok := b.pending.Get(string(key)); ok {
		return elt
	}

	var blob []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.log.Error("backend lookup failed", "key", string(key), "error", err)
		}
		return nil
	}

	if b.cfg.Cipher != nil {
		blob, err = b.cfg.Cipher.Open(blob, key)
		if err != nil {
			b.log.Error("backend value failed to open", "key", string(key), "error", err)
			return nil
		}
	}

	elt, err := kv.DecodeElement(blob)
	if err != nil {
		b.log.Error("backend value failed to decode", "key", string(key), "error", err)
		return nil
	}
	return elt
}

// Delete queues durable removal.
func (b *Backend) Delete(key []byte) bool {
	if b.closed.Load() {
		return false
	}
	k := append([]byte(nil), key...)
	select {
	case b.queue <- op{kind: opDelete, key: k}:
		if b.metrics != nil {
			b.metrics.QueueDepth.Inc()
		}
		return true
	default:
		b.log.Warn("backend queue full, delete refused", "key", string(key))
		return false
	}
}

// Destroy drains the queue, stops the loops, and closes the store.
func (b *Backend) Destroy() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.stopCh)
	close(b.queue)
	<-b.doneCh
	<-b.gcDone
	if err := b.db.Close(); err != nil {
		b.log.Error("close badger failed", "error", err)
	}
}

// flushLoop drains queued operations into Badger.
func (b *Backend) flushLoop() {
	defer close(b.doneCh)
	for o := range b.queue {
		if b.metrics != nil {
			b.metrics.QueueDepth.Dec()
		}
		b.apply(o)
	}
}

func (b *Backend) apply(o op) {
	var err error
	switch o.kind {
	case opWrite:
		err = b.writeElement(o.key, o.elt)
		// the hand-off completes here whether or not the write
		// landed; a need-free element is dropped with the op
		if cur, ok := b.pending.Get(string(o.key)); ok && cur == o.elt {
			b.pending.Delete(string(o.key))
		}
		o.elt.ClearDirty()
	case opDelete:
		err = b.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(o.key)
		})
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.FlushError.Inc()
		}
		b.log.Error("backend flush failed", "key", string(o.key), "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.Flushed.Inc()
	}
}

func (b *Backend) writeElement(key []byte, elt *kv.Element) error {
	blob := elt.Encode()
	n := len(blob)
	if b.limiter.Limit() != rate.Inf && n > b.limiter.Burst() {
		n = b.limiter.Burst()
	}
	if err := b.limiter.WaitN(context.Background(), n); err != nil {
		return err
	}
	if b.cfg.Cipher != nil {
		var err error
		blob, err = b.cfg.Cipher.Seal(blob, key)
		if err != nil {
			return err
		}
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, blob)
	})
}

// gcLoop runs periodic value-log garbage collection.
func (b *Backend) gcLoop() {
	defer close(b.gcDone)
	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(b.cfg.GCThreshold); err != nil {
					break
				}
			}
		case <-b.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(f string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(f string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Infof(f string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(f string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(f, args...), "component", "badger")
}
