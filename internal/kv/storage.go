package kv

import (
	"encoding/binary"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nvialko/kvstash/internal/telemetry/metric"
)

// maxExpireSteps bounds the eviction loop of one insertion. Exceeding
// it surfaces as an insertion failure rather than an eviction storm.
const maxExpireSteps = 10

// nowUnix is the insertion clock, a variable so tests can pin time.
var nowUnix = func() int64 { return time.Now().Unix() }

// Storage is the façade sequencing the cache, expire, and backend
// strategies and enforcing the element and memory caps.
type Storage struct {
	id   int
	name string

	mu      sync.RWMutex
	cache   Cache
	expire  Expire
	backend Backend

	elts   uint64
	memory uint64

	maxElts   uint64
	maxMemory uint64

	log     *slog.Logger
	metrics *metric.Storage

	closed bool
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Storage) { s.log = log }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metric.Storage) Option {
	return func(s *Storage) { s.metrics = m }
}

// New creates a Storage. cache is required; expire and backend may be
// nil. A zero cap means unlimited. An empty name defaults to the
// decimal id.
func New(id int, name string, cache Cache, expire Expire, backend Backend, maxElts, maxMemory uint64, opts ...Option) *Storage {
	if name == "" {
		name = strconv.Itoa(id)
	}
	s := &Storage{
		id:        id,
		name:      name,
		cache:     cache,
		expire:    expire,
		backend:   backend,
		maxElts:   maxElts,
		maxMemory: maxMemory,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("storage", s.name)
	return s
}

// ID returns the storage id.
func (s *Storage) ID() int { return s.id }

// Name returns the printable storage name.
func (s *Storage) Name() string { return s.name }

// Elements returns the current element count.
func (s *Storage) Elements() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elts
}

// Memory returns the accounted memory in bytes.
func (s *Storage) Memory() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

func elementCost(keylen, size int) uint64 {
	return uint64(headerWireSize + keylen + 1 + size)
}

// makeRoom runs the eviction gate for a mutation that grows memory by
// cost. needSlot is set for insertions, which also consume an element
// slot. The first step is polite; retries are forced. Caller holds the
// write lock.
func (s *Storage) makeRoom(cost uint64, needSlot bool) bool {
	if s.maxMemory > 0 && cost > s.maxMemory {
		s.log.Info("value larger than the whole storage",
			"len", cost, "max_memory", s.maxMemory)
		return false
	}
	steps := 0
	for (s.maxMemory > 0 && s.memory+cost > s.maxMemory) ||
		(needSlot && s.maxElts > 0 && s.elts >= s.maxElts) {
		if s.expire == nil {
			s.log.Warn("storage is full and no expire strategy is set")
			return false
		}
		s.expire.Step(s, nowUnix(), steps > 0)
		steps++
		if steps > maxExpireSteps {
			s.log.Warn("cannot expire enough keys", "steps", steps-1)
			return false
		}
	}
	return true
}

// dropAccounting hands back the accounting of an element leaving the
// storage. Called by eviction with the write lock held.
func (s *Storage) dropAccounting(elt *Element) {
	s.elts--
	s.memory -= elt.Cost()
	if s.metrics != nil {
		s.metrics.Evictions.Inc()
	}
	s.publishGauges()
}

func (s *Storage) publishGauges() {
	if s.metrics != nil {
		s.metrics.Elements.Set(float64(s.elts))
		s.metrics.Memory.Set(float64(s.memory))
	}
}

func (s *Storage) reject() bool {
	if s.metrics != nil {
		s.metrics.Rejected.Inc()
	}
	return false
}

// forgetLocked unlinks a pre-existing element for a key that is being
// re-inserted: the expire strategy forgets it, the cache releases its
// reference, accounting is handed back, and the element is retired
// under the dirty rule.
func (s *Storage) forgetLocked(old *Element) {
	if s.expire != nil {
		s.expire.Delete(old)
	}
	s.cache.Steal(old)
	s.elts--
	s.memory -= old.Cost()
	retire(old)
}

// installLocked performs the cache part of an insertion: gate, old-key
// dance, fresh element. Expire insertion and accounting are deferred to
// finishInstallLocked so the backend can be notified in between.
func (s *Storage) installLocked(key, value []byte, flags, ttl uint32) (*Element, bool) {
	if len(key) > MaxKeyLen {
		return nil, false
	}
	if !s.makeRoom(elementCost(len(key), len(value)), true) {
		return nil, false
	}
	if old := s.cache.Lookup(key); old != nil {
		s.forgetLocked(old)
	}
	elt := s.cache.Insert(key, value, nowUnix())
	if elt == nil {
		return nil, false
	}
	if ttl == 0 {
		flags |= FlagPersistent
	}
	elt.flags.Store(flags)
	elt.expire = ttl
	return elt, true
}

func (s *Storage) finishInstallLocked(elt *Element) {
	if s.expire != nil {
		s.expire.Insert(elt)
	}
	s.elts++
	s.memory += elt.Cost()
	s.publishGauges()
}

// Insert installs or replaces the value for key. On success the new
// value is the unique entry for the key across all strategies; on
// failure nothing has changed. A false return with a backend attached
// may also mean the in-memory state is ahead of a refused durable
// write.
func (s *Storage) Insert(key, value []byte, flags, ttl uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elt, ok := s.installLocked(key, value, flags, ttl)
	if !ok {
		return s.reject()
	}
	res := true
	if s.backend != nil {
		res = s.backend.Insert(elt.Key(), elt)
	}
	s.finishInstallLocked(elt)
	return res
}

// insertInternalLocked hoists a value into the cache without notifying
// the backend; used when the value just came from there.
func (s *Storage) insertInternalLocked(key, value []byte, flags, ttl uint32) (*Element, bool) {
	elt, ok := s.installLocked(key, value, flags, ttl)
	if !ok {
		return nil, false
	}
	s.finishInstallLocked(elt)
	return elt, true
}

// Replace swaps the element bound to key for elt. It fails when key is
// absent. Accounting follows the size delta.
func (s *Storage) Replace(key []byte, elt *Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cache.Lookup(key)
	if old == nil {
		return false
	}
	if old != elt {
		if newCost, oldCost := elt.Cost(), old.Cost(); newCost > oldCost {
			if !s.makeRoom(newCost-oldCost, false) {
				return s.reject()
			}
			// the gate may have evicted the entry itself
			if old = s.cache.Lookup(key); old == nil {
				return s.reject()
			}
		}
	}
	if !s.cache.Replace(key, elt) {
		return false
	}
	res := true
	if s.backend != nil {
		res = s.backend.Replace(key, elt)
	}
	if old != elt {
		if s.expire != nil {
			s.expire.Delete(old)
			s.expire.Insert(elt)
		}
		s.memory += elt.Cost() - old.Cost()
		s.publishGauges()
	}
	return res
}

// Lookup returns the live element for key, consulting the backend on a
// cache miss and hoisting its copy into the cache. TTL is applied with
// the caller's clock; an expired element is reported absent but not
// deleted.
func (s *Storage) Lookup(key []byte, now int64) *Element {
	s.mu.RLock()
	elt := s.cache.Lookup(key)
	backend := s.backend
	s.mu.RUnlock()

	if elt == nil && backend != nil {
		elt = s.hoist(key)
	}

	if elt != nil && elt.Expired(now) {
		elt = nil
	}
	if s.metrics != nil {
		if elt != nil {
			s.metrics.Hits.Inc()
		} else {
			s.metrics.Misses.Inc()
		}
	}
	return elt
}

// hoist promotes the shared probe to an exclusive section and pulls the
// key from the backend into the cache.
func (s *Storage) hoist(key []byte) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elt := s.cache.Lookup(key); elt != nil {
		return elt
	}
	belt := s.backend.Lookup(key)
	if belt == nil {
		return nil
	}
	flags := belt.Flags() &^ (FlagDirty | FlagNeedFree)
	elt, ok := s.insertInternalLocked(belt.Key(), belt.Value(), flags, belt.TTL())
	if !ok {
		return nil
	}
	// a clean backend copy is dropped here; a dirty one is still
	// owned by the backend queue and stays alive through it
	return elt
}

// lookupLocked is the exclusive-section twin of Lookup, for operations
// that already hold the write lock.
func (s *Storage) lookupLocked(key []byte, now int64) *Element {
	elt := s.cache.Lookup(key)
	if elt == nil && s.backend != nil {
		if belt := s.backend.Lookup(key); belt != nil {
			flags := belt.Flags() &^ (FlagDirty | FlagNeedFree)
			elt, _ = s.insertInternalLocked(belt.Key(), belt.Value(), flags, belt.TTL())
		}
	}
	if elt != nil && elt.Expired(now) {
		return nil
	}
	return elt
}

// Delete removes key from the cache and the backend and returns the
// detached element so the caller can inspect its value. A dirty
// element survives as NEED_FREE until the backend drains it.
func (s *Storage) Delete(key []byte) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	elt := s.cache.Delete(key)
	if s.backend != nil {
		s.backend.Delete(key)
	}
	if elt != nil {
		if s.expire != nil {
			s.expire.Delete(elt)
		}
		s.elts--
		s.memory -= elt.Cost()
		retire(elt)
		s.publishGauges()
	}
	return elt
}

// InsertArray installs an element whose value is a slot-size prefix
// followed by the caller's raw slots. data length must be a multiple
// of slotSize.
func (s *Storage) InsertArray(key []byte, slotSize uint32, data []byte, flags, ttl uint32) bool {
	if slotSize == 0 || len(data)%int(slotSize) != 0 {
		return false
	}
	value := make([]byte, arrayPrefixSize+len(data))
	binary.LittleEndian.PutUint32(value, slotSize)
	copy(value[arrayPrefixSize:], data)

	s.mu.Lock()
	defer s.mu.Unlock()

	elt, ok := s.installLocked(key, value, flags|FlagArray, ttl)
	if !ok {
		return s.reject()
	}
	res := true
	if s.backend != nil {
		res = s.backend.Insert(elt.Key(), elt)
	}
	s.finishInstallLocked(elt)
	return res
}

// SetArray overwrites slot index of an array element in place. It
// fails when the key is absent or expired, the element is not an
// array, the index is out of range, or len(data) differs from the slot
// size.
func (s *Storage) SetArray(key []byte, index uint32, data []byte, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elt := s.lookupLocked(key, now)
	if elt == nil || !elt.SetArraySlot(index, data) {
		return false
	}
	if s.backend != nil {
		return s.backend.Replace(elt.Key(), elt)
	}
	return true
}

// GetArray reads slot index of an array element. The returned slice
// aliases the element's live value.
func (s *Storage) GetArray(key []byte, index uint32, now int64) ([]byte, bool) {
	s.mu.RLock()
	elt := s.cache.Lookup(key)
	backend := s.backend
	s.mu.RUnlock()

	if elt == nil && backend != nil {
		elt = s.hoist(key)
	}
	if elt == nil || elt.Expired(now) {
		return nil, false
	}
	return elt.ArraySlot(index)
}

// Close tears down the strategies in cache, backend, expire order.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Destroy()
	if s.backend != nil {
		s.backend.Destroy()
	}
	if s.expire != nil {
		s.expire.Destroy()
	}
	s.log.Debug("storage closed", "elts", s.elts, "memory", s.memory)
	return nil
}
