// Package kv implements a bounded in-process key-value storage engine
// with pluggable index, eviction, and persistence strategies.
package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
)

// Element flags.
const (
	// FlagPersistent marks an element with zero TTL; the expire
	// strategy skips it unless eviction is forced.
	FlagPersistent uint32 = 1 << iota
	// FlagDirty marks an element sitting in a backend write queue.
	// A dirty element must not be released.
	FlagDirty
	// FlagNeedFree marks a dirty element that has been logically
	// removed; the backend drops it once its write drains.
	FlagNeedFree
	// FlagArray marks a value carrying a slot-size prefix for
	// indexed access.
	FlagArray
)

// MaxKeyLen is the longest accepted key.
const MaxKeyLen = 65535

// arrayPrefixSize is the size of the slot-size prefix of array values.
const arrayPrefixSize = 4

// headerWireSize is the encoded element header:
// age u64, expire u32, flags u32, size u32, keylen u16, hash u32.
const headerWireSize = 8 + 4 + 4 + 4 + 2 + 4

var (
	ErrShortBlob        = errors.New("kv: blob shorter than element header")
	ErrBlobLayout       = errors.New("kv: blob length disagrees with header")
	ErrKeyNotTerminated = errors.New("kv: key is not NUL-terminated")
)

// Element is one stored key-value pair with its metadata.
//
// Key and value share a single buffer, so both stay valid for as long
// as any index or backend queue references the element. DIRTY and
// NEED_FREE cross goroutines (a backend flusher clears them outside the
// storage lock), hence the atomic flag word.
type Element struct {
	age    int64
	expire uint32
	hash   uint32
	keylen uint16
	flags  atomic.Uint32

	// key bytes, NUL, value bytes
	buf []byte

	// intrusive expire-queue links, owned by the LRU strategy
	lruPrev, lruNext *Element
}

// newElement builds an element from key and value, stamping age = now.
// It returns nil when the key exceeds MaxKeyLen.
func newElement(key, value []byte, now int64, hash uint32) *Element {
	if len(key) > MaxKeyLen {
		return nil
	}
	buf := make([]byte, len(key)+1+len(value))
	copy(buf, key)
	copy(buf[len(key)+1:], value)
	return &Element{
		age:    now,
		hash:   hash,
		keylen: uint16(len(key)),
		buf:    buf,
	}
}

// Key returns the stored key bytes.
func (e *Element) Key() []byte { return e.buf[:e.keylen] }

// Value returns the stored value bytes. For array elements this
// includes the slot-size prefix.
func (e *Element) Value() []byte { return e.buf[int(e.keylen)+1:] }

// Size returns the value length in bytes.
func (e *Element) Size() int { return len(e.buf) - int(e.keylen) - 1 }

// Age returns the insertion time in Unix seconds.
func (e *Element) Age() int64 { return e.age }

// TTL returns the element TTL in seconds; 0 means persistent.
func (e *Element) TTL() uint32 { return e.expire }

// Hash returns the precomputed key hash. For radix elements it is the
// 32-bit address the key parsed to.
func (e *Element) Hash() uint32 { return e.hash }

// Cost returns the accounted memory of the element:
// header + keylen + NUL + value size.
func (e *Element) Cost() uint64 {
	return uint64(headerWireSize + len(e.buf))
}

// Flags returns a snapshot of the flag word.
func (e *Element) Flags() uint32 { return e.flags.Load() }

func (e *Element) setFlag(f uint32) {
	for {
		old := e.flags.Load()
		if e.flags.CompareAndSwap(old, old|f) {
			return
		}
	}
}

func (e *Element) clearFlag(f uint32) {
	for {
		old := e.flags.Load()
		if e.flags.CompareAndSwap(old, old&^f) {
			return
		}
	}
}

func (e *Element) hasFlag(f uint32) bool { return e.flags.Load()&f != 0 }

// IsPersistent reports whether the element is exempt from TTL eviction.
func (e *Element) IsPersistent() bool { return e.hasFlag(FlagPersistent) }

// IsDirty reports whether a backend write for the element is pending.
func (e *Element) IsDirty() bool { return e.hasFlag(FlagDirty) }

// NeedFree reports whether the element was logically removed while dirty.
func (e *Element) NeedFree() bool { return e.hasFlag(FlagNeedFree) }

// IsArray reports whether the value carries a slot-size prefix.
func (e *Element) IsArray() bool { return e.hasFlag(FlagArray) }

// MarkDirty flags a pending backend write. Backends call this when they
// queue the element.
func (e *Element) MarkDirty() { e.setFlag(FlagDirty) }

// ClearDirty completes the backend hand-off. Only backends call this.
func (e *Element) ClearDirty() { e.clearFlag(FlagDirty) }

// Expired reports whether the element's TTL has run out at now.
func (e *Element) Expired(now int64) bool {
	return !e.IsPersistent() && e.expire > 0 && now-e.age > int64(e.expire)
}

// retire releases an element that has been unlinked from an index.
// A dirty element survives as NEED_FREE until the backend drains it;
// a clean one is dropped on the spot.
func retire(e *Element) {
	if e.IsDirty() {
		e.setFlag(FlagNeedFree)
	}
}

// ArraySlotSize returns the per-slot size of an array value.
func (e *Element) ArraySlotSize() uint32 {
	v := e.Value()
	if len(v) < arrayPrefixSize {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

// ArrayLen returns the number of slots of an array value.
func (e *Element) ArrayLen() uint32 {
	slot := e.ArraySlotSize()
	if slot == 0 {
		return 0
	}
	return uint32(len(e.Value())-arrayPrefixSize) / slot
}

// ArraySlot returns the live bytes of slot index, or false when the
// element is not an array or index is out of range.
func (e *Element) ArraySlot(index uint32) ([]byte, bool) {
	if !e.IsArray() {
		return nil, false
	}
	slot := e.ArraySlotSize()
	if slot == 0 || index >= e.ArrayLen() {
		return nil, false
	}
	off := arrayPrefixSize + int(slot)*int(index)
	return e.Value()[off : off+int(slot)], true
}

// SetArraySlot overwrites slot index in place. It fails when the
// element is not an array, index is out of range, or len(data) differs
// from the slot size.
func (e *Element) SetArraySlot(index uint32, data []byte) bool {
	target, ok := e.ArraySlot(index)
	if !ok || len(data) != int(e.ArraySlotSize()) {
		return false
	}
	copy(target, data)
	return true
}

// Encode serialises the element into the backend wire layout:
// fixed header, NUL-terminated key, raw value. Byte order is
// little-endian; the format is not meant to travel between hosts.
func (e *Element) Encode() []byte {
	out := make([]byte, headerWireSize+len(e.buf))
	binary.LittleEndian.PutUint64(out[0:], uint64(e.age))
	binary.LittleEndian.PutUint32(out[8:], e.expire)
	binary.LittleEndian.PutUint32(out[12:], e.Flags())
	binary.LittleEndian.PutUint32(out[16:], uint32(e.Size()))
	binary.LittleEndian.PutUint16(out[20:], e.keylen)
	binary.LittleEndian.PutUint32(out[22:], e.hash)
	copy(out[headerWireSize:], e.buf)
	return out
}

// DecodeElement parses a blob produced by Encode into a fresh element.
// DIRTY and NEED_FREE are dropped: a loaded element has no pending
// write by definition.
func DecodeElement(blob []byte) (*Element, error) {
	if len(blob) < headerWireSize {
		return nil, ErrShortBlob
	}
	age := int64(binary.LittleEndian.Uint64(blob[0:]))
	expire := binary.LittleEndian.Uint32(blob[8:])
	flags := binary.LittleEndian.Uint32(blob[12:])
	size := binary.LittleEndian.Uint32(blob[16:])
	keylen := binary.LittleEndian.Uint16(blob[20:])
	hash := binary.LittleEndian.Uint32(blob[22:])

	want := headerWireSize + int(keylen) + 1 + int(size)
	if len(blob) != want {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrBlobLayout, len(blob), want)
	}
	if blob[headerWireSize+int(keylen)] != 0 {
		return nil, ErrKeyNotTerminated
	}

	e := &Element{
		age:    age,
		expire: expire,
		hash:   hash,
		keylen: keylen,
		buf:    append([]byte(nil), blob[headerWireSize:]...),
	}
	e.flags.Store(flags &^ (FlagDirty | FlagNeedFree))
	return e, nil
}
