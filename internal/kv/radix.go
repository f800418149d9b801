package kv

import (
	"encoding/binary"
	"net"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// RadixCache indexes IPv4 dotted-quad keys in a radix tree keyed by the
// 32-bit address with a /32 mask. Keys that do not parse to a non-zero
// address are rejected on insert.
type RadixCache struct {
	tree  *iradix.Tree
	count int
}

// NewRadixCache creates an empty IPv4 radix index.
func NewRadixCache() *RadixCache {
	return &RadixCache{tree: iradix.New()}
}

// radixKey parses a dotted-quad key into its tree key and 32-bit form.
func radixKey(key []byte) ([]byte, uint32, bool) {
	ip := net.ParseIP(string(key))
	if ip == nil {
		return nil, 0, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, 0, false
	}
	addr := binary.BigEndian.Uint32(v4)
	if addr == 0 {
		return nil, 0, false
	}
	return v4, addr, true
}

func (c *RadixCache) Insert(key, value []byte, now int64) *Element {
	rkey, addr, ok := radixKey(key)
	if !ok {
		return nil
	}
	elt := newElement(key, value, now, addr)
	if elt == nil {
		return nil
	}
	tree, old, updated := c.tree.Insert(rkey, elt)
	c.tree = tree
	if updated {
		retire(old.(*Element))
	} else {
		c.count++
	}
	return elt
}

func (c *RadixCache) Lookup(key []byte) *Element {
	rkey, _, ok := radixKey(key)
	if !ok {
		return nil
	}
	v, ok := c.tree.Get(rkey)
	if !ok {
		return nil
	}
	return v.(*Element)
}

func (c *RadixCache) Replace(key []byte, elt *Element) bool {
	rkey, _, ok := radixKey(key)
	if !ok {
		return false
	}
	if _, ok := c.tree.Get(rkey); !ok {
		return false
	}
	tree, old, _ := c.tree.Insert(rkey, elt)
	c.tree = tree
	if prev := old.(*Element); prev != elt {
		retire(prev)
	}
	return true
}

func (c *RadixCache) Delete(key []byte) *Element {
	rkey, _, ok := radixKey(key)
	if !ok {
		return nil
	}
	tree, old, deleted := c.tree.Delete(rkey)
	if !deleted {
		return nil
	}
	c.tree = tree
	c.count--
	return old.(*Element)
}

func (c *RadixCache) Steal(elt *Element) {
	rkey, _, ok := radixKey(elt.Key())
	if !ok {
		return
	}
	if v, ok := c.tree.Get(rkey); !ok || v.(*Element) != elt {
		return
	}
	tree, _, _ := c.tree.Delete(rkey)
	c.tree = tree
	c.count--
}

func (c *RadixCache) Len() int { return c.count }

func (c *RadixCache) Destroy() {
	c.tree = iradix.New()
	c.count = 0
}
