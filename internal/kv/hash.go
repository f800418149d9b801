package kv

import "github.com/nvialko/kvstash/pkg/keyhash"

// HashCache is the general-purpose index: a map from the
// case-insensitive fold of the key to the element.
type HashCache struct {
	items map[string]*Element
}

// NewHashCache creates an empty hash index.
func NewHashCache() *HashCache {
	return &HashCache{items: make(map[string]*Element)}
}

func (c *HashCache) Insert(key, value []byte, now int64) *Element {
	fold := keyhash.Fold(key)
	if old, ok := c.items[fold]; ok {
		delete(c.items, fold)
		retire(old)
	}
	elt := newElement(key, value, now, keyhash.Sum(key))
	if elt == nil {
		return nil
	}
	c.items[fold] = elt
	return elt
}

func (c *HashCache) Lookup(key []byte) *Element {
	return c.items[keyhash.Fold(key)]
}

func (c *HashCache) Replace(key []byte, elt *Element) bool {
	fold := keyhash.Fold(key)
	old, ok := c.items[fold]
	if !ok {
		return false
	}
	if old != elt {
		retire(old)
	}
	c.items[fold] = elt
	return true
}

func (c *HashCache) Delete(key []byte) *Element {
	fold := keyhash.Fold(key)
	elt, ok := c.items[fold]
	if !ok {
		return nil
	}
	delete(c.items, fold)
	return elt
}

func (c *HashCache) Steal(elt *Element) {
	fold := keyhash.Fold(elt.Key())
	if c.items[fold] == elt {
		delete(c.items, fold)
	}
}

func (c *HashCache) Len() int { return len(c.items) }

func (c *HashCache) Destroy() { c.items = nil }
