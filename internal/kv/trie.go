package kv

import (
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/nvialko/kvstash/pkg/keyhash"
)

// TrieCache is a digital trie over the case-insensitive fold of the
// key. Its contract matches HashCache; it is the variant to pick when
// ordered iteration over the key space matters.
type TrieCache struct {
	tree  *iradix.Tree
	count int
}

// NewTrieCache creates an empty trie index.
func NewTrieCache() *TrieCache {
	return &TrieCache{tree: iradix.New()}
}

func (c *TrieCache) Insert(key, value []byte, now int64) *Element {
	fold := []byte(keyhash.Fold(key))
	elt := newElement(key, value, now, keyhash.Sum(key))
	if elt == nil {
		return nil
	}
	tree, old, updated := c.tree.Insert(fold, elt)
	c.tree = tree
	if updated {
		retire(old.(*Element))
	} else {
		c.count++
	}
	return elt
}

func (c *TrieCache) Lookup(key []byte) *Element {
	v, ok := c.tree.Get([]byte(keyhash.Fold(key)))
	if !ok {
		return nil
	}
	return v.(*Element)
}

func (c *TrieCache) Replace(key []byte, elt *Element) bool {
	fold := []byte(keyhash.Fold(key))
	if _, ok := c.tree.Get(fold); !ok {
		return false
	}
	tree, old, _ := c.tree.Insert(fold, elt)
	c.tree = tree
	if prev := old.(*Element); prev != elt {
		retire(prev)
	}
	return true
}

func (c *TrieCache) Delete(key []byte) *Element {
	tree, old, deleted := c.tree.Delete([]byte(keyhash.Fold(key)))
	if !deleted {
		return nil
	}
	c.tree = tree
	c.count--
	return old.(*Element)
}

func (c *TrieCache) Steal(elt *Element) {
	fold := []byte(keyhash.Fold(elt.Key()))
	if v, ok := c.tree.Get(fold); !ok || v.(*Element) != elt {
		return
	}
	tree, _, _ := c.tree.Delete(fold)
	c.tree = tree
	c.count--
}

func (c *TrieCache) Len() int { return c.count }

func (c *TrieCache) Destroy() {
	c.tree = iradix.New()
	c.count = 0
}

// Walk visits elements in lexicographic order of the folded key until
// fn returns false.
func (c *TrieCache) Walk(fn func(key []byte, elt *Element) bool) {
	c.tree.Root().Walk(func(k []byte, v interface{}) bool {
		return !fn(k, v.(*Element))
	})
}
