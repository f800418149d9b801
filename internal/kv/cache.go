package kv

// Cache indexes keys to elements. Variants hold bare references; every
// lifetime decision is taken by the Storage façade together with the
// expire strategy, which is why Steal (unlink without release) is part
// of the contract.
//
// Implementations are not internally synchronised; the owning Storage
// serialises access.
type Cache interface {
	// Insert allocates a fresh element for key/value, stamps its age
	// and hash, and installs it. A pre-existing entry is stolen and
	// retired under the dirty rule first. Returns nil when the
	// variant rejects the key.
	Insert(key, value []byte, now int64) *Element

	// Lookup returns the element bound to key, or nil.
	Lookup(key []byte) *Element

	// Replace swaps the entry for key to elt, retiring the old
	// element under the dirty rule. It fails when key is absent.
	Replace(key []byte, elt *Element) bool

	// Delete unlinks and returns the element bound to key, or nil.
	Delete(key []byte) *Element

	// Steal unlinks elt without releasing it. This is the primitive
	// both eviction and the dirty hand-off build on.
	Steal(elt *Element)

	// Len returns the number of reachable elements.
	Len() int

	// Destroy drops the whole index.
	Destroy()
}
