// Package keyhash provides case-insensitive hashing for storage keys.
//
// Keys are opaque byte strings, but lookups must not distinguish ASCII
// case. The hash and trie index variants therefore work on a folded form
// of the key and a murmur3 hash of that form.
package keyhash

import "github.com/spaolacci/murmur3"

// Fold returns the ASCII-lowercased form of key as a string.
//
// The fold builds a lowered copy only when the key contains an
// upper-case byte; otherwise the key is converted as it is.
func Fold(key []byte) string {
	for i := 0; i < len(key); i++ {
		if key[i] >= 'A' && key[i] <= 'Z' {
			b := make([]byte, len(key))
			copy(b, key[:i])
			for ; i < len(key); i++ {
				c := key[i]
				if c >= 'A' && c <= 'Z' {
					c += 'a' - 'A'
				}
				b[i] = c
			}
			return string(b)
		}
	}
	return string(key)
}

// Sum returns the case-insensitive hash of key.
func Sum(key []byte) uint32 {
	return murmur3.Sum32([]byte(Fold(key)))
}
