// Package modcache caches compiled module descriptors keyed by a
// content hash of their source, so a host that imports the same module
// from several import paths (or re-enters it across repeated REPL
// evaluations) pays the lex/parse/emit cost once. Keying by content
// rather than path means an edited file is a cache miss on its own —
// no mtime bookkeeping needed — and two different paths resolving to
// identical source share one compiled entry.
package modcache

import (
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"

	"github.com/aspen-lang/aspen/pkg/value"
)

// Cache is an LRU of compiled FunctionDescriptorData keyed by a blake2b
// content hash. The zero value is not usable; use New.
type Cache struct {
	lru *lru.Cache
}

// New allocates a Cache holding up to size compiled descriptors. size
// <= 0 falls back to a modest default so a misconfigured host degrades
// to "small cache" rather than "cache disabled".
func New(size int) *Cache {
	if size <= 0 {
		size = 128
	}
	c, _ := lru.New(size) // lru.New only errors for size <= 0, already excluded above
	return &Cache{lru: c}
}

// Hash returns the cache key for src: a blake2b-256 digest of its
// bytes, hex-encoded. Exported so a caller (internal/hostmod) can hash
// once and reuse the key across a Get/compile/Put sequence rather than
// hashing the same bytes twice.
func Hash(src []byte) string {
	sum := blake2b.Sum256(src)
	const hex = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xf]
	}
	return string(out)
}

// Get returns the cached descriptor for the given content hash key, if
// present.
func (c *Cache) Get(key string) (*value.FunctionDescriptorData, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*value.FunctionDescriptorData), true
}

// Put records desc as the compiled result for the given content hash
// key.
func (c *Cache) Put(key string, desc *value.FunctionDescriptorData) {
	c.lru.Add(key, desc)
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }
