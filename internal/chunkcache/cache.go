// Package chunkcache implements the in-memory, weight-bounded chunk cache
// (spec §4.2 "Cache", component C1). Entries are evicted least-recently-used
// first when either the entry count or the total byte weight exceeds its
// configured bound.
package chunkcache

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// ErrCacheMiss is returned by Get when id is not present. It corresponds
// to spec §7's GetFromCache error: in the upload flow it signals that a
// chunk expected to survive between hashify and a commit retry was
// evicted, and the current pass should fail and retry on the next one.
var ErrCacheMiss = errors.New("chunkcache: chunk not in cache")

// minWeight and maxWeight clamp a value's weight the same way the original
// client's quick_cache::Weighter does (see _examples/original_source
// client/src/chunker.rs, BytesWeighter): "be cautious about zero weights".
const (
	minWeight = 1
	maxWeight = 1<<31 - 1
)

// Cache is a thread-safe, weight-bounded LRU cache of chunk bytes.
// The zero value is not usable; construct with New.
type Cache struct {
	mu sync.Mutex

	entries     *lru.Cache // string(chunkid.ID) -> []byte
	maxWeight   int64
	totalWeight int64
}

// New creates a Cache bounded by both maxEntries (key count) and
// maxTotalWeight (sum of clamped byte lengths). Either bound alone is
// sufficient to force eviction of the least-recently-used entry.
func New(maxEntries int, maxTotalWeight int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{maxWeight: maxTotalWeight}

	entries, err := lru.NewWithEvict(maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// onEvict is invoked by the underlying LRU whenever it drops an entry on
// its own (count-bound eviction). It keeps totalWeight in sync. Callers
// must hold mu.
func (c *Cache) onEvict(_ interface{}, value interface{}) {
	c.totalWeight -= weightOf(value.([]byte))
}

func weightOf(data []byte) int64 {
	w := int64(len(data))
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}

// Get returns the bytes for id. The null chunk always returns an empty,
// non-nil byte slice without touching the underlying LRU.
func (c *Cache) Get(id chunkid.ID) ([]byte, error) {
	if id.IsNull() {
		return []byte{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(string(id))
	if !ok {
		return nil, ErrCacheMiss
	}
	return v.([]byte), nil
}

// Set inserts data under id, evicting least-recently-used entries until
// both the entry-count and total-weight bounds are satisfied. Setting the
// null chunk is a no-op: it is always considered present (spec §4.2
// check_chunk).
func (c *Cache) Set(id chunkid.ID, data []byte) {
	if id.IsNull() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(id)
	if old, ok := c.entries.Peek(key); ok {
		c.totalWeight -= weightOf(old.([]byte))
	}

	c.entries.Add(key, data)
	c.totalWeight += weightOf(data)

	for c.maxWeight > 0 && c.totalWeight > c.maxWeight && c.entries.Len() > 0 {
		c.entries.RemoveOldest()
	}
}

// Contains reports whether id is currently cached, without affecting
// recency. The null chunk is always considered present.
func (c *Cache) Contains(id chunkid.ID) bool {
	if id.IsNull() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(string(id))
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// TotalWeight returns the sum of clamped byte weights currently cached.
func (c *Cache) TotalWeight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalWeight
}
