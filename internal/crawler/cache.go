package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry is one cached payload. Entries are immutable once written; a
// later fetch with the same key replaces the whole entry, never patches it.
type cacheEntry struct {
	payload     []byte
	contentType string
	fetchedAt   time.Time
}

// Cache is the per-run dedup/cache layer: an in-memory payload store keyed
// by a hash of the absolute URL, with time-based expiry. It ensures that
// repeated requests for the same URL within one run are served without a
// network call while the entry is fresh.
//
// All reads and writes are serialized by a single mutex per cache (one
// cache per run). Correctness over throughput: the hit rate inside one run
// is low and contention is not a bottleneck at the configured worker
// counts. The miss-fetch-insert sequence is deliberately not atomic across
// the whole operation; two workers racing on the same uncached URL may
// both fetch once, which wastes a request but never violates correctness
// since the later write overwrites with equivalent content.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	expiry  time.Duration

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewCache creates a Cache whose entries stay fresh for the given expiry.
// An expiry of zero treats every entry as immediately stale, effectively
// disabling the cache while keeping the code path uniform.
func NewCache(expiry time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		expiry:  expiry,
		now:     time.Now,
	}
}

// cacheKey derives a stable, content-independent key from an absolute URL.
func cacheKey(absURL string) string {
	sum := sha256.Sum256([]byte(absURL))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached payload and content type for the URL if a fresh
// entry exists.
func (c *Cache) Get(absURL string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheKey(absURL)]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.expiry {
		return nil, "", false
	}
	return entry.payload, entry.contentType, true
}

// Put stores a payload and its content type for the URL, replacing any
// previous entry.
func (c *Cache) Put(absURL string, payload []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(absURL)] = cacheEntry{payload: payload, contentType: contentType, fetchedAt: c.now()}
}

// Len returns the number of entries currently stored, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the cached payload when fresh, otherwise calls fetch
// and stores its result before returning it. The fetch callback runs
// outside the cache lock so slow network calls never serialize unrelated
// lookups.
func (c *Cache) GetOrFetch(ctx context.Context, absURL string, fetch func(ctx context.Context, absURL string) ([]byte, string, error)) ([]byte, string, error) {
	if payload, contentType, ok := c.Get(absURL); ok {
		return payload, contentType, nil
	}

	payload, contentType, err := fetch(ctx, absURL)
	if err != nil {
		return nil, "", err
	}
	c.Put(absURL, payload, contentType)
	return payload, contentType, nil
}
