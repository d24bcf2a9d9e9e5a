package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localEntry is the in-memory representation of spec.md's CacheEntry: a
// typed value (kept as raw bytes so the tier is value-type agnostic),
// an absolute expiry instant, and implicit insertion order via the LRU's
// own ordering.
type localEntry struct {
	value    []byte
	expireAt time.Time
}

func (e localEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// localTier is the always-present in-memory LRU fallback. Capacity-bounded;
// access (a hit on Get) promotes the entry to most-recently-used, so
// eviction always drops the least-recently-accessed entry once capacity is
// exceeded. Updating an existing key never evicts, matching the LRU
// semantics of spec.md §4.1.
type localTier struct {
	mu    sync.Mutex
	cache *lru.Cache[string, localEntry]
}

func newLocalTier(capacity int) *localTier {
	c, err := lru.New[string, localEntry](capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which the
		// caller (TieredCache constructor) already validates against.
		panic(err)
	}
	return &localTier{cache: c}
}

// get returns the stored bytes and true if key is present and unexpired.
// An expired hit is evicted immediately, per spec.md's "reads that observe
// expiry remove the entry" rule.
func (t *localTier) get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		t.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (t *localTier) set(key string, value []byte, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(key, localEntry{value: value, expireAt: time.Now().Add(ttl)})
}

func (t *localTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(key)
}

// deletePattern removes every live key matching glob and returns the count
// removed. Expired-but-not-yet-evicted entries are skipped (they're not
// "live" under the observability rule) and lazily evicted along the way.
func (t *localTier) deletePattern(glob string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range t.cache.Keys() {
		entry, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		if entry.expired(now) {
			t.cache.Remove(key)
			continue
		}
		if matchGlob(glob, key) {
			t.cache.Remove(key)
			removed++
		}
	}
	return removed
}

func (t *localTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Purge()
}

// size returns the number of live (unexpired) entries.
func (t *localTier) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	n := 0
	for _, key := range t.cache.Keys() {
		if entry, ok := t.cache.Peek(key); ok && !entry.expired(now) {
			n++
		}
	}
	return n
}
