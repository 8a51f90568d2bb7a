package sources

import (
	"sync"
	"time"

	"mealagent/nutrition"
)

// candidateCache memoizes resolver results per (normalized name, limit) key.
// Best effort: concurrent misses for the same key may both hit upstream; the
// last write wins. Injectable clock keeps TTL behavior testable.
type candidateCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	candidates []nutrition.Candidate
	expires    time.Time
}

func newCandidateCache(ttl time.Duration, now func() time.Time) *candidateCache {
	if now == nil {
		now = time.Now
	}
	return &candidateCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *candidateCache) get(key string) ([]nutrition.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]nutrition.Candidate, len(e.candidates))
	copy(out, e.candidates)
	return out, true
}

func (c *candidateCache) put(key string, candidates []nutrition.Candidate) {
	stored := make([]nutrition.Candidate, len(candidates))
	copy(stored, candidates)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{candidates: stored, expires: c.now().Add(c.ttl)}
}
