package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mealagent/nutrition"
)

// DefaultCacheTTL is how long resolved candidate sets stay memoized.
const DefaultCacheTTL = 5 * time.Minute

// Resolver fans a food-name query out over tiered sources and memoizes the
// merged result. Tier order: local catalog, then the geographically scoped
// source; the global source fills up to the limit; the web source runs only
// when everything else came back empty.
type Resolver struct {
	primary  []Source // queried in order until limit is reached
	fallback Source   // web-search-derived; only on empty results
	cache    *candidateCache
}

// NewResolver builds a resolver. fallback may be nil. ttl <= 0 uses
// DefaultCacheTTL; now == nil uses time.Now.
func NewResolver(primary []Source, fallback Source, ttl time.Duration, now func() time.Time) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		primary:  primary,
		fallback: fallback,
		cache:    newCandidateCache(ttl, now),
	}
}

// Resolve returns up to limit deduplicated candidates for the item name.
// Source failures are logged and treated as empty results, never as a failed
// resolution.
func (r *Resolver) Resolve(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	if limit <= 0 {
		limit = 1
	}
	key := fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(name)), limit)

	if cached, ok := r.cache.get(key); ok {
		slog.Debug("RESOLVER: Cache hit", "key", key, "candidates", len(cached))
		return cached, nil
	}

	seen := make(map[string]bool)
	var out []nutrition.Candidate

	appendCandidates := func(cands []nutrition.Candidate) {
		for _, c := range cands {
			if len(out) == limit {
				return
			}
			if seen[c.ID] {
				continue
			}
			if !c.Finite() {
				slog.Warn("RESOLVER: Dropping candidate with non-finite macros", "candidate", c.Name, "source", c.SourceType)
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}

	for _, src := range r.primary {
		if len(out) >= limit {
			break
		}
		cands, err := src.Search(ctx, name, limit)
		if err != nil {
			slog.Warn("RESOLVER: Source failed; treating as empty", "source", src.Type(), "item", name, "error", err)
			continue
		}
		appendCandidates(cands)
	}

	if len(out) == 0 && r.fallback != nil {
		cands, err := r.fallback.Search(ctx, name, limit)
		if err != nil {
			slog.Warn("RESOLVER: Fallback source failed; treating as empty", "item", name, "error", err)
		} else {
			appendCandidates(cands)
		}
	}

	r.cache.put(key, out)
	return out, nil
}
