// Package signalregistry implements the Signal Registry: a
// content-addressed registry of per-policy-area pattern packs with strict
// access discipline (only this package and internal/monolith may reference
// the monolith path — see access_test.go), TTL+LRU caching, and
// context-aware filtering.
package signalregistry

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"policypipeline/internal/monolith"
)

// SignalPack is the per-policy-area pattern bundle.
type SignalPack struct {
	PolicyAreaID      string
	Version           string
	Patterns          []monolith.Pattern
	ExpectedElements  []monolith.ExpectedElement
	SourceFingerprint string
	ValidFrom         time.Time
	ValidTo           time.Time
	TTL               time.Duration
}

// Expired reports whether the pack has outlived its TTL from loadedAt.
func (p SignalPack) Expired(loadedAt, now time.Time) bool {
	if p.TTL <= 0 {
		return false
	}
	return now.Sub(loadedAt) > p.TTL
}

// ChunkContext is the context a chunk carries for pattern filtering.
type ChunkContext struct {
	Section      string
	Chapter      string
	PolicyAreaID string
}

// FilterStats reports context-filtering bookkeeping.
type FilterStats struct {
	Total            int
	Kept             int
	DroppedByContext int
}

type cacheEntry struct {
	pack     SignalPack
	loadedAt time.Time
	hits     int64
	misses   int64
}

// Registry is the process-wide signal pack cache. It is safe for concurrent
// use; the underlying LRU uses reader-preferring locking around fetches so
// many readers can hit a warm cache without blocking each other, while
// loads (misses) take the write path.
type Registry struct {
	mu      sync.RWMutex
	cache   *lru.Cache[string, *cacheEntry]
	loader  *monolith.Monolith
	ttl     time.Duration
	chunkLRU *lru.Cache[string, []monolith.Pattern]

	// remote is an optional distributed cache tier, consulted on a local
	// miss before falling back to rebuilding from the monolith. Nil in a
	// single-process deployment.
	remote *RedisCache
}

// WithRemoteCache attaches a distributed cache tier to the registry.
func (r *Registry) WithRemoteCache(remote *RedisCache) *Registry {
	r.remote = remote
	return r
}

// New builds a Registry backed by the given monolith loader, a cache of at
// most size packs, a default TTL, and a per-chunk signal lookup cache of
// the same size.
func New(loader *monolith.Monolith, size int, ttl time.Duration) (*Registry, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	chunkCache, err := lru.New[string, []monolith.Pattern](size)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: c, loader: loader, ttl: ttl, chunkLRU: chunkCache}, nil
}

// GetPack fetches (loading if necessary) the signal pack for a policy area.
// The fingerprint is the strong cache key: a changed monolith invalidates
// entries automatically because Fingerprint changes with content, but the
// registry also honors TTL-based staleness.
func (r *Registry) GetPack(policyAreaID string) (SignalPack, error) {
	r.mu.RLock()
	entry, ok := r.cache.Get(policyAreaID)
	r.mu.RUnlock()

	now := time.Now().UTC()
	if ok && !entry.pack.Expired(entry.loadedAt, now) {
		fingerprint := r.loader.Fingerprint(policyAreaID)
		if fingerprint == entry.pack.SourceFingerprint {
			r.mu.Lock()
			entry.hits++
			r.mu.Unlock()
			return entry.pack, nil
		}
	}

	if r.remote != nil {
		if pack, found := r.remote.Get(context.Background(), policyAreaID); found {
			fingerprint := r.loader.Fingerprint(policyAreaID)
			if fingerprint == pack.SourceFingerprint {
				r.mu.Lock()
				r.cache.Add(policyAreaID, &cacheEntry{pack: pack, loadedAt: now})
				r.mu.Unlock()
				return pack, nil
			}
		}
	}

	pack := r.buildPack(policyAreaID)

	r.mu.Lock()
	e := &cacheEntry{pack: pack, loadedAt: now}
	if ok {
		e.misses = entry.misses + 1
	} else {
		e.misses = 1
	}
	r.cache.Add(policyAreaID, e)
	r.mu.Unlock()

	if r.remote != nil {
		_ = r.remote.Set(context.Background(), pack)
	}

	return pack, nil
}

func (r *Registry) buildPack(policyAreaID string) SignalPack {
	questions := r.loader.QuestionsByPolicyArea(policyAreaID)

	var patterns []monolith.Pattern
	var expected []monolith.ExpectedElement
	for _, q := range questions {
		patterns = append(patterns, q.Patterns...)
		expected = append(expected, q.ExpectedElements...)
	}

	return SignalPack{
		PolicyAreaID:      policyAreaID,
		Version:           "1.0.0",
		Patterns:          patterns,
		ExpectedElements:  expected,
		SourceFingerprint: r.loader.Fingerprint(policyAreaID),
		ValidFrom:         time.Now().UTC(),
		TTL:               r.ttl,
	}
}

// Invalidate drops the cache entry for a policy area, forcing a reload on
// next access. Called when the monolith is replaced.
func (r *Registry) Invalidate(policyAreaID string) {
	r.mu.Lock()
	r.cache.Remove(policyAreaID)
	r.mu.Unlock()
	if r.remote != nil {
		_ = r.remote.Invalidate(context.Background(), policyAreaID)
	}
}

// InvalidateAll drops the entire cache and the per-chunk lookup cache,
// required whenever the question monolith is replaced wholesale.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
	r.chunkLRU.Purge()
}

// FilterByContext filters a pack's patterns to those whose context
// predicates are satisfied by ctx. Context predicates are conjunctive on
// declared fields; an unknown predicate field evaluates to "unrestricted".
func FilterByContext(pack SignalPack, ctx ChunkContext) ([]monolith.Pattern, FilterStats) {
	stats := FilterStats{Total: len(pack.Patterns)}
	var kept []monolith.Pattern
	for _, p := range pack.Patterns {
		if satisfies(p.ContextPredicates, ctx) {
			kept = append(kept, p)
			stats.Kept++
		} else {
			stats.DroppedByContext++
		}
	}
	return kept, stats
}

func satisfies(predicates monolith.ContextPredicate, ctx ChunkContext) bool {
	for field, want := range predicates {
		var got string
		switch field {
		case "section":
			got = ctx.Section
		case "chapter":
			got = ctx.Chapter
		case "policy_area_id", "policy_area":
			got = ctx.PolicyAreaID
		default:
			continue // unknown field: unrestricted
		}
		if got != want {
			return false
		}
	}
	return true
}

// SignalsForChunk returns the subset of a pack's patterns relevant to a
// chunk and the required categories, caching results per chunk id and
// required-category list.
func (r *Registry) SignalsForChunk(chunkID string, pack SignalPack, ctx ChunkContext, requiredTypes []string) []monolith.Pattern {
	key := chunkID + "|" + strings.Join(requiredTypes, ",")
	if cached, ok := r.chunkLRU.Get(key); ok {
		return cached
	}

	filtered, _ := FilterByContext(pack, ctx)
	if len(requiredTypes) > 0 {
		wanted := make(map[string]bool, len(requiredTypes))
		for _, t := range requiredTypes {
			wanted[t] = true
		}
		var subset []monolith.Pattern
		for _, p := range filtered {
			if wanted[p.Category] {
				subset = append(subset, p)
			}
		}
		filtered = subset
	}

	r.chunkLRU.Add(key, filtered)
	return filtered
}
