package ability

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoAbilityCache is an in-process AbilityCache backed by ristretto.
// Entries carry a TTL so that even a missed invalidation converges; explicit
// invalidation on role change is still required for correctness within the
// TTL window.
type RistrettoAbilityCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewRistrettoAbilityCache sizes the cache from engine settings, falling
// back to the same defaults DefaultEngineConfig carries.
func NewRistrettoAbilityCache(cfg EngineConfig) (*RistrettoAbilityCache, error) {
	def := DefaultEngineConfig()
	if cfg.RistrettoNumCounters <= 0 {
		cfg.RistrettoNumCounters = def.RistrettoNumCounters
	}
	if cfg.RistrettoMaxCost <= 0 {
		cfg.RistrettoMaxCost = def.RistrettoMaxCost
	}
	if cfg.RistrettoBufferItems <= 0 {
		cfg.RistrettoBufferItems = def.RistrettoBufferItems
	}
	if cfg.AbilityCacheTTL <= 0 {
		cfg.AbilityCacheTTL = def.AbilityCacheTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.RistrettoNumCounters,
		MaxCost:     cfg.RistrettoMaxCost,
		BufferItems: cfg.RistrettoBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoAbilityCache{
		cache: c,
		ttl:   time.Duration(cfg.AbilityCacheTTL) * time.Millisecond,
	}, nil
}

func (r *RistrettoAbilityCache) Get(_ context.Context, userID int64) (*Ability, bool) {
	v, ok := r.cache.Get(userID)
	if !ok {
		return nil, false
	}
	a, ok := v.(*Ability)
	return a, ok
}

func (r *RistrettoAbilityCache) Set(_ context.Context, userID int64, a *Ability) {
	cost := int64(len(a.rules) + 1)
	r.cache.SetWithTTL(userID, a, cost, r.ttl)
}

func (r *RistrettoAbilityCache) Invalidate(_ context.Context, userID int64) {
	r.cache.Del(userID)
}

// Close releases the cache's background goroutines.
func (r *RistrettoAbilityCache) Close() {
	r.cache.Close()
}
