// Package cache keeps parsed rule sets close to the matching path. Caches are
// best effort: a miss or a failed write never fails a request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/trialmatch/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "trialmatch:v1:"

// CacheKey names the cached rule set of one trial from one parser identity
func CacheKey(trialID, identity string) string {
	return keyPrefix + "rules:" + trialID + ":" + identity
}

// New builds the cache selected by cfg. A disabled cache is a no-op.
func New(cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "layered":
		return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL), nil
	case "memory":
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute), nil
	case "disk":
		return NewDiskCache(cfg.Dir, cfg.DiskTTL), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache requires redis_addr")
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DiskTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s (supported: layered, memory, disk, redis)", cfg.Backend)
	}
}

// RuleSets stores rule sets as JSON in any Cache
type RuleSets struct {
	cache Cache
	ttl   time.Duration
}

// NewRuleSets wraps c. A zero ttl uses each backend's default.
func NewRuleSets(c Cache, ttl time.Duration) *RuleSets {
	if c == nil {
		c = Noop{}
	}
	return &RuleSets{cache: c, ttl: ttl}
}

// Get returns a cached rule set; undecodable entries are misses
func (r *RuleSets) Get(ctx context.Context, trialID, identity string) (*model.RuleSet, bool) {
	data, ok := r.cache.Get(ctx, CacheKey(trialID, identity))
	if !ok {
		return nil, false
	}
	var set model.RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, false
	}
	return &set, true
}

// Put caches a rule set under its trial and identity
func (r *RuleSets) Put(ctx context.Context, set *model.RuleSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal rule set: %w", err)
	}
	return r.cache.Set(ctx, CacheKey(set.TrialID, set.ParserIdentity), data, r.ttl)
}

// Invalidate drops a cached rule set
func (r *RuleSets) Invalidate(ctx context.Context, trialID, identity string) error {
	return r.cache.Delete(ctx, CacheKey(trialID, identity))
}

// Noop is a cache that stores nothing
type Noop struct{}

// Get always misses
func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set discards the value
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete does nothing
func (Noop) Delete(context.Context, string) error { return nil }

// Clear does nothing
func (Noop) Clear(context.Context) error { return nil }
