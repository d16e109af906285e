package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	ability "github.com/SamuelT19/networks-admin"
)

// RedisAbilityCache shares compiled abilities across processes through
// Redis. Abilities serialize as their rule slice; compilation already
// resolved templates, so the cached form is user-specific and must be keyed
// per user. Any Redis error reads as a cache miss, the compiler falls back
// to the user store.
type RedisAbilityCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisAbilityCache(client *redis.Client, prefix string, ttl time.Duration) *RedisAbilityCache {
	if prefix == "" {
		prefix = "ability"
	}
	return &RedisAbilityCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisAbilityCache) key(userID int64) string {
	return fmt.Sprintf("%s:user:%d", c.prefix, userID)
}

func (c *RedisAbilityCache) Get(ctx context.Context, userID int64) (*ability.Ability, bool) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var rules []ability.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, false
	}
	return ability.NewAbility(rules), true
}

func (c *RedisAbilityCache) Set(ctx context.Context, userID int64, a *ability.Ability) {
	raw, err := json.Marshal(a.Rules())
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(userID), raw, c.ttl)
}

func (c *RedisAbilityCache) Invalidate(ctx context.Context, userID int64) {
	c.client.Del(ctx, c.key(userID))
}
