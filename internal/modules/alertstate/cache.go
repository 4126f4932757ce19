// README: AlertStateCache backed by Redis (one JSON value per type) with an in-memory twin.
package alertstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domainerr"
)

const entryKeyPrefix = "alerts:state:%s"

// Cache returns (nil, nil) for a type that never ran.
type Cache interface {
	Get(ctx context.Context, t Type) (*Entry, error)
	Set(ctx context.Context, e Entry) error
	All(ctx context.Context) (map[Type]*Entry, error)
}

type RedisCache struct {
	redis *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{redis: client}
}

func (c *RedisCache) Get(ctx context.Context, t Type) (*Entry, error) {
	raw, err := c.redis.Get(ctx, entryKey(t)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, domainerr.Unavailable("get alert state "+string(t), err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode alert state %s: %w", t, err)
	}
	return &e, nil
}

func (c *RedisCache) Set(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode alert state %s: %w", e.Type, err)
	}
	return domainerr.Unavailable("set alert state "+string(e.Type), c.redis.Set(ctx, entryKey(e.Type), raw, 0).Err())
}

func (c *RedisCache) All(ctx context.Context) (map[Type]*Entry, error) {
	keys := make([]string, len(Types))
	for i, t := range Types {
		keys[i] = entryKey(t)
	}
	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domainerr.Unavailable("get alert states", err)
	}
	out := make(map[Type]*Entry, len(Types))
	for i, v := range vals {
		t := Types[i]
		s, ok := v.(string)
		if !ok {
			out[t] = nil
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode alert state %s: %w", t, err)
		}
		out[t] = &e
	}
	return out, nil
}

func entryKey(t Type) string {
	return fmt.Sprintf(entryKeyPrefix, string(t))
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[Type]Entry
	Err     error
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[Type]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, t Type) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Err != nil {
		return nil, c.Err
	}
	e, ok := c.entries[t]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (c *MemoryCache) Set(_ context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.entries[e.Type] = *cloneEntry(e)
	return nil
}

func (c *MemoryCache) All(ctx context.Context) (map[Type]*Entry, error) {
	out := make(map[Type]*Entry, len(Types))
	for _, t := range Types {
		e, err := c.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = e
	}
	return out, nil
}

func cloneEntry(e Entry) *Entry {
	cp := e
	if e.FlaggedIDs != nil {
		cp.FlaggedIDs = append([]string(nil), e.FlaggedIDs...)
	}
	return &cp
}
