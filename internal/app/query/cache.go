// Package query caches list reads of path-scoped collections.
//
// A successful read is kept for a fixed TTL under a key derived from the entity
// kind and the owning user (and character, for inventory). Mutations call
// Invalidate for the key of the collection they touched, so the next read goes to
// the store. Concurrent reads of the same key while a load is outstanding share
// that load. Failed loads are never cached and never retried here.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ttrpg-tracker/internal/platform/cache"
	"ttrpg-tracker/internal/platform/metrics"
)

const DefaultTTL = 60 * time.Second

type Kind string

const (
	KindCharacters Kind = "characters"
	KindInventory  Kind = "inventory"
)

type Key struct {
	Kind        Kind
	UserID      uuid.UUID
	CharacterID uuid.UUID
}

func CharactersKey(userID uuid.UUID) Key {
	return Key{Kind: KindCharacters, UserID: userID}
}

func InventoryKey(userID, characterID uuid.UUID) Key {
	return Key{Kind: KindInventory, UserID: userID, CharacterID: characterID}
}

func (k Key) String() string {
	if k.Kind == KindInventory {
		return fmt.Sprintf("%s:user:%s:character:%s", k.Kind, k.UserID, k.CharacterID)
	}
	return fmt.Sprintf("%s:user:%s", k.Kind, k.UserID)
}

type Cache struct {
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
	group  singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

func New(store cache.Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, logger: logger, gens: make(map[string]uint64)}
}

// Fetch returns the cached value for key or loads it. Joined callers receive the
// same value and must treat it as read-only. The load runs with the context of the
// caller that started it.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	k := key.String()
	if v, ok := lookup[T](ctx, c, key); ok {
		metrics.CacheHits.WithLabelValues(string(key.Kind)).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(string(key.Kind)).Inc()

	gen := c.generation(k)
	res, err, _ := c.group.Do(k, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, k, gen, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Invalidate drops the cached value for key and detaches any in-flight load so
// its result is neither cached nor handed to later readers.
func (c *Cache) Invalidate(ctx context.Context, key Key) {
	k := key.String()
	c.mu.Lock()
	c.gens[k]++
	c.group.Forget(k)
	err := c.store.Delete(ctx, k)
	c.mu.Unlock()

	metrics.CacheInvalidations.WithLabelValues(string(key.Kind)).Inc()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("cache invalidation failed")
	}
}

func lookup[T any](ctx context.Context, c *Cache, key Key) (T, bool) {
	var v T
	b, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache read failed")
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache entry undecodable")
		return v, false
	}
	return v, true
}

func (c *Cache) generation(k string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[k]
}

func (c *Cache) fill(ctx context.Context, k string, gen uint64, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("cache encode failed")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[k] != gen {
		return
	}
	if err := c.store.Set(ctx, k, b, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("cache write failed")
	}
}
