package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store holds encoded values with a time-to-live.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a size-bounded LRU whose expiry is judged against an injectable
// clock, so staleness can be tested without sleeping.
type MemoryStore struct {
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

func NewMemoryStore(size int, now func() time.Time) (*MemoryStore, error) {
	if now == nil {
		now = time.Now
	}
	c, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryStore{lru: c, now: now}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.Add(key, memoryEntry{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
