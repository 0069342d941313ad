package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSize bounds the number of cached responses when no size is given.
const DefaultSize = 512

// Cacher defines the caching interface used by the request client.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
	DeleteCache(ctx context.Context, key string) error
}

// Memory is an in-process Cacher with a fixed time-to-live and LRU eviction.
// Nothing survives a restart.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a cache holding at most size entries that expire after ttl.
// A non-positive size uses DefaultSize; a zero ttl never expires.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *Memory) GetCache(ctx context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *Memory) SetCache(ctx context.Context, key string, val []byte) error {
	c.lru.Add(key, append([]byte(nil), val...))
	return nil
}

func (c *Memory) DeleteCache(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of stored entries. Expired ones are purged in the background.
func (c *Memory) Len() int {
	return c.lru.Len()
}
