package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 10000

// Cache is a bounded in-process LRU of vectors keyed by CacheKey. Vectors are
// copied on the way in and out so callers cannot mutate cached entries.
type Cache struct {
	lru    *lru.Cache[string, []float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// CacheKey hashes the model identity together with the text, so vectors from
// different models never collide.
func CacheKey(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return copyVector(v), true
}

func (c *Cache) Set(key string, vector []float32) {
	c.lru.Add(key, copyVector(vector))
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// peek reads without touching recency or the hit counters.
func (c *Cache) peek(key string) ([]float32, bool) {
	v, ok := c.lru.Peek(key)
	if !ok {
		return nil, false
	}
	return copyVector(v), true
}

func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
