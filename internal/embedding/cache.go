package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
)

// cacheKey is (task_type, text) hashed down to a fixed-size key so the LRU
// doesn't pin arbitrarily long source text in memory just for lookups.
type cacheKey string

func newCacheKey(task llmclient.TaskType, text string) cacheKey {
	sum := sha256.Sum256([]byte(string(task) + "\x00" + text))
	return cacheKey(hex.EncodeToString(sum[:]))
}

// responseCache is the LRU response cache spec.md §4.5 calls for: an
// unchanged chunk re-embedded during an incremental run costs nothing.
// Sourced from the Aman-CERP-amanmcp and cklxx-elephant.ai example repos,
// which both reach for golang-lru/v2 for this exact shape of cache.
type responseCache struct {
	lru *lru.Cache[cacheKey, []float32]
}

func newResponseCache(size int) *responseCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[cacheKey, []float32](size)
	if err != nil {
		// Only returns an error for size <= 0, already excluded above.
		return nil
	}
	return &responseCache{lru: c}
}

func (c *responseCache) get(task llmclient.TaskType, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(newCacheKey(task, text))
}

func (c *responseCache) put(task llmclient.TaskType, text string, vec []float32) {
	if c == nil {
		return
	}
	c.lru.Add(newCacheKey(task, text), vec)
}
