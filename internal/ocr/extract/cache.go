package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache memoizes OCR results keyed by a hash of the canonicalized inputs.
// Entries are TTL-bounded so a restarted engine or model update eventually
// takes effect.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// NewCache creates an OCR result cache with the given capacity and TTL
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Key derives the cache key from engine name, language, and image content
func (c *Cache) Key(engine, lang string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(engine))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached text for the key, if present
func (c *Cache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(key)
}

// Put stores a recognition result
func (c *Cache) Put(key, text string) {
	if c == nil {
		return
	}
	c.lru.Add(key, text)
}
