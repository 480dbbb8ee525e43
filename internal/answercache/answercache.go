// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package answercache is the bounded, TTL-expiring answer cache (spec.md
// §4.G, §8 properties 4-6), grounded on the LRU-caching shape of
// Aman-CERP-amanmcp's internal/embed.CachedEmbedder (same
// hashicorp/golang-lru/v2 dependency, same wrap-with-cache-key pattern)
// but reading through Peek instead of Get so the underlying structure
// never reorders on access: the spec requires strict insertion-order
// (FIFO) eviction, not least-recently-used eviction, so lookups must not
// promote an entry's recency.
package answercache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

const (
	// MaxEntries bounds the cache at 200 entries (spec.md §8 property 5).
	MaxEntries = 200
	// TTL is the wall-clock expiry window (spec.md §8 property 6).
	TTL = 5 * time.Minute
)

type entry struct {
	record   ragtypes.AnswerRecord
	storedAt time.Time
}

// Cache is a thread-safe, bounded, FIFO-evicting, TTL-expiring store of
// AnswerRecords.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, entry]
}

// New creates an empty cache at MaxEntries capacity.
func New() *Cache {
	inner, _ := lru.New[string, entry](MaxEntries)
	return &Cache{inner: inner}
}

// Key identifies a cache slot. UserID is used for the user-scoped query
// cache; FileID is used instead for the file-scoped variant.
type Key struct {
	Question   string
	UserID     string
	FileID     string
	SearchMode string
	TopK       int
	MinScore   float64
}

// hash collapses a Key into the cache's internal string key. Question is
// lowercased and trimmed per spec.md so that equivalent questions share
// a cache slot.
func (k Key) hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00%f",
		normalizeQuestion(k.Question), k.UserID, k.FileID, k.SearchMode, k.TopK, k.MinScore)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuestion(q string) string {
	out := make([]byte, 0, len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(trimSpace(out))
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// Get returns the cached record for key if present and unexpired. An
// expired entry is removed on access (spec.md §8 property 6).
func (c *Cache) Get(key Key) (ragtypes.AnswerRecord, bool) {
	hashed := key.hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Peek(hashed)
	if !ok {
		return ragtypes.AnswerRecord{}, false
	}
	if time.Since(e.storedAt) >= TTL {
		c.inner.Remove(hashed)
		return ragtypes.AnswerRecord{}, false
	}
	return e.record, true
}

// Put stores record under key, evicting the oldest entry by insertion
// order if the cache is at capacity (spec.md §8 property 5).
func (c *Cache) Put(key Key, record ragtypes.AnswerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key.hash(), entry{record: record, storedAt: time.Now()})
}

// Len reports the current entry count, for diagnostics and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
