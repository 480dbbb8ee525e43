// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package answercache

import (
	"fmt"
	"testing"
	"time"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

func TestCache_PutThenGetHits(t *testing.T) {
	c := New()
	key := Key{Question: "  What Is Go?  ", UserID: "u1", SearchMode: "hybrid", TopK: 5}
	record := ragtypes.AnswerRecord{Answer: "Go is a language."}
	c.Put(key, record)

	got, ok := c.Get(Key{Question: "what is go?", UserID: "u1", SearchMode: "hybrid", TopK: 5})
	if !ok {
		t.Fatal("expected cache hit for normalized-equivalent question")
	}
	if got.Answer != record.Answer {
		t.Errorf("expected %q, got %q", record.Answer, got.Answer)
	}
}

func TestCache_MissForDifferentScope(t *testing.T) {
	c := New()
	c.Put(Key{Question: "q", UserID: "u1", TopK: 5}, ragtypes.AnswerRecord{Answer: "a"})
	if _, ok := c.Get(Key{Question: "q", UserID: "u2", TopK: 5}); ok {
		t.Error("expected miss for a different userId scope")
	}
}

// TestCache_EvictsOldestByInsertionOrder reproduces S4: insert 201
// distinct keys, the first evicts.
func TestCache_EvictsOldestByInsertionOrder(t *testing.T) {
	c := New()
	for i := 0; i < 201; i++ {
		key := Key{Question: fmt.Sprintf("question %d", i), UserID: "u1", TopK: 5}
		c.Put(key, ragtypes.AnswerRecord{Answer: fmt.Sprintf("answer %d", i)})
	}

	if c.Len() != MaxEntries {
		t.Fatalf("expected cache to be capped at %d, got %d", MaxEntries, c.Len())
	}

	first := Key{Question: "question 0", UserID: "u1", TopK: 5}
	if _, ok := c.Get(first); ok {
		t.Error("expected the first-inserted key to have been evicted")
	}

	last := Key{Question: "question 200", UserID: "u1", TopK: 5}
	if _, ok := c.Get(last); !ok {
		t.Error("expected the most-recently-inserted key to still be present")
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New()
	key := Key{Question: "q", UserID: "u1", TopK: 5}
	c.inner.Add(key.hash(), entry{record: ragtypes.AnswerRecord{Answer: "a"}, storedAt: time.Now().Add(-TTL - time.Second)})

	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to be treated as a miss")
	}
	if c.Len() != 0 {
		t.Error("expected expired entry to be removed from the cache on access")
	}
}
