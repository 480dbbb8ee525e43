// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package bm25

import (
	"testing"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

func TestIndex_EmptyCorpusReturnsEmpty(t *testing.T) {
	idx := New()
	results := idx.Search("nobody", "anything", 5)
	if len(results) != 0 {
		t.Errorf("expected no results for unknown user, got %d", len(results))
	}
}

func TestIndex_RanksMoreRelevantDocHigher(t *testing.T) {
	idx := New()
	idx.IndexUser("u1", []ragtypes.Chunk{
		{FileID: "f1", FileName: "a.txt", ChunkIndex: 0, Text: "the go programming language has goroutines and channels"},
		{FileID: "f2", FileName: "b.txt", ChunkIndex: 0, Text: "bananas are a good source of potassium"},
		{FileID: "f3", FileName: "c.txt", ChunkIndex: 0, Text: "goroutines in go are lightweight concurrent functions"},
	})

	results := idx.Search("u1", "goroutines in go", 3)
	if len(results) < 2 {
		t.Fatalf("expected at least 2 results, got %d", len(results))
	}
	if results[0].FileID != "f3" && results[0].FileID != "f1" {
		t.Errorf("expected a go/goroutines document to rank first, got %s", results[0].FileID)
	}
	for _, r := range results {
		if r.FileID == "f2" {
			t.Errorf("unrelated banana document should not match query terms, got %+v", r)
		}
	}
}

func TestIndex_RespectsTopN(t *testing.T) {
	idx := New()
	idx.IndexUser("u1", []ragtypes.Chunk{
		{FileID: "f1", ChunkIndex: 0, Text: "alpha beta gamma"},
		{FileID: "f2", ChunkIndex: 0, Text: "alpha beta delta"},
		{FileID: "f3", ChunkIndex: 0, Text: "alpha epsilon zeta"},
	})

	results := idx.Search("u1", "alpha beta", 1)
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
}

func TestTokenize_LowercasesSplitsAndDropsStopWords(t *testing.T) {
	tokens := Tokenize("The Quick-Brown Fox, and the lazy dog!")
	want := map[string]bool{"quick": true, "brown": true, "fox": true, "lazy": true, "dog": true}
	for _, tok := range tokens {
		if tok == "the" || tok == "and" {
			t.Errorf("expected stop word %q to be filtered", tok)
		}
		delete(want, tok)
	}
	if len(want) != 0 {
		t.Errorf("missing expected tokens: %v", want)
	}
}

func TestIndex_RebuildReplacesCorpus(t *testing.T) {
	idx := New()
	idx.IndexUser("u1", []ragtypes.Chunk{{FileID: "f1", ChunkIndex: 0, Text: "first version of the document"}})
	if results := idx.Search("u1", "first version", 5); len(results) != 1 {
		t.Fatalf("expected 1 result before rebuild, got %d", len(results))
	}

	idx.IndexUser("u1", []ragtypes.Chunk{{FileID: "f2", ChunkIndex: 0, Text: "second version of the document"}})
	results := idx.Search("u1", "first version", 5)
	for _, r := range results {
		if r.FileID == "f1" {
			t.Errorf("expected old corpus to be replaced, still found f1")
		}
	}
}
