// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package bm25 implements Okapi BM25 lexical retrieval over a per-user
// chunk corpus (spec.md §4.B). The tokenizer shape -- lowercase, split,
// stop-word filter -- is grounded on the lowercase/stop-word analyzer
// chain in the retrieved bleve-backed index (Aman-CERP-amanmcp's
// internal/store/bm25.go), adapted for natural-language document text
// instead of source code identifiers.
package bm25

import "strings"

// defaultStopWords are filtered out of both indexing and querying. The
// spec requires the same normalizer on both paths (§9); Tokenize is the
// single function both call.
var defaultStopWords = buildStopWordSet([]string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with", "what", "which", "who", "when",
	"where", "why", "how", "do", "does", "did", "can", "could", "should",
	"would", "i", "you", "he", "she", "we", "them", "his", "her", "its",
}...)

func buildStopWordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize lowercases text, splits on runs of non-alphanumeric characters,
// and drops stop words. It is the pure function exported for reuse by
// both indexing and query-time scoring, per spec.md §9.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, isStop := defaultStopWords[f]; isStop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
