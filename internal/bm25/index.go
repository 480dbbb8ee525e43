// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package bm25

import (
	"math"
	"sort"
	"sync"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

const (
	k1 = 1.5
	b  = 0.75
)

// docEntry is one indexed chunk plus its precomputed token statistics.
type docEntry struct {
	fileID     string
	fileName   string
	chunkIndex int
	text       string
	length     int
}

// corpus is one user's immutable BM25 snapshot: postings, document
// lengths and the average, all computed once at index time.
type corpus struct {
	docs      []docEntry
	postings  map[string]map[int]int // term -> docIdx -> term frequency
	docFreq   map[string]int         // term -> number of docs containing it
	avgDocLen float64
}

func buildCorpus(chunks []ragtypes.Chunk) *corpus {
	c := &corpus{
		postings: make(map[string]map[int]int),
		docFreq:  make(map[string]int),
	}
	if len(chunks) == 0 {
		return c
	}

	c.docs = make([]docEntry, len(chunks))
	var totalLen int
	for i, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		c.docs[i] = docEntry{
			fileID:     chunk.FileID,
			fileName:   chunk.FileName,
			chunkIndex: chunk.ChunkIndex,
			text:       chunk.Text,
			length:     len(tokens),
		}
		totalLen += len(tokens)

		seen := make(map[string]struct{})
		for _, term := range tokens {
			if c.postings[term] == nil {
				c.postings[term] = make(map[int]int)
			}
			c.postings[term][i]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				c.docFreq[term]++
			}
		}
	}
	c.avgDocLen = float64(totalLen) / float64(len(chunks))
	return c
}

func (c *corpus) idf(term string) float64 {
	n := float64(len(c.docs))
	df := float64(c.docFreq[term])
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

func (c *corpus) score(docIdx int, queryTerms []string) float64 {
	doc := c.docs[docIdx]
	var sum float64
	for _, term := range queryTerms {
		tf, ok := c.postings[term][docIdx]
		if !ok {
			continue
		}
		idf := c.idf(term)
		numerator := float64(tf) * (k1 + 1)
		denominator := float64(tf) + k1*(1-b+b*float64(doc.length)/c.avgDocLen)
		sum += idf * (numerator / denominator)
	}
	return sum
}

// search returns the topN documents ranked by descending BM25 score.
func (c *corpus) search(query string, topN int) []ragtypes.RetrievalResult {
	if len(c.docs) == 0 {
		return nil
	}
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var candidates []scored
	seen := make(map[int]struct{})
	for _, term := range queryTerms {
		for docIdx := range c.postings[term] {
			if _, ok := seen[docIdx]; ok {
				continue
			}
			seen[docIdx] = struct{}{}
			s := c.score(docIdx, queryTerms)
			if s > 0 {
				candidates = append(candidates, scored{idx: docIdx, score: s})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return c.docs[candidates[i].idx].fileName < c.docs[candidates[j].idx].fileName
	})

	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}

	out := make([]ragtypes.RetrievalResult, 0, len(candidates))
	for _, cand := range candidates {
		doc := c.docs[cand.idx]
		bm25Score := cand.score
		out = append(out, ragtypes.RetrievalResult{
			FileID:     doc.fileID,
			FileName:   doc.fileName,
			ChunkIndex: doc.chunkIndex,
			Text:       doc.text,
			Score:      cand.score,
			Source:     ragtypes.SourceBM25,
			BM25Score:  &bm25Score,
		})
	}
	return out
}

// Index holds one BM25 corpus per user. Rebuilds replace a user's corpus
// wholesale under a writer lock while concurrent reads are served from the
// previous snapshot (spec.md §5).
type Index struct {
	mu     sync.RWMutex
	byUser map[string]*corpus
}

// New creates an empty, ready-to-use index.
func New() *Index {
	return &Index{byUser: make(map[string]*corpus)}
}

// IndexUser (re)builds the BM25 corpus for a user from their current chunk
// set. An empty chunk slice clears the user's corpus.
func (idx *Index) IndexUser(userID string, chunks []ragtypes.Chunk) {
	c := buildCorpus(chunks)
	idx.mu.Lock()
	idx.byUser[userID] = c
	idx.mu.Unlock()
}

// Search returns the top-N BM25 results for userID's corpus. An unknown
// user or an empty corpus returns an empty list without error (spec.md
// §4.B).
func (idx *Index) Search(userID, query string, topN int) []ragtypes.RetrievalResult {
	idx.mu.RLock()
	c, ok := idx.byUser[userID]
	idx.mu.RUnlock()
	if !ok || c == nil {
		return nil
	}
	return c.search(query, topN)
}
