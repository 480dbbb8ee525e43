// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package fusion combines a BM25 ranked list and a vector ranked list via
// Reciprocal Rank Fusion, then applies a same-file diversity penalty
// (spec.md §4.F). The teacher has no rank-fusion code of its own; the RRF
// accumulation and truncation shape is built directly from the formula and
// scenarios S2/S3, and the tie-break (descending score, then ascending
// secondary key) is grounded on Aman-CERP-amanmcp's
// pkg/searcher/fusion.go fuseResults, which breaks ties the same way on
// result ID.
package fusion

import (
	"sort"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

// DefaultK is the RRF rank-damping constant (spec.md §4.F).
const DefaultK = 60

// DiversityDecay is the per-prior-same-file multiplier applied to
// rrfScore before the post-fusion re-sort (spec.md §4.F).
const DiversityDecay = 0.9

type candidate struct {
	result   ragtypes.RetrievalResult
	bm25Rank int // 1-indexed; 0 means absent
	vecRank  int
}

// Fuse merges bm25Results and vectorResults (each already ranked,
// best-first) via RRF with rank constant k (use DefaultK when k <= 0),
// applies the diversity penalty, and truncates to topK.
func Fuse(bm25Results, vectorResults []ragtypes.RetrievalResult, k, topK int) []ragtypes.RetrievalResult {
	if k <= 0 {
		k = DefaultK
	}

	byKey := make(map[ragtypes.Key]*candidate)
	order := make([]ragtypes.Key, 0, len(bm25Results)+len(vectorResults))

	addRank := func(list []ragtypes.RetrievalResult, assign func(*candidate, int, ragtypes.RetrievalResult)) {
		for i, r := range list {
			key := r.Key()
			c, ok := byKey[key]
			if !ok {
				c = &candidate{result: r}
				byKey[key] = c
				order = append(order, key)
			}
			assign(c, i+1, r)
		}
	}

	addRank(bm25Results, func(c *candidate, rank int, r ragtypes.RetrievalResult) {
		c.bm25Rank = rank
		c.result.BM25Score = r.BM25Score
	})
	addRank(vectorResults, func(c *candidate, rank int, r ragtypes.RetrievalResult) {
		c.vecRank = rank
		c.result.VectorScore = r.VectorScore
		if c.result.Text == "" {
			c.result.Text = r.Text
			c.result.FileName = r.FileName
		}
	})

	fused := make([]ragtypes.RetrievalResult, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		score := rrfScore(c.bm25Rank, c.vecRank, k)

		var sources []ragtypes.Source
		if c.bm25Rank > 0 {
			sources = append(sources, ragtypes.SourceBM25)
		}
		if c.vecRank > 0 {
			sources = append(sources, ragtypes.SourceVector)
		}

		res := c.result
		res.RRFScore = score
		res.Score = score
		res.Source = ragtypes.SourceHybrid
		res.Sources = sources
		fused = append(fused, res)
	}

	sort.SliceStable(fused, byScoreThenFileName(fused))
	applyDiversityPenalty(fused)

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	for i := range fused {
		fused[i].FusionRank = i + 1
	}
	return fused
}

func rrfScore(bm25Rank, vecRank, k int) float64 {
	var score float64
	if bm25Rank > 0 {
		score += 1.0 / float64(k+bm25Rank)
	}
	if vecRank > 0 {
		score += 1.0 / float64(k+vecRank)
	}
	return score
}

// applyDiversityPenalty walks the list in current order, multiplies each
// entry's score by DiversityDecay^(prior same-file count), then
// stably re-sorts descending by the adjusted score (spec.md §4.F, S3).
func applyDiversityPenalty(results []ragtypes.RetrievalResult) {
	seenFiles := make(map[string]int)
	for i := range results {
		n := seenFiles[results[i].FileID]
		results[i].RRFScore *= pow(DiversityDecay, n)
		results[i].Score = results[i].RRFScore
		seenFiles[results[i].FileID] = n + 1
	}
	sort.SliceStable(results, byScoreThenFileName(results))
}

// byScoreThenFileName orders by descending RRFScore, breaking ties by
// ascending fileName (spec.md invariant 5), matching the tie-break shape
// internal/bm25.Index.Search already uses for its own score ties.
func byScoreThenFileName(results []ragtypes.RetrievalResult) func(i, j int) bool {
	return func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return results[i].FileName < results[j].FileName
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
