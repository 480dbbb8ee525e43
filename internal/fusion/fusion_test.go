// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fusion

import (
	"testing"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

func r(fileID string, chunkIndex int) ragtypes.RetrievalResult {
	return ragtypes.RetrievalResult{FileID: fileID, ChunkIndex: chunkIndex}
}

// TestFuse_S2 reproduces the worked RRF example: BM25 [A,B,C], vector
// [B,D,A], K=60 — B should rank above A before diversity is applied.
func TestFuse_S2_RankOrderMatchesWorkedExample(t *testing.T) {
	bm25 := []ragtypes.RetrievalResult{r("A", 0), r("B", 0), r("C", 0)}
	vector := []ragtypes.RetrievalResult{r("B", 0), r("D", 0), r("A", 0)}

	fused := Fuse(bm25, vector, 60, 4)
	if len(fused) != 4 {
		t.Fatalf("expected 4 fused results, got %d", len(fused))
	}
	if fused[0].FileID != "B" || fused[1].FileID != "A" {
		t.Errorf("expected order [B, A, ...], got [%s, %s, ...]", fused[0].FileID, fused[1].FileID)
	}
}

// TestApplyDiversityPenalty_S3 reproduces the worked diversity example.
func TestApplyDiversityPenalty_S3(t *testing.T) {
	results := []ragtypes.RetrievalResult{
		{FileID: "f1", ChunkIndex: 0, RRFScore: 0.030},
		{FileID: "f1", ChunkIndex: 1, RRFScore: 0.028},
		{FileID: "f2", ChunkIndex: 0, RRFScore: 0.027},
		{FileID: "f1", ChunkIndex: 2, RRFScore: 0.026},
	}
	applyDiversityPenalty(results)

	wantOrder := []ragtypes.Key{
		{FileID: "f1", ChunkIndex: 0},
		{FileID: "f2", ChunkIndex: 0},
		{FileID: "f1", ChunkIndex: 1},
		{FileID: "f1", ChunkIndex: 2},
	}
	for i, want := range wantOrder {
		got := results[i].Key()
		if got != want {
			t.Errorf("position %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestFuse_ChunkIdentityIsFileIDAndChunkIndex(t *testing.T) {
	bm25 := []ragtypes.RetrievalResult{r("f1", 0)}
	vector := []ragtypes.RetrievalResult{r("f1", 0), r("f1", 1)}

	fused := Fuse(bm25, vector, 60, 10)
	if len(fused) != 2 {
		t.Fatalf("expected 2 distinct fused entries, got %d", len(fused))
	}
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	bm25 := []ragtypes.RetrievalResult{r("f1", 0), r("f2", 0), r("f3", 0)}
	fused := Fuse(bm25, nil, 60, 2)
	if len(fused) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(fused))
	}
	if fused[0].FusionRank != 1 || fused[1].FusionRank != 2 {
		t.Errorf("expected 1-indexed fusionRank, got %d, %d", fused[0].FusionRank, fused[1].FusionRank)
	}
}
