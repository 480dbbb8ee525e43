// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

// MockStore is an in-memory VectorStore used by cmd/rag-seed and tests
// when no Qdrant instance is available, adapted from the teacher's
// vectordb.NewMockVectorDB fallback-on-connect-failure pattern.
type MockStore struct {
	mu     sync.RWMutex
	points map[string]mockPoint
}

type mockPoint struct {
	vector []float32
	chunk  ragtypes.Chunk
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{points: make(map[string]mockPoint)}
}

func (m *MockStore) Upsert(_ context.Context, id string, vector []float32, chunk ragtypes.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = mockPoint{vector: vector, chunk: chunk}
	return nil
}

func (m *MockStore) Search(_ context.Context, queryVector []float32, k int, filters []Filter) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ScoredChunk
	for _, p := range m.points {
		if !satisfiesFilters(p.chunk, filters) {
			continue
		}
		out = append(out, ScoredChunk{Chunk: p.chunk, Score: cosineSimilarity(queryVector, p.vector)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MockStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorStore = (*MockStore)(nil)
