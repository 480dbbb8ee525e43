// Package ragtypes holds the data model shared by retrieval, fusion and
// the pipeline orchestrator (spec.md §3): Chunk, RetrievalResult and
// AnswerRecord.
package ragtypes

import "time"

// Source tags which retrieval path produced a RetrievalResult.
type Source string

const (
	SourceBM25   Source = "bm25"
	SourceVector Source = "vector"
	SourceHybrid Source = "hybrid"
)

// Chunk is an immutable unit of retrieval produced by the (out-of-scope)
// ingestion pipeline.
type Chunk struct {
	FileID     string
	FileName   string
	UserID     string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// RetrievalResult is produced transiently per query (spec.md §3).
type RetrievalResult struct {
	FileID      string
	FileName    string
	ChunkIndex  int
	Text        string
	Score       float64
	Source      Source
	RRFScore    float64
	VectorScore *float64
	BM25Score   *float64
	FusionRank  int
	Sources     []Source
}

// Key identifies a chunk for fusion/dedup purposes: (fileId, chunkIndex).
type Key struct {
	FileID     string
	ChunkIndex int
}

func (r *RetrievalResult) Key() Key {
	return Key{FileID: r.FileID, ChunkIndex: r.ChunkIndex}
}

// SourceRef is the citation-facing projection of a RetrievalResult
// attached to an AnswerRecord.
type SourceRef struct {
	FileName   string   `json:"fileName"`
	Score      float64  `json:"score"`
	Text       string   `json:"text"`
	ChunkIndex int      `json:"chunkIndex"`
	FileID     string   `json:"fileId"`
	Sources    []Source `json:"sources,omitempty"`
	FusionRank int      `json:"fusionRank,omitempty"`
}

// AnswerMetadata is the metadata block of an AnswerRecord.
type AnswerMetadata struct {
	Question        string    `json:"question"`
	ChunksRetrieved int       `json:"chunksRetrieved"`
	ChunksUsed      int       `json:"chunksUsed"`
	ContextLength   int       `json:"contextLength"`
	UniqueFiles     int       `json:"uniqueFiles"`
	UniqueFileNames []string  `json:"uniqueFileNames"`
	SearchMode      string    `json:"searchMode"`
	Timestamp       time.Time `json:"timestamp"`
	CacheHit        bool      `json:"cacheHit,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// AnswerRecord is the immutable, cacheable result of a pipeline run
// (spec.md §3).
type AnswerRecord struct {
	Answer   string         `json:"answer"`
	Context  string         `json:"context"`
	Sources  []SourceRef    `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}
