// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package vectorstore is the thin client over the external vector store
// (spec.md §4.C): filtered k-NN search against points the (out-of-scope)
// ingestion pipeline upserted. Adapted from the teacher's
// internal/vectordb/vectordb.go, generalized from a single hard-coded
// "the_hive" collection to arbitrary metadata filters and from
// map[string]string metadata to the RAG chunk shape.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/the-hive/ragquery/internal/ragtypes"
)

// Filter is a single equality filter applied server-side, per spec.md
// §4.C's `{must: [{key, match:{value}}]}` shape.
type Filter struct {
	Key   string
	Value string
}

// ScoredChunk is a vector search hit paired with its cosine similarity.
type ScoredChunk struct {
	ragtypes.Chunk
	Score float64
}

// VectorStore is the behaviour the pipeline requires from the external
// store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, chunk ragtypes.Chunk) error
	Search(ctx context.Context, queryVector []float32, k int, filters []Filter) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
}

// QdrantStore wraps the Qdrant gRPC service clients directly, matching the
// teacher's low-level collectionsSvc/pointsSvc style rather than the
// higher-level convenience client also present in the retrieved pack.
type QdrantStore struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	collection     string
	dimension      int
}

// NewQdrantStore constructs a store bound to collection, ensuring it
// exists with the given vector dimension (spec.md §4.D fixes this at
// 1024).
func NewQdrantStore(conn *grpc.ClientConn, collection string, dimension int) (*QdrantStore, error) {
	if conn == nil {
		return nil, errors.New("vectorstore: gRPC connection is required")
	}
	s := &QdrantStore{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		collection:     collection,
		dimension:      dimension,
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("vectorstore: ensure collection: %w", err)
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	collections, err := s.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections.Collections {
		if c.Name == s.collection {
			return nil
		}
	}
	_, err = s.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(s.dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	log.Printf("vectorstore: created collection %s (dim=%d)", s.collection, s.dimension)
	return nil
}

// Upsert stores a chunk's vector and retrievable metadata.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, chunk ragtypes.Chunk) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("vectorstore: vector has dimension %d, want %d", len(vector), s.dimension)
	}

	payload := map[string]*qdrant.Value{
		"user_id":     strValue(chunk.UserID),
		"file_id":     strValue(chunk.FileID),
		"file_name":   strValue(chunk.FileName),
		"chunk_index": strValue(strconv.Itoa(chunk.ChunkIndex)),
		"text":        strValue(chunk.Text),
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: payload,
	}

	_, err := s.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert point: %w", err)
	}
	return nil
}

func strValue(v string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
}

// Search performs a filtered k-NN search. Filters are applied server-side;
// any hit whose payload disagrees with a requested filter is dropped
// rather than trusted (spec.md §4.C: "the core never trusts results that
// violate the requested filter").
func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, k int, filters []Filter) ([]ScoredChunk, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("vectorstore: query vector cannot be empty")
	}
	if k <= 0 {
		k = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         queryVector,
		Limit:          uint64(k),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}
	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for _, f := range filters {
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: f.Key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: f.Value},
						},
					},
				},
			})
		}
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	result, err := s.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	out := make([]ScoredChunk, 0, len(result.Result))
	for _, point := range result.Result {
		chunk := chunkFromPayload(point.Payload)
		if !satisfiesFilters(chunk, filters) {
			log.Printf("vectorstore: dropping hit for fileId=%s: server-reported payload violates requested filter", chunk.FileID)
			continue
		}
		out = append(out, ScoredChunk{Chunk: chunk, Score: float64(point.Score)})
	}
	return out, nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) ragtypes.Chunk {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	chunkIndex, _ := strconv.Atoi(get("chunk_index"))
	return ragtypes.Chunk{
		FileID:     get("file_id"),
		FileName:   get("file_name"),
		UserID:     get("user_id"),
		ChunkIndex: chunkIndex,
		Text:       get("text"),
	}
}

func satisfiesFilters(chunk ragtypes.Chunk, filters []Filter) bool {
	for _, f := range filters {
		var got string
		switch f.Key {
		case "user_id":
			got = chunk.UserID
		case "file_id":
			got = chunk.FileID
		default:
			continue
		}
		if got != f.Value {
			return false
		}
	}
	return true
}

// Count returns the collection's point cardinality (used by GET /stats).
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	info, err := s.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("vectorstore: get collection info: %w", err)
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}

var _ VectorStore = (*QdrantStore)(nil)
