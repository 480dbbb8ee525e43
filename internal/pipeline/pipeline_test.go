// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/the-hive/ragquery/internal/answercache"
	"github.com/the-hive/ragquery/internal/bm25"
	"github.com/the-hive/ragquery/internal/embedclient"
	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/llmclient"
	"github.com/the-hive/ragquery/internal/ragerr"
	"github.com/the-hive/ragquery/internal/ragtypes"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

func fixedVector() []float32 {
	v := make([]float32, embedclient.Dimension)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func newTestPipeline(t *testing.T) (*Pipeline, *fileregistry.MockRegistry) {
	t.Helper()

	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(`{"embedding":[`))
		for i := 0; i < embedclient.Dimension; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write([]byte("0.1"))
		}
		w.Write([]byte(`]}`))
	}))
	t.Cleanup(embedSrv.Close)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Go is a language. [Source 1]"}}]}`))
	}))
	t.Cleanup(llmSrv.Close)

	idx := bm25.New()
	idx.IndexUser("u1", []ragtypes.Chunk{
		{FileID: "f1", FileName: "a.txt", ChunkIndex: 0, UserID: "u1", Text: "go is a programming language with goroutines"},
	})

	store := vectorstore.NewMockStore()
	store.Upsert(t.Context(), "p1", fixedVector(), ragtypes.Chunk{FileID: "f1", FileName: "a.txt", UserID: "u1", ChunkIndex: 0, Text: "go is a programming language"})

	files := fileregistry.NewMockRegistry()
	files.Put(fileregistry.FileInfo{FileID: "f1", UserID: "u1", FileName: "a.txt"})

	p := New(idx, store, embedclient.New(embedSrv.URL), llmclient.New(llmSrv.URL, "test-key", "test-model"), files, answercache.New())
	return p, files
}

func TestAnswer_NoFilesShortCircuits(t *testing.T) {
	p, _ := newTestPipeline(t)
	record, err := p.Answer(t.Context(), "what is go?", "stranger", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Metadata.Reason != "no_files" {
		t.Errorf("expected no_files reason, got %q", record.Metadata.Reason)
	}
	if record.Metadata.ChunksRetrieved != 0 {
		t.Errorf("expected 0 chunksRetrieved, got %d", record.Metadata.ChunksRetrieved)
	}
}

func TestAnswer_EmptyQuestionIsInvalidInput(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Answer(t.Context(), "   ", "u1", Options{})
	if ragerr.CodeOf(err) != ragerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestAnswer_HybridModeReturnsAnswerWithSources(t *testing.T) {
	p, _ := newTestPipeline(t)
	record, err := p.Answer(t.Context(), "what is go?", "u1", Options{SearchMode: ModeHybrid, TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Metadata.ChunksRetrieved == 0 {
		t.Fatal("expected at least one retrieved chunk")
	}
	if len(record.Sources) == 0 {
		t.Error("expected sources to be populated")
	}
}

func TestAnswer_SecondIdenticalCallIsCacheHit(t *testing.T) {
	p, _ := newTestPipeline(t)
	first, err := p.Answer(t.Context(), "what is go?", "u1", Options{SearchMode: ModeBM25, TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Metadata.CacheHit {
		t.Error("expected first call to be a cache miss")
	}

	second, err := p.Answer(t.Context(), "What Is Go?", "u1", Options{SearchMode: ModeBM25, TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Metadata.CacheHit {
		t.Error("expected second identical call to be a cache hit")
	}
	if second.Answer != first.Answer {
		t.Errorf("expected byte-equal answers, got %q vs %q", first.Answer, second.Answer)
	}
}

func TestAnswer_UnknownSearchModeIsInvalidInput(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Answer(t.Context(), "hi", "u1", Options{SearchMode: "nonsense"})
	if ragerr.CodeOf(err) != ragerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestAnswerForFile_VectorOnlyFilteredByFileID(t *testing.T) {
	p, _ := newTestPipeline(t)
	record, err := p.AnswerForFile(t.Context(), "what is go?", "f1", Options{TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Metadata.ChunksRetrieved == 0 {
		t.Fatal("expected at least one retrieved chunk")
	}
}
