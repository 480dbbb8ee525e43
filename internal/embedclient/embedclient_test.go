// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/the-hive/ragquery/internal/ragerr"
)

func fixedVector() []float32 {
	v := make([]float32, Dimension)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func TestEmbed_ReturnsVectorOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			json.NewEncoder(w).Encode(embedResponse{Embedding: fixedVector()})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(t.Context(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != Dimension {
		t.Errorf("expected dimension %d, got %d", Dimension, len(vec))
	}
}

func TestEmbed_UnhealthyServiceShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		t.Fatalf("embed should not be called when unhealthy, got path %s", r.URL.Path)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Embed(t.Context(), "hello")
	if ragerr.CodeOf(err) != ragerr.UnavailableEmbed {
		t.Fatalf("expected UnavailableEmbed, got %v", err)
	}
}

func TestEmbed_WrongDimensionIsInternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2}})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Embed(t.Context(), "hello")
	if ragerr.CodeOf(err) != ragerr.Internal {
		t.Fatalf("expected Internal error for wrong dimension, got %v", err)
	}
}

func TestEmbedBatch_SplitsIntoFixedSizeBatches(t *testing.T) {
	var batchCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed/batch":
			batchCalls++
			var req embedBatchRequest
			json.NewDecoder(r.Body).Decode(&req)
			resp := embedBatchResponse{}
			for range req.Texts {
				resp.Embeddings = append(resp.Embeddings, fixedVector())
			}
			json.NewEncoder(w).Encode(resp)
		}
	}))
	defer srv.Close()

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "chunk"
	}

	c := New(srv.URL)
	vectors, err := c.EmbedBatch(t.Context(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 25 {
		t.Errorf("expected 25 vectors, got %d", len(vectors))
	}
	if batchCalls != 3 {
		t.Errorf("expected 3 batch calls (12+12+1), got %d", batchCalls)
	}
}
