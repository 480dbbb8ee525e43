// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// rag-seed indexes a handful of canned chunks into the in-memory BM25
// index and a mock vector store, adapted from the teacher's
// cmd/seeder/main.go fixture-generation style (a fixed slice of
// filename/content/phrase fixtures) so the indexing side of the hybrid
// path can be exercised without the ingestion pipeline this module
// doesn't own. The index and store live only for the run of the tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/the-hive/ragquery/internal/bm25"
	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/ragtypes"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

var userID = flag.String("user", "demo-user", "userId to seed fixture documents under")

type fixture struct {
	fileID   string
	fileName string
	phrase   string
	text     string
}

var fixtures = []fixture{
	{
		fileID:   "fixture-alpha",
		fileName: "project_alpha.md",
		phrase:   "Project Alpha confidential report",
		text:     "Project Alpha has made significant progress in neural network optimization. The team developed new algorithms for efficient training with a 40% improvement over baseline systems.",
	},
	{
		fileID:   "fixture-beta",
		fileName: "beta_analysis.md",
		phrase:   "Beta analysis quarterly results",
		text:     "The quarterly analysis of Beta systems shows strong growth. Revenue increased 25% and operating costs decreased 10%, improving net profit margin to 18%.",
	},
	{
		fileID:   "fixture-gamma",
		fileName: "gamma_protocol.md",
		phrase:   "Gamma protocol implementation guide",
		text:     "The Gamma Protocol is a communication standard for high-performance distributed systems using a binary format with header, payload and checksum sections.",
	},
}

// fixedVector deterministically derives a toy embedding from a fixture's
// index so MockStore cosine search has something non-trivial to rank;
// there is no real embedding service to call in a standalone seed tool.
func fixedVector(seed int) []float32 {
	v := make([]float32, 1024)
	for i := range v {
		if i%(seed+2) == 0 {
			v[i] = 1
		}
	}
	return v
}

func main() {
	flag.Parse()

	idx := bm25.New()
	store := vectorstore.NewMockStore()
	files := fileregistry.NewMockRegistry()

	chunks := make([]ragtypes.Chunk, 0, len(fixtures))
	for i, fx := range fixtures {
		chunk := ragtypes.Chunk{
			FileID:     fx.fileID,
			FileName:   fx.fileName,
			UserID:     *userID,
			ChunkIndex: 0,
			Text:       fx.text,
		}
		chunks = append(chunks, chunk)
		files.Put(fileregistry.FileInfo{FileID: fx.fileID, UserID: *userID, FileName: fx.fileName})

		if err := store.Upsert(context.Background(), fx.fileID, fixedVector(i), chunk); err != nil {
			log.Fatalf("rag-seed: upsert %s: %v", fx.fileID, err)
		}
		fmt.Printf("seeded %s (%q)\n", fx.fileName, fx.phrase)
	}

	idx.IndexUser(*userID, chunks)
	fmt.Printf("indexed %d fixture chunks for user %s\n", len(chunks), *userID)
}
