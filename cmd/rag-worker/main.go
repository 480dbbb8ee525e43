// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/the-hive/ragquery/internal/answercache"
	"github.com/the-hive/ragquery/internal/bm25"
	"github.com/the-hive/ragquery/internal/config"
	"github.com/the-hive/ragquery/internal/embedclient"
	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/llmclient"
	"github.com/the-hive/ragquery/internal/logger"
	"github.com/the-hive/ragquery/internal/pipeline"
	"github.com/the-hive/ragquery/internal/queue"
	"github.com/the-hive/ragquery/internal/ragworker"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

var qdrantAddr = flag.String("qdrant-addr", "localhost:6334", "Qdrant gRPC address")

func main() {
	logFile := "rag-worker.log"
	if _, err := logger.Init(logFile); err != nil {
		log.Printf("failed to initialize logger: %v, using stdout only", err)
	}

	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}

	flag.Parse()
	settings := config.LoadWorkerSettings()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("rag-worker requires Redis: %v", err)
	}
	jobQueue := queue.NewRedisQueue(redisClient)

	var vectors vectorstore.VectorStore
	qdrantConn, err := grpc.Dial(*qdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Warnf("failed to dial Qdrant at %s: %v, using in-memory vector store", *qdrantAddr, err)
		vectors = vectorstore.NewMockStore()
	} else {
		store, storeErr := vectorstore.NewQdrantStore(qdrantConn, "rag_chunks", embedclient.Dimension)
		if storeErr != nil {
			logger.Warnf("failed to init Qdrant vector store: %v, using in-memory vector store", storeErr)
			vectors = vectorstore.NewMockStore()
		} else {
			vectors = store
		}
	}

	idx := bm25.New()
	embedder := embedclient.New(settings.EmbeddingAPIURL)
	llm := llmclient.New("", "", "")
	files := fileregistry.NewMockRegistry()
	cache := answercache.New()

	p := pipeline.New(idx, vectors, embedder, llm, files, cache)

	w := &ragworker.Worker{
		Queue:             jobQueue,
		Pipeline:          p,
		WorkerID:          settings.WorkerID,
		WorkerType:        queue.Requires(settings.WorkerType),
		PollInterval:      settings.PollInterval,
		HeartbeatInterval: settings.HeartbeatInterval,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Println("rag-worker: received shutdown signal")
		cancel()
	}()

	w.Run(ctx)

	if err := logger.GetDefault().Close(); err != nil {
		log.Printf("failed to close logger: %v", err)
	}
}
