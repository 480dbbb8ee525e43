// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/the-hive/ragquery/internal/answercache"
	"github.com/the-hive/ragquery/internal/bm25"
	"github.com/the-hive/ragquery/internal/config"
	"github.com/the-hive/ragquery/internal/embedclient"
	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/httpapi"
	"github.com/the-hive/ragquery/internal/llmclient"
	"github.com/the-hive/ragquery/internal/logger"
	"github.com/the-hive/ragquery/internal/pipeline"
	"github.com/the-hive/ragquery/internal/queue"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

var (
	httpPort   = flag.Int("http-port", 8080, "HTTP server port")
	qdrantAddr = flag.String("qdrant-addr", "localhost:6334", "Qdrant gRPC address")
)

func main() {
	logFile := "rag-server.log"
	if _, err := logger.Init(logFile); err != nil {
		log.Printf("failed to initialize logger: %v, using stdout only", err)
	} else {
		logger.Printf("logger initialized, writing to %s", logFile)
	}

	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}

	flag.Parse()

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
			logger.Printf("connected to Qdrant at %s", *qdrantAddr)
		}
	}

	ctx := context.Background()
	var jobQueue queue.Queue
	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Warnf("failed to connect to Redis: %v, POST /api/rag/ask will fall back to synchronous execution", err)
		jobQueue = queue.Unavailable{}
	} else {
		jobQueue = queue.NewRedisQueue(redisClient)
		logger.Printf("connected to Redis")
	}

	idx := bm25.New()
	embedder := embedclient.New(os.Getenv("EMBEDDING_API_URL"))
	llm := llmclient.New("", "", "")
	files := fileregistry.NewMockRegistry()
	cache := answercache.New()

	p := pipeline.New(idx, vectors, embedder, llm, files, cache)
	api := httpapi.New(p, jobQueue, vectors, files, nil)

	mux := http.NewServeMux()
	api.Routes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: mux,
	}

	go func() {
		logger.Printf("HTTP server listening on %d", *httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(httpServer *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Println("shutting down rag-server...")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	if err := logger.GetDefault().Close(); err != nil {
		log.Printf("failed to close logger: %v", err)
	}
}
