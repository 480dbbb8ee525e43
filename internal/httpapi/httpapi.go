// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package httpapi is the thin HTTP surface (spec.md §4.I), grounded on
// the teacher's internal/server handlers: one function per route on a
// plain net/http.ServeMux, manual strings.TrimPrefix path-parameter
// extraction (chat_sessions_handler.go's HandleGetSessionMessages
// style) rather than a router library, and the same
// "{success:false, message, error}" JSON error envelope shape the
// teacher's handlers already write ad hoc.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/the-hive/ragquery/internal/fileregistry"
	"github.com/the-hive/ragquery/internal/logger"
	"github.com/the-hive/ragquery/internal/pipeline"
	"github.com/the-hive/ragquery/internal/queue"
	"github.com/the-hive/ragquery/internal/ragerr"
	"github.com/the-hive/ragquery/internal/vectorstore"
)

// Authenticator resolves a bearer token to a userId. The real identity
// provider is out of scope (spec.md §1); TokenAuthenticator below treats
// the token itself as the userId, which is enough to exercise every
// ownership and scoping rule the core defines.
type Authenticator interface {
	Authenticate(token string) (userID string, ok bool)
}

// TokenAuthenticator is the out-of-the-box Authenticator.
type TokenAuthenticator struct{}

func (TokenAuthenticator) Authenticate(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Server wires the pipeline, queue, and supporting stores into routes.
type Server struct {
	Pipeline *pipeline.Pipeline
	Queue    queue.Queue
	Vectors  vectorstore.VectorStore
	Files    fileregistry.Registry
	Auth     Authenticator
}

// New builds a Server. A nil Auth defaults to TokenAuthenticator{}.
func New(p *pipeline.Pipeline, q queue.Queue, vectors vectorstore.VectorStore, files fileregistry.Registry, auth Authenticator) *Server {
	if auth == nil {
		auth = TokenAuthenticator{}
	}
	return &Server{Pipeline: p, Queue: q, Vectors: vectors, Files: files, Auth: auth}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rag/ask", s.handleAsk)
	mux.HandleFunc("/api/rag/ask-sync", s.handleAskSync)
	mux.HandleFunc("/api/rag/ask-file/", s.handleAskFile)
	mux.HandleFunc("/api/rag/status/", s.handleStatus)
	mux.HandleFunc("/api/rag/stats", s.handleStats)
	mux.HandleFunc("/api/rag/logs/stream", s.handleLogStream)
}

type askRequest struct {
	Question string  `json:"question"`
	TopK     int     `json:"topK"`
	MinScore float64 `json:"minScore"`
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userID, ok := s.Auth.Authenticate(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token", "", "")
		return "", false
	}
	return userID, true
}

// handleAsk implements POST /api/rag/ask: enqueue, falling back to a
// synchronous pipeline run when the queue is unavailable (spec.md §4.I).
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", string(ragerr.InvalidInput), "")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required", string(ragerr.InvalidInput), "")
		return
	}

	job := queue.Job{
		ID:        uuid.NewString(),
		TaskType:  queue.TaskRAGQuery,
		Requires:  queue.RequiresRAG,
		Priority:  5,
		Payload:   queue.Payload{UserID: userID, Question: req.Question, TopK: req.TopK, MinScore: req.MinScore},
		TimeoutMs: 60000,
		Metadata:  queue.Metadata{Source: "rag-api"},
	}

	jobID, err := s.Queue.Enqueue(r.Context(), job)
	if err == queue.ErrUnavailable {
		logger.Printf("httpapi: queue unavailable, falling back to synchronous pipeline for user=%s", userID)
		s.runSync(w, r.Context(), req, userID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job", string(ragerr.Internal), "")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":     jobID,
		"statusUrl": "/api/rag/status/" + jobID,
	})
}

// handleAskSync implements POST /api/rag/ask-sync: always runs the
// pipeline inline.
func (s *Server) handleAskSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", string(ragerr.InvalidInput), "")
		return
	}
	s.runSync(w, r.Context(), req, userID)
}

func (s *Server) runSync(w http.ResponseWriter, ctx context.Context, req askRequest, userID string) {
	record, err := s.Pipeline.Answer(ctx, req.Question, userID, pipeline.Options{TopK: req.TopK, MinScore: req.MinScore})
	if err != nil {
		writeRagErr(w, err)
		return
	}
	requestID := uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":     record,
		"metadata": map[string]any{"requestId": requestID},
	})
}

// handleAskFile implements POST /api/rag/ask-file/:fileId.
func (s *Server) handleAskFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	fileID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rag/ask-file/"), "/")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "fileId is required", string(ragerr.InvalidInput), "")
		return
	}

	owns, err := s.Files.Owns(r.Context(), fileID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify file ownership", string(ragerr.Internal), "")
		return
	}
	if !owns {
		writeError(w, http.StatusNotFound, "file not found or not owned by caller", string(ragerr.NotFound), "")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", string(ragerr.InvalidInput), "")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required", string(ragerr.InvalidInput), "")
		return
	}

	job := queue.Job{
		ID:        uuid.NewString(),
		TaskType:  queue.TaskRAGQueryFile,
		Requires:  queue.RequiresRAG,
		Priority:  5,
		Payload:   queue.Payload{UserID: userID, Question: req.Question, TopK: req.TopK, MinScore: req.MinScore, FileID: fileID},
		TimeoutMs: 60000,
		Metadata:  queue.Metadata{Source: "rag-api"},
	}

	jobID, err := s.Queue.Enqueue(r.Context(), job)
	if err == queue.ErrUnavailable {
		record, err := s.Pipeline.AnswerForFile(r.Context(), req.Question, fileID, pipeline.Options{TopK: req.TopK, MinScore: req.MinScore})
		if err != nil {
			writeRagErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": record})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job", string(ragerr.Internal), "")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":     jobID,
		"statusUrl": "/api/rag/status/" + jobID,
	})
}

// handleStatus implements GET /api/rag/status/:jobId.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rag/status/"), "/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required", string(ragerr.InvalidInput), "")
		return
	}

	snapshot, err := s.Queue.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read job status", string(ragerr.Internal), "")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "unknown jobId", string(ragerr.NotFound), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": snapshot})
}

// handleStats implements GET /api/rag/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	totalVectors, err := s.Vectors.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read vector store stats", string(ragerr.Internal), "")
		return
	}
	userFiles, err := s.Files.CountForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read user file count", string(ragerr.Internal), "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"totalVectors":   totalVectors,
			"userFiles":      userFiles,
			"collectionName": "rag_chunks",
			"vectorSize":     1024,
		},
	})
}

// handleLogStream implements the supplemented GET /api/rag/logs/stream,
// adapted verbatim in shape from the teacher's HandleLogStream (same
// SSE envelope, same broadcasting internal/logger.Subscribe).
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	logChan, unsubChan := logger.GetDefault().Subscribe()
	if logChan == nil {
		http.Error(w, "log stream unavailable", http.StatusInternalServerError)
		return
	}
	defer logger.GetDefault().Unsubscribe(unsubChan)

	for {
		select {
		case line, ok := <-logChan:
			if !ok {
				return
			}
			w.Write([]byte("data: " + line + "\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code, requestID string) {
	envelope := map[string]any{"success": false, "message": message}
	if code != "" {
		envelope["error"] = code
	}
	if requestID != "" {
		envelope["requestId"] = requestID
	}
	writeJSON(w, status, envelope)
}

func writeRagErr(w http.ResponseWriter, err error) {
	code := ragerr.CodeOf(err)
	writeError(w, ragerr.HTTPStatus(code), err.Error(), string(code), "")
}
