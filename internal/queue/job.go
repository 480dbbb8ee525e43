// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package queue implements the Redis-backed priority job queue (spec.md
// §4.A): enqueue, claim, heartbeat, progress, completion, failure, status
// and stats, shared across polyglot workers via the bit-exact key schema
// in §6.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// TaskType identifies what kind of work a job carries.
type TaskType string

const (
	TaskRAGQuery     TaskType = "RAG_QUERY"
	TaskRAGQueryFile TaskType = "RAG_QUERY_FILE"
	TaskProcessFile  TaskType = "PROCESS_FILE"
)

// Requires selects the worker class a job is routed to.
type Requires string

const (
	RequiresCPU Requires = "cpu"
	RequiresGPU Requires = "gpu"
	RequiresRAG Requires = "rag"
	RequiresAny Requires = "any"
)

// Status is a job's lifecycle state. The only legal transitions are
// queued->running, running->completed and running->failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrUnavailable is returned by every Queue operation when Redis is known
// to be down (spec.md §4.A availability tracking).
var ErrUnavailable = errors.New("queue: redis unavailable")

// Payload is the task-specific body of a job (spec.md §6).
type Payload struct {
	UserID   string  `json:"userId"`
	Question string  `json:"question"`
	TopK     int     `json:"topK,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
	FileID   string  `json:"fileId,omitempty"`
}

// Metadata is the job-envelope metadata (spec.md §6).
type Metadata struct {
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is the immutable envelope a caller submits to Enqueue.
type Job struct {
	ID        string   `json:"job_id"`
	TaskType  TaskType `json:"task_type"`
	Requires  Requires `json:"requires"`
	Priority  int      `json:"priority"`
	Payload   Payload  `json:"payload"`
	TimeoutMs int      `json:"timeout_ms"`
	Metadata  Metadata `json:"metadata"`
}

// Snapshot is the mutable execution state of a job (spec.md §3), as
// returned by Status.
type Snapshot struct {
	JobID           string          `json:"jobId"`
	TaskType        TaskType        `json:"taskType"`
	Payload         Payload         `json:"payload"`
	Status          Status          `json:"status"`
	Progress        int             `json:"progress"`
	ChunksProcessed int             `json:"chunksProcessed"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	LastHeartbeat   *time.Time      `json:"lastHeartbeat,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	FailedAt        *time.Time      `json:"failedAt,omitempty"`
	WorkerID        string          `json:"workerId,omitempty"`
	Error           string          `json:"error,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
}

// Queue is the interface the HTTP surface and the worker program against;
// RedisQueue is the only production implementation.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	Claim(ctx context.Context, workerType Requires, workerID string) (*Job, error)
	Heartbeat(ctx context.Context, jobID, workerID string) error
	UpdateProgress(ctx context.Context, jobID string, progress, chunksProcessed int) error
	Complete(ctx context.Context, jobID, workerID string, result any) error
	Fail(ctx context.Context, jobID, workerID string, errMsg string) error
	Status(ctx context.Context, jobID string) (*Snapshot, error)
	Stats(ctx context.Context) (map[string]int64, error)
	Healthy() bool
}
