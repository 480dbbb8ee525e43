// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package ragworker is the claim loop (spec.md §4.H), grounded on the
// teacher's internal/worker.StartWorkers/workerLoop shape (context
// cancellation, per-worker logging) generalized from a single Dequeue
// call into the claim/heartbeat/progress/complete-or-fail protocol §4.A
// requires, plus a self-heartbeat stall monitor adapted from the
// teacher's internal/drone/heartbeat.Monitor (same gen2brain/beeep OS
// alert on repeated failure, here watching the worker's own ability to
// write its heartbeat rather than a remote server's health endpoint).
package ragworker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/the-hive/ragquery/internal/pipeline"
	"github.com/the-hive/ragquery/internal/queue"
)

const shutdownGracePeriod = 30 * time.Second

// Worker runs the claim/heartbeat/dispatch loop for one workerId against
// a shared queue.Queue and Pipeline.
type Worker struct {
	Queue             queue.Queue
	Pipeline          *pipeline.Pipeline
	WorkerID          string
	WorkerType        queue.Requires
	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	mu           sync.Mutex
	shuttingDown bool
	missedBeats  int
}

// Run blocks until ctx is cancelled, claiming and processing jobs. On
// cancellation it waits up to shutdownGracePeriod for the in-flight job
// before returning.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("ragworker: workerId=%s workerType=%s started", w.WorkerID, w.WorkerType)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx)
	}()

	<-ctx.Done()
	w.mu.Lock()
	w.shuttingDown = true
	w.mu.Unlock()
	log.Printf("ragworker: workerId=%s shutting down, waiting up to %s for in-flight job", w.WorkerID, shutdownGracePeriod)

	select {
	case <-done:
		log.Printf("ragworker: workerId=%s stopped cleanly", w.WorkerID)
	case <-time.After(shutdownGracePeriod):
		log.Printf("ragworker: workerId=%s grace period elapsed, forcing exit", w.WorkerID)
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Claim(ctx, w.WorkerType, w.WorkerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("ragworker: workerId=%s claim error: %v", w.WorkerID, err)
			sleep(ctx, w.PollInterval)
			continue
		}
		if job == nil {
			sleep(ctx, w.PollInterval)
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log.Printf("ragworker: workerId=%s claimed jobId=%s taskType=%s", w.WorkerID, job.ID, job.TaskType)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job.ID)

	if err := w.Queue.UpdateProgress(ctx, job.ID, 10, 0); err != nil {
		log.Printf("ragworker: workerId=%s jobId=%s progress=10 write failed: %v", w.WorkerID, job.ID, err)
	}

	result, err := w.dispatch(ctx, job)

	stopHeartbeat()

	if err != nil {
		log.Printf("ragworker: workerId=%s jobId=%s failed: %v", w.WorkerID, job.ID, err)
		if failErr := w.Queue.Fail(ctx, job.ID, w.WorkerID, err.Error()); failErr != nil {
			log.Printf("ragworker: workerId=%s jobId=%s fail() write failed: %v", w.WorkerID, job.ID, failErr)
		}
		return
	}

	if err := w.Queue.UpdateProgress(ctx, job.ID, 90, 0); err != nil {
		log.Printf("ragworker: workerId=%s jobId=%s progress=90 write failed: %v", w.WorkerID, job.ID, err)
	}
	if err := w.Queue.Complete(ctx, job.ID, w.WorkerID, result); err != nil {
		log.Printf("ragworker: workerId=%s jobId=%s complete() write failed: %v", w.WorkerID, job.ID, err)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *queue.Job) (any, error) {
	opts := pipeline.Options{TopK: job.Payload.TopK, MinScore: job.Payload.MinScore}
	switch job.TaskType {
	case queue.TaskRAGQuery:
		return w.Pipeline.Answer(ctx, job.Payload.Question, job.Payload.UserID, opts)
	case queue.TaskRAGQueryFile:
		return w.Pipeline.AnswerForFile(ctx, job.Payload.Question, job.Payload.FileID, opts)
	default:
		return nil, fmt.Errorf("ragworker: unsupported taskType %q", job.TaskType)
	}
}

// runHeartbeat writes last_heartbeat every HeartbeatInterval until ctx is
// cancelled. Repeated write failures raise an OS alert the same way the
// teacher's drone heartbeat monitor does, but watch the worker's own
// write path instead of a remote health endpoint.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Queue.Heartbeat(ctx, jobID, w.WorkerID); err != nil {
				w.handleHeartbeatFailure(jobID, err)
				continue
			}
			w.mu.Lock()
			w.missedBeats = 0
			w.mu.Unlock()
		}
	}
}

func (w *Worker) handleHeartbeatFailure(jobID string, err error) {
	w.mu.Lock()
	w.missedBeats++
	missed := w.missedBeats
	w.mu.Unlock()

	log.Printf("ragworker: workerId=%s jobId=%s heartbeat write failed (miss %d): %v", w.WorkerID, jobID, missed, err)

	if missed == 3 {
		title := "RAG worker heartbeat stalled"
		message := fmt.Sprintf("Worker %s has missed 3 consecutive heartbeats writing job %s.", w.WorkerID, jobID)
		if alertErr := beeep.Alert(title, message, ""); alertErr != nil {
			log.Printf("ragworker: failed to send heartbeat-stall OS notification: %v", alertErr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
