// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ragworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/the-hive/ragquery/internal/queue"
)

// fakeQueue is a minimal in-memory queue.Queue for exercising the claim
// loop without Redis.
type fakeQueue struct {
	mu        sync.Mutex
	pending   []queue.Job
	completed []string
	failed    []string
	heartbeats int
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, job)
	return job.ID, nil
}

func (f *fakeQueue) Claim(_ context.Context, _ queue.Requires, _ string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	return &job, nil
}

func (f *fakeQueue) Heartbeat(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeQueue) UpdateProgress(_ context.Context, _ string, _, _ int) error { return nil }

func (f *fakeQueue) Complete(_ context.Context, jobID, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeQueue) Fail(_ context.Context, jobID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
	return nil
}

func (f *fakeQueue) Status(_ context.Context, _ string) (*queue.Snapshot, error) { return nil, nil }
func (f *fakeQueue) Stats(_ context.Context) (map[string]int64, error)           { return nil, nil }
func (f *fakeQueue) Healthy() bool                                              { return true }

var _ queue.Queue = (*fakeQueue)(nil)

func TestWorker_UnsupportedTaskTypeIsFailed(t *testing.T) {
	q := &fakeQueue{pending: []queue.Job{{ID: "job-1", TaskType: queue.TaskProcessFile}}}
	w := &Worker{
		Queue:             q,
		Pipeline:          nil,
		WorkerID:          "w1",
		WorkerType:        queue.RequiresRAG,
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.failed) != 1 || q.failed[0] != "job-1" {
		t.Errorf("expected job-1 to be failed for unsupported taskType, got failed=%v completed=%v", q.failed, q.completed)
	}
}

func TestWorker_NoJobsSleepsAndExitsOnCancel(t *testing.T) {
	q := &fakeQueue{}
	w := &Worker{
		Queue:             q,
		WorkerID:          "w1",
		WorkerType:        queue.RequiresRAG,
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)
}
