// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"testing"
	"time"

	"github.com/the-hive/ragquery/internal/config"
)

func newTestQueue(t *testing.T) (*RedisQueue, func()) {
	t.Helper()
	ctx := context.Background()
	client, err := config.NewRedisClient(ctx)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	prefix := "test:" + time.Now().Format("20060102150405.000000000")
	cleanup := func() {
		for _, class := range []Requires{RequiresCPU, RequiresGPU, RequiresRAG, RequiresAny} {
			client.Del(ctx, queueKeyFor(class))
		}
		keys, _ := client.Keys(ctx, "job:"+prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		keys, _ = client.Keys(ctx, "running:"+prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}
	return NewRedisQueue(client), cleanup
}

func TestRedisQueue_EnqueueClaimComplete(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{
		TaskType: TaskRAGQuery,
		Requires: RequiresRAG,
		Priority: 5,
		Payload:  Payload{UserID: "u1", Question: "what is go"},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, err := q.Claim(ctx, RequiresRAG, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("expected to claim job %s, got %+v", id, job)
	}

	snap, err := q.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.Status != StatusRunning || snap.WorkerID != "worker-1" {
		t.Errorf("expected running/worker-1, got %+v", snap)
	}

	if err := q.Complete(ctx, id, "worker-1", map[string]string{"answer": "go is a language"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	snap, err = q.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", snap.Status)
	}
}

func TestRedisQueue_PriorityOrdering(t *testing.T) {
	// Scenario S5: enqueue low priority then high priority; worker claims
	// the high-priority job first.
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	lowID, err := q.Enqueue(ctx, Job{TaskType: TaskRAGQuery, Requires: RequiresRAG, Priority: 3, Payload: Payload{UserID: "u1", Question: "low"}})
	if err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	highID, err := q.Enqueue(ctx, Job{TaskType: TaskRAGQuery, Requires: RequiresRAG, Priority: 9, Payload: Payload{UserID: "u1", Question: "high"}})
	if err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	first, err := q.Claim(ctx, RequiresRAG, "w1")
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	if first == nil || first.ID != highID {
		t.Errorf("expected high priority job %s claimed first, got %+v", highID, first)
	}

	second, err := q.Claim(ctx, RequiresRAG, "w1")
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if second == nil || second.ID != lowID {
		t.Errorf("expected low priority job %s claimed second, got %+v", lowID, second)
	}
}

func TestRedisQueue_ClaimFallsBackToAny(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{TaskType: TaskRAGQuery, Requires: RequiresAny, Priority: 1, Payload: Payload{UserID: "u1", Question: "hi"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Claim(ctx, RequiresRAG, "worker-any")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("expected fallback claim of %s, got %+v", id, job)
	}
}

func TestRedisQueue_ClaimNoneReturnsNil(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	job, err := q.Claim(ctx, RequiresRAG, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected no job, got %+v", job)
	}
}

func TestRedisQueue_FailReleasesOwnership(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{TaskType: TaskRAGQuery, Requires: RequiresRAG, Priority: 1, Payload: Payload{UserID: "u1", Question: "hi"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, RequiresRAG, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := q.Fail(ctx, id, "worker-1", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	snap, err := q.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Status != StatusFailed || snap.Error != "boom" {
		t.Errorf("expected failed/boom, got %+v", snap)
	}
}

func TestRedisQueue_ProgressMonotonic(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{TaskType: TaskRAGQuery, Requires: RequiresRAG, Priority: 1, Payload: Payload{UserID: "u1", Question: "hi"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, RequiresRAG, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := q.UpdateProgress(ctx, id, 50, 3); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	// A lower progress value must not regress the stored value.
	if err := q.UpdateProgress(ctx, id, 10, 1); err != nil {
		t.Fatalf("update progress (lower): %v", err)
	}

	snap, err := q.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Progress != 50 {
		t.Errorf("expected progress to stay at 50, got %d", snap.Progress)
	}
}

func TestRedisQueue_StatusUnknownJob(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	snap, err := q.Status(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot for unknown job, got %+v", snap)
	}
}
