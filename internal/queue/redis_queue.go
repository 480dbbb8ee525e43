// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue against the bit-exact key schema in
// spec.md §6: job:<id> hashes, queue:<requires> sorted sets popped with
// ZPOPMAX, and running:<workerId> hashes of owned jobs.
type RedisQueue struct {
	client *redis.Client
	avail  *availability
}

const timeLayout = time.RFC3339Nano

// NewRedisQueue wraps an already-connected Redis client. The initial
// availability probe happens here, per spec.md §4.A ("on first use probe
// with PING").
func NewRedisQueue(client *redis.Client) *RedisQueue {
	q := &RedisQueue{client: client, avail: newAvailability()}
	if err := client.Ping(context.Background()).Err(); err != nil {
		q.avail.markDown(err)
	} else {
		q.avail.markUp()
	}
	return q
}

func jobKey(id string) string        { return "job:" + id }
func queueKeyFor(r Requires) string   { return "queue:" + string(r) }
func runningKey(workerID string) string { return "running:" + workerID }

// Enqueue writes a new job hash and pushes its id onto queue:<requires>
// scored by priority so ZPOPMAX yields the numerically highest priority
// first, per §8 property 7 and scenario S5 (spec.md §4.A, Open Question
// 1 resolution: the schema note's "-priority" and the worked scenario
// disagree; the testable scenario wins).
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	if q.avail.get() == "down" {
		return "", ErrUnavailable
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Metadata.Source == "" {
		job.Metadata.Source = "rag-api"
	}
	if job.Metadata.CreatedAt.IsZero() {
		job.Metadata.CreatedAt = time.Now().UTC()
	}
	if job.Requires == "" {
		job.Requires = RequiresAny
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return "", fmt.Errorf("queue: marshal metadata: %w", err)
	}

	fields := map[string]interface{}{
		"payload":          string(payloadJSON),
		"metadata":         string(metadataJSON),
		"task_type":        string(job.TaskType),
		"requires":         string(job.Requires),
		"priority":         job.Priority,
		"timeout_ms":       job.TimeoutMs,
		"status":           string(StatusQueued),
		"created_at":       job.Metadata.CreatedAt.Format(timeLayout),
		"progress":         0,
		"chunks_processed": 0,
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), fields)
	pipe.ZAdd(ctx, queueKeyFor(job.Requires), redis.Z{
		Score:  float64(job.Priority),
		Member: job.ID,
	})
	_, err = pipe.Exec(ctx)
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return "", ErrUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	q.avail.markUp()

	log.Printf("Enqueue: jobId=%s taskType=%s requires=%s priority=%d", job.ID, job.TaskType, job.Requires, job.Priority)
	return job.ID, nil
}

// Claim probes the worker's native queue first, then queue:any, popping
// the highest-priority job id and recording ownership. Returns (nil, nil)
// when no job is available. The claim is not transactional across the pop
// and the hash update; a crash between the two leaks the job (spec.md
// §4.A, §8 scenario S6).
func (q *RedisQueue) Claim(ctx context.Context, workerType Requires, workerID string) (*Job, error) {
	if q.avail.get() == "down" {
		return nil, ErrUnavailable
	}

	candidates := []Requires{workerType}
	if workerType != RequiresAny {
		candidates = append(candidates, RequiresAny)
	}

	for _, class := range candidates {
		z, err := q.client.ZPopMax(ctx, queueKeyFor(class), 1).Result()
		if isConnectivityError(err) {
			q.avail.markDown(err)
			return nil, ErrUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("queue: claim zpopmax: %w", err)
		}
		q.avail.markUp()
		if len(z) == 0 {
			continue
		}

		jobID, _ := z[0].Member.(string)
		job, err := q.hydrateJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			log.Printf("Claim: jobId=%s payload missing (cancelled/expired), skipping to next queue", jobID)
			continue
		}

		now := time.Now().UTC()
		fields := map[string]interface{}{
			"status":     string(StatusRunning),
			"started_at": now.Format(timeLayout),
			"worker_id":  workerID,
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, jobKey(jobID), fields)
		pipe.HSet(ctx, runningKey(workerID), jobID, now.Unix())
		if _, err := pipe.Exec(ctx); isConnectivityError(err) {
			q.avail.markDown(err)
			return nil, ErrUnavailable
		} else if err != nil {
			return nil, fmt.Errorf("queue: claim record ownership: %w", err)
		}

		log.Printf("Claim: workerId=%s claimed jobId=%s taskType=%s class=%s", workerID, jobID, job.TaskType, class)
		return job, nil
	}

	return nil, nil
}

// hydrateJob reads job:<id> and decodes it back into a Job. Returns
// (nil, nil) when the hash does not exist (the job was cancelled/expired).
func (q *RedisQueue) hydrateJob(ctx context.Context, jobID string) (*Job, error) {
	h, err := q.client.HGetAll(ctx, jobKey(jobID)).Result()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("queue: hgetall %s: %w", jobID, err)
	}
	if len(h) == 0 {
		return nil, nil
	}

	var payload Payload
	if v := h["payload"]; v != "" {
		if err := json.Unmarshal([]byte(v), &payload); err != nil {
			return nil, fmt.Errorf("queue: malformed payload for %s: %w", jobID, err)
		}
	}
	var metadata Metadata
	if v := h["metadata"]; v != "" {
		if err := json.Unmarshal([]byte(v), &metadata); err != nil {
			return nil, fmt.Errorf("queue: malformed metadata for %s: %w", jobID, err)
		}
	}

	priority, _ := strconv.Atoi(h["priority"])
	timeoutMs, _ := strconv.Atoi(h["timeout_ms"])

	return &Job{
		ID:        jobID,
		TaskType:  TaskType(h["task_type"]),
		Requires:  Requires(h["requires"]),
		Priority:  priority,
		Payload:   payload,
		TimeoutMs: timeoutMs,
		Metadata:  metadata,
	}, nil
}

// assertOwner guards invariant 1: a job in state running has exactly one
// workerId, and no other worker may mutate it.
func (q *RedisQueue) assertOwner(ctx context.Context, jobID, workerID string) error {
	owner, err := q.client.HGet(ctx, jobKey(jobID), "worker_id").Result()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("queue: lookup owner of %s: %w", jobID, err)
	}
	if owner != workerID {
		return fmt.Errorf("queue: job %s is owned by %q, not %q", jobID, owner, workerID)
	}
	return nil
}

// Heartbeat writes last_heartbeat for a job this worker owns.
func (q *RedisQueue) Heartbeat(ctx context.Context, jobID, workerID string) error {
	if q.avail.get() == "down" {
		return ErrUnavailable
	}
	if err := q.assertOwner(ctx, jobID, workerID); err != nil {
		return err
	}
	err := q.client.HSet(ctx, jobKey(jobID), "last_heartbeat", time.Now().UTC().Format(timeLayout)).Err()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("queue: heartbeat %s: %w", jobID, err)
	}
	q.avail.markUp()
	return nil
}

// UpdateProgress writes progress/chunksProcessed, clamping progress to be
// monotonically non-decreasing (invariant 2).
func (q *RedisQueue) UpdateProgress(ctx context.Context, jobID string, progress, chunksProcessed int) error {
	if q.avail.get() == "down" {
		return ErrUnavailable
	}
	current, err := q.client.HGet(ctx, jobKey(jobID), "progress").Result()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	}
	if err != nil && err != redis.Nil {
		return fmt.Errorf("queue: read progress for %s: %w", jobID, err)
	}
	if currentVal, convErr := strconv.Atoi(current); convErr == nil && currentVal > progress {
		progress = currentVal
	}

	fields := map[string]interface{}{
		"progress":         progress,
		"chunks_processed": chunksProcessed,
	}
	if err := q.client.HSet(ctx, jobKey(jobID), fields).Err(); isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	} else if err != nil {
		return fmt.Errorf("queue: update progress for %s: %w", jobID, err)
	}
	q.avail.markUp()
	return nil
}

// Complete marks a job completed and releases the worker's ownership
// record.
func (q *RedisQueue) Complete(ctx context.Context, jobID, workerID string, result any) error {
	if q.avail.get() == "down" {
		return ErrUnavailable
	}
	if err := q.assertOwner(ctx, jobID, workerID); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("queue: marshal result for %s: %w", jobID, err)
	}

	fields := map[string]interface{}{
		"status":       string(StatusCompleted),
		"completed_at": time.Now().UTC().Format(timeLayout),
		"result":       string(resultJSON),
		"progress":     100,
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), fields)
	pipe.HDel(ctx, runningKey(workerID), jobID)
	if _, err := pipe.Exec(ctx); isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	} else if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	q.avail.markUp()
	log.Printf("Complete: workerId=%s jobId=%s", workerID, jobID)
	return nil
}

// Fail marks a job failed and releases the worker's ownership record.
func (q *RedisQueue) Fail(ctx context.Context, jobID, workerID string, errMsg string) error {
	if q.avail.get() == "down" {
		return ErrUnavailable
	}
	if err := q.assertOwner(ctx, jobID, workerID); err != nil {
		return err
	}

	fields := map[string]interface{}{
		"status":    string(StatusFailed),
		"failed_at": time.Now().UTC().Format(timeLayout),
		"error":     errMsg,
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), fields)
	pipe.HDel(ctx, runningKey(workerID), jobID)
	if _, err := pipe.Exec(ctx); isConnectivityError(err) {
		q.avail.markDown(err)
		return ErrUnavailable
	} else if err != nil {
		return fmt.Errorf("queue: fail %s: %w", jobID, err)
	}
	q.avail.markUp()
	log.Printf("Fail: workerId=%s jobId=%s error=%s", workerID, jobID, errMsg)
	return nil
}

// Status returns the current snapshot of a job, or (nil, nil) if unknown.
func (q *RedisQueue) Status(ctx context.Context, jobID string) (*Snapshot, error) {
	if q.avail.get() == "down" {
		return nil, ErrUnavailable
	}
	h, err := q.client.HGetAll(ctx, jobKey(jobID)).Result()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("queue: status %s: %w", jobID, err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	q.avail.markUp()
	return snapshotFromHash(jobID, h), nil
}

func snapshotFromHash(jobID string, h map[string]string) *Snapshot {
	var payload Payload
	json.Unmarshal([]byte(h["payload"]), &payload)

	progress, _ := strconv.Atoi(h["progress"])
	chunks, _ := strconv.Atoi(h["chunks_processed"])

	s := &Snapshot{
		JobID:           jobID,
		TaskType:        TaskType(h["task_type"]),
		Payload:         payload,
		Status:          Status(h["status"]),
		Progress:        progress,
		ChunksProcessed: chunks,
		WorkerID:        h["worker_id"],
		Error:           h["error"],
	}
	if v := h["result"]; v != "" {
		s.Result = json.RawMessage(v)
	}
	s.CreatedAt, _ = time.Parse(timeLayout, h["created_at"])
	s.StartedAt = parseOptionalTime(h["started_at"])
	s.LastHeartbeat = parseOptionalTime(h["last_heartbeat"])
	s.CompletedAt = parseOptionalTime(h["completed_at"])
	s.FailedAt = parseOptionalTime(h["failed_at"])
	return s
}

func parseOptionalTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return nil
	}
	return &t
}

// Stats returns the depth of each queue class.
func (q *RedisQueue) Stats(ctx context.Context) (map[string]int64, error) {
	if q.avail.get() == "down" {
		return nil, ErrUnavailable
	}
	classes := []Requires{RequiresCPU, RequiresGPU, RequiresRAG, RequiresAny}
	out := make(map[string]int64, len(classes))
	for _, class := range classes {
		n, err := q.client.ZCard(ctx, queueKeyFor(class)).Result()
		if isConnectivityError(err) {
			q.avail.markDown(err)
			return nil, ErrUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("queue: stats %s: %w", class, err)
		}
		out[string(class)] = n
	}
	q.avail.markUp()
	return out, nil
}

// Healthy reports whether Redis is currently reachable.
func (q *RedisQueue) Healthy() bool {
	return q.avail.get() == "up"
}

var _ Queue = (*RedisQueue)(nil)
