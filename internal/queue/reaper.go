// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// OrphanEntry describes a job id recorded under running:<workerId> that
// FindOrphans judged stale. HasJobHash is false when the job:<id> hash
// could not be read back. The core does not reap these itself (§9, Open
// Question 3); this is the read-only reconstruction external tooling
// would use to decide.
type OrphanEntry struct {
	JobID       string
	WorkerID    string
	StartedAt   time.Time
	HasJobHash  bool
}

// FindOrphans inspects running:<workerId> and reports every job id that is
// still recorded as owned by that worker but has no corresponding job:<id>
// hash, or whose hash exists but whose last_heartbeat is missing or older
// than the staleAfter threshold. Entries whose started-at is more recent
// than that threshold are not reported.
func (q *RedisQueue) FindOrphans(ctx context.Context, workerID string, staleAfter time.Duration) ([]OrphanEntry, error) {
	if q.avail.get() == "down" {
		return nil, ErrUnavailable
	}

	running, err := q.client.HGetAll(ctx, runningKey(workerID)).Result()
	if isConnectivityError(err) {
		q.avail.markDown(err)
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("queue: find orphans for %s: %w", workerID, err)
	}
	q.avail.markUp()

	cutoff := time.Now().Add(-staleAfter)
	var out []OrphanEntry
	for jobID, startedAtStr := range running {
		sec, convErr := strconv.ParseInt(startedAtStr, 10, 64)
		if convErr != nil {
			continue
		}
		startedAt := time.Unix(sec, 0)
		if startedAt.After(cutoff) {
			continue
		}

		job, hydrateErr := q.hydrateJob(ctx, jobID)
		if hydrateErr != nil && hydrateErr != ErrUnavailable {
			return nil, hydrateErr
		}
		if job != nil {
			lastBeat := parseOptionalTime(q.client.HGet(ctx, jobKey(jobID), "last_heartbeat").Val())
			if lastBeat != nil && lastBeat.After(cutoff) {
				continue
			}
		}
		out = append(out, OrphanEntry{
			JobID:      jobID,
			WorkerID:   workerID,
			StartedAt:  startedAt,
			HasJobHash: job != nil,
		})
	}
	return out, nil
}
