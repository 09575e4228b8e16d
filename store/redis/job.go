package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
)

// claimScanBatch is the page size the claim script walks the pending
// zset with. The script pages through the whole set, so the size only
// trades per-call ZRANGE cost against round trips inside the script.
const claimScanBatch = 128

// EnqueueJob stores the job as a Hash and indexes it in the pending
// Sorted Set.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	key := jobKey(j.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("forq/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return forq.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.ZAdd(ctx, stateKey(string(j.State)), goredis.Z{
		Score:  float64(j.CreatedAt.UTC().UnixMilli()),
		Member: j.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("forq/redis: enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest eligible pending job via a
// Lua script, so concurrent claimants never win the same job.
func (s *Store) ClaimNext(ctx context.Context, workerID string, now time.Time) (*job.Job, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{stateKey(string(job.StatePending)), stateKey(string(job.StateProcessing))},
		now.UTC().UnixMilli(), workerID, claimScanBatch, jobKeyPrefix,
	).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("forq/redis: claim next: %w", err)
	}

	jobID, ok := res.(string)
	if !ok {
		return nil, nil
	}
	return s.GetJob(ctx, jobID)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("forq/redis: get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, forq.ErrJobNotFound
	}
	return mapToJob(fields)
}

// MarkCompleted transitions a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.transition(ctx, jobID, job.StateProcessing, job.StateCompleted,
		"state", string(job.StateCompleted),
		"last_error", "",
		"worker_id", "",
		"available_at", nowMs,
		"updated_at", nowMs,
	)
}

// ScheduleRetry transitions a processing job back to pending with a
// deferred availability.
func (s *Store) ScheduleRetry(ctx context.Context, jobID string, availableAt time.Time, lastError string) error {
	return s.transition(ctx, jobID, job.StateProcessing, job.StatePending,
		"state", string(job.StatePending),
		"last_error", lastError,
		"worker_id", "",
		"available_at", availableAt.UTC().UnixMilli(),
		"updated_at", time.Now().UTC().UnixMilli(),
	)
}

// MarkDead transitions a processing job to dead.
func (s *Store) MarkDead(ctx context.Context, jobID string, lastError string) error {
	return s.transition(ctx, jobID, job.StateProcessing, job.StateDead,
		"state", string(job.StateDead),
		"last_error", lastError,
		"worker_id", "",
		"updated_at", time.Now().UTC().UnixMilli(),
	)
}

// RequeueDead transitions a dead job back to pending with a fresh
// retry budget. A job in any other state is reported as not found.
func (s *Store) RequeueDead(ctx context.Context, jobID string) error {
	nowMs := time.Now().UTC().UnixMilli()
	err := s.transition(ctx, jobID, job.StateDead, job.StatePending,
		"state", string(job.StatePending),
		"attempts", 0,
		"last_error", "",
		"available_at", nowMs,
		"updated_at", nowMs,
	)
	if errors.Is(err, forq.ErrInvalidTransition) {
		return forq.ErrJobNotFound
	}
	return err
}

// ListJobsByState returns jobs in the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = int64(opts.Offset + opts.Limit - 1)
	}
	ids, err := s.client.ZRange(ctx, stateKey(string(state)), int64(opts.Offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("forq/redis: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, forq.ErrJobNotFound) {
				continue // index raced a concurrent transition
			}
			return nil, err
		}
		if j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobsByState returns the number of jobs per state.
func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int64, error) {
	counts := make(map[job.State]int64, len(job.States))
	for _, state := range job.States {
		n, err := s.client.ZCard(ctx, stateKey(string(state))).Result()
		if err != nil {
			return nil, fmt.Errorf("forq/redis: count jobs: %w", err)
		}
		if n > 0 {
			counts[state] = n
		}
	}
	return counts, nil
}

// RecoverOrphanedJobs moves every processing job back to pending with
// immediate availability.
func (s *Store) RecoverOrphanedJobs(ctx context.Context) (int64, error) {
	n, err := recoverScript.Run(ctx, s.client,
		[]string{stateKey(string(job.StateProcessing)), stateKey(string(job.StatePending))},
		time.Now().UTC().UnixMilli(), jobKeyPrefix,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("forq/redis: recover orphaned jobs: %w", err)
	}
	return n, nil
}

// transition runs the guarded transition script and maps its verdict
// to the store sentinels.
func (s *Store) transition(ctx context.Context, jobID string, from, to job.State, fields ...any) error {
	args := make([]any, 0, 3+len(fields))
	args = append(args, jobID, string(from), jobKeyPrefix)
	args = append(args, fields...)

	res, err := transitionScript.Run(ctx, s.client,
		[]string{stateKey(string(from)), stateKey(string(to))},
		args...,
	).Text()
	if err != nil {
		return fmt.Errorf("forq/redis: transition %s to %s: %w", from, to, err)
	}
	switch res {
	case "ok":
		return nil
	case "not_found":
		return forq.ErrJobNotFound
	default:
		return forq.ErrInvalidTransition
	}
}

// ── hash mapping ──────────────────────────────────────────────────

func jobToMap(j *job.Job) map[string]any {
	return map[string]any{
		"id":           j.ID,
		"command":      j.Command,
		"state":        string(j.State),
		"attempts":     j.Attempts,
		"max_retries":  j.MaxRetries,
		"last_error":   j.LastError,
		"worker_id":    j.WorkerID,
		"available_at": j.AvailableAt.UTC().UnixMilli(),
		"created_at":   j.CreatedAt.UTC().UnixMilli(),
		"updated_at":   j.UpdatedAt.UTC().UnixMilli(),
	}
}

func mapToJob(fields map[string]string) (*job.Job, error) {
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("forq/redis: bad attempts %q: %w", fields["attempts"], err)
	}
	maxRetries, err := strconv.Atoi(fields["max_retries"])
	if err != nil {
		return nil, fmt.Errorf("forq/redis: bad max_retries %q: %w", fields["max_retries"], err)
	}

	availableAt, err := parseMillis(fields["available_at"])
	if err != nil {
		return nil, err
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseMillis(fields["updated_at"])
	if err != nil {
		return nil, err
	}

	return &job.Job{
		ID:          fields["id"],
		Command:     fields["command"],
		State:       job.State(fields["state"]),
		Attempts:    attempts,
		MaxRetries:  maxRetries,
		LastError:   fields["last_error"],
		WorkerID:    fields["worker_id"],
		AvailableAt: availableAt,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("forq/redis: bad timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
