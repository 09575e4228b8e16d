package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
)

const jobColumns = "id, command, state, attempts, max_retries, last_error, worker_id, available_at, created_at, updated_at"

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j     job.Job
		state string
	)
	err := row.Scan(
		&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&j.LastError, &j.WorkerID, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forq_jobs (id, command, state, attempts, max_retries, last_error, worker_id, available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.LastError, j.WorkerID, j.AvailableAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return forq.ErrJobAlreadyExists
		}
		return fmt.Errorf("forq/postgres: enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest eligible pending job using
// FOR UPDATE SKIP LOCKED, so concurrent claimants never block each
// other and never win the same job.
func (s *Store) ClaimNext(ctx context.Context, workerID string, now time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE forq_jobs
		SET state = 'processing', attempts = attempts + 1, worker_id = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM forq_jobs
			WHERE state = 'pending' AND available_at <= $2
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("forq/postgres: claim next: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM forq_jobs WHERE id = $1`, jobID,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, fmt.Errorf("forq/postgres: get job: %w", err)
	}
	return j, nil
}

// MarkCompleted transitions a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = 'completed', last_error = '', worker_id = '', available_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'processing'`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/postgres: mark completed: %w", err)
	}
	return s.transitionOutcome(ctx, tag.RowsAffected(), jobID)
}

// ScheduleRetry transitions a processing job back to pending with a
// deferred availability.
func (s *Store) ScheduleRetry(ctx context.Context, jobID string, availableAt time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', last_error = $1, worker_id = '', available_at = $2, updated_at = NOW()
		WHERE id = $3 AND state = 'processing'`,
		lastError, availableAt, jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/postgres: schedule retry: %w", err)
	}
	return s.transitionOutcome(ctx, tag.RowsAffected(), jobID)
}

// MarkDead transitions a processing job to dead.
func (s *Store) MarkDead(ctx context.Context, jobID string, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = 'dead', last_error = $1, worker_id = '', updated_at = NOW()
		WHERE id = $2 AND state = 'processing'`,
		lastError, jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/postgres: mark dead: %w", err)
	}
	return s.transitionOutcome(ctx, tag.RowsAffected(), jobID)
}

// RequeueDead transitions a dead job back to pending with a fresh
// retry budget. A job in any other state is reported as not found.
func (s *Store) RequeueDead(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', attempts = 0, last_error = '', available_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'dead'`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/postgres: requeue dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return forq.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // NULL limit semantics: no limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM forq_jobs
		WHERE state = $1
		ORDER BY created_at ASC, id ASC
		LIMIT NULLIF($2, -1) OFFSET $3`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("forq/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("forq/postgres: list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobsByState returns the number of jobs per state.
func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM forq_jobs GROUP BY state`,
	)
	if err != nil {
		return nil, fmt.Errorf("forq/postgres: count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.State]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("forq/postgres: count jobs: %w", err)
		}
		counts[job.State(state)] = n
	}
	return counts, rows.Err()
}

// RecoverOrphanedJobs moves every processing job back to pending with
// immediate availability.
func (s *Store) RecoverOrphanedJobs(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', worker_id = '', available_at = NOW(), updated_at = NOW()
		WHERE state = 'processing'`,
	)
	if err != nil {
		return 0, fmt.Errorf("forq/postgres: recover orphaned jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// transitionOutcome maps a zero-row conditional update to the right
// sentinel: missing job or illegal source state.
func (s *Store) transitionOutcome(ctx context.Context, rows int64, jobID string) error {
	if rows > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return forq.ErrInvalidTransition
}
