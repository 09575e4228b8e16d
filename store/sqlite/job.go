package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forq_jobs (id, command, state, attempts, max_retries, last_error, worker_id, available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.LastError, j.WorkerID, toMillis(j.AvailableAt), toMillis(j.CreatedAt), toMillis(j.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return forq.ErrJobAlreadyExists
		}
		return fmt.Errorf("forq/sqlite: enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest eligible pending job. The
// select-and-update is one statement, so SQLite's write lock
// guarantees at most one claimant per job even across processes.
func (s *Store) ClaimNext(ctx context.Context, workerID string, now time.Time) (*job.Job, error) {
	nowMs := toMillis(now)
	row := s.db.QueryRowContext(ctx, `
		UPDATE forq_jobs
		SET state = 'processing', attempts = attempts + 1, worker_id = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM forq_jobs
			WHERE state = 'pending' AND available_at <= ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, nowMs, nowMs,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("forq/sqlite: claim next: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM forq_jobs WHERE id = ?`, jobID,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, fmt.Errorf("forq/sqlite: get job: %w", err)
	}
	return j, nil
}

// MarkCompleted transitions a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	nowMs := toMillis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE forq_jobs
		SET state = 'completed', last_error = '', worker_id = '', available_at = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		nowMs, nowMs, jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/sqlite: mark completed: %w", err)
	}
	return s.transitionOutcome(ctx, res, jobID)
}

// ScheduleRetry transitions a processing job back to pending with a
// deferred availability.
func (s *Store) ScheduleRetry(ctx context.Context, jobID string, availableAt time.Time, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', last_error = ?, worker_id = '', available_at = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		lastError, toMillis(availableAt), toMillis(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/sqlite: schedule retry: %w", err)
	}
	return s.transitionOutcome(ctx, res, jobID)
}

// MarkDead transitions a processing job to dead.
func (s *Store) MarkDead(ctx context.Context, jobID string, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE forq_jobs
		SET state = 'dead', last_error = ?, worker_id = '', updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		lastError, toMillis(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/sqlite: mark dead: %w", err)
	}
	return s.transitionOutcome(ctx, res, jobID)
}

// RequeueDead transitions a dead job back to pending with a fresh
// retry budget. A job in any other state is reported as not found.
func (s *Store) RequeueDead(ctx context.Context, jobID string) error {
	nowMs := toMillis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', attempts = 0, last_error = '', available_at = ?, updated_at = ?
		WHERE id = ? AND state = 'dead'`,
		nowMs, nowMs, jobID,
	)
	if err != nil {
		return fmt.Errorf("forq/sqlite: requeue dead: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return forq.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM forq_jobs
		WHERE state = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("forq/sqlite: list jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("forq/sqlite: list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobsByState returns the number of jobs per state.
func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM forq_jobs GROUP BY state`,
	)
	if err != nil {
		return nil, fmt.Errorf("forq/sqlite: count jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	counts := make(map[job.State]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("forq/sqlite: count jobs: %w", err)
		}
		counts[job.State(state)] = n
	}
	return counts, rows.Err()
}

// RecoverOrphanedJobs moves every processing job back to pending with
// immediate availability.
func (s *Store) RecoverOrphanedJobs(ctx context.Context) (int64, error) {
	nowMs := toMillis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE forq_jobs
		SET state = 'pending', worker_id = '', available_at = ?, updated_at = ?
		WHERE state = 'processing'`,
		nowMs, nowMs,
	)
	if err != nil {
		return 0, fmt.Errorf("forq/sqlite: recover orphaned jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// transitionOutcome maps a zero-row conditional update to the right
// sentinel: missing job or illegal source state.
func (s *Store) transitionOutcome(ctx context.Context, res interface{ RowsAffected() (int64, error) }, jobID string) error {
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return forq.ErrInvalidTransition
}
