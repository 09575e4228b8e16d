package job

import (
	"context"
	"time"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for jobs.
//
// ClaimNext is the only operation requiring cross-process atomicity.
// Every other mutation is a single-record conditional update: the write
// re-checks the record's current state at commit time, so concurrent
// actors can never apply conflicting transitions.
type Store interface {
	// EnqueueJob persists a new job in pending state. Returns
	// forq.ErrJobAlreadyExists if the ID is taken.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimNext atomically claims the oldest (by CreatedAt) job that is
	// pending and available at the given time: the job transitions to
	// processing, Attempts is incremented, and WorkerID is recorded,
	// all within one indivisible operation. Returns (nil, nil) when no
	// job is eligible — including when a concurrent claimant won the
	// race.
	ClaimNext(ctx context.Context, workerID string, now time.Time) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// MarkCompleted transitions a processing job to completed, clearing
	// LastError and WorkerID. Returns forq.ErrInvalidTransition if the
	// job is not processing, forq.ErrJobNotFound if it does not exist.
	MarkCompleted(ctx context.Context, jobID string) error

	// ScheduleRetry transitions a processing job back to pending with
	// the given failure detail and deferred availability. Same error
	// contract as MarkCompleted.
	ScheduleRetry(ctx context.Context, jobID string, availableAt time.Time, lastError string) error

	// MarkDead transitions a processing job to dead, recording the
	// terminal failure detail. Same error contract as MarkCompleted.
	MarkDead(ctx context.Context, jobID string, lastError string) error

	// RequeueDead transitions a dead job back to pending, resetting
	// Attempts to 0 and making it immediately eligible. Returns
	// forq.ErrJobNotFound if no dead job has that ID — a job in any
	// other state is treated as not found and left untouched.
	RequeueDead(ctx context.Context, jobID string) error

	// ListJobsByState returns jobs in the given state, oldest first.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobsByState returns the number of jobs per state. States
	// with no jobs are omitted from the map.
	CountJobsByState(ctx context.Context) (map[State]int64, error)

	// RecoverOrphanedJobs unconditionally moves every processing job
	// back to pending with immediate availability and no backoff,
	// returning how many were recovered. A record can only sit in
	// processing at worker startup if an earlier worker died
	// mid-execution.
	RecoverOrphanedJobs(ctx context.Context) (int64, error)
}
