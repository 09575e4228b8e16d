// Package hook defines lifecycle hooks for forq. Hook implementations
// are notified of queue events (job enqueued, completed, dead, etc.)
// and can react to them — logging, metrics, alerting.
//
// Each lifecycle event is a separate interface so implementations opt
// in only to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/queueworks/forq/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, availableAt time.Time) error
}

// JobDead is called when a job exhausts its retries and moves to the
// dead letter queue.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job, err error) error
}

// JobRequeued is called when a dead job is moved back to pending.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, j *job.Job) error
}

// WorkerRecovered is called after a worker's startup sweep returns
// orphaned jobs to the queue.
type WorkerRecovered interface {
	OnWorkerRecovered(ctx context.Context, workerID string, count int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
