package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/backoff"
	"github.com/queueworks/forq/hook"
	"github.com/queueworks/forq/id"
	"github.com/queueworks/forq/job"
	"github.com/queueworks/forq/middleware"
)

// persistAttempts bounds how many times a state transition is retried
// against a flaky store before the worker gives up on the job. The job
// is left in processing and a later recovery sweep returns it to the
// queue.
const persistAttempts = 5

// persistRetryDelay is the pause between persist attempts.
const persistRetryDelay = time.Second

// Worker polls the store for eligible jobs and executes them one at a
// time. Multiple workers — goroutines or separate processes — may run
// against the same store; the claim protocol guarantees each job is
// handed to at most one of them.
type Worker struct {
	store        job.Store
	workerID     id.WorkerID
	executor     Executor
	backoff      backoff.Strategy
	hooks        *hook.Registry
	mw           middleware.Middleware
	logger       *slog.Logger
	pollInterval time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how long the worker sleeps when the queue is
// empty.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithExecutor sets the command executor.
func WithExecutor(e Executor) Option {
	return func(w *Worker) { w.executor = e }
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(w *Worker) { w.backoff = s }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(w *Worker) { w.hooks = r }
}

// WithMiddleware sets the execution middleware chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mw = middleware.Chain(mws...) }
}

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(workerID id.WorkerID) Option {
	return func(w *Worker) { w.workerID = workerID }
}

// New creates a Worker polling the given store.
func New(store job.Store, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		workerID:     id.NewWorkerID(),
		executor:     NewShellExecutor(),
		backoff:      backoff.DefaultStrategy(),
		logger:       slog.Default(),
		pollInterval: forq.DefaultConfig().PollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.hooks == nil {
		w.hooks = hook.NewRegistry(w.logger)
	}
	if w.mw == nil {
		w.mw = middleware.Chain()
	}
	return w
}

// WorkerID returns the worker's unique identifier.
func (w *Worker) WorkerID() id.WorkerID { return w.workerID }

// Run executes the worker loop until ctx is cancelled. It first sweeps
// orphaned jobs back to pending, then claims and executes jobs one at
// a time. Cancellation is honored between jobs only: an in-flight
// command always runs to completion and has its outcome persisted
// before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		slog.String("worker_id", w.workerID.String()),
		slog.Duration("poll_interval", w.pollInterval),
	)

	if err := w.recover(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return w.shutdown()
		default:
		}

		claimed, err := w.store.ClaimNext(ctx, w.workerID.String(), time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return w.shutdown()
			}
			w.logger.Error("claim failed", slog.String("error", err.Error()))
			w.sleep(ctx)
			continue
		}
		if claimed == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, claimed)
	}
}

// recover returns jobs stranded in processing by a crashed worker to
// the pending queue. Every worker sweeps at startup; the sweep is
// idempotent, so concurrent startups are harmless.
func (w *Worker) recover(ctx context.Context) error {
	n, err := w.store.RecoverOrphanedJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("recovered orphaned jobs",
			slog.String("worker_id", w.workerID.String()),
			slog.Int64("count", n),
		)
	}
	w.hooks.EmitWorkerRecovered(ctx, w.workerID.String(), n)
	return nil
}

// process runs one claimed job through the middleware chain and
// persists the resulting transition. Execution and persistence use a
// non-cancellable context so shutdown never abandons a claimed job.
func (w *Worker) process(ctx context.Context, j *job.Job) {
	execCtx := context.WithoutCancel(ctx)

	w.hooks.EmitJobStarted(execCtx, j)

	start := time.Now()
	err := w.mw(execCtx, j, func(ctx context.Context) error {
		return w.executor.Run(ctx, j)
	})
	elapsed := time.Since(start)

	if err == nil {
		w.complete(execCtx, j, elapsed)
		return
	}
	w.fail(execCtx, j, err)
}

func (w *Worker) complete(ctx context.Context, j *job.Job, elapsed time.Duration) {
	err := w.persist(ctx, j.ID, func() error {
		return w.store.MarkCompleted(ctx, j.ID)
	})
	if err != nil {
		return
	}

	j.State = job.StateCompleted
	w.hooks.EmitJobCompleted(ctx, j, elapsed)
}

// fail either schedules a retry with backoff or moves the job to the
// dead letter queue once its budget is spent. The attempt counter was
// already advanced by the claim, so the job is dead as soon as the
// count exceeds its budget.
func (w *Worker) fail(ctx context.Context, j *job.Job, execErr error) {
	j.LastError = execErr.Error()

	if j.RetriesExhausted() {
		err := w.persist(ctx, j.ID, func() error {
			return w.store.MarkDead(ctx, j.ID, execErr.Error())
		})
		if err != nil {
			return
		}

		j.State = job.StateDead
		w.logger.Warn("job moved to dead letter queue",
			slog.String("job_id", j.ID),
			slog.Int("attempts", j.Attempts),
			slog.String("error", execErr.Error()),
		)
		w.hooks.EmitJobDead(ctx, j, execErr)
		return
	}

	delay := w.backoff.Delay(j.Attempts)
	availableAt := time.Now().UTC().Add(delay)

	err := w.persist(ctx, j.ID, func() error {
		return w.store.ScheduleRetry(ctx, j.ID, availableAt, execErr.Error())
	})
	if err != nil {
		return
	}

	j.State = job.StatePending
	j.AvailableAt = availableAt
	w.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)
	w.hooks.EmitJobRetrying(ctx, j, j.Attempts, availableAt)
}

// persist applies a state transition, retrying transient store errors.
// ErrJobNotFound and ErrInvalidTransition are final: they mean another
// actor already moved the job, so the outcome is dropped.
func (w *Worker) persist(ctx context.Context, jobID string, fn func() error) error {
	var err error
	for attempt := range persistAttempts {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, forq.ErrJobNotFound) || errors.Is(err, forq.ErrInvalidTransition) {
			w.logger.Warn("job state changed underneath worker",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			return err
		}
		w.logger.Error("persist failed, retrying",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		time.Sleep(persistRetryDelay)
	}
	w.logger.Error("giving up on persist, job left for recovery",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	return err
}

func (w *Worker) shutdown() error {
	w.logger.Info("worker stopping", slog.String("worker_id", w.workerID.String()))
	w.hooks.EmitShutdown(context.Background())
	return nil
}

// sleep pauses for the poll interval, waking early on cancellation.
func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-time.After(w.pollInterval):
	case <-ctx.Done():
	}
}
