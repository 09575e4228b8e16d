// Package engine wires all forq subsystems together. It creates the
// hook registry and middleware chain, applies durable settings, and
// provides the Enqueue/Worker/DLQ operations the CLI is built on.
//
// The engine sits above every subsystem package and below the
// application layer: library users embed an Engine, the forq binary
// builds one per command.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/backoff"
	"github.com/queueworks/forq/dlq"
	"github.com/queueworks/forq/hook"
	"github.com/queueworks/forq/id"
	"github.com/queueworks/forq/job"
	mw "github.com/queueworks/forq/middleware"
	"github.com/queueworks/forq/setting"
	"github.com/queueworks/forq/store"
	"github.com/queueworks/forq/worker"
)

// Engine is the top-level facade over a store.
type Engine struct {
	store    store.Store
	hooks    *hook.Registry
	mws      []mw.Middleware
	executor worker.Executor
	logger   *slog.Logger
	cfg      forq.Config

	dlqService *dlq.Service
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) { e.hooks.Register(h) }
}

// WithMiddleware adds middleware to the engine's execution chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithExecutor overrides the command executor used by workers.
func WithExecutor(ex worker.Executor) Option {
	return func(e *Engine) { e.executor = ex }
}

// WithConfig sets the engine's runtime configuration.
func WithConfig(cfg forq.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New creates an Engine over the given store.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, forq.ErrNoStore
	}

	e := &Engine{
		store:    s,
		logger:   slog.Default(),
		executor: worker.NewShellExecutor(),
		cfg:      forq.DefaultConfig(),
	}
	e.hooks = hook.NewRegistry(e.logger)
	for _, opt := range opts {
		opt(e)
	}
	e.dlqService = dlq.NewServiceWithHooks(s, e.hooks)

	return e, nil
}

// Enqueue validates and persists a new pending job. The job's retry
// budget comes from the options; if none is given, the durable
// default_max_retries setting applies.
func (e *Engine) Enqueue(ctx context.Context, command string, opts ...job.Option) (*job.Job, error) {
	if strings.TrimSpace(command) == "" {
		return nil, forq.ErrMissingCommand
	}

	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	maxRetries := o.MaxRetries
	if maxRetries < 0 {
		values, err := setting.Load(ctx, e.store)
		if err != nil {
			return nil, err
		}
		maxRetries = values.DefaultMaxRetries
	}

	jobID := o.ID
	if jobID == "" {
		jobID = id.NewJobID().String()
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          jobID,
		Command:     command,
		State:       job.StatePending,
		MaxRetries:  maxRetries,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	e.logger.Info("job enqueued",
		slog.String("job_id", j.ID),
		slog.Int("max_retries", j.MaxRetries),
	)
	e.hooks.EmitJobEnqueued(ctx, j)
	return j, nil
}

// Worker builds a worker from the engine's configuration and runs it
// until ctx is cancelled. Durable settings are read once at startup:
// a running worker keeps the backoff base it started with.
func (e *Engine) Worker(ctx context.Context) error {
	values, err := setting.Load(ctx, e.store)
	if err != nil {
		return err
	}

	w := worker.New(e.store,
		worker.WithPollInterval(e.cfg.PollInterval),
		worker.WithExecutor(e.executor),
		worker.WithBackoff(backoff.NewPower(values.BackoffBase)),
		worker.WithHooks(e.hooks),
		worker.WithMiddleware(e.mws...),
		worker.WithLogger(e.logger),
	)
	return w.Run(ctx)
}

// DLQ returns the dead letter queue service.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Job returns a job by ID.
func (e *Engine) Job(ctx context.Context, jobID string) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// List returns jobs in the given state, oldest first.
func (e *Engine) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	return e.store.ListJobsByState(ctx, state, opts)
}

// Stats returns the number of jobs per state.
func (e *Engine) Stats(ctx context.Context) (map[job.State]int64, error) {
	return e.store.CountJobsByState(ctx)
}

// Settings returns all durable settings.
func (e *Engine) Settings(ctx context.Context) (map[string]string, error) {
	return e.store.ListSettings(ctx)
}

// SetSetting validates and stores a durable setting. Well-known keys
// must parse; unknown keys are stored verbatim.
func (e *Engine) SetSetting(ctx context.Context, key, value string) error {
	if err := setting.Validate(key, value); err != nil {
		return err
	}
	return e.store.SetSetting(ctx, key, value)
}

// Setting returns the stored value for key.
func (e *Engine) Setting(ctx context.Context, key string) (string, error) {
	return e.store.GetSetting(ctx, key)
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Hooks returns the engine's hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }
