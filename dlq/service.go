package dlq

import (
	"context"
	"log/slog"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/hook"
	"github.com/queueworks/forq/job"
)

// Service provides high-level dead letter queue operations over a job
// store.
type Service struct {
	store job.Store
	hooks *hook.Registry
}

// NewService creates a DLQ service.
func NewService(store job.Store) *Service {
	return &Service{
		store: store,
		hooks: hook.NewRegistry(slog.Default()),
	}
}

// NewServiceWithHooks creates a DLQ service that emits JobRequeued
// through the given registry.
func NewServiceWithHooks(store job.Store, hooks *hook.Registry) *Service {
	return &Service{store: store, hooks: hooks}
}

// List returns dead jobs, oldest first.
func (s *Service) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.store.ListJobsByState(ctx, job.StateDead, opts)
}

// Get returns a single dead job. A job in any other state is reported
// as not found.
func (s *Service) Get(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateDead {
		return nil, forq.ErrJobNotFound
	}
	return j, nil
}

// Count returns the number of dead jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	counts, err := s.store.CountJobsByState(ctx)
	if err != nil {
		return 0, err
	}
	return counts[job.StateDead], nil
}

// Requeue moves a dead job back to pending with a fresh retry budget
// and immediate availability, then emits JobRequeued.
func (s *Service) Requeue(ctx context.Context, jobID string) (*job.Job, error) {
	if err := s.store.RequeueDead(ctx, jobID); err != nil {
		return nil, err
	}

	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.hooks.EmitJobRequeued(ctx, j)
	return j, nil
}
