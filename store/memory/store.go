// Package memory provides a fully in-memory store. Nothing survives a
// process exit, so it is suitable for unit tests and local development
// only — the durability contract of the real backends does not apply.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
	"github.com/queueworks/forq/setting"
)

// Ensure Store implements every subsystem interface at compile time.
var (
	_ job.Store     = (*Store)(nil)
	_ setting.Store = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	settings map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		settings: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return forq.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// ClaimNext atomically claims the oldest eligible pending job. The
// store mutex makes the select-and-mutate indivisible, mirroring the
// single-statement claim of the durable backends.
func (m *Store) ClaimNext(_ context.Context, workerID string, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *job.Job
	for _, j := range m.jobs {
		if !j.Eligible(now) {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.State = job.StateProcessing
	oldest.Attempts++
	oldest.WorkerID = workerID
	oldest.UpdatedAt = now

	cp := *oldest
	return &cp, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, forq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// MarkCompleted transitions a processing job to completed.
func (m *Store) MarkCompleted(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.processing(jobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.LastError = ""
	j.WorkerID = ""
	j.AvailableAt = now
	j.UpdatedAt = now
	return nil
}

// ScheduleRetry transitions a processing job back to pending with a
// deferred availability.
func (m *Store) ScheduleRetry(_ context.Context, jobID string, availableAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.processing(jobID)
	if err != nil {
		return err
	}

	j.State = job.StatePending
	j.LastError = lastError
	j.WorkerID = ""
	j.AvailableAt = availableAt
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDead transitions a processing job to dead.
func (m *Store) MarkDead(_ context.Context, jobID string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.processing(jobID)
	if err != nil {
		return err
	}

	j.State = job.StateDead
	j.LastError = lastError
	j.WorkerID = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// RequeueDead transitions a dead job back to pending with a fresh
// retry budget. A job in any other state is reported as not found.
func (m *Store) RequeueDead(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.State != job.StateDead {
		return forq.ErrJobNotFound
	}

	now := time.Now().UTC()
	j.State = job.StatePending
	j.Attempts = 0
	j.LastError = ""
	j.AvailableAt = now
	j.UpdatedAt = now
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountJobsByState returns the number of jobs per state.
func (m *Store) CountJobsByState(_ context.Context) (map[job.State]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[job.State]int64)
	for _, j := range m.jobs {
		counts[j.State]++
	}
	return counts, nil
}

// RecoverOrphanedJobs moves every processing job back to pending with
// immediate availability.
func (m *Store) RecoverOrphanedJobs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var recovered int64
	for _, j := range m.jobs {
		if j.State != job.StateProcessing {
			continue
		}
		j.State = job.StatePending
		j.WorkerID = ""
		j.AvailableAt = now
		j.UpdatedAt = now
		recovered++
	}
	return recovered, nil
}

// processing looks up a job and verifies it is currently claimed.
// The completed/retry/dead transitions are only legal from processing
// (per the job transition table). Caller must hold the write lock.
func (m *Store) processing(jobID string) (*job.Job, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, forq.ErrJobNotFound
	}
	if j.State != job.StateProcessing {
		return nil, forq.ErrInvalidTransition
	}
	return j, nil
}

// ──────────────────────────────────────────────────
// Setting Store
// ──────────────────────────────────────────────────

// GetSetting returns the value for key.
func (m *Store) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.settings[key]
	if !ok {
		return "", forq.ErrSettingNotFound
	}
	return v, nil
}

// SetSetting stores the value for key.
func (m *Store) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = value
	return nil
}

// ListSettings returns a copy of all stored settings.
func (m *Store) ListSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}
