package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/queueworks/forq/backoff"
	"github.com/queueworks/forq/job"
	"github.com/queueworks/forq/store/memory"
	"github.com/queueworks/forq/worker"
)

// scriptedExecutor returns its scripted errors in call order, then
// keeps returning the last one.
type scriptedExecutor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedExecutor) Run(_ context.Context, _ *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	if i < 0 {
		return nil
	}
	return s.errs[i]
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingExecutor blocks until released, to let tests cancel the
// worker mid-execution.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExecutor) Run(_ context.Context, _ *job.Job) error {
	close(b.started)
	<-b.release
	return nil
}

func enqueue(t *testing.T, s *memory.Store, id string, maxRetries int) {
	t.Helper()
	now := time.Now().UTC()
	err := s.EnqueueJob(context.Background(), &job.Job{
		ID:          id,
		Command:     "true",
		State:       job.StatePending,
		MaxRetries:  maxRetries,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

// waitForJob polls until the job satisfies the predicate or the
// deadline passes.
func waitForJob(t *testing.T, s *memory.Store, jobID string, ok func(*job.Job) bool) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if ok(j) {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := s.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached the wanted condition, stuck at %s with %d attempts", jobID, j.State, j.Attempts)
	return nil
}

// waitForState polls until the job reaches the wanted state.
func waitForState(t *testing.T, s *memory.Store, jobID string, want job.State) *job.Job {
	t.Helper()
	return waitForJob(t, s, jobID, func(j *job.Job) bool { return j.State == want })
}

func newTestWorker(s *memory.Store, opts ...worker.Option) *worker.Worker {
	base := []worker.Option{
		worker.WithPollInterval(5 * time.Millisecond),
		worker.WithLogger(slog.New(slog.DiscardHandler)),
	}
	return worker.New(s, append(base, opts...)...)
}

func runWorker(t *testing.T, w *worker.Worker, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return done
}

func TestWorker_ExecutesJobToCompletion(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 3)

	exec := &scriptedExecutor{}
	w := newTestWorker(s, worker.WithExecutor(exec))

	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(t, w, ctx)

	j := waitForState(t, s, "job_1", job.StateCompleted)
	if j.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", j.Attempts)
	}
	if j.LastError != "" {
		t.Errorf("last error = %q, want empty", j.LastError)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestWorker_RetriesThenDies(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 1)

	exec := &scriptedExecutor{errs: []error{errors.New("exit status 1")}}
	w := newTestWorker(s,
		worker.WithExecutor(exec),
		worker.WithBackoff(backoff.NewConstant(0)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorker(t, w, ctx)

	// max_retries=1: the first failure schedules a retry, the second
	// failure is terminal.
	j := waitForState(t, s, "job_1", job.StateDead)
	if j.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", j.Attempts)
	}
	if j.LastError != "exit status 1" {
		t.Errorf("last error = %q, want exit status 1", j.LastError)
	}
	if exec.callCount() != 2 {
		t.Errorf("executor ran %d times, want 2", exec.callCount())
	}
}

func TestWorker_ZeroRetriesDiesImmediately(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 0)

	exec := &scriptedExecutor{errs: []error{errors.New("boom")}}
	w := newTestWorker(s,
		worker.WithExecutor(exec),
		worker.WithBackoff(backoff.NewConstant(0)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorker(t, w, ctx)

	j := waitForState(t, s, "job_1", job.StateDead)
	if j.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", j.Attempts)
	}
}

func TestWorker_BackoffDefersRetry(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 3)

	exec := &scriptedExecutor{errs: []error{errors.New("flaky")}}
	w := newTestWorker(s,
		worker.WithExecutor(exec),
		worker.WithBackoff(backoff.NewConstant(time.Hour)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorker(t, w, ctx)

	// The job starts out pending, so wait for the failed attempt to be
	// recorded rather than for the state alone.
	j := waitForJob(t, s, "job_1", func(j *job.Job) bool {
		return j.State == job.StatePending && j.Attempts == 1
	})
	if until := time.Until(j.AvailableAt); until < 50*time.Minute {
		t.Errorf("available_at only %v away, want ~1h", until)
	}
	if j.LastError != "flaky" {
		t.Errorf("last error = %q, want flaky", j.LastError)
	}

	// The deferred job must not be picked up again.
	time.Sleep(50 * time.Millisecond)
	if exec.callCount() != 1 {
		t.Errorf("executor ran %d times, want 1 (retry still deferred)", exec.callCount())
	}
}

func TestWorker_RecoversOrphansAtStartup(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 3)

	// Simulate a crashed worker: claim the job and never finish it.
	if _, err := s.ClaimNext(context.Background(), "wkr_crashed", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	exec := &scriptedExecutor{}
	w := newTestWorker(s, worker.WithExecutor(exec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorker(t, w, ctx)

	// The sweep returns the orphan to pending, then the worker claims
	// and completes it. The interrupted attempt still counts.
	j := waitForState(t, s, "job_1", job.StateCompleted)
	if j.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (orphaned attempt + successful one)", j.Attempts)
	}
}

func TestWorker_ShutdownWaitsForInFlightJob(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "job_1", 3)

	exec := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := newTestWorker(s, worker.WithExecutor(exec))

	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(t, w, ctx)

	// Cancel while the job is mid-execution.
	<-exec.started
	cancel()

	select {
	case err := <-done:
		t.Fatalf("worker exited with %v while a job was in flight", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the job finished")
	}

	// The in-flight outcome was persisted before exit.
	j, err := s.GetJob(context.Background(), "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if j.State != job.StateCompleted {
		t.Errorf("state = %s after shutdown, want completed", j.State)
	}
}

func TestWorker_StopsPromptlyWhenIdle(t *testing.T) {
	s := memory.New()
	w := newTestWorker(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(t, w, ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("idle worker did not stop on cancellation")
	}
}
