package sqlite_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
	"github.com/queueworks/forq/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forq.db")
	s, err := sqlite.New(path, sqlite.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func seed(t *testing.T, s *sqlite.Store, id string, createdAt time.Time) {
	t.Helper()
	err := s.EnqueueJob(context.Background(), &job.Job{
		ID:          id,
		Command:     "echo " + id,
		State:       job.StatePending,
		MaxRetries:  3,
		AvailableAt: createdAt,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newStore(t)
	// Second run must be a no-op, not an error.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestEnqueueAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	seed(t, s, "job_1", now)

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Command != "echo job_1" {
		t.Errorf("command = %q", got.Command)
	}
	if got.State != job.StatePending {
		t.Errorf("state = %s, want pending", got.State)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}

	_, err = s.GetJob(ctx, "job_missing")
	if !errors.Is(err, forq.ErrJobNotFound) {
		t.Errorf("GetJob missing = %v, want ErrJobNotFound", err)
	}

	err = s.EnqueueJob(ctx, &job.Job{ID: "job_1", Command: "dup", AvailableAt: now, CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, forq.ErrJobAlreadyExists) {
		t.Errorf("duplicate enqueue = %v, want ErrJobAlreadyExists", err)
	}
}

func TestClaimNext_OrderAndEligibility(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_new", now.Add(-time.Minute))
	seed(t, s, "job_old", now.Add(-2*time.Minute))

	// Deferred job must be skipped even though it is the oldest.
	deferred := &job.Job{
		ID: "job_deferred", Command: "true", State: job.StatePending,
		AvailableAt: now.Add(time.Hour), CreatedAt: now.Add(-3 * time.Minute), UpdatedAt: now,
	}
	if err := s.EnqueueJob(ctx, deferred); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != "job_old" {
		t.Fatalf("claimed %+v, want job_old", claimed)
	}
	if claimed.State != job.StateProcessing || claimed.Attempts != 1 || claimed.WorkerID != "wkr_1" {
		t.Errorf("claimed job = %+v, want processing/1/wkr_1", claimed)
	}

	claimed, err = s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.ID != "job_new" {
		t.Fatalf("second claim = %+v, want job_new", claimed)
	}

	// Only the deferred job is left; nothing is eligible.
	claimed, err = s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("claimed %s, want nil (deferred)", claimed.ID)
	}
}

func TestClaimNext_AtMostOneWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_1", now)

	const claimers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimNext(ctx, "wkr_x", now)
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if claimed != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d claimers won, want exactly 1", wins)
	}
}

func TestTransitions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_1", now)

	// Transitions from pending are rejected.
	if err := s.MarkCompleted(ctx, "job_1"); !errors.Is(err, forq.ErrInvalidTransition) {
		t.Errorf("MarkCompleted on pending = %v, want ErrInvalidTransition", err)
	}
	if err := s.MarkDead(ctx, "job_1", "x"); !errors.Is(err, forq.ErrInvalidTransition) {
		t.Errorf("MarkDead on pending = %v, want ErrInvalidTransition", err)
	}
	if err := s.MarkCompleted(ctx, "job_missing"); !errors.Is(err, forq.ErrJobNotFound) {
		t.Errorf("MarkCompleted missing = %v, want ErrJobNotFound", err)
	}

	if _, err := s.ClaimNext(ctx, "wkr_1", now); err != nil {
		t.Fatal(err)
	}

	retryAt := now.Add(4 * time.Second).Truncate(time.Millisecond)
	if err := s.ScheduleRetry(ctx, "job_1", retryAt, "exit status 1"); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}
	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != job.StatePending || got.Attempts != 1 {
		t.Errorf("after retry: state=%s attempts=%d, want pending/1", got.State, got.Attempts)
	}
	if !got.AvailableAt.Equal(retryAt) {
		t.Errorf("available_at = %v, want %v", got.AvailableAt, retryAt)
	}
	if got.LastError != "exit status 1" {
		t.Errorf("last_error = %q", got.LastError)
	}

	// Claim again past the deferral and kill it.
	if _, err := s.ClaimNext(ctx, "wkr_1", retryAt.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDead(ctx, "job_1", "exit status 2"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}
	got, err = s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != job.StateDead || got.Attempts != 2 {
		t.Errorf("after death: state=%s attempts=%d, want dead/2", got.State, got.Attempts)
	}

	// Requeue resets the budget.
	if err := s.RequeueDead(ctx, "job_1"); err != nil {
		t.Fatalf("RequeueDead: %v", err)
	}
	got, err = s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != job.StatePending || got.Attempts != 0 {
		t.Errorf("after requeue: state=%s attempts=%d, want pending/0", got.State, got.Attempts)
	}

	// Requeueing a non-dead job fails.
	if err := s.RequeueDead(ctx, "job_1"); !errors.Is(err, forq.ErrJobNotFound) {
		t.Errorf("RequeueDead on pending = %v, want ErrJobNotFound", err)
	}
}

func TestListAndCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 4 {
		seed(t, s, "job_"+string(rune('a'+i)), now.Add(time.Duration(i)*time.Second))
	}
	if _, err := s.ClaimNext(ctx, "wkr_1", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	pending, err := s.ListJobsByState(ctx, job.StatePending, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobsByState: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].CreatedAt.Before(pending[i-1].CreatedAt) {
			t.Fatal("list not ordered oldest first")
		}
	}

	page, err := s.ListJobsByState(ctx, job.StatePending, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Fatalf("page = %d jobs, want 1", len(page))
	}

	counts, err := s.CountJobsByState(ctx)
	if err != nil {
		t.Fatalf("CountJobsByState: %v", err)
	}
	if counts[job.StatePending] != 3 || counts[job.StateProcessing] != 1 {
		t.Errorf("counts = %v, want pending=3 processing=1", counts)
	}
}

func TestRecoverOrphanedJobs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_a", now)
	seed(t, s, "job_b", now)
	if _, err := s.ClaimNext(ctx, "wkr_dead", now); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimNext(ctx, "wkr_dead", now); err != nil {
		t.Fatal(err)
	}

	n, err := s.RecoverOrphanedJobs(ctx)
	if err != nil {
		t.Fatalf("RecoverOrphanedJobs: %v", err)
	}
	if n != 2 {
		t.Errorf("recovered = %d, want 2", n)
	}

	counts, err := s.CountJobsByState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[job.StatePending] != 2 || counts[job.StateProcessing] != 0 {
		t.Errorf("counts after recovery = %v", counts)
	}
}

func TestSettings(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, "backoff_base")
	if !errors.Is(err, forq.ErrSettingNotFound) {
		t.Errorf("GetSetting = %v, want ErrSettingNotFound", err)
	}

	if err := s.SetSetting(ctx, "backoff_base", "3"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "backoff_base", "1.5"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	got, err := s.GetSetting(ctx, "backoff_base")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1.5" {
		t.Errorf("GetSetting = %q, want 1.5", got)
	}

	all, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all["backoff_base"] != "1.5" {
		t.Errorf("ListSettings = %v", all)
	}
}
