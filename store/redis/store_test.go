package redis_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/job"
	redisstore "github.com/queueworks/forq/store/redis"
)

// newStore connects to the server named by FORQ_REDIS_ADDR. Tests are
// skipped when the variable is unset so the suite runs without a
// server.
func newStore(t *testing.T) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("FORQ_REDIS_ADDR")
	if addr == "" {
		t.Skip("FORQ_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 9})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	return redisstore.New(client, redisstore.WithLogger(slog.New(slog.DiscardHandler)))
}

func seed(t *testing.T, s *redisstore.Store, id string, createdAt time.Time) {
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

func TestEnqueueAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	seed(t, s, "job_1", now)

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Command != "echo job_1" || got.State != job.StatePending {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}

	if err := s.EnqueueJob(ctx, &job.Job{ID: "job_1", Command: "dup", CreatedAt: now}); !errors.Is(err, forq.ErrJobAlreadyExists) {
		t.Errorf("duplicate enqueue = %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, "job_missing"); !errors.Is(err, forq.ErrJobNotFound) {
		t.Errorf("GetJob missing = %v, want ErrJobNotFound", err)
	}
}

func TestClaimNext_OrderAndEligibility(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_new", now.Add(-time.Minute))
	seed(t, s, "job_old", now.Add(-2*time.Minute))

	// Oldest but deferred: must be skipped.
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
		t.Errorf("claimed = %+v, want processing/1/wkr_1", claimed)
	}

	claimed, err = s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.ID != "job_new" {
		t.Fatalf("second claim = %+v, want job_new", claimed)
	}

	claimed, err = s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("claimed %s, want nil (deferred)", claimed.ID)
	}
}

func TestClaimNext_SeesPastDeferredBacklog(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A long run of older retries all waiting out their backoff, then
	// one eligible job at the tail of the created_at order. The claim
	// must walk past the entire deferred run to find it.
	for i := range 200 {
		deferred := &job.Job{
			ID: fmt.Sprintf("job_deferred_%03d", i), Command: "true", State: job.StatePending,
			AvailableAt: now.Add(time.Hour),
			CreatedAt:   now.Add(time.Duration(i-300) * time.Second), UpdatedAt: now,
		}
		if err := s.EnqueueJob(ctx, deferred); err != nil {
			t.Fatal(err)
		}
	}
	seed(t, s, "job_eligible", now)

	claimed, err := s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != "job_eligible" {
		t.Fatalf("claimed %+v, want job_eligible", claimed)
	}

	claimed, err = s.ClaimNext(ctx, "wkr_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("claimed %s, want nil (everything else deferred)", claimed.ID)
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
	for i := range claimers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			claimed, err := s.ClaimNext(ctx, fmt.Sprintf("wkr_%d", n), now)
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if claimed != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d claimers won, want exactly 1", wins)
	}
}

func TestTransitionsAndRequeue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "job_1", now)

	if err := s.MarkCompleted(ctx, "job_1"); !errors.Is(err, forq.ErrInvalidTransition) {
		t.Errorf("MarkCompleted on pending = %v, want ErrInvalidTransition", err)
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
	if got.State != job.StatePending || got.Attempts != 1 || !got.AvailableAt.Equal(retryAt) {
		t.Errorf("after retry: %+v", got)
	}

	if _, err := s.ClaimNext(ctx, "wkr_1", retryAt.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDead(ctx, "job_1", "exit status 2"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}

	if err := s.RequeueDead(ctx, "job_1"); err != nil {
		t.Fatalf("RequeueDead: %v", err)
	}
	got, err = s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != job.StatePending || got.Attempts != 0 {
		t.Errorf("after requeue: %+v, want pending/0", got)
	}

	if err := s.RequeueDead(ctx, "job_1"); !errors.Is(err, forq.ErrJobNotFound) {
		t.Errorf("RequeueDead on pending = %v, want ErrJobNotFound", err)
	}
}

func TestListAndCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 4 {
		seed(t, s, fmt.Sprintf("job_%d", i), now.Add(time.Duration(i)*time.Second))
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

	page, err := s.ListJobsByState(ctx, job.StatePending, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page = %d jobs, want 2", len(page))
	}

	counts, err := s.CountJobsByState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[job.StatePending] != 3 || counts[job.StateProcessing] != 1 {
		t.Errorf("counts = %v", counts)
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
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, "backoff_base", "1.5"); err != nil {
		t.Fatal(err)
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
	if all["backoff_base"] != "1.5" {
		t.Errorf("ListSettings = %v", all)
	}
}
