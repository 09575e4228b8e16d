package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPIDRegistry_RoundTrip(t *testing.T) {
	r := newPIDRegistry(filepath.Join(t.TempDir(), "workers.json"))

	// Missing file reads as empty.
	entries, err := r.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh registry has %d entries", len(entries))
	}

	now := time.Now().UTC()
	if err := r.Add(workerEntry{PID: 100, StartedAt: now}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(workerEntry{PID: 200, StartedAt: now}, workerEntry{PID: 300, StartedAt: now}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	entries, err = r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].PID != 100 || entries[2].PID != 300 {
		t.Errorf("entries = %+v", entries)
	}

	if err := r.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err = r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("registry not empty after Clear: %+v", entries)
	}

	// Clearing twice is fine.
	if err := r.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
