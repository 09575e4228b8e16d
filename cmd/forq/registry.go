package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// workerEntry records one spawned worker process.
type workerEntry struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// pidRegistry persists the PIDs of detached worker processes so that
// `worker stop` can find them later. It is a plain JSON file next to
// the queue database.
type pidRegistry struct {
	path string
}

func newPIDRegistry(path string) *pidRegistry {
	return &pidRegistry{path: path}
}

// Load reads the registry. A missing file is an empty registry.
func (r *pidRegistry) Load() ([]workerEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read worker registry: %w", err)
	}

	var entries []workerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse worker registry %s: %w", r.path, err)
	}
	return entries, nil
}

// Add appends entries and writes the registry back.
func (r *pidRegistry) Add(entries ...workerEntry) error {
	existing, err := r.Load()
	if err != nil {
		return err
	}
	return r.write(append(existing, entries...))
}

// Clear removes the registry file.
func (r *pidRegistry) Clear() error {
	err := os.Remove(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear worker registry: %w", err)
	}
	return nil
}

func (r *pidRegistry) write(entries []workerEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write worker registry: %w", err)
	}
	return nil
}
