// Package forq provides a persistent, crash-tolerant execution queue for
// shell commands. Jobs are stored durably, claimed atomically by competing
// worker processes, retried with exponential backoff, and retired into a
// dead letter state once their retry budget is exhausted.
//
// Forq is designed as a library with a thin CLI on top. Workers are
// independent OS processes; they never talk to each other directly — all
// coordination passes through a shared durable store.
//
// # Quick Start
//
//	s, err := sqlite.New("queue.db")
//	if err != nil { ... }
//	defer s.Close()
//
//	eng, err := engine.New(s)
//	if err != nil { ... }
//
//	// Producer side.
//	j, err := eng.Enqueue(ctx, "make backup")
//
//	// Worker side: one blocking loop per process.
//	w, err := eng.Worker(ctx)
//	if err != nil { ... }
//	err = w.Run(ctx)
//
// # Architecture
//
// Forq follows a composable store pattern: the job and setting subsystems
// each define their own store interface, and a single backend (SQLite,
// Postgres, Redis, or in-memory) implements all of them. The claim
// operation is the only cross-process synchronization point; every other
// mutation is a single-record conditional update guarded by the record's
// current state, so a stale read can never silently overwrite a
// transition made by another actor.
//
// Generated job IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers. Caller-supplied IDs are accepted as opaque strings.
package forq
