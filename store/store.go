// Package store defines the aggregate persistence interface. The job
// and setting subsystems each define their own store interface; the
// composite Store composes them. Backends: SQLite, Postgres, Redis,
// and Memory.
package store

import (
	"context"

	"github.com/queueworks/forq/job"
	"github.com/queueworks/forq/setting"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem's persistence contract.
type Store interface {
	job.Store
	setting.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
