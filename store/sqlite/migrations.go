package sqlite

import (
	"context"
	"fmt"
	"time"
)

// migration is a named, versioned set of schema statements. Versions
// are applied in slice order and recorded in forq_migrations, so
// Migrate is safe to run at every startup.
type migration struct {
	version string
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: "20250301000000",
		name:    "create_jobs_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS forq_jobs (
				id           TEXT PRIMARY KEY,
				command      TEXT NOT NULL,
				state        TEXT NOT NULL DEFAULT 'pending',
				attempts     INTEGER NOT NULL DEFAULT 0,
				max_retries  INTEGER NOT NULL DEFAULT 3,
				last_error   TEXT NOT NULL DEFAULT '',
				worker_id    TEXT NOT NULL DEFAULT '',
				available_at INTEGER NOT NULL,
				created_at   INTEGER NOT NULL,
				updated_at   INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_forq_jobs_claim
				ON forq_jobs (available_at, created_at)
				WHERE state = 'pending'`,
			`CREATE INDEX IF NOT EXISTS idx_forq_jobs_state
				ON forq_jobs (state)`,
		},
	},
	{
		version: "20250301000001",
		name:    "create_settings_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS forq_settings (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS forq_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("forq/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.migrationApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
		s.logger.Info("applied migration",
			"version", m.version,
			"name", m.name,
		)
	}
	return nil
}

func (s *Store) migrationApplied(ctx context.Context, version string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM forq_migrations WHERE version = ?`, version,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("forq/sqlite: check migration %s: %w", version, err)
	}
	return n > 0, nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("forq/sqlite: begin migration %s: %w", m.version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("forq/sqlite: migration %s (%s): %w", m.version, m.name, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO forq_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("forq/sqlite: record migration %s: %w", m.version, err)
	}
	return tx.Commit()
}
