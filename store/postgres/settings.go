package postgres

import (
	"context"
	"fmt"

	"github.com/queueworks/forq"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM forq_settings WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", forq.ErrSettingNotFound
		}
		return "", fmt.Errorf("forq/postgres: get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores the value for key, overwriting any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forq_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("forq/postgres: set setting: %w", err)
	}
	return nil
}

// ListSettings returns all stored settings.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM forq_settings`)
	if err != nil {
		return nil, fmt.Errorf("forq/postgres: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("forq/postgres: list settings: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
