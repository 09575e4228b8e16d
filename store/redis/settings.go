package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/queueworks/forq"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.client.HGet(ctx, settingsKey, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", forq.ErrSettingNotFound
		}
		return "", fmt.Errorf("forq/redis: get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores the value for key, overwriting any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, settingsKey, key, value).Err(); err != nil {
		return fmt.Errorf("forq/redis: set setting: %w", err)
	}
	return nil
}

// ListSettings returns all stored settings.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("forq/redis: list settings: %w", err)
	}
	return out, nil
}
