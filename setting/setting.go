// Package setting manages the durable configuration collection: string
// key/value pairs stored alongside the jobs, settable at any time and
// read fresh by each worker at startup. A running worker keeps the
// values it started with; changes apply to newly started workers only.
package setting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/queueworks/forq"
)

// Well-known setting keys.
const (
	// KeyBackoffBase is the base of the power backoff policy
	// (delay = base^attempts seconds). Positive real, default 2.
	KeyBackoffBase = "backoff_base"

	// KeyDefaultMaxRetries is the retry budget applied to jobs
	// enqueued without an explicit one. Non-negative integer, default 3.
	KeyDefaultMaxRetries = "default_max_retries"
)

// Defaults for the well-known keys.
const (
	DefaultBackoffBase = 2.0
	DefaultMaxRetries  = 3
)

// KnownKeys lists the well-known setting keys.
var KnownKeys = []string{KeyBackoffBase, KeyDefaultMaxRetries}

// Known reports whether key is a well-known setting.
func Known(key string) bool {
	return slices.Contains(KnownKeys, key)
}

// Store defines the persistence contract for settings.
type Store interface {
	// GetSetting returns the value for key, or forq.ErrSettingNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting stores the value for key, overwriting any previous one.
	SetSetting(ctx context.Context, key, value string) error

	// ListSettings returns all stored settings.
	ListSettings(ctx context.Context) (map[string]string, error)
}

// Values holds the parsed well-known settings.
type Values struct {
	BackoffBase       float64
	DefaultMaxRetries int
}

// DefaultValues returns Values with every key at its default.
func DefaultValues() Values {
	return Values{
		BackoffBase:       DefaultBackoffBase,
		DefaultMaxRetries: DefaultMaxRetries,
	}
}

// Load reads the well-known settings from the store, falling back to
// defaults for missing keys. Stored values that do not parse, or that
// violate a key's constraint, are an error rather than silently
// replaced.
func Load(ctx context.Context, s Store) (Values, error) {
	v := DefaultValues()

	raw, err := s.GetSetting(ctx, KeyBackoffBase)
	switch {
	case err == nil:
		base, parseErr := ParseBackoffBase(raw)
		if parseErr != nil {
			return Values{}, parseErr
		}
		v.BackoffBase = base
	case errors.Is(err, forq.ErrSettingNotFound):
		// keep default
	default:
		return Values{}, fmt.Errorf("setting: load %s: %w", KeyBackoffBase, err)
	}

	raw, err = s.GetSetting(ctx, KeyDefaultMaxRetries)
	switch {
	case err == nil:
		n, parseErr := ParseMaxRetries(raw)
		if parseErr != nil {
			return Values{}, parseErr
		}
		v.DefaultMaxRetries = n
	case errors.Is(err, forq.ErrSettingNotFound):
		// keep default
	default:
		return Values{}, fmt.Errorf("setting: load %s: %w", KeyDefaultMaxRetries, err)
	}

	return v, nil
}

// ParseBackoffBase validates a backoff_base value: any positive real.
// Bases <= 1 are degenerate (non-increasing delay) but permitted.
func ParseBackoffBase(raw string) (float64, error) {
	base, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("setting: %s: %q is not a number", KeyBackoffBase, raw)
	}
	if base <= 0 {
		return 0, fmt.Errorf("setting: %s must be positive, got %v", KeyBackoffBase, base)
	}
	return base, nil
}

// ParseMaxRetries validates a default_max_retries value: any
// non-negative integer.
func ParseMaxRetries(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting: %s: %q is not an integer", KeyDefaultMaxRetries, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("setting: %s must be non-negative, got %d", KeyDefaultMaxRetries, n)
	}
	return n, nil
}

// Validate checks a key/value pair before it is stored. Unknown keys
// are accepted verbatim — the store is a generic string map — but the
// well-known keys must parse.
func Validate(key, value string) error {
	switch key {
	case KeyBackoffBase:
		_, err := ParseBackoffBase(value)
		return err
	case KeyDefaultMaxRetries:
		_, err := ParseMaxRetries(value)
		return err
	}
	return nil
}
