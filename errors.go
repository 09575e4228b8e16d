package forq

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("forq: no store configured")
	ErrStoreClosed = errors.New("forq: store closed")

	// Not found errors.
	ErrJobNotFound     = errors.New("forq: job not found")
	ErrSettingNotFound = errors.New("forq: setting not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("forq: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("forq: invalid state transition")

	// Input errors.
	ErrMissingCommand = errors.New("forq: job command is required")
)
