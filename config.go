package forq

import "time"

// Config holds runtime configuration for a worker process.
type Config struct {
	// PollInterval is how long a worker waits between unsuccessful
	// claim attempts.
	PollInterval time.Duration

	// ShutdownWait is how long `worker stop` waits for signalled
	// workers to finish their in-flight job before giving up on
	// confirmation. Workers themselves never force-kill a running
	// command.
	ShutdownWait time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 1 * time.Second,
		ShutdownWait: 10 * time.Second,
	}
}
