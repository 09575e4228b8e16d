package job

// Options configures per-job behavior at enqueue time.
type Options struct {
	// ID is the caller-chosen job ID. Empty means generate one.
	ID string

	// MaxRetries is the retry budget. Negative means "use the stored
	// default_max_retries setting".
	MaxRetries int
}

// DefaultOptions returns Options that defer to generated IDs and the
// stored retry default.
func DefaultOptions() Options {
	return Options{MaxRetries: -1}
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// WithID sets a caller-chosen job ID instead of generating one.
func WithID(id string) Option {
	return func(o *Options) {
		o.ID = id
	}
}

// WithMaxRetries sets the retry budget for the job.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}
