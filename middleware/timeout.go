package middleware

import (
	"context"
	"time"

	"github.com/queueworks/forq/job"
)

// Timeout returns middleware that cancels the execution context after d.
// A zero or negative duration disables the timeout.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
