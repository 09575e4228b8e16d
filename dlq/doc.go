// Package dlq provides the dead letter queue for jobs that have
// exhausted their retry budget. It supports inspection and requeueing.
//
// Dead jobs are not moved to a separate table: a job whose retries are
// spent stays in the job store with state dead, its last error and
// attempt count preserved for debugging. This package wraps the job
// store with the operations an operator needs:
//
//	svc := dlq.NewService(store)
//
//	// Inspect the queue.
//	entries, _ := svc.List(ctx, job.ListOpts{Limit: 50})
//	n, _ := svc.Count(ctx)
//
//	// Give a job another chance. Its attempt counter is reset and it
//	// becomes immediately claimable.
//	svc.Requeue(ctx, jobID)
//
// Requeueing a job that is not dead returns forq.ErrJobNotFound: from
// the dead letter queue's point of view, only dead jobs exist.
package dlq
