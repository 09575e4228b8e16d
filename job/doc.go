// Package job defines the durable job record, its state machine, and the
// persistence contract stores must satisfy.
//
// # Lifecycle
//
//	pending ──claim──▶ processing ──success──▶ completed
//	   ▲                   │
//	   │◀──retry (deferred)┤
//	   │                   └──budget exhausted──▶ dead
//	   └────────────────requeue─────────────────────┘
//
// A job is eligible for claiming iff it is pending and AvailableAt is
// not in the future. "Retrying" is not a stored state — it is pending
// with a deferred AvailableAt computed by the backoff policy.
//
// # Concurrency model
//
// Any number of worker processes may poll the same store. The claim is
// atomic with at-most-one-winner semantics; a loser simply observes "no
// job" and polls again. After a successful claim exactly one worker
// owns the record, so the follow-up transition needs no lock beyond its
// own state-guarded conditional write.
package job
