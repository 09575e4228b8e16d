package job

import "time"

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a worker.
	// Retries are not a separate state: a failed job goes back to
	// pending with a deferred AvailableAt.
	StatePending State = "pending"
	// StateProcessing means a worker has claimed the job and is
	// executing its command.
	StateProcessing State = "processing"
	// StateCompleted means the command exited successfully.
	StateCompleted State = "completed"
	// StateDead means the job exhausted its retry budget and has been
	// retired to the dead letter queue.
	StateDead State = "dead"
)

// States lists all job states in lifecycle order.
var States = []State{StatePending, StateProcessing, StateCompleted, StateDead}

// Valid reports whether s is a known job state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateDead:
		return true
	}
	return false
}

// Job represents one durable unit of work: an opaque shell command plus
// the bookkeeping needed to claim, retry, and retire it.
type Job struct {
	// ID is globally unique. Generated (TypeID) when the caller does
	// not supply one; otherwise an opaque caller-chosen string.
	ID string `json:"id"`

	// Command is the shell command to execute. Opaque to the core.
	Command string `json:"command"`

	State State `json:"state"`

	// Attempts counts claims made on this job. It only ever grows,
	// except for an explicit dead → pending requeue which resets it.
	Attempts int `json:"attempts"`

	// MaxRetries is the retry budget fixed at enqueue time.
	MaxRetries int `json:"max_retries"`

	// LastError holds the failure detail from the most recent failed
	// attempt. Cleared on completion and on requeue.
	LastError string `json:"last_error,omitempty"`

	// WorkerID records which worker currently holds the claim. Cleared
	// when the job leaves processing. Informational: the recovery sweep
	// does not consult it (see worker.Recover).
	WorkerID string `json:"worker_id,omitempty"`

	// AvailableAt is the earliest time the job may be claimed.
	AvailableAt time.Time `json:"available_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the job can be claimed at the given time.
func (j *Job) Eligible(now time.Time) bool {
	return j.State == StatePending && !j.AvailableAt.After(now)
}

// RetriesExhausted reports whether a failure occurring now is terminal.
// Attempts is the post-claim value, so a job with MaxRetries=n is
// executed up to n+1 times before it goes dead.
func (j *Job) RetriesExhausted() bool {
	return j.Attempts > j.MaxRetries
}
