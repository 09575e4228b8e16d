package job

// transitions is the legal state transition table. Anything not listed
// here must be rejected, never silently applied.
//
//	pending    → processing  successful claim (attempts += 1)
//	processing → completed   command exited successfully
//	processing → pending     command failed, retries remain (deferred AvailableAt)
//	processing → dead        command failed, retry budget exhausted
//	dead       → pending     explicit operator requeue (attempts reset to 0)
var transitions = map[State][]State{
	StatePending:    {StateProcessing},
	StateProcessing: {StateCompleted, StatePending, StateDead},
	StateCompleted:  {},
	StateDead:       {StatePending},
}

// CanTransition reports whether moving a job from one state to another
// is legal. Store backends use this (or equivalent conditional writes)
// to guard every mutation.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
