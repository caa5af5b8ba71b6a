package registry

import "fmt"

// TransitionError reports a rejected status move.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}
