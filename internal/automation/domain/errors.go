package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyServiceList is returned when a work order carries no service
	// entries; compilation cannot produce a plan from nothing.
	ErrEmptyServiceList = errors.New("work order has no service entries")

	// ErrJobNotFound marks a registry lookup miss. Callers map it to a
	// not-found response, never a failure.
	ErrJobNotFound = errors.New("automation job not found")

	// ErrJobLimitReached is returned when the registry is full of active
	// jobs and cannot accept another.
	ErrJobLimitReached = errors.New("active job limit reached")

	// ErrSessionAcquisition is returned when the engine cannot open a
	// browser session for the job.
	ErrSessionAcquisition = errors.New("failed to acquire automation session")

	// ErrLoginFailed is returned when the portal rejects the supplied
	// credentials.
	ErrLoginFailed = errors.New("portal login failed")

	// ErrEngineFailure is returned when the engine reports a failed run or
	// errors mid-automation.
	ErrEngineFailure = errors.New("automation engine failure")
)

// CompilationError wraps a defect in the work order that prevents strategy
// compilation. It surfaces to the caller and no job is created.
type CompilationError struct {
	Reason string
	Err    error
}

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("strategy compilation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("strategy compilation failed: %s", e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// NewCompilationError wraps err with a compilation-stage reason.
func NewCompilationError(reason string, err error) error {
	return &CompilationError{Reason: reason, Err: err}
}
