package engine

import (
	"errors"
	"fmt"
)

// ReplayError reports a violated replay invariant. Replay errors are
// fatal for the verification run that produced them: the captured trace
// and the replayed execution can no longer be compared.
type ReplayError struct {
	// Code identifies the error category.
	Code ReplayErrorCode

	// Message is a human-readable description.
	Message string

	// Resource names the controller that failed.
	Resource string

	// Expected and Actual are event counter values where relevant.
	Expected uint64
	Actual   uint64

	// Err is the underlying cause, if any.
	Err error
}

// ReplayErrorCode categorizes replay errors.
type ReplayErrorCode string

const (
	// ErrCodeCounterOvershoot means the event counter passed the value
	// captured with an external stimulus before it could be injected.
	ErrCodeCounterOvershoot ReplayErrorCode = "COUNTER_OVERSHOOT"

	// ErrCodeQueueDrained means the queue emptied before the event counter
	// reached the captured value.
	ErrCodeQueueDrained ReplayErrorCode = "QUEUE_DRAINED"

	// ErrCodeForceOutputs means captured output values could not be
	// written to the target unit.
	ErrCodeForceOutputs ReplayErrorCode = "FORCE_OUTPUTS"

	// ErrCodeNotDriven means a drive command reached a controller that is
	// not in driven mode.
	ErrCodeNotDriven ReplayErrorCode = "NOT_DRIVEN"
)

// Error implements the error interface.
func (e *ReplayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReplayError) Unwrap() error { return e.Err }

// IsOvershoot reports whether err is a counter overshoot.
func IsOvershoot(err error) bool {
	var re *ReplayError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCounterOvershoot
	}
	return false
}

// IsReplayError reports whether err is or wraps a *ReplayError.
func IsReplayError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}

func newOvershootError(resource string, expected, actual uint64) *ReplayError {
	return &ReplayError{
		Code:     ErrCodeCounterOvershoot,
		Message:  fmt.Sprintf("event counter %d passed expected %d", actual, expected),
		Resource: resource,
		Expected: expected,
		Actual:   actual,
	}
}

func newDrainedError(resource string, expected, actual uint64) *ReplayError {
	return &ReplayError{
		Code:     ErrCodeQueueDrained,
		Message:  fmt.Sprintf("queue drained at event counter %d before reaching %d", actual, expected),
		Resource: resource,
		Expected: expected,
		Actual:   actual,
	}
}
