package ingest

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// TaskError classifies a target-level failure for the queue layer. The
// worker returns a retryable error for transient conditions (fetch
// exhaustion, storage outage) and a fatal one for conditions a resubmit
// cannot fix (payload without a user object).
type TaskError struct {
	Retryable bool
	Err       error
}

func (e *TaskError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s task error: %v", kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Retryable wraps err as a resubmittable task failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Retryable: true, Err: err}
}

// Fatal wraps err as a terminal task failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Retryable: false, Err: err}
}

// IsRetryable reports whether err allows the queue layer to resubmit the
// target. Unclassified errors count as retryable so a redelivery can make
// forward progress.
func IsRetryable(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return err != nil
}
