package bootstrap

import (
	"errors"
	"fmt"
)

// StageError is a fatal bootstrap failure. The process exits before the
// service is launched.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ErrStage wraps err as a fatal failure of stage.
func ErrStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// IsFatal reports whether err aborts the bootstrap sequence.
func IsFatal(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// StageOf returns the stage that produced a fatal error.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// ErrProbeUnavailable marks an accelerator utility that is missing, timed out
// or could not be executed. Detection treats it as "no accelerator".
var ErrProbeUnavailable = errors.New("accelerator probe unavailable")

// ErrAlreadyRun is returned by a second Controller.Run call.
var ErrAlreadyRun = errors.New("bootstrap already ran")
