// Package processing holds the error taxonomy and state machine shared by the
// preprocessing stages.
package processing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage marks an empty, unreadable or malformed buffer.
	ErrInvalidImage = errors.New("invalid image")

	// ErrInvalidConfiguration marks a stage parameter that violates its
	// precondition. Parameters are never clamped.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// StageError identifies the stage that aborted a pipeline run.
type StageError struct {
	Stage State
	Step  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.Step, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// InvalidImage wraps a validation failure as ErrInvalidImage.
func InvalidImage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidImage, err)
}

// InvalidConfiguration builds an ErrInvalidConfiguration error.
func InvalidConfiguration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (State, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}
