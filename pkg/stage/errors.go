package stage

import (
	"errors"
	"fmt"

	"github.com/medcopilot/medcopilot/pkg/models"
)

var (
	// ErrStageExecution matches any StageError raised because the backend failed.
	ErrStageExecution = errors.New("stage execution failed")

	// ErrStageTimeout matches any StageError raised because the stage deadline elapsed.
	ErrStageTimeout = errors.New("stage deadline exceeded")
)

// StageError is the single failure a stage call can produce.
type StageError struct {
	Stage string
	Kind  models.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage %s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrStageTimeout:
		return e.Kind == models.ErrorKindStageTimeout
	case ErrStageExecution:
		return e.Kind == models.ErrorKindStageExecution
	}
	return false
}

func newExecutionError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: models.ErrorKindStageExecution, Err: err}
}

func newTimeoutError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: models.ErrorKindStageTimeout, Err: err}
}
