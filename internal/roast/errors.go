package roast

import (
	"errors"
	"fmt"
)

// Sentinel errors for roast operations.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("session not found")
	ErrNotComplete   = errors.New("session not complete or analysis not available")
	ErrCapture       = errors.New("capture failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrAnalysis      = errors.New("analysis failed")
	ErrNotResolvable = errors.New("storage reference not resolvable")
)

// Stage names one sequential unit of work within a job.
type Stage string

// Pipeline stages.
const (
	StageCapture     Stage = "capture"
	StagePersistence Stage = "persistence"
	StageAnalysis    Stage = "analysis"
)

func (s Stage) sentinel() error {
	switch s {
	case StageCapture:
		return ErrCapture
	case StagePersistence:
		return ErrPersistence
	case StageAnalysis:
		return ErrAnalysis
	default:
		return nil
	}
}

// StageError wraps a failure with the stage it aborted. errors.Is matches both
// the stage sentinel (ErrCapture, ...) and the underlying cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

// Unwrap exposes the stage sentinel and the cause.
func (e *StageError) Unwrap() []error {
	if sentinel := e.Stage.sentinel(); sentinel != nil {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

// StageOf extracts the failing stage from err, or "" when err is not a StageError.
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
