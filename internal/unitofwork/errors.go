package unitofwork

import (
	"errors"
	"fmt"
)

// Stage names a queue drained during a flush.
type Stage string

const (
	StageCreate    Stage = "create"
	StageUpdate    Stage = "update"
	StageSync      Stage = "sync"
	StageHide      Stage = "hide"
	StageDestroy   Stage = "destroy"
	StageProcedure Stage = "procedure"
)

// FlushError reports the stage at which a flush stopped.
//
// Err is the originating failure. For a fan-out flush it joins every failure
// in the stage (errors.Join), so errors.Is and errors.As match any of them.
type FlushError struct {
	// Stage is the stage that failed. Later stages did not run.
	Stage Stage

	// UnitID identifies the unit of work.
	UnitID string

	// Strategy is "sequential" or "fan-out".
	Strategy string

	// Failed is the number of operations in the stage that failed.
	Failed int

	Err error
}

// Error implements the error interface.
func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %s (unit=%s, strategy=%s, failed=%d): %v",
		e.Stage, e.UnitID, e.Strategy, e.Failed, e.Err)
}

// Unwrap returns the underlying failure.
func (e *FlushError) Unwrap() error {
	return e.Err
}

// IsStage reports whether err is a FlushError for stage.
// Uses errors.As to handle wrapped errors.
func IsStage(err error, stage Stage) bool {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.Stage == stage
	}
	return false
}
