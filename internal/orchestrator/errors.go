package orchestrator

import (
	"errors"
	"fmt"
)

// ErrRunInFlight is returned when a run is requested while another run is
// still active. The caller should retry after the current run finishes.
var ErrRunInFlight = errors.New("a generation run is already in progress")

// InvalidRequestError indicates the generation request was rejected before
// any work started.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid generation request: %s", e.Reason)
}

// FatalError indicates the run could not be set up at all: no jobs were
// dispatched and the run is recorded as failed.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("generation run failed to start: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
