package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStaleGeneration is returned when a write targets a superseded run.
var ErrStaleGeneration = errors.New("stale generation")

// ErrUnknownCategory is returned for category names outside the known set.
var ErrUnknownCategory = errors.New("unknown category")

// ErrInvalidContext is returned when analysis inputs fail validation.
var ErrInvalidContext = errors.New("invalid analysis context")

// ErrNoActiveRun is returned by retries issued before any run was started.
var ErrNoActiveRun = errors.New("no active run")

// TransientError is a timeout, connection failure or non-2xx answer from the
// scoring service. The gateway retries these until its attempt cap.
type TransientError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}
	return e.Endpoint + ": request failed"
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PipelineFault aborts a guided run. Remote failures inside a step never
// produce one; only structural problems do.
type PipelineFault struct {
	Step  string
	Cause error
}

func (e *PipelineFault) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("pipeline fault: %v", e.Cause)
	}
	return fmt.Sprintf("pipeline fault at step %q: %v", e.Step, e.Cause)
}

func (e *PipelineFault) Unwrap() error {
	return e.Cause
}
