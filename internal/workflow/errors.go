package workflow

import (
	"errors"
	"fmt"
)

// Severity classifies how far a failure reaches.
type Severity int

const (
	// SeverityItem failures stop one item; the batch continues (listing,
	// relisting) or aborts (shipping) per workflow policy.
	SeverityItem Severity = iota
	// SeverityBatch failures stop the whole run.
	SeverityBatch
)

// FlowError is a failure inside a workflow run, carrying the step and item
// it happened on.
type FlowError struct {
	Severity Severity
	Step     string
	Item     string
	Err      error
}

func (e *FlowError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Item, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func itemError(step, item string, err error) *FlowError {
	return &FlowError{Severity: SeverityItem, Step: step, Item: item, Err: err}
}

func batchError(step, item string, err error) *FlowError {
	return &FlowError{Severity: SeverityBatch, Step: step, Item: item, Err: err}
}

// IsBatchFatal reports whether err should stop the whole run (and, for the
// scheduler, further scheduled runs).
func IsBatchFatal(err error) bool {
	var flow *FlowError
	if errors.As(err, &flow) {
		return flow.Severity == SeverityBatch
	}
	return false
}

// ErrBusy rejects a run requested while another workflow holds the browser.
var ErrBusy = errors.New("another workflow is already running")

// ConflictError means a foreign browser process is already using the
// dedicated profile directory. The run is refused before any session work.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("browser profile is in use by another process: %s", e.Detail)
}
