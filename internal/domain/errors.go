package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the control core.
type ErrorKind string

const (
	// ErrorKindBackendFailure is a single extraction or generation backend failing.
	ErrorKindBackendFailure ErrorKind = "backend_failure"

	// ErrorKindExtractionExhausted means every extraction backend failed for a source.
	ErrorKindExtractionExhausted ErrorKind = "extraction_exhausted"

	// ErrorKindSelectorFailure is the intelligent selector failing. Never surfaced.
	ErrorKindSelectorFailure ErrorKind = "selector_failure"

	// ErrorKindInvalidTransition is an attempt to advance to a task other than the next one.
	ErrorKindInvalidTransition ErrorKind = "invalid_transition"
)

// ErrEmptyText marks a backend that succeeded but produced no text.
var ErrEmptyText = errors.New("extracted text is empty")

// BackendError reports one backend failing for one source.
type BackendError struct {
	Backend  string
	SourceID string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed for %s: %v", e.Backend, e.SourceID, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Kind returns ErrorKindBackendFailure.
func (e *BackendError) Kind() ErrorKind { return ErrorKindBackendFailure }

// ExtractionExhaustedError is returned when no backend produced text for a
// source. Err is the error from the last backend attempted.
type ExtractionExhaustedError struct {
	SourceID    string
	LastBackend string
	Attempts    int
	Err         error
}

func (e *ExtractionExhaustedError) Error() string {
	return fmt.Sprintf("extraction exhausted for %s after %d backend(s), last error: %v", e.SourceID, e.Attempts, e.Err)
}

func (e *ExtractionExhaustedError) Unwrap() error { return e.Err }

// Kind returns ErrorKindExtractionExhausted.
func (e *ExtractionExhaustedError) Kind() ErrorKind { return ErrorKindExtractionExhausted }

// SelectorError describes why an intelligent selection was rejected.
type SelectorError struct {
	Reason string
	Output string
	Err    error
}

func (e *SelectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("selector failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("selector failure (%s): %q", e.Reason, e.Output)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// Kind returns ErrorKindSelectorFailure.
func (e *SelectorError) Kind() ErrorKind { return ErrorKindSelectorFailure }

// InvalidTransitionError is a contract violation: the caller tried to
// complete a task that is not the next one for the state.
type InvalidTransitionError struct {
	State    PipelineState
	Expected Task
	Got      Task
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: completed %s but next task is %s", e.Got, e.Expected)
}

// Kind returns ErrorKindInvalidTransition.
func (e *InvalidTransitionError) Kind() ErrorKind { return ErrorKindInvalidTransition }

// IsExtractionExhausted reports whether err is an ExtractionExhaustedError.
func IsExtractionExhausted(err error) bool {
	var target *ExtractionExhaustedError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsSelectorFailure reports whether err is a SelectorError.
func IsSelectorFailure(err error) bool {
	var target *SelectorError
	return errors.As(err, &target)
}

// KindOf returns the error kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
