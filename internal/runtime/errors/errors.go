// Package errors holds every error the engine reports. Structural errors stop
// a flow before any goroutine starts, sequencing errors guard the flow life
// cycle, and ErrFatal marks conditions that must never be retried.
package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph       = sterrors.New("dagflow: invalid graph")
	ErrGraphRequired      = fmt.Errorf("%w: graph is required", ErrInvalidGraph)
	ErrEmptyGraph         = fmt.Errorf("%w: graph has no entry nodes", ErrInvalidGraph)
	ErrDependenciesNotMet = sterrors.New("dagflow: dependencies not met")
	ErrAlreadyInitialized = sterrors.New("dagflow: flow already initialised")
	ErrFlowClosed         = sterrors.New("dagflow: flow is closed")
	ErrStopTrigger        = sterrors.New("dagflow: trigger stopped")
	ErrFatal              = sterrors.New("dagflow: fatal condition")
	ErrTriggerRequired    = sterrors.New("dagflow: trigger is required")
	ErrFlowRequired       = sterrors.New("dagflow: flow is required")
	ErrTracerRequired     = sterrors.New("dagflow: tracer is required")
	ErrTopicRequired      = sterrors.New("dagflow: topic is required")
	ErrPublisherRequired  = sterrors.New("dagflow: publisher is required")
	ErrSubscriberRequired = sterrors.New("dagflow: subscriber is required")
)

// CyclicGraphError reports a directed cycle. Path lists the nodes of the
// cycle, first node repeated at the end.
type CyclicGraphError struct {
	Path []string
}

func (e *CyclicGraphError) Error() string {
	return "dagflow: graph must not be cyclic: " + strings.Join(e.Path, " -> ")
}

func (e *CyclicGraphError) Unwrap() error { return ErrInvalidGraph }

// MissingStageError reports a node with no stage bound to it. This is usually
// an edge that names a node nobody declared.
type MissingStageError struct {
	Node string
}

func (e *MissingStageError) Error() string {
	return fmt.Sprintf("dagflow: node %q has no stage; check edge definitions for misspelt node names", e.Node)
}

func (e *MissingStageError) Unwrap() error { return ErrInvalidGraph }

// InvalidStageError reports a bound stage value that cannot execute.
type InvalidStageError struct {
	Node   string
	Reason string
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("dagflow: node %q has an invalid stage: %s", e.Node, e.Reason)
}

func (e *InvalidStageError) Unwrap() error { return ErrInvalidGraph }

// MissingLabelError is returned when a flow is constructed without a label.
type MissingLabelError struct{}

func (MissingLabelError) Error() string { return "dagflow: flows must have a label" }

// DependenciesNotMetError is returned when an operation runs before the flow
// was initialised.
type DependenciesNotMetError struct {
	Operation string
}

func (e *DependenciesNotMetError) Error() string {
	return fmt.Sprintf("dagflow: Init must be called before %s", e.Operation)
}

func (e *DependenciesNotMetError) Unwrap() error { return ErrDependenciesNotMet }

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "dagflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// Fatal marks err as fatal. Fatal errors are never retried by a stage and
// end trigger supervision instead of restarting it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err carries the fatal mark.
func IsFatal(err error) bool {
	return sterrors.Is(err, ErrFatal)
}
