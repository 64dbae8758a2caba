package engine

import (
	"errors"
	"fmt"

	"phasegate/internal/domain"
	"phasegate/internal/store"
)

var (
	// ErrConfiguration marks defects in the graph or gate registry. Callers
	// must not retry.
	ErrConfiguration = errors.New("configuration error")
	// ErrDependency marks record store failures during a gate check. The whole
	// evaluation may be retried.
	ErrDependency = errors.New("dependency error")

	ErrGraphCycle  = errors.New("phase graph walk exceeded hop bound")
	ErrUnreachable = errors.New("phase unreachable")
)

// ConfigurationError reports a missing gate or a cyclic graph for an edge.
type ConfigurationError struct {
	Edge domain.Edge
	Msg  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error on %s: %s: %v", e.Edge, e.Msg, e.Err)
	}
	return fmt.Sprintf("configuration error on %s: %s", e.Edge, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// EvaluationError wraps a store failure raised by one gate sub-check.
type EvaluationError struct {
	Gate  string
	Check string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("gate %s check %s: %v", e.Gate, e.Check, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func (e *EvaluationError) Is(target error) bool { return target == ErrDependency }

// ConcurrentModificationError reports that the work package changed after it
// was read. The caller re-fetches and decides whether to retry.
type ConcurrentModificationError struct {
	WorkPackageID string
	Version       int64
	Err           error
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("work package %s changed since version %d", e.WorkPackageID, e.Version)
}

func (e *ConcurrentModificationError) Unwrap() error {
	if e.Err == nil {
		return store.ErrConflict
	}
	return e.Err
}
