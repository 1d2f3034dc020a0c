// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the errors surfaced by model operations.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrHookAbort matches any *HookAbortError.
	ErrHookAbort = errors.New("golem: hook aborted operation")
	// ErrExecution matches any *ExecutionError.
	ErrExecution = errors.New("golem: operation execution failed")
	// ErrUnknownOperation is returned by Model.Call for a name that is
	// neither built-in nor registered as a static.
	ErrUnknownOperation = errors.New("golem: unknown operation")
	// ErrInvalidArguments is returned by Model.Call when the arguments do
	// not fit the built-in operation's signature.
	ErrInvalidArguments = errors.New("golem: invalid arguments")
	// ErrNotExecuted is wrapped in an *ExecutionError when a middleware
	// returns without calling next.
	ErrNotExecuted = errors.New("golem: middleware did not execute the operation")
)

// HookAbortError reports a hook that returned an error. For PhasePre the
// operation did not run.
type HookAbortError struct {
	Operation Operation
	Phase     Phase
	Origin    Origin
	Kind      ContextKind
	Err       error
}

func (e *HookAbortError) Error() string {
	return fmt.Sprintf("golem: %s hook for %q (%s/%s) failed: %v", e.Phase, e.Operation, e.Origin, e.Kind, e.Err)
}

func (e *HookAbortError) Unwrap() error { return e.Err }

func (e *HookAbortError) Is(target error) bool { return target == ErrHookAbort }

// ExecutionError reports a failure of the underlying driver call.
type ExecutionError struct {
	Operation Operation
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("golem: %s failed: %v", e.Operation, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// ValidationError reports a required field left at its zero value.
type ValidationError struct {
	Collection string
	Field      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("golem: %s.%s is required", e.Collection, e.Field)
}

// StaticResultError reports a static override whose return value does not
// match the typed operation it replaces.
type StaticResultError struct {
	Operation Operation
	Got       any
}

func (e *StaticResultError) Error() string {
	return fmt.Sprintf("golem: static %q returned unexpected %T", e.Operation, e.Got)
}
