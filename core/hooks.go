// Package core provides the fundamental building blocks of the golem ORM.
// This file defines lifecycle hooks that allow custom logic to be executed
// before or after an operation, together with the tags that describe which
// dispatch path fired them.
package core

import (
	"context"
	"fmt"
)

// Operation names an operation on a model.
//
// The same name is used as the key into a schema's hook registry and into its
// static override table, so a static named like a built-in operation shares
// that operation's hooks.
type Operation string

const (
	// OperationInsert persists a new document (document middleware).
	OperationInsert Operation = "insert"
	// OperationFindOne retrieves a single document (query middleware).
	OperationFindOne Operation = "findOne"
	// OperationFind retrieves many documents (query middleware).
	OperationFind Operation = "find"
	// OperationCount counts matching documents (query middleware).
	OperationCount Operation = "count"
	// OperationUpdate modifies matching documents (query middleware).
	OperationUpdate Operation = "updateMany"
	// OperationDelete removes matching documents (query middleware).
	OperationDelete Operation = "deleteMany"
	// OperationAggregate runs an aggregation pipeline (aggregate middleware).
	OperationAggregate Operation = "aggregate"
)

var queryOperationSet = map[Operation]struct{}{
	OperationFindOne: {},
	OperationFind:    {},
	OperationCount:   {},
	OperationUpdate:  {},
	OperationDelete:  {},
}

var documentOperationSet = map[Operation]struct{}{
	OperationInsert: {},
}

// IsQuery reports whether op is executed through a Query.
func (op Operation) IsQuery() bool {
	_, ok := queryOperationSet[op]
	return ok
}

// IsDocument reports whether op is executed against a single document.
func (op Operation) IsDocument() bool {
	_, ok := documentOperationSet[op]
	return ok
}

// IsBuiltin reports whether op is one of the operations implemented by Model.
func (op Operation) IsBuiltin() bool {
	return op.IsQuery() || op.IsDocument() || op == OperationAggregate
}

// Phase tells whether a hook runs before or after the operation.
type Phase string

const (
	// PhasePre hooks run before execution and may abort it.
	PhasePre Phase = "pre"
	// PhasePost hooks run after a successful execution.
	PhasePost Phase = "post"
)

// Origin identifies the dispatch path that fired a hook.
type Origin string

const (
	// OriginCore marks firings around the built-in implementation.
	OriginCore Origin = "core"
	// OriginStatic marks firings around a user-supplied static override.
	OriginStatic Origin = "static"
)

// ContextKind tags the receiver a hook is bound to.
type ContextKind string

const (
	// ContextModel is the receiver of a static call (*Model[T]).
	ContextModel ContextKind = "model"
	// ContextQuery is the receiver of a query operation (*Query[T]).
	ContextQuery ContextKind = "query"
	// ContextAggregate is the receiver of an aggregation (*Aggregate[T]).
	ContextAggregate ContextKind = "aggregate"
	// ContextDocument is the receiver of a document operation (*T).
	ContextDocument ContextKind = "document"
)

// HookContext is the execution context bound to a hook for one firing.
//
// Receiver holds the object the operation runs on; its dynamic type always
// agrees with Kind, so hooks can branch on Kind and assert Receiver safely.
// Result is only set for PhasePost.
type HookContext struct {
	Operation Operation
	Phase     Phase
	Kind      ContextKind
	Origin    Origin
	Schema    *SchemaCore
	Receiver  any
	Args      []any
	Result    any
}

func (hc *HookContext) String() string {
	return fmt.Sprintf("%s:%s kind=%s origin=%s", hc.Phase, hc.Operation, hc.Kind, hc.Origin)
}

// HookFunc is a pre or post callback.
//
// A pre hook returning an error aborts the operation; a post hook returning an
// error is surfaced to the caller after the operation already ran.
type HookFunc func(ctx context.Context, hc *HookContext) error

// HookOption customizes a hook registration.
type HookOption func(*hookEntry)

// OnlyOrigin restricts a hook to firings from the given dispatch origin.
//
// Without it a hook fires for every origin, which is what makes a static named
// "aggregate" and the built-in aggregate share the same registrations.
//
// Example:
//
//	schema.RegisterPreHook(core.OperationAggregate, fn, core.OnlyOrigin(core.OriginCore))
func OnlyOrigin(origin Origin) HookOption {
	return func(entry *hookEntry) {
		entry.origin = origin
	}
}
