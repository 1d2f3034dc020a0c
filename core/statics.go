// Package core provides the fundamental building blocks of the golem ORM.
// This file defines static overrides: user functions registered on a schema
// under an operation name, replacing the model's built-in implementation.
package core

import (
	"context"
	"fmt"
)

// StaticFunc replaces the built-in implementation of an operation.
//
// The model it receives is the one the call was made on. To delegate to the
// built-in implementation, call the operation on model.Base(); calling it on
// model again would re-enter the static.
//
// Example:
//
//	schema.Static(core.OperationAggregate, func(ctx context.Context, m *core.Model[Item], args ...any) (any, error) {
//		pipeline := args[0].(core.Pipeline)
//		return m.Base().Aggregate(ctx, pipeline)
//	})
type StaticFunc[T any] func(ctx context.Context, model *Model[T], args ...any) (any, error)

// StaticHookPolicy decides whether a static call is framed by the schema's
// hooks for the same operation name.
type StaticHookPolicy int

const (
	// StaticHooksLegacy frames every static except those named like a query
	// or document operation. A static named "aggregate" is therefore framed,
	// and when it delegates to the built-in aggregate the hooks fire twice.
	StaticHooksLegacy StaticHookPolicy = iota
	// StaticHooksStrict frames only statics with custom names; a static that
	// shadows any built-in operation never fires hooks by itself.
	StaticHooksStrict
)

func (p StaticHookPolicy) String() string {
	switch p {
	case StaticHooksLegacy:
		return "legacy"
	case StaticHooksStrict:
		return "strict"
	default:
		return fmt.Sprintf("StaticHookPolicy(%d)", int(p))
	}
}

// ParseStaticHookPolicy parses "legacy" or "strict".
func ParseStaticHookPolicy(s string) (StaticHookPolicy, error) {
	switch s {
	case "", "legacy":
		return StaticHooksLegacy, nil
	case "strict":
		return StaticHooksStrict, nil
	default:
		return 0, fmt.Errorf("unknown static hook policy %q", s)
	}
}

// frames reports whether a static registered under op is wrapped with hooks.
func (p StaticHookPolicy) frames(op Operation) bool {
	if p == StaticHooksStrict {
		return !op.IsBuiltin()
	}
	return !op.IsQuery() && !op.IsDocument()
}

// Static installs fn as the implementation of op for models of this schema,
// replacing any previous static with the same name.
func (s *SchemaMeta[T]) Static(op Operation, fn StaticFunc[T]) {
	s.staticMutex.Lock()
	defer s.staticMutex.Unlock()
	s.StaticList[op] = fn
}

func (s *SchemaMeta[T]) lookupStatic(op Operation) (StaticFunc[T], bool) {
	s.staticMutex.RLock()
	defer s.staticMutex.RUnlock()
	fn, ok := s.StaticList[op]
	return fn, ok
}

// HasStatic reports whether a static is registered under op.
func (s *SchemaMeta[T]) HasStatic(op Operation) bool {
	_, ok := s.lookupStatic(op)
	return ok
}

// StaticHooks sets the schema's StaticHookPolicy.
func StaticHooks[T any](policy StaticHookPolicy) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.policy = policy }
}
