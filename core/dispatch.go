// Package core provides the fundamental building blocks of the golem ORM.
// This file implements operation dispatch: choosing between a static override
// and the built-in implementation, and framing each with hooks.
package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// fire runs the hooks matching hc and reports the firing to the observer.
func (m *Model[T]) fire(ctx context.Context, hc *HookContext) error {
	count, err := m.schema.Hooks.Fire(ctx, hc)
	if m.options.observer != nil {
		m.options.observer.HookFired(*hc, count)
	}
	if count > 0 {
		m.options.logger.Debug("hooks fired",
			zap.String("collection", m.collection.Collection),
			zap.String("operation", string(hc.Operation)),
			zap.String("phase", string(hc.Phase)),
			zap.String("kind", string(hc.Kind)),
			zap.String("origin", string(hc.Origin)),
			zap.Int("count", count),
			zap.Error(err))
	}
	return err
}

// static returns the override registered for op. A Base view never sees
// overrides.
func (m *Model[T]) static(op Operation) (StaticFunc[T], bool) {
	if m.base {
		return nil, false
	}
	return m.schema.lookupStatic(op)
}

// runStatic invokes a static override, framing it with the op's hooks when the
// schema's policy says so. The frame is bound to the model itself.
func (m *Model[T]) runStatic(ctx context.Context, op Operation, fn StaticFunc[T], args []any) (any, error) {
	framed := m.schema.Policy.frames(op)
	m.options.logger.Debug("static invoked",
		zap.String("collection", m.collection.Collection),
		zap.String("operation", string(op)),
		zap.Bool("framed", framed))

	pre := &HookContext{
		Operation: op,
		Phase:     PhasePre,
		Kind:      ContextModel,
		Origin:    OriginStatic,
		Schema:    m.collection,
		Receiver:  m,
		Args:      args,
	}
	if framed {
		if err := m.fire(ctx, pre); err != nil {
			return nil, err
		}
	}

	out, err := fn(ctx, m, args...)
	if err != nil {
		return nil, err
	}

	if framed {
		post := *pre
		post.Phase = PhasePost
		post.Result = out
		if err := m.fire(ctx, &post); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// runCore executes a built-in operation: pre hooks, the middleware-wrapped
// exec, then post hooks, all bound to receiver.
func (m *Model[T]) runCore(ctx context.Context, op Operation, kind ContextKind, receiver any, args []any, exec func(ctx context.Context) (any, error)) (any, error) {
	pre := &HookContext{
		Operation: op,
		Phase:     PhasePre,
		Kind:      kind,
		Origin:    OriginCore,
		Schema:    m.collection,
		Receiver:  receiver,
		Args:      args,
	}
	if err := m.fire(ctx, pre); err != nil {
		return nil, err
	}

	var out any
	executed := false
	handler := chainMiddlewares(m.options.middlewareList, func(ctx context.Context, op Operation, payload any) error {
		var err error
		executed = true
		out, err = exec(ctx)
		return err
	})
	if err := handler(ctx, op, receiver); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		return nil, &ExecutionError{Operation: op, Err: err}
	}
	if !executed {
		return nil, &ExecutionError{Operation: op, Err: ErrNotExecuted}
	}

	post := *pre
	post.Phase = PhasePost
	post.Result = out
	if err := m.fire(ctx, &post); err != nil {
		return nil, err
	}
	return out, nil
}

// staticResult converts a static's return value to the typed result of the
// operation it overrides. A nil result yields the zero value.
func staticResult[R any](op Operation, out any) (R, error) {
	var zero R
	if out == nil {
		return zero, nil
	}
	r, ok := out.(R)
	if !ok {
		return zero, &StaticResultError{Operation: op, Got: out}
	}
	return r, nil
}

// coreResult asserts the value produced by a core exec.
func coreResult[R any](op Operation, out any) (R, error) {
	r, ok := out.(R)
	if !ok {
		var zero R
		return zero, &ExecutionError{Operation: op, Err: fmt.Errorf("unexpected result %T", out)}
	}
	return r, nil
}

// Call invokes an operation by name.
//
// Built-in names are routed through the matching typed method (and therefore
// through any static registered under that name). Other names must have a
// static registered on the schema.
//
// Arguments for built-in names:
//
//	insert      (*T)
//	findOne     ([*Query[T]])      → *T
//	find        ([*Query[T]])      → []T
//	count       ([*Query[T]])      → int64
//	updateMany  (*Query[T], Changes) → int64
//	deleteMany  (*Query[T])        → int64
//	aggregate   (Pipeline)         → []Document
func (m *Model[T]) Call(ctx context.Context, op Operation, args ...any) (any, error) {
	if op.IsBuiltin() {
		return m.callBuiltin(ctx, op, args)
	}
	if fn, ok := m.static(op); ok {
		return m.runStatic(ctx, op, fn, args)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

func (m *Model[T]) callBuiltin(ctx context.Context, op Operation, args []any) (any, error) {
	queryArg := func() (*Query[T], error) {
		if len(args) == 0 || args[0] == nil {
			return NewQuery(m.schema), nil
		}
		qb, ok := args[0].(*Query[T])
		if !ok {
			return nil, fmt.Errorf("%w: %s expects *Query as first argument, got %T", ErrInvalidArguments, op, args[0])
		}
		return qb, nil
	}

	switch op {
	case OperationInsert:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: insert expects one document", ErrInvalidArguments)
		}
		doc, ok := args[0].(*T)
		if !ok {
			return nil, fmt.Errorf("%w: insert expects %T, got %T", ErrInvalidArguments, doc, args[0])
		}
		return nil, m.Create(ctx, doc)

	case OperationAggregate:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: aggregate expects a pipeline", ErrInvalidArguments)
		}
		pipeline, ok := args[0].(Pipeline)
		if !ok {
			return nil, fmt.Errorf("%w: aggregate expects Pipeline, got %T", ErrInvalidArguments, args[0])
		}
		return m.Aggregate(ctx, pipeline)

	case OperationUpdate:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: updateMany expects a query and changes", ErrInvalidArguments)
		}
		qb, err := queryArg()
		if err != nil {
			return nil, err
		}
		changes, ok := args[1].(Changes)
		if !ok {
			return nil, fmt.Errorf("%w: updateMany expects Changes, got %T", ErrInvalidArguments, args[1])
		}
		return m.Update(ctx, qb, changes)
	}

	qb, err := queryArg()
	if err != nil {
		return nil, err
	}
	switch op {
	case OperationFindOne:
		return m.FindOne(ctx, qb)
	case OperationFind:
		return m.FindMany(ctx, qb)
	case OperationCount:
		return m.Count(ctx, qb)
	case OperationDelete:
		return m.Delete(ctx, qb)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}
