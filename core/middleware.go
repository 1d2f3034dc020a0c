// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the middleware system, which allows cross-cutting concerns
// (logging, metrics, panic recovery) to wrap the execution of built-in
// operations.
package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Handler is the function signature executed by the ORM pipeline.
//
// Payload is the receiver of the operation (*Query[T], *Aggregate[T] or *T).
type Handler func(ctx context.Context, op Operation, payload any) error

// Middleware wraps a Handler with additional logic.
//
// Middlewares wrap the driver call only; hooks run outside of them, so a
// middleware sees exactly one execution per core firing.
type Middleware func(next Handler) Handler

// chainMiddlewares applies the chain to the final handler. The first
// middleware in the list is the outermost wrapper.
func chainMiddlewares(middlewareList []Middleware, final Handler) Handler {
	h := final
	for i := len(middlewareList) - 1; i >= 0; i-- {
		h = middlewareList[i](h)
	}
	return h
}

// LoggingMiddleware logs every operation execution with its duration.
//
// Example:
//
//	model := core.NewModel(schema, driver, core.WithMiddleware(core.LoggingMiddleware(logger)))
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			elapsed := time.Since(start)
			if err != nil {
				logger.Warn("operation failed",
					zap.String("operation", string(op)),
					zap.Duration("took", elapsed),
					zap.Error(err))
			} else {
				logger.Debug("operation completed",
					zap.String("operation", string(op)),
					zap.Duration("took", elapsed))
			}
			return err
		}
	}
}

// RecoverMiddleware turns a panic inside a driver into an error.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("operation panicked",
						zap.String("operation", string(op)),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())))
					retErr = fmt.Errorf("panic in %s: %v", op, r)
				}
			}()
			return next(ctx, op, payload)
		}
	}
}
