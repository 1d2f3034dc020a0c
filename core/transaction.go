// Package core provides the fundamental building blocks of the golem ORM.
// This file defines transaction helpers: carrying a Transaction in a context
// and running a callback inside one.
package core

import (
	"context"
	"fmt"
)

type transactionKey struct{}

// WithTransaction injects a Transaction into ctx. Drivers look it up with
// TransactionFrom and run their statements inside it.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom extracts the Transaction carried by ctx, or nil.
func TransactionFrom(ctx context.Context) Transaction {
	if v, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return v
	}
	return nil
}

// TransactionFunc is the callback run by RunTransaction.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction executes fn inside a transaction: an error from fn rolls it
// back, otherwise it is committed.
//
// Example:
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//		return itemModel.Create(txCtx, &item)
//	})
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) error {
	tx, err := driver.Transaction(ctx)
	if err != nil {
		return fmt.Errorf("golem: begin transaction: %w", err)
	}
	txCtx := WithTransaction(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("golem: commit transaction: %w", err)
	}
	return nil
}
