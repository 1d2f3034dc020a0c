// Package memory provides an in-process implementation of core.Driver.
// This file defines the snapshot based transaction.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/leandroluk/golem-statichooks/core"
)

// ErrTransactionDone is returned when a finished transaction is committed or
// rolled back again.
var ErrTransactionDone = errors.New("memory: transaction already finished")

type memoryTransaction struct {
	once     sync.Once
	driver   *Driver
	snapshot map[string][]core.Document
}

func (transaction *memoryTransaction) finish() bool {
	first := false
	transaction.once.Do(func() {
		first = true
	})
	return first
}

// Commit keeps every write made since the transaction began.
func (transaction *memoryTransaction) Commit(ctx context.Context) error {
	if !transaction.finish() {
		return ErrTransactionDone
	}
	transaction.snapshot = nil
	return nil
}

// Rollback restores the collections captured when the transaction began.
func (transaction *memoryTransaction) Rollback(ctx context.Context) error {
	if !transaction.finish() {
		return ErrTransactionDone
	}
	transaction.driver.mutex.Lock()
	defer transaction.driver.mutex.Unlock()
	transaction.driver.collectionList = transaction.snapshot
	transaction.snapshot = nil
	return nil
}
