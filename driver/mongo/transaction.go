// Package driver provides the MongoDB implementation of core.Driver.
// This file adapts MongoDB sessions to core.Transaction.
package driver

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// mongoTransaction wraps a session with an open transaction. Commit and
// Rollback both end the session.
type mongoTransaction struct {
	session mongo.Session
}

func (transaction *mongoTransaction) Commit(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.CommitTransaction(ctx)
}

func (transaction *mongoTransaction) Rollback(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.AbortTransaction(ctx)
}
