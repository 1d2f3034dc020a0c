// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the contract between models and database backends.
package core

import "context"

// Document is a single row/document keyed by database column name.
type Document map[string]any

// Sort represents an ordering rule. Order is 1 for ascending, -1 for descending.
type Sort struct {
	FieldName string
	Order     int
}

// Where encapsulates filtering and pagination options for queries.
type Where struct {
	Condition   *Condition
	Limit       int
	Offset      int
	Sort        []Sort
	WithDeleted bool
	OnlyDeleted bool
}

// Changes maps column names to new values for Update.
type Changes map[string]any

// Transaction defines the contract for database transaction management.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Driver defines the contract for database backends.
//
// It is the datastore connection the built-in operations execute through;
// models never talk to a database any other way.
type Driver interface {
	// Connect validates connectivity.
	Connect(ctx context.Context) error
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	// Close releases the connection.
	Close(ctx context.Context) error

	// Transaction starts a new transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert persists documents.
	Insert(ctx context.Context, schema *SchemaCore, documents ...Document) error
	// FindOne returns the first matching document, or nil when none matches.
	FindOne(ctx context.Context, schema *SchemaCore, options *Where) (Document, error)
	// FindMany returns every matching document.
	FindMany(ctx context.Context, schema *SchemaCore, options *Where) ([]Document, error)
	// Update applies changes to documents matching condition and returns how
	// many were modified.
	Update(ctx context.Context, schema *SchemaCore, condition *Condition, changes Changes) (int64, error)
	// Delete removes documents matching condition and returns how many.
	Delete(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
	// Count returns the number of matching documents.
	Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
	// Aggregate runs the pipeline against the collection.
	Aggregate(ctx context.Context, schema *SchemaCore, pipeline Pipeline) ([]Document, error)
}

// Migrator is implemented by drivers that can create and drop the storage
// behind a schema. Document stores create collections lazily and may only
// implement Drop meaningfully.
type Migrator interface {
	// Migrate creates the collection/table for schema if it does not exist.
	Migrate(ctx context.Context, schema *SchemaCore) error
	// Drop removes the collection/table for schema and all of its data.
	Drop(ctx context.Context, schema *SchemaCore) error
}
