// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the Model[T], which represents the entry point for working
// with a specific schema (entity). A Model handles persistence, queries,
// aggregations, hooks, statics, soft-deletes, and event emission.
package core

import (
	"context"
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Model represents a repository-like abstraction for a schema T.
//
// Every typed operation first looks for a static registered under its name on
// the schema; when there is one the static runs instead of the built-in
// implementation. Base returns a view that always runs the built-ins.
type Model[T any] struct {
	schema     *SchemaMeta[T]
	collection *SchemaCore
	driver     Driver
	options    *modelOptions
	base       bool
}

type modelOptions struct {
	logger         *zap.Logger
	middlewareList []Middleware
	events         *EventDispatcher
	observer       Observer
}

// ModelOption configures a Model.
type ModelOption func(*modelOptions)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *zap.Logger) ModelOption {
	return func(o *modelOptions) { o.logger = logger }
}

// WithMiddleware appends middlewares around every built-in execution.
func WithMiddleware(middlewareList ...Middleware) ModelOption {
	return func(o *modelOptions) { o.middlewareList = append(o.middlewareList, middlewareList...) }
}

// WithEvents sets the dispatcher events are emitted to.
func WithEvents(events *EventDispatcher) ModelOption {
	return func(o *modelOptions) { o.events = events }
}

// WithObserver adds observers notified of every hook firing.
func WithObserver(observerList ...Observer) ModelOption {
	return func(o *modelOptions) {
		if o.observer != nil {
			observerList = append([]Observer{o.observer}, observerList...)
		}
		if len(observerList) == 1 {
			o.observer = observerList[0]
			return
		}
		o.observer = multiObserver(observerList)
	}
}

// NewModel creates a new Model bound to a schema and driver.
//
// Example:
//
//	itemModel := core.NewModel(itemSchema, driver, core.WithLogger(logger))
func NewModel[T any](schema *SchemaMeta[T], driver Driver, opts ...ModelOption) *Model[T] {
	options := &modelOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}
	return &Model[T]{schema: schema, collection: &schema.SchemaCore, driver: driver, options: options}
}

// Schema returns the schema the model was built from.
func (m *Model[T]) Schema() *SchemaMeta[T] {
	return m.schema
}

// Collection returns the runtime collection information passed to drivers.
func (m *Model[T]) Collection() *SchemaCore {
	return m.collection
}

// Base returns a view of the model that ignores statics. Statics use it to
// delegate to the built-in implementation of the operation they override.
func (m *Model[T]) Base() *Model[T] {
	view := *m
	view.base = true
	return &view
}

// IsBase reports whether m is a Base view.
func (m *Model[T]) IsBase() bool {
	return m.base
}

// WithTenant returns a Model bound to a different database. Hooks and statics
// are shared with m.
func (m *Model[T]) WithTenant(database string) *Model[T] {
	cloneCore := *m.collection
	cloneCore.Database = database
	view := *m
	view.collection = &cloneCore
	return &view
}

// withSoftDelete applies soft-delete filtering rules to a query.
func (m *Model[T]) withSoftDelete(where *Where) *Where {
	if where == nil || m.schema.deletedAtField == nil {
		return where
	}
	eff := *where
	col := m.schema.deletedAtField.DatabaseColumnName

	if where.OnlyDeleted {
		eff.Condition = foldConditionsAnd(where.Condition, Column(col).Nil().Not())
		return &eff
	}
	if !where.WithDeleted {
		eff.Condition = foldConditionsAnd(where.Condition, Column(col).Nil())
	}
	return &eff
}

func (m *Model[T]) orNewQuery(qb *Query[T]) *Query[T] {
	if qb == nil {
		return NewQuery(m.schema)
	}
	return qb
}

// validate checks required fields of doc.
func (m *Model[T]) validate(doc *T) error {
	value := reflect.ValueOf(doc).Elem()
	for _, f := range m.schema.Fields {
		if !f.IsRequired {
			continue
		}
		if fv := value.FieldByName(f.StructFieldName); fv.IsValid() && fv.IsZero() {
			return &ValidationError{Collection: m.collection.Collection, Field: f.DatabaseColumnName}
		}
	}
	return nil
}

// Create inserts a new entity.
//
// Timestamps and an empty string primary key are filled in before the insert
// hooks run, so pre hooks see the final document.
func (m *Model[T]) Create(ctx context.Context, doc *T) error {
	if fn, ok := m.static(OperationInsert); ok {
		_, err := m.runStatic(ctx, OperationInsert, fn, []any{doc})
		return err
	}

	now := time.Now()
	val := reflect.ValueOf(doc).Elem()
	if m.schema.createdAtField != nil {
		setTimeField(val.FieldByName(m.schema.createdAtField.StructFieldName), now)
	}
	if m.schema.updatedAtField != nil {
		setTimeField(val.FieldByName(m.schema.updatedAtField.StructFieldName), now)
	}
	if pk := m.collection.PrimaryKey(); pk != nil {
		setFieldIfZero(val.FieldByName(pk.StructFieldName), uuid.NewString())
	}

	_, err := m.runCore(ctx, OperationInsert, ContextDocument, doc, []any{doc}, func(ctx context.Context) (any, error) {
		if err := m.validate(doc); err != nil {
			return nil, err
		}
		return nil, m.driver.Insert(ctx, m.collection, structToDocument(m.collection, doc))
	})
	if err != nil {
		return err
	}
	m.options.events.Emit(EventInsert, InsertPayload[T]{Schema: m.collection, Doc: doc})
	return nil
}

// FindOne returns the first entity matching the query, or nil when none
// matches.
func (m *Model[T]) FindOne(ctx context.Context, qb *Query[T]) (*T, error) {
	qb = m.orNewQuery(qb)
	if fn, ok := m.static(OperationFindOne); ok {
		out, err := m.runStatic(ctx, OperationFindOne, fn, []any{qb})
		if err != nil {
			return nil, err
		}
		return staticResult[*T](OperationFindOne, out)
	}

	var where *Where
	out, err := m.runCore(ctx, OperationFindOne, ContextQuery, qb, []any{qb}, func(ctx context.Context) (any, error) {
		where = m.withSoftDelete(qb.where)
		row, err := m.driver.FindOne(ctx, m.collection, where)
		if err != nil || row == nil {
			return (*T)(nil), err
		}
		value := new(T)
		if err := mapToStruct(m.collection, row, value); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	result, err := coreResult[*T](OperationFindOne, out)
	if err != nil {
		return nil, err
	}
	m.options.events.Emit(EventFind, FindOnePayload[T]{Schema: m.collection, Where: where, Doc: result})
	return result, nil
}

// FindMany returns every entity matching the query.
func (m *Model[T]) FindMany(ctx context.Context, qb *Query[T]) ([]T, error) {
	qb = m.orNewQuery(qb)
	if fn, ok := m.static(OperationFind); ok {
		out, err := m.runStatic(ctx, OperationFind, fn, []any{qb})
		if err != nil {
			return nil, err
		}
		return staticResult[[]T](OperationFind, out)
	}

	var where *Where
	out, err := m.runCore(ctx, OperationFind, ContextQuery, qb, []any{qb}, func(ctx context.Context) (any, error) {
		where = m.withSoftDelete(qb.where)
		rowList, err := m.driver.FindMany(ctx, m.collection, where)
		if err != nil {
			return nil, err
		}
		resultList := make([]T, 0, len(rowList))
		for _, row := range rowList {
			var value T
			if err := mapToStruct(m.collection, row, &value); err != nil {
				return nil, err
			}
			resultList = append(resultList, value)
		}
		return resultList, nil
	})
	if err != nil {
		return nil, err
	}
	resultList, err := coreResult[[]T](OperationFind, out)
	if err != nil {
		return nil, err
	}
	m.options.events.Emit(EventFind, FindManyPayload[T]{Schema: m.collection, Where: where, DocList: resultList})
	return resultList, nil
}

// Count returns the number of entities matching the query.
func (m *Model[T]) Count(ctx context.Context, qb *Query[T]) (int64, error) {
	qb = m.orNewQuery(qb)
	if fn, ok := m.static(OperationCount); ok {
		out, err := m.runStatic(ctx, OperationCount, fn, []any{qb})
		if err != nil {
			return 0, err
		}
		return staticResult[int64](OperationCount, out)
	}

	out, err := m.runCore(ctx, OperationCount, ContextQuery, qb, []any{qb}, func(ctx context.Context) (any, error) {
		where := m.withSoftDelete(qb.where)
		return m.driver.Count(ctx, m.collection, where.Condition)
	})
	if err != nil {
		return 0, err
	}
	return coreResult[int64](OperationCount, out)
}

// Update applies changes to entities matching the query and returns how many
// were modified. The updatedAt field, if any, is refreshed on a copy of
// changes; the caller's map is left untouched.
func (m *Model[T]) Update(ctx context.Context, qb *Query[T], changes Changes) (int64, error) {
	qb = m.orNewQuery(qb)
	if fn, ok := m.static(OperationUpdate); ok {
		out, err := m.runStatic(ctx, OperationUpdate, fn, []any{qb, changes})
		if err != nil {
			return 0, err
		}
		return staticResult[int64](OperationUpdate, out)
	}

	changes = maps.Clone(changes)
	if changes == nil {
		changes = Changes{}
	}

	var where *Where
	out, err := m.runCore(ctx, OperationUpdate, ContextQuery, qb, []any{qb, changes}, func(ctx context.Context) (any, error) {
		if m.schema.updatedAtField != nil {
			changes[m.schema.updatedAtField.DatabaseColumnName] = time.Now()
		}
		where = m.withSoftDelete(qb.where)
		return m.driver.Update(ctx, m.collection, where.Condition, changes)
	})
	if err != nil {
		return 0, err
	}
	modified, err := coreResult[int64](OperationUpdate, out)
	if err != nil {
		return 0, err
	}
	m.options.events.Emit(EventUpdate, UpdatePayload{Schema: m.collection, Condition: where.Condition, Changes: changes, Modified: modified})
	return modified, nil
}

// Delete removes entities matching the query and returns how many.
//
// With a DeletedAt field the rows are soft-deleted (deletedAt is set) and an
// EventUpdate is emitted; otherwise they are removed and EventDelete is emitted.
func (m *Model[T]) Delete(ctx context.Context, qb *Query[T]) (int64, error) {
	qb = m.orNewQuery(qb)
	if fn, ok := m.static(OperationDelete); ok {
		out, err := m.runStatic(ctx, OperationDelete, fn, []any{qb})
		if err != nil {
			return 0, err
		}
		return staticResult[int64](OperationDelete, out)
	}

	var condition *Condition
	var changes Changes
	out, err := m.runCore(ctx, OperationDelete, ContextQuery, qb, []any{qb}, func(ctx context.Context) (any, error) {
		condition = m.withSoftDelete(qb.where).Condition
		if m.schema.deletedAtField != nil {
			changes = Changes{m.schema.deletedAtField.DatabaseColumnName: time.Now()}
			return m.driver.Update(ctx, m.collection, condition, changes)
		}
		return m.driver.Delete(ctx, m.collection, condition)
	})
	if err != nil {
		return 0, err
	}
	affected, err := coreResult[int64](OperationDelete, out)
	if err != nil {
		return 0, err
	}
	if changes != nil {
		m.options.events.Emit(EventUpdate, UpdatePayload{Schema: m.collection, Condition: condition, Changes: changes, Modified: affected})
	} else {
		m.options.events.Emit(EventDelete, DeletePayload{Schema: m.collection, Condition: condition, Deleted: affected})
	}
	return affected, nil
}

// Aggregate runs an aggregation pipeline.
//
// Pre hooks receive the *Aggregate[T] and may reshape its pipeline; the
// pipeline passed in by the caller is never modified.
func (m *Model[T]) Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error) {
	if fn, ok := m.static(OperationAggregate); ok {
		out, err := m.runStatic(ctx, OperationAggregate, fn, []any{pipeline})
		if err != nil {
			return nil, err
		}
		return staticResult[[]Document](OperationAggregate, out)
	}

	agg := newAggregate(m.schema, pipeline)
	out, err := m.runCore(ctx, OperationAggregate, ContextAggregate, agg, []any{pipeline}, func(ctx context.Context) (any, error) {
		if err := agg.Pipeline().Validate(); err != nil {
			return nil, err
		}
		return m.driver.Aggregate(ctx, m.collection, agg.Pipeline())
	})
	if err != nil {
		return nil, err
	}
	resultList, err := coreResult[[]Document](OperationAggregate, out)
	if err != nil {
		return nil, err
	}
	m.options.events.Emit(EventAggregate, AggregatePayload{Schema: m.collection, Pipeline: agg.Pipeline(), Result: resultList})
	return resultList, nil
}
