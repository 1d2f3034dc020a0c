// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the fluent query builder. A *Query[T] is also the
// receiver bound to hooks of query operations.
package core

// Query represents a fluent query builder for an entity of type T.
//
// Example:
//
//	qb := core.NewQuery(itemSchema).
//		Filter(func(f core.Filter[Item]) []*core.Condition {
//			return []*core.Condition{
//				f.Where(func(i *Item) *string { return &i.Name }).Eq("foo"),
//			}
//		}).
//		OrderBy("name", 1).
//		Limit(10)
type Query[T any] struct {
	schema *SchemaMeta[T]
	where  *Where
}

// NewQuery creates a new Query instance for the given schema.
func NewQuery[T any](schema *SchemaMeta[T]) *Query[T] {
	return &Query[T]{
		schema: schema,
		where:  &Where{},
	}
}

// Options returns the query's current filter and pagination. Pre hooks may
// inspect it; mutate through the builder methods.
func (q *Query[T]) Options() Where {
	return *q.where
}

// Condition returns the root condition, or nil for "match all".
func (q *Query[T]) Condition() *Condition {
	return q.where.Condition
}

// WithDeleted includes soft-deleted rows in the query results.
func (q *Query[T]) WithDeleted() *Query[T] {
	q.where.WithDeleted = true
	return q
}

// OnlyDeleted restricts the query results to soft-deleted rows only.
func (q *Query[T]) OnlyDeleted() *Query[T] {
	q.where.OnlyDeleted = true
	return q
}

// Where starts a condition on the field picked by selector, mapped to its
// database column.
//
// Example:
//
//	q.Where(func(i *Item) *string { return &i.Name }).Eq("foo")
func (q *Query[T]) Where(selector any) *Condition {
	goFieldName := fieldNameFromSelectorFor[T](selector)
	if goFieldName == "" {
		panic("core: Where: selector must return a pointer to a field of T")
	}

	dbCol := goFieldName
	for _, f := range q.schema.Fields {
		if f.StructFieldName == goFieldName {
			dbCol = f.DatabaseColumnName
			break
		}
	}
	return Column(dbCol)
}

// Filter replaces the query's condition with the AND of the conditions
// returned by build. A nil build clears the condition.
func (q *Query[T]) Filter(build func(Filter[T]) []*Condition) *Query[T] {
	if build == nil {
		q.where.Condition = nil
		return q
	}
	scope := Filter[T]{queryBuilder: q}
	q.where.Condition = foldConditionsAnd(build(scope)...)
	return q
}

// And narrows the current condition with additional conditions.
//
// Example:
//
//	q.And(core.Column("deleted").Ne(true))
func (q *Query[T]) And(conditions ...*Condition) *Query[T] {
	q.where.Condition = foldConditionsAnd(append([]*Condition{q.where.Condition}, conditions...)...)
	return q
}

// Filter provides the scope passed to Query.Filter.
type Filter[T any] struct{ queryBuilder *Query[T] }

// Where delegates to the parent query's Where method.
func (f Filter[T]) Where(selector any) *Condition {
	return f.queryBuilder.Where(selector)
}

// OrderBy adds an ordering rule; order is 1 (ASC) or -1 (DESC).
func (q *Query[T]) OrderBy(field string, order int) *Query[T] {
	q.where.Sort = append(q.where.Sort, Sort{FieldName: field, Order: order})
	return q
}

// Limit sets the maximum number of results to return.
func (q *Query[T]) Limit(limit int) *Query[T] {
	q.where.Limit = limit
	return q
}

// Offset sets the number of rows to skip.
func (q *Query[T]) Offset(offset int) *Query[T] {
	q.where.Offset = offset
	return q
}
