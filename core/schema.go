// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the schema system, which maps Go structs to database
// collections/tables and holds the per-schema hook registry and statics.
package core

import (
	"reflect"
	"sync"
)

// Field represents a struct field mapped to a database column.
type Field struct {
	StructFieldName    string       // Name of the field in the Go struct
	DatabaseColumnName string       // Name of the column in the database
	Type               reflect.Type // Go type of the field
	IsPrimaryKey       bool
	IsUnique           bool
	IsRequired         bool
	MemoryOffset       uintptr

	IsCreatedAt bool
	IsUpdatedAt bool
	IsDeletedAt bool
}

// FieldOption is a function used to configure a Field.
type FieldOption func(*Field)

// PrimaryKey marks the field as a primary key.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.IsPrimaryKey = true }
}

// Unique marks the field as unique.
func Unique() FieldOption {
	return func(f *Field) { f.IsUnique = true }
}

// Required marks the field as required; Create rejects zero values.
func Required() FieldOption {
	return func(f *Field) { f.IsRequired = true }
}

// CreatedAt marks the field as the createdAt timestamp.
func CreatedAt() FieldOption {
	return func(f *Field) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field as the updatedAt timestamp.
func UpdatedAt() FieldOption {
	return func(f *Field) { f.IsUpdatedAt = true }
}

// DeletedAt marks the field as the deletedAt timestamp (soft deletes).
func DeletedAt() FieldOption {
	return func(f *Field) { f.IsDeletedAt = true }
}

// SchemaCore contains the schema information drivers need at runtime.
type SchemaCore struct {
	Database   string
	Collection string
	Fields     []*Field
}

// PrimaryKey returns the primary key field, or nil.
func (s *SchemaCore) PrimaryKey() *Field {
	for _, f := range s.Fields {
		if f.IsPrimaryKey {
			return f
		}
	}
	return nil
}

// FieldByColumn returns the field mapped to column, or nil.
func (s *SchemaCore) FieldByColumn(column string) *Field {
	for _, f := range s.Fields {
		if f.DatabaseColumnName == column {
			return f
		}
	}
	return nil
}

// SchemaMeta extends SchemaCore with the hook registry, the static override
// table and cached references to timestamp fields.
//
// A SchemaMeta is the explicit per-model configuration object: nothing about
// hooks or statics is kept in package-level state.
type SchemaMeta[T any] struct {
	SchemaCore
	Hooks      *HookRegistry
	StaticList map[Operation]StaticFunc[T]
	Policy     StaticHookPolicy

	staticMutex    sync.RWMutex
	createdAtField *Field
	updatedAtField *Field
	deletedAtField *Field
}

// RegisterPreHook registers a hook that runs before op.
func (s *SchemaMeta[T]) RegisterPreHook(op Operation, fn HookFunc, opts ...HookOption) {
	s.Hooks.Register(op, PhasePre, fn, opts...)
}

// RegisterPostHook registers a hook that runs after op succeeds.
func (s *SchemaMeta[T]) RegisterPostHook(op Operation, fn HookFunc, opts ...HookOption) {
	s.Hooks.Register(op, PhasePost, fn, opts...)
}

// SchemaBuilder is used to construct a schema definition from a Go struct.
type SchemaBuilder[T any] struct {
	database       string
	collection     string
	tagKey         string
	policy         StaticHookPolicy
	structType     reflect.Type
	fields         []*Field
	fieldsByOffset map[uintptr]*Field
}

// SchemaOption represents a function that customizes the schema builder.
type SchemaOption[T any] func(*SchemaBuilder[T])

// TagKey sets the struct tag key used for column mapping (default "db").
func TagKey[T any](key string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.tagKey = key }
}

// Table sets the collection/table name.
func Table[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.collection = name }
}

// Database sets the database name.
func Database[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.database = name }
}

// OverrideField modifies the metadata of the field picked by selector.
func OverrideField[T any, F any](selector func(*T) *F, opts ...FieldOption) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) {
		if schemaBuilder.fields == nil {
			return // first pass, fields not reflected yet
		}
		offset := offsetOf(selector)
		field, ok := schemaBuilder.fieldsByOffset[offset]
		if !ok {
			panic("core: OverrideField: field not found by selector")
		}
		for _, opt := range opts {
			opt(field)
		}
	}
}

// Schema builds a SchemaMeta[T] by reflecting on struct fields and applying
// the given options.
//
// Example:
//
//	itemSchema := core.Schema[Item](
//		core.Table[Item]("items"),
//		core.OverrideField(func(i *Item) *string { return &i.ID }, core.PrimaryKey()),
//	)
func Schema[T any](options ...SchemaOption[T]) *SchemaMeta[T] {
	var zero T
	structType := reflect.TypeOf(zero)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	builder := &SchemaBuilder[T]{
		structType:     structType,
		fieldsByOffset: make(map[uintptr]*Field),
	}

	// Table/Database/TagKey must be known before the fields are reflected.
	for _, option := range options {
		option(builder)
	}

	tagKey := builder.tagKey
	if tagKey == "" {
		tagKey = "db"
	}
	builder.fields = []*Field{}
	for _, sf := range reflect.VisibleFields(structType) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		dbName := sf.Tag.Get(tagKey)
		if dbName == "-" {
			continue
		}
		if dbName == "" {
			dbName = sf.Name
		}
		field := &Field{
			StructFieldName:    sf.Name,
			DatabaseColumnName: dbName,
			Type:               sf.Type,
			MemoryOffset:       sf.Offset,
		}
		builder.fields = append(builder.fields, field)
		builder.fieldsByOffset[sf.Offset] = field
	}

	// Second pass: OverrideField can now resolve selectors.
	for _, option := range options {
		option(builder)
	}

	meta := &SchemaMeta[T]{
		SchemaCore: SchemaCore{
			Database:   builder.database,
			Collection: builder.collection,
			Fields:     builder.fields,
		},
		Hooks:      NewHookRegistry(),
		StaticList: make(map[Operation]StaticFunc[T]),
		Policy:     builder.policy,
	}

	for _, f := range builder.fields {
		if f.IsCreatedAt {
			meta.createdAtField = f
		}
		if f.IsUpdatedAt {
			meta.updatedAtField = f
		}
		if f.IsDeletedAt {
			meta.deletedAtField = f
		}
	}

	return meta
}
