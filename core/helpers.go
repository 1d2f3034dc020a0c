// Package core provides the fundamental building blocks of the golem ORM.
// This file contains helper functions for reflection, field mapping,
// condition folding, and common value transformations.
package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unsafe"
)

// offsetOf returns the memory offset of the struct field picked by selector.
func offsetOf[T any, F any](selector func(*T) *F) uintptr {
	var zero T
	base := uintptr(unsafe.Pointer(&zero))
	ptr := selector(&zero)
	return uintptr(unsafe.Pointer(ptr)) - base
}

// fieldNameFromSelectorFor resolves the Go struct field name from a selector
// function of the form func(*T) *F.
//
// Panics if selector is not such a function.
func fieldNameFromSelectorFor[T any](selector any) string {
	if selector == nil {
		return ""
	}
	selectorValue := reflect.ValueOf(selector)
	if selectorValue.Kind() != reflect.Func {
		panic("selector must be a function")
	}

	var zero T
	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	arg := reflect.New(typ)

	out := selectorValue.Call([]reflect.Value{arg})
	if len(out) == 0 || out[0].Kind() != reflect.Pointer {
		panic("selector must return a pointer to a field")
	}

	offset := out[0].Pointer() - arg.Pointer()
	for _, sf := range reflect.VisibleFields(typ) {
		if sf.Offset == offset && !sf.Anonymous {
			return sf.Name
		}
	}
	return ""
}

// mapToStruct copies a document into out.
//
// Columns are resolved through the schema first and then by case-insensitive
// struct field name. Assignment supports:
//  1. Exact type matching
//  2. Value → pointer conversions (e.g. time.Time → *time.Time)
//  3. Pointer → value conversions
//  4. Convertible types (e.g. int32 → int64)
func mapToStruct[T any](schema *SchemaCore, row Document, out *T) error {
	value := reflect.ValueOf(out).Elem()
	for rowKey, rowValue := range row {
		var field reflect.Value
		if f := schema.FieldByColumn(rowKey); f != nil {
			field = value.FieldByName(f.StructFieldName)
		} else {
			field = value.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, rowKey) })
		}
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		if rowValue == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}

		rv := reflect.ValueOf(rowValue)

		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			continue
		}

		if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv)
			field.Set(ptr)
			continue
		}

		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				field.Set(reflect.Zero(field.Type()))
				continue
			}
			if rv.Type().Elem().AssignableTo(field.Type()) {
				field.Set(rv.Elem())
				continue
			}
		}

		if rv.Type().ConvertibleTo(field.Type()) && !numberToString(rv.Kind(), field.Kind()) {
			field.Set(rv.Convert(field.Type()))
			continue
		}
		if field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()) && !numberToString(rv.Kind(), field.Type().Elem().Kind()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv.Convert(field.Type().Elem()))
			field.Set(ptr)
			continue
		}
		return fmt.Errorf("golem: cannot assign %T to %s.%s (%s)", rowValue, schema.Collection, rowKey, field.Type())
	}
	return nil
}

// numberToString guards against reflect's int→string conversion, which
// yields a rune instead of the decimal text.
func numberToString(from, to reflect.Kind) bool {
	return to == reflect.String && from != reflect.String
}

// structToDocument extracts the schema's columns from doc. Nil pointers are
// stored as nil; other pointers are dereferenced.
func structToDocument(schema *SchemaCore, doc any) Document {
	value := reflect.ValueOf(doc)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	row := make(Document, len(schema.Fields))
	for _, field := range schema.Fields {
		fv := value.FieldByName(field.StructFieldName)
		if !fv.IsValid() {
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				row[field.DatabaseColumnName] = nil
			} else {
				row[field.DatabaseColumnName] = fv.Elem().Interface()
			}
			continue
		}
		row[field.DatabaseColumnName] = fv.Interface()
	}
	return row
}

// foldConditionsAnd combines conditions with AND, skipping nils. It returns
// nil for no conditions and the condition itself for one.
func foldConditionsAnd(conds ...*Condition) *Condition {
	nonNil := make([]*Condition, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return nonNil[0].And(nonNil[1:]...)
	}
}

// DocumentValues returns the document's values in schema field order along
// with positional placeholders ($1, $2, ...) for SQL drivers.
func DocumentValues(schema *SchemaCore, doc Document) ([]any, []string) {
	valueList := make([]any, 0, len(schema.Fields))
	placeholderList := make([]string, 0, len(schema.Fields))
	for index, field := range schema.Fields {
		valueList = append(valueList, doc[field.DatabaseColumnName])
		placeholderList = append(placeholderList, fmt.Sprintf("$%d", index+1))
	}
	return valueList, placeholderList
}

// setTimeField sets t into a time.Time or *time.Time field.
func setTimeField(field reflect.Value, t time.Time) {
	if !field.IsValid() || !field.CanSet() {
		return
	}
	timeType := reflect.TypeOf(time.Time{})

	switch field.Kind() {
	case reflect.Struct:
		if field.Type() == timeType {
			field.Set(reflect.ValueOf(t))
		}
	case reflect.Pointer:
		if field.Type().Elem() == timeType {
			ptr := reflect.New(timeType)
			ptr.Elem().Set(reflect.ValueOf(t))
			field.Set(ptr)
		}
	}
}

// setFieldIfZero assigns v to field when field holds its zero value and v is
// assignable. It reports whether the field was set.
func setFieldIfZero(field reflect.Value, v any) bool {
	if !field.IsValid() || !field.CanSet() || !field.IsZero() {
		return false
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(field.Type()) {
		return false
	}
	field.Set(rv)
	return true
}

// LikePattern converts a SQL LIKE pattern into an unanchored regular
// expression: % becomes .* and _ becomes a single-character wildcard.
//
// Example:
//
//	core.LikePattern("%admin_") // ".*admin."
func LikePattern(input string) string {
	const percent = "\x00"
	const underscore = "\x01"
	safe := strings.ReplaceAll(input, "%", percent)
	safe = strings.ReplaceAll(safe, "_", underscore)
	safe = regexp.QuoteMeta(safe)
	safe = strings.ReplaceAll(safe, percent, ".*")
	safe = strings.ReplaceAll(safe, underscore, ".")
	return safe
}
