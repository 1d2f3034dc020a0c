// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the operators accepted by query conditions and by the
// $match stage of aggregation pipelines.
package core

// Operator represents a comparison or logical operator used in a condition.
type Operator string

const (
	opAnd Operator = "AND"
	opOr  Operator = "OR"
	opNot Operator = "NOT"

	opNil  Operator = "NIL"  // field IS NULL / missing
	opEq   Operator = "EQ"   // field = value
	opNe   Operator = "NE"   // field <> value, missing fields match
	opGt   Operator = "GT"   // field > value
	opGte  Operator = "GTE"  // field >= value
	opLt   Operator = "LT"   // field < value
	opLte  Operator = "LTE"  // field <= value
	opLike Operator = "LIKE" // SQL LIKE pattern, regex on document stores
	opIn   Operator = "IN"   // field IN (value list)
)

// Public operator aliases. Conditions hold pointers to these so drivers can
// switch on *condition.Operator.
//
// Example:
//
//	cond := &core.Condition{FieldName: "deleted", Operator: &core.OpNe, Value: false}
var (
	OpAnd  = opAnd
	OpOr   = opOr
	OpNot  = opNot
	OpNil  = opNil
	OpEq   = opEq
	OpNe   = opNe
	OpGt   = opGt
	OpGte  = opGte
	OpLt   = opLt
	OpLte  = opLte
	OpLike = opLike
	OpIn   = opIn
)

// IsLogical reports whether the operator combines child conditions.
func (o Operator) IsLogical() bool {
	return o == opAnd || o == opOr || o == opNot
}
