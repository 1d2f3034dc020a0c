// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the condition tree shared by queries, updates and the
// $match stage of aggregation pipelines.
package core

import (
	"fmt"
	"strings"
)

// Condition represents a single clause in a filter.
//
// A leaf condition targets FieldName with an Operator and a Value. A branch
// condition carries a logical operator (AND, OR, NOT) and its Children.
//
// Example:
//
//	cond := core.Column("name").Eq("foo").And(core.Column("deleted").Ne(false))
//
// The above is equivalent to:
//
//	(name = 'foo') AND (deleted <> false)
type Condition struct {
	FieldName string
	Operator  *Operator
	Value     any
	Children  []*Condition
}

// Column starts a leaf condition on the given column/field name.
func Column(name string) *Condition {
	return &Condition{FieldName: name}
}

// And combines this condition with additional conditions using AND.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpAnd,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Or combines this condition with additional conditions using OR.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpOr,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Not negates this condition.
func (c *Condition) Not() *Condition {
	return &Condition{
		Operator: &OpNot,
		Children: []*Condition{c},
	}
}

// Nil matches NULL or missing values.
func (c *Condition) Nil() *Condition {
	c.Operator = &OpNil
	c.Value = nil
	return c
}

// Eq matches values equal to v.
func (c *Condition) Eq(v any) *Condition {
	c.Operator = &OpEq
	c.Value = v
	return c
}

// Ne matches values different from v. Missing values match as well,
// following document-store semantics.
func (c *Condition) Ne(v any) *Condition {
	c.Operator = &OpNe
	c.Value = v
	return c
}

// Gt matches values greater than v.
func (c *Condition) Gt(v any) *Condition {
	c.Operator = &OpGt
	c.Value = v
	return c
}

// Gte matches values greater than or equal to v.
func (c *Condition) Gte(v any) *Condition {
	c.Operator = &OpGte
	c.Value = v
	return c
}

// Lt matches values less than v.
func (c *Condition) Lt(v any) *Condition {
	c.Operator = &OpLt
	c.Value = v
	return c
}

// Lte matches values less than or equal to v.
func (c *Condition) Lte(v any) *Condition {
	c.Operator = &OpLte
	c.Value = v
	return c
}

// Like performs a pattern match (% and _ wildcards).
func (c *Condition) Like(v any) *Condition {
	c.Operator = &OpLike
	c.Value = v
	return c
}

// In matches values contained in the provided list.
func (c *Condition) In(values ...any) *Condition {
	c.Operator = &OpIn
	c.Value = values
	return c
}

// String renders the condition in a compact, driver-neutral form. It is
// used for logging only.
func (c *Condition) String() string {
	if c == nil {
		return "<all>"
	}
	if c.Operator == nil {
		return c.FieldName + " ?"
	}
	if c.Operator.IsLogical() {
		partList := make([]string, 0, len(c.Children))
		for _, child := range c.Children {
			partList = append(partList, child.String())
		}
		if *c.Operator == OpNot {
			return "NOT (" + strings.Join(partList, " AND ") + ")"
		}
		return "(" + strings.Join(partList, " "+string(*c.Operator)+" ") + ")"
	}
	if *c.Operator == OpNil {
		return c.FieldName + " IS NULL"
	}
	return fmt.Sprintf("%s %s %v", c.FieldName, *c.Operator, c.Value)
}
