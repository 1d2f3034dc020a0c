// Package postgres provides the PostgreSQL implementation of core.Driver.
// This file renders conditions, queries and pipelines as SQL.
package postgres

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
)

func formatTable(schema *core.SchemaCore) string {
	if schema.Database != "" {
		return fmt.Sprintf("%q.%q", schema.Database, schema.Collection)
	}
	return fmt.Sprintf("%q", schema.Collection)
}

func columnList(schema *core.SchemaCore) string {
	columnNameList := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		columnNameList = append(columnNameList, fmt.Sprintf("%q", field.DatabaseColumnName))
	}
	return strings.Join(columnNameList, ", ")
}

func placeholder(argList *[]any, value any) string {
	*argList = append(*argList, value)
	return fmt.Sprintf("$%d", len(*argList))
}

// buildCondition renders condition as a boolean SQL expression and appends
// its bind values to argList.
func buildCondition(condition *core.Condition, argList *[]any) (string, error) {
	if condition == nil {
		return "1=1", nil
	}
	if condition.Operator == nil {
		return "", fmt.Errorf("postgres driver: condition on %q has no operator", condition.FieldName)
	}
	if condition.Operator.IsLogical() {
		if len(condition.Children) == 0 {
			return "1=1", nil
		}
		partList := make([]string, 0, len(condition.Children))
		for _, child := range condition.Children {
			part, err := buildCondition(child, argList)
			if err != nil {
				return "", err
			}
			partList = append(partList, part)
		}
		switch *condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")", nil
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")", nil
		default:
			return "NOT (" + strings.Join(partList, " AND ") + ")", nil
		}
	}

	column := fmt.Sprintf("%q", condition.FieldName)
	switch *condition.Operator {
	case core.OpNil:
		return column + " IS NULL", nil
	case core.OpEq:
		return column + " = " + placeholder(argList, condition.Value), nil
	case core.OpNe:
		return column + " IS DISTINCT FROM " + placeholder(argList, condition.Value), nil
	case core.OpGt:
		return column + " > " + placeholder(argList, condition.Value), nil
	case core.OpGte:
		return column + " >= " + placeholder(argList, condition.Value), nil
	case core.OpLt:
		return column + " < " + placeholder(argList, condition.Value), nil
	case core.OpLte:
		return column + " <= " + placeholder(argList, condition.Value), nil
	case core.OpLike:
		return column + " ILIKE " + placeholder(argList, condition.Value), nil
	case core.OpIn:
		valueList, ok := condition.Value.([]any)
		if !ok {
			valueList = []any{condition.Value}
		}
		if len(valueList) == 0 {
			return "FALSE", nil
		}
		placeholderList := make([]string, 0, len(valueList))
		for _, v := range valueList {
			placeholderList = append(placeholderList, placeholder(argList, v))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", ")), nil
	}
	return "", fmt.Errorf("postgres driver: unsupported operator %q", *condition.Operator)
}

func buildOrderBy(sortList []core.Sort) string {
	if len(sortList) == 0 {
		return ""
	}
	orderPartList := make([]string, 0, len(sortList))
	for _, sortItem := range sortList {
		direction := "ASC"
		if sortItem.Order < 0 {
			direction = "DESC"
		}
		orderPartList = append(orderPartList, fmt.Sprintf("%q %s", sortItem.FieldName, direction))
	}
	return " ORDER BY " + strings.Join(orderPartList, ", ")
}

// buildSelect renders a SELECT for query. single caps the result at one row.
func buildSelect(schema *core.SchemaCore, query *core.Where, single bool) (string, []any, error) {
	argList := []any{}
	var condition *core.Condition
	if query != nil {
		condition = query.Condition
	}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return "", nil, err
	}
	sqlQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s", columnList(schema), formatTable(schema), whereClause)
	if query != nil {
		sqlQuery += buildOrderBy(query.Sort)
	}
	switch {
	case single:
		sqlQuery += " LIMIT 1"
	case query != nil && query.Limit > 0:
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	if query != nil && query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}
	return sqlQuery, argList, nil
}

// buildUpdate renders an UPDATE. SET columns are emitted in name order.
func buildUpdate(schema *core.SchemaCore, condition *core.Condition, changes core.Changes) (string, []any, error) {
	if len(changes) == 0 {
		return "", nil, fmt.Errorf("postgres driver: update on %s has no changes", schema.Collection)
	}
	argList := []any{}
	setPartList := make([]string, 0, len(changes))
	for _, column := range slices.Sorted(maps.Keys(changes)) {
		setPartList = append(setPartList, fmt.Sprintf("%q = %s", column, placeholder(&argList, changes[column])))
	}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return "", nil, err
	}
	sqlQuery := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		formatTable(schema), strings.Join(setPartList, ", "), whereClause)
	return sqlQuery, argList, nil
}

// buildAggregate renders pipeline as nested sub-selects, one per stage, over
// the schema's columns. A count stage over no rows yields no row.
func buildAggregate(schema *core.SchemaCore, pipeline core.Pipeline) (string, []any, error) {
	argList := []any{}
	sqlQuery := fmt.Sprintf("SELECT %s FROM %s", columnList(schema), formatTable(schema))
	for i, stage := range pipeline {
		source := fmt.Sprintf("(%s) AS s%d", sqlQuery, i)
		switch stage.Kind {
		case core.StageMatch:
			whereClause, err := buildCondition(stage.Match, &argList)
			if err != nil {
				return "", nil, fmt.Errorf("postgres driver: stage %d: %w", i, err)
			}
			sqlQuery = fmt.Sprintf("SELECT * FROM %s WHERE %s", source, whereClause)
		case core.StageSort:
			sqlQuery = "SELECT * FROM " + source + buildOrderBy(stage.Sort)
		case core.StageSkip:
			sqlQuery = fmt.Sprintf("SELECT * FROM %s OFFSET %d", source, stage.N)
		case core.StageLimit:
			sqlQuery = fmt.Sprintf("SELECT * FROM %s LIMIT %d", source, stage.N)
		case core.StageProject:
			quoted := make([]string, 0, len(stage.Fields))
			for _, name := range stage.Fields {
				quoted = append(quoted, fmt.Sprintf("%q", name))
			}
			sqlQuery = fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), source)
		case core.StageCount:
			sqlQuery = fmt.Sprintf("SELECT COUNT(*) AS %q FROM %s HAVING COUNT(*) > 0", stage.As, source)
		default:
			return "", nil, fmt.Errorf("postgres driver: stage %d: unsupported kind %q", i, stage.Kind)
		}
	}
	return sqlQuery, argList, nil
}

// columnType maps a Go field type to a PostgreSQL column type.
func columnType(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return "TIMESTAMPTZ"
	}
	switch t.Kind() {
	case reflect.String:
		return "TEXT"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "BIGINT"
	case reflect.Float32, reflect.Float64:
		return "DOUBLE PRECISION"
	default:
		return "JSONB"
	}
}

// buildCreateTable renders a CREATE TABLE IF NOT EXISTS statement for schema.
func buildCreateTable(schema *core.SchemaCore) string {
	definitionList := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		definition := fmt.Sprintf("%q %s", field.DatabaseColumnName, columnType(field.Type))
		switch {
		case field.IsPrimaryKey:
			definition += " PRIMARY KEY"
		case field.IsUnique:
			definition += " UNIQUE"
		}
		if field.IsRequired && !field.IsPrimaryKey {
			definition += " NOT NULL"
		}
		definitionList = append(definitionList, definition)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", formatTable(schema), strings.Join(definitionList, ", "))
}
