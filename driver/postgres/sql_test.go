package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID        string
	Name      string
	Deleted   bool
	Score     int
	Ratio     float64
	CreatedAt time.Time
	RemovedAt *time.Time
	Tags      []string
}

func testSchema() *core.SchemaCore {
	typ := reflect.TypeOf(row{})
	field := func(name, column string, opts ...core.FieldOption) *core.Field {
		sf, _ := typ.FieldByName(name)
		f := &core.Field{StructFieldName: name, DatabaseColumnName: column, Type: sf.Type}
		for _, opt := range opts {
			opt(f)
		}
		return f
	}
	return &core.SchemaCore{
		Database:   "public",
		Collection: "items",
		Fields: []*core.Field{
			field("ID", "id", core.PrimaryKey()),
			field("Name", "name", core.Unique(), core.Required()),
			field("Deleted", "deleted"),
		},
	}
}

func TestBuildCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition *core.Condition
		wantSQL   string
		wantArgs  []any
	}{
		{"nil", nil, "1=1", []any{}},
		{"eq", core.Column("name").Eq("foo"), `"name" = $1`, []any{"foo"}},
		{"ne", core.Column("deleted").Ne(true), `"deleted" IS DISTINCT FROM $1`, []any{true}},
		{"null", core.Column("removed_at").Nil(), `"removed_at" IS NULL`, []any{}},
		{"like", core.Column("name").Like("fo%"), `"name" ILIKE $1`, []any{"fo%"}},
		{"in", core.Column("id").In("a", "b"), `"id" IN ($1, $2)`, []any{"a", "b"}},
		{"empty in", core.Column("id").In(), "FALSE", []any{}},
		{
			"and or",
			core.Column("score").Gt(1).And(core.Column("score").Lte(5).Or(core.Column("name").Eq("x"))),
			`("score" > $1 AND ("score" <= $2 OR "name" = $3))`,
			[]any{1, 5, "x"},
		},
		{"not", core.Column("removed_at").Nil().Not(), `NOT ("removed_at" IS NULL)`, []any{}},
		{"empty logical", &core.Condition{Operator: &core.OpAnd}, "1=1", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argList := []any{}
			got, err := buildCondition(tt.condition, &argList)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
			assert.Equal(t, tt.wantArgs, argList)
		})
	}

	_, err := buildCondition(core.Column("name"), &[]any{})
	assert.Error(t, err)
}

func TestBuildSelect(t *testing.T) {
	schema := testSchema()

	sqlQuery, argList, err := buildSelect(schema, &core.Where{
		Condition: core.Column("deleted").Ne(true),
		Sort:      []core.Sort{{FieldName: "name", Order: -1}},
		Limit:     10,
		Offset:    5,
	}, false)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "name", "deleted" FROM "public"."items" WHERE "deleted" IS DISTINCT FROM $1 ORDER BY "name" DESC LIMIT 10 OFFSET 5`,
		sqlQuery)
	assert.Equal(t, []any{true}, argList)

	sqlQuery, _, err = buildSelect(schema, nil, true)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name", "deleted" FROM "public"."items" WHERE 1=1 LIMIT 1`, sqlQuery)
}

func TestBuildUpdate(t *testing.T) {
	schema := testSchema()

	sqlQuery, argList, err := buildUpdate(schema, core.Column("id").Eq("1"), core.Changes{"name": "bar", "deleted": true})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "public"."items" SET "deleted" = $1, "name" = $2 WHERE "id" = $3`, sqlQuery)
	assert.Equal(t, []any{true, "bar", "1"}, argList)

	_, _, err = buildUpdate(schema, nil, core.Changes{})
	assert.Error(t, err)
}

func TestBuildAggregate(t *testing.T) {
	schema := testSchema()

	sqlQuery, argList, err := buildAggregate(schema, core.Pipeline{
		core.Match(core.Column("deleted").Ne(false)),
		core.LimitTo(2),
		core.CountAs("n"),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) AS "n" FROM (SELECT * FROM (SELECT * FROM (SELECT "id", "name", "deleted" FROM "public"."items") AS s0 WHERE "deleted" IS DISTINCT FROM $1) AS s1 LIMIT 2) AS s2 HAVING COUNT(*) > 0`,
		sqlQuery)
	assert.Equal(t, []any{false}, argList)

	sqlQuery, _, err = buildAggregate(schema, core.Pipeline{
		core.SortBy(core.Sort{FieldName: "name", Order: 1}),
		core.Skip(1),
		core.Project("name"),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "name" FROM (SELECT * FROM (SELECT * FROM (SELECT "id", "name", "deleted" FROM "public"."items") AS s0 ORDER BY "name" ASC) AS s1 OFFSET 1) AS s2`,
		sqlQuery)

	_, _, err = buildAggregate(schema, core.Pipeline{{Kind: "$group"}})
	assert.Error(t, err)
}

func TestColumnType(t *testing.T) {
	typ := reflect.TypeOf(row{})
	tests := map[string]string{
		"ID":        "TEXT",
		"Deleted":   "BOOLEAN",
		"Score":     "BIGINT",
		"Ratio":     "DOUBLE PRECISION",
		"CreatedAt": "TIMESTAMPTZ",
		"RemovedAt": "TIMESTAMPTZ",
		"Tags":      "JSONB",
	}
	for name, want := range tests {
		sf, ok := typ.FieldByName(name)
		require.True(t, ok)
		assert.Equal(t, want, columnType(sf.Type), name)
	}
}

func TestBuildCreateTable(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "public"."items" ("id" TEXT PRIMARY KEY, "name" TEXT UNIQUE NOT NULL, "deleted" BOOLEAN)`,
		buildCreateTable(testSchema()))
}
