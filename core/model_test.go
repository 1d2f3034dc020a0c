package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"github.com/leandroluk/golem-statichooks/driver/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookRegistryFiresInOrder(t *testing.T) {
	registry := core.NewHookRegistry()
	var order []int
	for i := range 3 {
		registry.Register(core.OperationFind, core.PhasePre, func(ctx context.Context, hc *core.HookContext) error {
			order = append(order, i)
			return nil
		})
	}
	registry.Register(core.OperationFind, core.PhasePre, func(ctx context.Context, hc *core.HookContext) error {
		order = append(order, 99)
		return nil
	}, core.OnlyOrigin(core.OriginStatic))

	count, err := registry.Fire(context.Background(), &core.HookContext{
		Operation: core.OperationFind, Phase: core.PhasePre, Origin: core.OriginCore,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 4, registry.Len(core.OperationFind, core.PhasePre))
	assert.Zero(t, registry.Len(core.OperationFind, core.PhasePost))
}

func TestHookRegistryStopsAtFirstError(t *testing.T) {
	registry := core.NewHookRegistry()
	errStop := errors.New("stop")
	calls := 0
	hook := func(err error) core.HookFunc {
		return func(ctx context.Context, hc *core.HookContext) error {
			calls++
			return err
		}
	}
	registry.Register(core.OperationCount, core.PhasePost, hook(nil))
	registry.Register(core.OperationCount, core.PhasePost, hook(errStop))
	registry.Register(core.OperationCount, core.PhasePost, hook(nil))

	count, err := registry.Fire(context.Background(), &core.HookContext{
		Operation: core.OperationCount, Phase: core.PhasePost, Kind: core.ContextQuery, Origin: core.OriginCore,
	})
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, calls)
	var abortErr *core.HookAbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, core.PhasePost, abortErr.Phase)
	assert.Equal(t, core.OriginCore, abortErr.Origin)
	assert.ErrorIs(t, err, errStop)
}

func TestHookRegistryEmpty(t *testing.T) {
	count, err := core.NewHookRegistry().Fire(context.Background(), &core.HookContext{
		Operation: "archive", Phase: core.PhasePre, Origin: core.OriginStatic,
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOperationClassification(t *testing.T) {
	tests := []struct {
		op       core.Operation
		query    bool
		document bool
		builtin  bool
	}{
		{core.OperationInsert, false, true, true},
		{core.OperationFindOne, true, false, true},
		{core.OperationFind, true, false, true},
		{core.OperationCount, true, false, true},
		{core.OperationUpdate, true, false, true},
		{core.OperationDelete, true, false, true},
		{core.OperationAggregate, false, false, true},
		{"archive", false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.query, tt.op.IsQuery())
			assert.Equal(t, tt.document, tt.op.IsDocument())
			assert.Equal(t, tt.builtin, tt.op.IsBuiltin())
		})
	}
}

func TestParseStaticHookPolicy(t *testing.T) {
	policy, err := core.ParseStaticHookPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, core.StaticHooksStrict, policy)
	assert.Equal(t, "strict", policy.String())

	policy, err = core.ParseStaticHookPolicy("")
	require.NoError(t, err)
	assert.Equal(t, core.StaticHooksLegacy, policy)

	_, err = core.ParseStaticHookPolicy("loose")
	assert.Error(t, err)
}

func TestSchemaReflectsFields(t *testing.T) {
	schema := newItemSchema(core.Database[item]("app"))
	assert.Equal(t, "app", schema.Database)
	assert.Equal(t, "items", schema.Collection)
	require.NotNil(t, schema.PrimaryKey())
	assert.Equal(t, "id", schema.PrimaryKey().DatabaseColumnName)
	require.NotNil(t, schema.FieldByColumn("created_at"))
	assert.True(t, schema.FieldByColumn("created_at").IsCreatedAt)
	assert.Nil(t, schema.FieldByColumn("missing"))
	assert.Equal(t, core.StaticHooksLegacy, schema.Policy)
}

func TestSchemaTagKey(t *testing.T) {
	type tagged struct {
		Name string `bson:"full_name" db:"name"`
		Skip string `bson:"-"`
	}
	schema := core.Schema(core.TagKey[tagged]("bson"), core.Table[tagged]("tagged"))
	require.Len(t, schema.Fields, 1)
	assert.Equal(t, "full_name", schema.Fields[0].DatabaseColumnName)
}

func TestQueryBuilder(t *testing.T) {
	schema := newItemSchema()
	qb := core.NewQuery(schema).
		Filter(func(f core.Filter[item]) []*core.Condition {
			return []*core.Condition{
				f.Where(func(i *item) *string { return &i.Name }).Eq("foo"),
			}
		}).
		And(core.Column("deleted").Ne(true)).
		OrderBy("score", -1).
		Limit(5).
		Offset(10)

	where := qb.Options()
	assert.Equal(t, "(name EQ foo AND deleted NE true)", qb.Condition().String())
	assert.Equal(t, []core.Sort{{FieldName: "score", Order: -1}}, where.Sort)
	assert.Equal(t, 5, where.Limit)
	assert.Equal(t, 10, where.Offset)

	assert.Nil(t, core.NewQuery(schema).Filter(nil).Condition())
}

func TestConditionString(t *testing.T) {
	tests := []struct {
		name      string
		condition *core.Condition
		want      string
	}{
		{"nil", nil, "<all>"},
		{"leaf", core.Column("score").Gte(3), "score GTE 3"},
		{"null", core.Column("removed_at").Nil(), "removed_at IS NULL"},
		{"or", core.Column("a").Eq(1).Or(core.Column("b").Lt(2)), "(a EQ 1 OR b LT 2)"},
		{"not", core.Column("a").Nil().Not(), "NOT (a IS NULL)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.condition.String())
		})
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, ".*admin.", core.LikePattern("%admin_"))
	assert.Equal(t, `a\.b.*`, core.LikePattern("a.b%"))
}

func TestPipelineValidate(t *testing.T) {
	require.NoError(t, core.Pipeline{
		core.Match(core.Column("a").Eq(1)), core.SortBy(), core.Skip(0), core.LimitTo(2), core.Project("a"), core.CountAs("n"),
	}.Validate())
	assert.Error(t, core.Pipeline{core.Skip(-1)}.Validate())
	assert.Error(t, core.Pipeline{core.CountAs("")}.Validate())
	assert.Error(t, core.Pipeline{{Kind: "$group"}}.Validate())
}

func TestModelCRUD(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	model := core.NewModel(schema, driver)

	doc := item{Name: "foo", Score: 1}
	require.NoError(t, model.Create(ctx, &doc))
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())
	require.NoError(t, model.Create(ctx, &item{Name: "bar", Score: 2}))

	found, err := model.FindOne(ctx, core.NewQuery(schema).And(core.Column("name").Eq("foo")))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, doc.ID, found.ID)

	missing, err := model.FindOne(ctx, core.NewQuery(schema).And(core.Column("name").Eq("nope")))
	require.NoError(t, err)
	assert.Nil(t, missing)

	itemList, err := model.FindMany(ctx, core.NewQuery(schema).OrderBy("score", -1))
	require.NoError(t, err)
	require.Len(t, itemList, 2)
	assert.Equal(t, "bar", itemList[0].Name)

	modified, err := model.Update(ctx, core.NewQuery(schema).And(core.Column("name").Eq("foo")), core.Changes{"score": 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	n, err := model.Count(ctx, core.NewQuery(schema).And(core.Column("score").Gt(5)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := model.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Zero(t, driver.Len(model.Collection()))

	err = model.Create(ctx, &doc)
	require.NoError(t, err)
	err = model.Create(ctx, &doc)
	assert.ErrorIs(t, err, memory.ErrDuplicateKey)
	assert.ErrorIs(t, err, core.ErrExecution)
}

func TestModelSoftDelete(t *testing.T) {
	ctx := context.Background()
	schema := newItemSchema(core.OverrideField(func(i *item) **time.Time { return &i.RemovedAt }, core.DeletedAt()))
	events := core.NewEventDispatcher()
	updated := make(chan core.UpdatePayload, 1)
	events.On(core.EventUpdate, func(payload any) { updated <- payload.(core.UpdatePayload) })
	model := core.NewModel(schema, memory.New(), core.WithEvents(events))

	require.NoError(t, model.Create(ctx, &item{Name: "keep"}))
	require.NoError(t, model.Create(ctx, &item{Name: "drop"}))

	deleted, err := model.Delete(ctx, core.NewQuery(schema).And(core.Column("name").Eq("drop")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	select {
	case p := <-updated:
		assert.Contains(t, p.Changes, "removed_at")
	case <-time.After(time.Second):
		t.Fatal("soft delete must emit an update event")
	}

	n, err := model.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = model.Count(ctx, core.NewQuery(schema).WithDeleted())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	gone, err := model.FindMany(ctx, core.NewQuery(schema).OnlyDeleted())
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, "drop", gone[0].Name)
	assert.NotNil(t, gone[0].RemovedAt)
}

type note struct {
	ID        string    `db:"id"`
	Body      string    `db:"body"`
	UpdatedAt time.Time `db:"updated_at"`
}

func TestModelUpdateLeavesChangesUntouched(t *testing.T) {
	ctx := context.Background()
	schema := core.Schema(
		core.Table[note]("notes"),
		core.OverrideField(func(n *note) *string { return &n.ID }, core.PrimaryKey()),
		core.OverrideField(func(n *note) *time.Time { return &n.UpdatedAt }, core.UpdatedAt()),
	)
	var seen core.Changes
	schema.RegisterPostHook(core.OperationUpdate, func(ctx context.Context, hc *core.HookContext) error {
		seen = hc.Args[1].(core.Changes)
		return nil
	})
	model := core.NewModel(schema, memory.New())
	require.NoError(t, model.Create(ctx, &note{Body: "draft"}))

	changes := core.Changes{"body": "final"}
	modified, err := model.Update(ctx, nil, changes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)
	assert.Equal(t, core.Changes{"body": "final"}, changes)
	assert.Contains(t, seen, "updated_at")

	modified, err = model.Update(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	found, err := model.FindOne(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "final", found.Body)
	assert.False(t, found.UpdatedAt.IsZero())
}

func TestModelWithTenant(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	trackBoth(schema, core.OperationInsert, tr)
	model := core.NewModel(schema, driver)

	tenant := model.WithTenant("tenant_a")
	require.NoError(t, tenant.Create(ctx, &item{Name: "foo"}))

	assert.Equal(t, "tenant_a", tenant.Collection().Database)
	assert.Empty(t, model.Collection().Database)
	assert.Equal(t, 1, driver.Len(tenant.Collection()))
	assert.Zero(t, driver.Len(model.Collection()))
	assert.Len(t, tr.phase(core.PhasePre), 1, "tenant views share hooks")
}

func TestRunTransaction(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	model := core.NewModel(newItemSchema(), driver)
	errRollback := errors.New("rollback")

	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
		assert.NotNil(t, core.TransactionFrom(txCtx))
		require.NoError(t, model.Create(txCtx, &item{Name: "foo"}))
		return errRollback
	})
	assert.ErrorIs(t, err, errRollback)
	assert.Zero(t, driver.Len(model.Collection()))

	err = core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
		return model.Create(txCtx, &item{Name: "foo"})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, driver.Len(model.Collection()))
	assert.Nil(t, core.TransactionFrom(ctx))
}

func TestClosedDriver(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	require.NoError(t, driver.Close(ctx))

	_, err := core.NewModel(newItemSchema(), driver).Count(ctx, nil)
	assert.ErrorIs(t, err, memory.ErrClosed)
	err = core.RunTransaction(ctx, driver, func(txCtx context.Context) error { return nil })
	assert.ErrorIs(t, err, memory.ErrClosed)
}
