package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"github.com/leandroluk/golem-statichooks/driver/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type item struct {
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	Deleted   bool       `db:"deleted"`
	Score     int        `db:"score"`
	CreatedAt time.Time  `db:"created_at"`
	RemovedAt *time.Time `db:"removed_at"`
}

type firing struct {
	op     core.Operation
	phase  core.Phase
	kind   core.ContextKind
	origin core.Origin
}

type tracer struct {
	mutex      sync.Mutex
	firingList []firing
}

func (tr *tracer) hook(ctx context.Context, hc *core.HookContext) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	tr.firingList = append(tr.firingList, firing{hc.Operation, hc.Phase, hc.Kind, hc.Origin})
	return nil
}

func (tr *tracer) phase(phase core.Phase) []firing {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	out := []firing{}
	for _, f := range tr.firingList {
		if f.phase == phase {
			out = append(out, f)
		}
	}
	return out
}

func newItemSchema(opts ...core.SchemaOption[item]) *core.SchemaMeta[item] {
	base := []core.SchemaOption[item]{
		core.Table[item]("items"),
		core.OverrideField(func(i *item) *string { return &i.ID }, core.PrimaryKey()),
		core.OverrideField(func(i *item) *time.Time { return &i.CreatedAt }, core.CreatedAt()),
	}
	return core.Schema(append(base, opts...)...)
}

func trackBoth(schema *core.SchemaMeta[item], op core.Operation, tr *tracer, opts ...core.HookOption) {
	schema.RegisterPreHook(op, tr.hook, opts...)
	schema.RegisterPostHook(op, tr.hook, opts...)
}

// seed inserts through a hook-free schema bound to the same collection.
func seed(t *testing.T, driver *memory.Driver, itemList ...item) {
	t.Helper()
	model := core.NewModel(newItemSchema(), driver)
	for i := range itemList {
		require.NoError(t, model.Create(context.Background(), &itemList[i]))
	}
}

func softDeleteAggregate(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
	pipeline := args[0].(core.Pipeline)
	out := append(core.Pipeline{core.Match(core.Column("deleted").Ne(false))}, pipeline...)
	return m.Base().Aggregate(ctx, out)
}

func TestAggregateStaticDelegatingFiresHooksTwice(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	schema.Static(core.OperationAggregate, softDeleteAggregate)
	trackBoth(schema, core.OperationAggregate, tr)
	seed(t, driver, item{Name: "foo", Deleted: true})

	model := core.NewModel(schema, driver)
	resultList, err := model.Aggregate(ctx, core.Pipeline{core.Match(core.Column("name").Eq("foo"))})
	require.NoError(t, err)
	assert.Len(t, resultList, 1)

	assert.Equal(t, []firing{
		{core.OperationAggregate, core.PhasePre, core.ContextModel, core.OriginStatic},
		{core.OperationAggregate, core.PhasePre, core.ContextAggregate, core.OriginCore},
	}, tr.phase(core.PhasePre))
	assert.Equal(t, []firing{
		{core.OperationAggregate, core.PhasePost, core.ContextAggregate, core.OriginCore},
		{core.OperationAggregate, core.PhasePost, core.ContextModel, core.OriginStatic},
	}, tr.phase(core.PhasePost))
}

func TestAggregateReceiverMatchesKind(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	schema.Static(core.OperationAggregate, softDeleteAggregate)

	var receiverList []any
	schema.RegisterPreHook(core.OperationAggregate, func(ctx context.Context, hc *core.HookContext) error {
		switch hc.Kind {
		case core.ContextModel:
			_, ok := hc.Receiver.(*core.Model[item])
			assert.True(t, ok, "model kind must carry *Model")
		case core.ContextAggregate:
			_, ok := hc.Receiver.(*core.Aggregate[item])
			assert.True(t, ok, "aggregate kind must carry *Aggregate")
		}
		receiverList = append(receiverList, hc.Receiver)
		return nil
	})

	model := core.NewModel(schema, driver)
	_, err := model.Aggregate(ctx, nil)
	require.NoError(t, err)
	require.Len(t, receiverList, 2)
	assert.Same(t, model, receiverList[0])
}

func TestStrictPolicyFramesOnlyCustomStatics(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema(core.StaticHooks[item](core.StaticHooksStrict))
	tr := &tracer{}
	schema.Static(core.OperationAggregate, softDeleteAggregate)
	schema.Static("archive", func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
		return "archived", nil
	})
	trackBoth(schema, core.OperationAggregate, tr)
	trackBoth(schema, "archive", tr)

	model := core.NewModel(schema, driver)
	_, err := model.Aggregate(ctx, nil)
	require.NoError(t, err)
	out, err := model.Call(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, "archived", out)

	assert.Equal(t, []firing{
		{core.OperationAggregate, core.PhasePre, core.ContextAggregate, core.OriginCore},
		{"archive", core.PhasePre, core.ContextModel, core.OriginStatic},
	}, tr.phase(core.PhasePre))
}

func TestOnlyOriginFiltersStaticFrame(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	recorder := &core.Recorder{}
	schema.Static(core.OperationAggregate, softDeleteAggregate)
	trackBoth(schema, core.OperationAggregate, tr, core.OnlyOrigin(core.OriginCore))

	model := core.NewModel(schema, driver, core.WithObserver(recorder))
	_, err := model.Aggregate(ctx, nil)
	require.NoError(t, err)

	assert.Len(t, tr.phase(core.PhasePre), 1)
	assert.Len(t, tr.phase(core.PhasePost), 1)
	assert.Equal(t, []core.Firing{
		{Operation: core.OperationAggregate, Phase: core.PhasePre, Kind: core.ContextModel, Origin: core.OriginStatic, Count: 0},
		{Operation: core.OperationAggregate, Phase: core.PhasePre, Kind: core.ContextAggregate, Origin: core.OriginCore, Count: 1},
		{Operation: core.OperationAggregate, Phase: core.PhasePost, Kind: core.ContextAggregate, Origin: core.OriginCore, Count: 1},
		{Operation: core.OperationAggregate, Phase: core.PhasePost, Kind: core.ContextModel, Origin: core.OriginStatic, Count: 0},
	}, recorder.Firings())
}

func TestFindOneStaticDelegatingFiresOnce(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	schema.Static(core.OperationFindOne, func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
		qb := args[0].(*core.Query[item])
		return m.Base().FindOne(ctx, qb.And(core.Column("deleted").Ne(true)))
	})
	trackBoth(schema, core.OperationFindOne, tr)
	seed(t, driver, item{Name: "gone", Deleted: true}, item{Name: "foo"})

	model := core.NewModel(schema, driver)
	found, err := model.FindOne(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "foo", found.Name)

	assert.Equal(t, []firing{{core.OperationFindOne, core.PhasePre, core.ContextQuery, core.OriginCore}}, tr.phase(core.PhasePre))
	assert.Equal(t, []firing{{core.OperationFindOne, core.PhasePost, core.ContextQuery, core.OriginCore}}, tr.phase(core.PhasePost))
}

func TestNoOverrideFiresOncePerOperation(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	recorder := &core.Recorder{}
	tr := &tracer{}
	opList := []core.Operation{
		core.OperationInsert, core.OperationFindOne, core.OperationFind, core.OperationCount,
		core.OperationUpdate, core.OperationAggregate, core.OperationDelete,
	}
	for _, op := range opList {
		trackBoth(schema, op, tr)
	}
	model := core.NewModel(schema, driver, core.WithObserver(recorder))

	doc := item{Name: "foo"}
	require.NoError(t, model.Create(ctx, &doc))
	_, err := model.FindOne(ctx, nil)
	require.NoError(t, err)
	_, err = model.FindMany(ctx, nil)
	require.NoError(t, err)
	_, err = model.Count(ctx, nil)
	require.NoError(t, err)
	_, err = model.Update(ctx, nil, core.Changes{"score": 3})
	require.NoError(t, err)
	_, err = model.Aggregate(ctx, nil)
	require.NoError(t, err)
	_, err = model.Delete(ctx, nil)
	require.NoError(t, err)

	for _, op := range opList {
		count := 0
		for _, f := range tr.phase(core.PhasePre) {
			if f.op == op {
				count++
				assert.Equal(t, core.OriginCore, f.origin)
			}
		}
		assert.Equal(t, 1, count, "pre %s", op)
	}
	assert.Len(t, tr.phase(core.PhasePost), len(opList))
	assert.Len(t, recorder.Firings(), 2*len(opList))
}

func TestNonDelegatingStaticSkipsCore(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	canned := []core.Document{{"name": "canned"}}
	schema.Static(core.OperationAggregate, func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
		return canned, nil
	})
	trackBoth(schema, core.OperationAggregate, tr)

	executed := 0
	model := core.NewModel(schema, driver, core.WithMiddleware(func(next core.Handler) core.Handler {
		return func(ctx context.Context, op core.Operation, payload any) error {
			executed++
			return next(ctx, op, payload)
		}
	}))
	resultList, err := model.Aggregate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, canned, resultList)
	assert.Zero(t, executed)
	for _, f := range append(tr.phase(core.PhasePre), tr.phase(core.PhasePost)...) {
		assert.Equal(t, core.OriginStatic, f.origin)
	}
}

func TestPreHookAbortStopsChain(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	errDenied := errors.New("denied")
	secondCalled := false
	postCalled := false
	schema.RegisterPreHook(core.OperationInsert, func(ctx context.Context, hc *core.HookContext) error {
		return errDenied
	})
	schema.RegisterPreHook(core.OperationInsert, func(ctx context.Context, hc *core.HookContext) error {
		secondCalled = true
		return nil
	})
	schema.RegisterPostHook(core.OperationInsert, func(ctx context.Context, hc *core.HookContext) error {
		postCalled = true
		return nil
	})

	model := core.NewModel(schema, driver)
	err := model.Create(ctx, &item{Name: "foo"})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHookAbort)
	assert.ErrorIs(t, err, errDenied)
	var abortErr *core.HookAbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, core.PhasePre, abortErr.Phase)
	assert.Equal(t, core.ContextDocument, abortErr.Kind)
	assert.False(t, secondCalled)
	assert.False(t, postCalled)
	assert.Zero(t, driver.Len(&schema.SchemaCore))
}

func TestPostHookErrorAfterExecution(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	schema.RegisterPostHook(core.OperationInsert, func(ctx context.Context, hc *core.HookContext) error {
		return errors.New("audit unavailable")
	})

	err := core.NewModel(schema, driver).Create(ctx, &item{Name: "foo"})
	assert.ErrorIs(t, err, core.ErrHookAbort)
	assert.Equal(t, 1, driver.Len(&schema.SchemaCore))
}

func TestExecutionErrorWrapsDriverFailure(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	trackBoth(schema, core.OperationAggregate, tr)
	errDown := errors.New("connection refused")
	driver.InjectFault("Aggregate", errDown)

	_, err := core.NewModel(schema, driver).Aggregate(ctx, nil)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.ErrorIs(t, err, errDown)
	assert.Len(t, tr.phase(core.PhasePre), 1)
	assert.Empty(t, tr.phase(core.PhasePost))
}

func TestDelegatedBaseFailureSkipsBothPostFrames(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	tr := &tracer{}
	schema.Static(core.OperationAggregate, softDeleteAggregate)
	trackBoth(schema, core.OperationAggregate, tr)
	errDown := errors.New("connection refused")
	driver.InjectFault("Aggregate", errDown)

	resultList, err := core.NewModel(schema, driver).Aggregate(ctx, nil)
	assert.Nil(t, resultList)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, []firing{
		{core.OperationAggregate, core.PhasePre, core.ContextModel, core.OriginStatic},
		{core.OperationAggregate, core.PhasePre, core.ContextAggregate, core.OriginCore},
	}, tr.phase(core.PhasePre))
	assert.Empty(t, tr.phase(core.PhasePost))
}

func TestMiddlewareSkippingNext(t *testing.T) {
	ctx := context.Background()
	schema := newItemSchema()
	tr := &tracer{}
	trackBoth(schema, core.OperationFindOne, tr)
	skip := func(next core.Handler) core.Handler {
		return func(ctx context.Context, op core.Operation, payload any) error {
			return nil
		}
	}
	driver := memory.New()
	seed(t, driver, item{Name: "foo"})
	model := core.NewModel(schema, driver, core.WithMiddleware(skip))

	found, err := model.FindOne(ctx, nil)
	assert.Nil(t, found)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.ErrorIs(t, err, core.ErrNotExecuted)
	assert.Len(t, tr.phase(core.PhasePre), 1)
	assert.Empty(t, tr.phase(core.PhasePost))

	itemList, err := model.FindMany(ctx, nil)
	assert.Nil(t, itemList)
	assert.ErrorIs(t, err, core.ErrNotExecuted)

	n, err := model.Count(ctx, nil)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, core.ErrNotExecuted)

	_, err = model.Update(ctx, nil, core.Changes{"score": 1})
	assert.ErrorIs(t, err, core.ErrNotExecuted)
	_, err = model.Delete(ctx, nil)
	assert.ErrorIs(t, err, core.ErrNotExecuted)
	_, err = model.Aggregate(ctx, nil)
	assert.ErrorIs(t, err, core.ErrNotExecuted)
	assert.Equal(t, 1, driver.Len(model.Collection()))
}

func TestValidationErrorIsNotWrapped(t *testing.T) {
	ctx := context.Background()
	schema := newItemSchema(core.OverrideField(func(i *item) *string { return &i.Name }, core.Required()))

	err := core.NewModel(schema, memory.New()).Create(ctx, &item{})
	var validationErr *core.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "name", validationErr.Field)
	assert.NotErrorIs(t, err, core.ErrExecution)
}

func TestPreHookReshapesAggregatePipeline(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	seed(t, driver, item{Name: "a", Score: 1}, item{Name: "b", Score: 2}, item{Name: "c", Score: 3})
	schema.RegisterPreHook(core.OperationAggregate, func(ctx context.Context, hc *core.HookContext) error {
		hc.Receiver.(*core.Aggregate[item]).Append(core.LimitTo(1))
		return nil
	})

	pipeline := core.Pipeline{core.SortBy(core.Sort{FieldName: "score", Order: -1})}
	resultList, err := core.NewModel(schema, driver).Aggregate(ctx, pipeline)
	require.NoError(t, err)
	require.Len(t, resultList, 1)
	assert.Equal(t, "c", resultList[0]["name"])
	assert.Len(t, pipeline, 1, "caller pipeline must not change")
}

func TestInvalidPipelineIsExecutionError(t *testing.T) {
	_, err := core.NewModel(newItemSchema(), memory.New()).Aggregate(context.Background(), core.Pipeline{core.LimitTo(-1)})
	assert.ErrorIs(t, err, core.ErrExecution)
}

func TestStaticResultTypeMismatch(t *testing.T) {
	schema := newItemSchema()
	schema.Static(core.OperationCount, func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
		return "many", nil
	})

	_, err := core.NewModel(schema, memory.New()).Count(context.Background(), nil)
	var resultErr *core.StaticResultError
	require.ErrorAs(t, err, &resultErr)
	assert.Equal(t, core.OperationCount, resultErr.Operation)
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	seed(t, driver, item{Name: "foo"})
	model := core.NewModel(schema, driver)

	t.Run("built-in", func(t *testing.T) {
		out, err := model.Call(ctx, core.OperationCount)
		require.NoError(t, err)
		assert.Equal(t, int64(1), out)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := model.Call(ctx, "archive")
		assert.ErrorIs(t, err, core.ErrUnknownOperation)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := model.Call(ctx, core.OperationAggregate, "not a pipeline")
		assert.ErrorIs(t, err, core.ErrInvalidArguments)
		_, err = model.Call(ctx, core.OperationFindOne, 42)
		assert.ErrorIs(t, err, core.ErrInvalidArguments)
	})

	t.Run("custom static is framed", func(t *testing.T) {
		tr := &tracer{}
		trackBoth(schema, "touch", tr)
		schema.Static("touch", func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
			return m.Update(ctx, nil, core.Changes{"score": args[0]})
		})
		out, err := model.Call(ctx, "touch", 9)
		require.NoError(t, err)
		assert.Equal(t, int64(1), out)
		assert.Len(t, tr.phase(core.PhasePre), 1)
	})
}

func TestBaseIgnoresStatics(t *testing.T) {
	schema := newItemSchema()
	schema.Static(core.OperationCount, func(ctx context.Context, m *core.Model[item], args ...any) (any, error) {
		return int64(99), nil
	})
	model := core.NewModel(schema, memory.New())

	n, err := model.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), n)

	n, err = model.Base().Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, model.Base().IsBase())
	assert.False(t, model.IsBase())
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	wrap := func(name string) core.Middleware {
		return func(next core.Handler) core.Handler {
			return func(ctx context.Context, op core.Operation, payload any) error {
				order = append(order, name+">")
				err := next(ctx, op, payload)
				order = append(order, "<"+name)
				return err
			}
		}
	}
	schema := newItemSchema()
	schema.RegisterPreHook(core.OperationCount, func(ctx context.Context, hc *core.HookContext) error {
		order = append(order, "pre")
		return nil
	})
	model := core.NewModel(schema, memory.New(), core.WithMiddleware(wrap("outer"), wrap("inner")))

	_, err := model.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "outer>", "inner>", "<inner", "<outer"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	model := core.NewModel(newItemSchema(), memory.New(), core.WithMiddleware(
		core.RecoverMiddleware(zap.NewNop()),
		func(next core.Handler) core.Handler {
			return func(ctx context.Context, op core.Operation, payload any) error {
				panic("boom")
			}
		},
	))

	_, err := model.Count(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.ErrorContains(t, err, "boom")
}

func TestEventsEmittedAfterCoreOperations(t *testing.T) {
	ctx := context.Background()
	events := core.NewEventDispatcher()
	inserted := make(chan core.InsertPayload[item], 1)
	aggregated := make(chan core.AggregatePayload, 1)
	events.On(core.EventInsert, func(payload any) { inserted <- payload.(core.InsertPayload[item]) })
	events.On(core.EventAggregate, func(payload any) { aggregated <- payload.(core.AggregatePayload) })

	model := core.NewModel(newItemSchema(), memory.New(), core.WithEvents(events))
	require.NoError(t, model.Create(ctx, &item{Name: "foo"}))
	_, err := model.Aggregate(ctx, core.Pipeline{core.CountAs("n")})
	require.NoError(t, err)

	select {
	case p := <-inserted:
		assert.Equal(t, "foo", p.Doc.Name)
	case <-time.After(time.Second):
		t.Fatal("insert event not emitted")
	}
	select {
	case p := <-aggregated:
		assert.Equal(t, []core.Document{{"n": int64(1)}}, p.Result)
	case <-time.After(time.Second):
		t.Fatal("aggregate event not emitted")
	}
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	ctx := context.Background()
	driver := memory.New()
	schema := newItemSchema()
	schema.Static(core.OperationAggregate, softDeleteAggregate)
	tr := &tracer{}
	trackBoth(schema, core.OperationAggregate, tr)
	model := core.NewModel(schema, driver)

	const calls = 16
	var wg sync.WaitGroup
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := model.Aggregate(ctx, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, tr.phase(core.PhasePre), 2*calls)
	assert.Len(t, tr.phase(core.PhasePost), 2*calls)
}
