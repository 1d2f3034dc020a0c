package probe

import (
	"context"
	"sync"

	"github.com/leandroluk/golem-statichooks/core"
	"go.uber.org/zap"
)

// Item is the document every scenario stores.
type Item struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	Deleted bool   `db:"deleted"`
}

// hookCall is one hook invocation seen by a hookTrace.
type hookCall struct {
	Operation core.Operation
	Phase     core.Phase
	Kind      core.ContextKind
	Origin    core.Origin
	Receiver  any
}

// hookTrace is a HookFunc target that remembers every invocation.
type hookTrace struct {
	mutex    sync.Mutex
	callList []hookCall
}

func (t *hookTrace) hook(ctx context.Context, hc *core.HookContext) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.callList = append(t.callList, hookCall{
		Operation: hc.Operation,
		Phase:     hc.Phase,
		Kind:      hc.Kind,
		Origin:    hc.Origin,
		Receiver:  hc.Receiver,
	})
	return nil
}

// calls returns the invocations for op and phase in order.
func (t *hookTrace) calls(op core.Operation, phase core.Phase) []hookCall {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := []hookCall{}
	for _, call := range t.callList {
		if call.Operation == op && call.Phase == phase {
			out = append(out, call)
		}
	}
	return out
}

func (t *hookTrace) count(op core.Operation, phase core.Phase) int {
	return len(t.calls(op, phase))
}

// fixture is a freshly created collection with a model bound to it.
type fixture struct {
	env        *Env
	schema     *core.SchemaMeta[Item]
	model      *core.Model[Item]
	recorder   *core.Recorder
	trace      *hookTrace
	executions *executionCounter
}

// executionCounter is a middleware counting built-in executions per operation.
type executionCounter struct {
	mutex    sync.Mutex
	countMap map[core.Operation]int
}

func (c *executionCounter) middleware(next core.Handler) core.Handler {
	return func(ctx context.Context, op core.Operation, payload any) error {
		c.mutex.Lock()
		c.countMap[op]++
		c.mutex.Unlock()
		return next(ctx, op, payload)
	}
}

func (c *executionCounter) count(op core.Operation) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.countMap[op]
}

// newFixture builds the Item schema under a unique collection name, lets
// setup register hooks and statics, and migrates the collection when the
// driver supports it.
func newFixture(ctx context.Context, env *Env, name string, policy core.StaticHookPolicy, setup func(f *fixture)) (*fixture, error) {
	schema := core.Schema[Item](
		core.Table[Item](env.collection(name)),
		core.Database[Item](env.Database),
		core.StaticHooks[Item](policy),
		core.OverrideField(func(i *Item) *string { return &i.ID }, core.PrimaryKey()),
	)
	f := &fixture{
		env:        env,
		schema:     schema,
		recorder:   &core.Recorder{},
		trace:      &hookTrace{},
		executions: &executionCounter{countMap: make(map[core.Operation]int)},
	}
	if setup != nil {
		setup(f)
	}

	middlewareList := append([]core.Middleware{f.executions.middleware}, env.Middleware...)
	f.model = core.NewModel(schema, env.Driver,
		core.WithLogger(env.logger().With(zap.String("collection", schema.Collection))),
		core.WithObserver(append([]core.Observer{f.recorder}, env.Observers...)...),
		core.WithMiddleware(middlewareList...),
	)

	if migrator, ok := env.Driver.(core.Migrator); ok {
		if err := migrator.Migrate(ctx, &schema.SchemaCore); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// track registers the trace's hook for op in both phases.
func (f *fixture) track(op core.Operation, opts ...core.HookOption) {
	f.schema.RegisterPreHook(op, f.trace.hook, opts...)
	f.schema.RegisterPostHook(op, f.trace.hook, opts...)
}

// seed inserts items through the driver so no hook fires.
func (f *fixture) seed(ctx context.Context, itemList ...Item) error {
	for i := range itemList {
		doc := core.Document{
			"id":      itemList[i].ID,
			"name":    itemList[i].Name,
			"deleted": itemList[i].Deleted,
		}
		if err := f.env.Driver.Insert(ctx, &f.schema.SchemaCore, doc); err != nil {
			return err
		}
	}
	return nil
}

// cleanup drops the collection, or empties it when the driver cannot drop.
func (f *fixture) cleanup(ctx context.Context) {
	var err error
	if migrator, ok := f.env.Driver.(core.Migrator); ok {
		err = migrator.Drop(ctx, &f.schema.SchemaCore)
	} else {
		_, err = f.env.Driver.Delete(ctx, &f.schema.SchemaCore, nil)
	}
	if err != nil {
		f.env.logger().Warn("cleanup failed",
			zap.String("collection", f.schema.Collection),
			zap.Error(err))
	}
}
