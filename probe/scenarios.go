package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/leandroluk/golem-statichooks/core"
)

// softDeleteAggregate narrows the first $match of the pipeline (or prepends
// one) to documents whose deleted flag is not false, then delegates to the
// built-in aggregate.
func softDeleteAggregate(ctx context.Context, m *core.Model[Item], args ...any) (any, error) {
	pipeline, _ := args[0].(core.Pipeline)
	notDeleted := core.Column("deleted").Ne(false)

	out := make(core.Pipeline, 0, len(pipeline)+1)
	if len(pipeline) > 0 && pipeline[0].Kind == core.StageMatch && pipeline[0].Match != nil {
		first := pipeline[0]
		first.Match = first.Match.And(notDeleted)
		out = append(append(out, first), pipeline[1:]...)
	} else {
		out = append(append(out, core.Match(notDeleted)), pipeline...)
	}
	return m.Base().Aggregate(ctx, out)
}

// softDeleteFindOne hides items flagged as deleted, then delegates to the
// built-in findOne.
func softDeleteFindOne(ctx context.Context, m *core.Model[Item], args ...any) (any, error) {
	qb, _ := args[0].(*core.Query[Item])
	qb.And(core.Column("deleted").Ne(true))
	return m.Base().FindOne(ctx, qb)
}

func fooPipeline() core.Pipeline {
	return core.Pipeline{core.Match(core.Column("name").Eq("foo"))}
}

func newItem(name string, deleted bool) Item {
	return Item{ID: uuid.NewString(), Name: name, Deleted: deleted}
}

func kinds(callList []hookCall) []core.ContextKind {
	out := make([]core.ContextKind, 0, len(callList))
	for _, call := range callList {
		out = append(out, call.Kind)
	}
	return out
}

// All returns every scenario in run order.
func All() []Scenario {
	return []Scenario{
		{
			Name:        "aggregate-double-fire",
			Description: "a static aggregate delegating to the built-in fires the shared aggregate hooks twice",
			Run:         runAggregateDoubleFire,
		},
		{
			Name:        "aggregate-context-identity",
			Description: "the static firing is bound to the model, the built-in firing to the aggregate",
			Run:         runAggregateContextIdentity,
		},
		{
			Name:        "findone-single-fire",
			Description: "a static findOne delegating to the built-in fires the findOne hooks once, on the query",
			Run:         runFindOneSingleFire,
		},
		{
			Name:        "no-override",
			Description: "without statics every operation fires exactly one pre and one post hook",
			Run:         runNoOverride,
		},
		{
			Name:        "non-delegating-override",
			Description: "a static aggregate that never reaches the built-in causes no core firing",
			Run:         runNonDelegatingOverride,
		},
		{
			Name:        "strict-policy",
			Description: "under the strict policy a static aggregate is not framed and hooks fire once",
			Run:         runStrictPolicy,
		},
		{
			Name:        "origin-filtered-hooks",
			Description: "hooks restricted to the core origin fire once even when the static is framed",
			Run:         runOriginFilteredHooks,
		},
		{
			Name:        "pre-hook-abort",
			Description: "a failing pre hook aborts the call before the static body and the driver run",
			Run:         runPreHookAbort,
		},
	}
}

// Lookup returns the scenarios with the given names, in the order given. An
// empty list selects every scenario.
func Lookup(nameList ...string) ([]Scenario, error) {
	all := All()
	if len(nameList) == 0 {
		return all, nil
	}
	byName := make(map[string]Scenario, len(all))
	for _, scenario := range all {
		byName[scenario.Name] = scenario
	}
	out := make([]Scenario, 0, len(nameList))
	for _, name := range nameList {
		scenario, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("probe: unknown scenario %q", name)
		}
		out = append(out, scenario)
	}
	return out, nil
}

// aggregateFixture builds the soft-delete aggregate setup shared by several
// scenarios and runs the aggregate once.
func aggregateFixture(ctx context.Context, env *Env, name string, policy core.StaticHookPolicy, opts ...core.HookOption) (*fixture, []core.Document, error) {
	f, err := newFixture(ctx, env, name, policy, func(f *fixture) {
		f.schema.Static(core.OperationAggregate, softDeleteAggregate)
		f.track(core.OperationAggregate, opts...)
	})
	if err != nil {
		return nil, nil, err
	}
	if err := f.seed(ctx, newItem("foo", true)); err != nil {
		f.cleanup(ctx)
		return nil, nil, err
	}
	resultList, err := f.model.Aggregate(ctx, fooPipeline())
	if err != nil {
		f.cleanup(ctx)
		return nil, nil, err
	}
	return f, resultList, nil
}

func runAggregateDoubleFire(ctx context.Context, env *Env) error {
	f, resultList, err := aggregateFixture(ctx, env, "aggregate-double-fire", core.StaticHooksLegacy)
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	c := &checker{scenario: "aggregate-double-fire"}
	c.isTrue("result is not empty", len(resultList) > 0)
	c.equal("pre aggregate firings", 2, f.trace.count(core.OperationAggregate, core.PhasePre))
	c.equal("post aggregate firings", 2, f.trace.count(core.OperationAggregate, core.PhasePost))
	c.equal("built-in executions", 1, f.executions.count(core.OperationAggregate))
	return c.err
}

func runAggregateContextIdentity(ctx context.Context, env *Env) error {
	f, _, err := aggregateFixture(ctx, env, "aggregate-context-identity", core.StaticHooksLegacy)
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	c := &checker{scenario: "aggregate-context-identity"}
	preList := f.trace.calls(core.OperationAggregate, core.PhasePre)
	postList := f.trace.calls(core.OperationAggregate, core.PhasePost)
	c.equal("pre kinds", []core.ContextKind{core.ContextModel, core.ContextAggregate}, kinds(preList))
	c.equal("post kinds", []core.ContextKind{core.ContextAggregate, core.ContextModel}, kinds(postList))
	if c.err != nil {
		return c.err
	}

	_, preIsAggregate := preList[1].Receiver.(*core.Aggregate[Item])
	_, preIsModel := preList[0].Receiver.(*core.Model[Item])
	_, postIsAggregate := postList[0].Receiver.(*core.Aggregate[Item])
	c.isTrue("first pre receiver is the model", preIsModel)
	c.isTrue("second pre receiver is the aggregate", preIsAggregate)
	c.isTrue("first post receiver is the aggregate", postIsAggregate)
	c.equal("first pre origin", core.OriginStatic, preList[0].Origin)
	c.equal("second pre origin", core.OriginCore, preList[1].Origin)
	return c.err
}

func runFindOneSingleFire(ctx context.Context, env *Env) error {
	f, err := newFixture(ctx, env, "findone-single-fire", core.StaticHooksLegacy, func(f *fixture) {
		f.schema.Static(core.OperationFindOne, softDeleteFindOne)
		f.track(core.OperationFindOne)
	})
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)
	if err := f.seed(ctx, newItem("foo", false)); err != nil {
		return err
	}

	item, err := f.model.FindOne(ctx, nil)
	if err != nil {
		return err
	}

	c := &checker{scenario: "findone-single-fire"}
	c.isTrue("result is found", item != nil)
	c.equal("pre findOne firings", 1, f.trace.count(core.OperationFindOne, core.PhasePre))
	c.equal("post findOne firings", 1, f.trace.count(core.OperationFindOne, core.PhasePost))
	if c.err != nil {
		return c.err
	}
	for _, phase := range []core.Phase{core.PhasePre, core.PhasePost} {
		call := f.trace.calls(core.OperationFindOne, phase)[0]
		_, isQuery := call.Receiver.(*core.Query[Item])
		c.equal(string(phase)+" kind", core.ContextQuery, call.Kind)
		c.isTrue(string(phase)+" receiver is the query", isQuery)
	}
	return c.err
}

func runNoOverride(ctx context.Context, env *Env) error {
	opList := []core.Operation{
		core.OperationInsert,
		core.OperationFindOne,
		core.OperationFind,
		core.OperationCount,
		core.OperationUpdate,
		core.OperationAggregate,
		core.OperationDelete,
	}
	f, err := newFixture(ctx, env, "no-override", core.StaticHooksLegacy, func(f *fixture) {
		for _, op := range opList {
			f.track(op)
		}
	})
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	item := newItem("foo", false)
	if err := f.model.Create(ctx, &item); err != nil {
		return err
	}
	byName := func() *core.Query[Item] {
		return core.NewQuery(f.schema).And(core.Column("name").Eq("foo"))
	}
	if _, err := f.model.FindOne(ctx, byName()); err != nil {
		return err
	}
	if _, err := f.model.FindMany(ctx, byName()); err != nil {
		return err
	}
	if _, err := f.model.Count(ctx, byName()); err != nil {
		return err
	}
	if _, err := f.model.Update(ctx, byName(), core.Changes{"deleted": true}); err != nil {
		return err
	}
	if _, err := f.model.Aggregate(ctx, fooPipeline()); err != nil {
		return err
	}
	if _, err := f.model.Delete(ctx, byName()); err != nil {
		return err
	}

	c := &checker{scenario: "no-override"}
	for _, op := range opList {
		c.equal("pre "+string(op)+" firings", 1, f.trace.count(op, core.PhasePre))
		c.equal("post "+string(op)+" firings", 1, f.trace.count(op, core.PhasePost))
	}
	return c.err
}

func runNonDelegatingOverride(ctx context.Context, env *Env) error {
	canned := []core.Document{{"name": "canned"}}
	f, err := newFixture(ctx, env, "non-delegating-override", core.StaticHooksLegacy, func(f *fixture) {
		f.schema.Static(core.OperationAggregate, func(ctx context.Context, m *core.Model[Item], args ...any) (any, error) {
			return canned, nil
		})
		f.track(core.OperationAggregate)
	})
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	resultList, err := f.model.Aggregate(ctx, fooPipeline())
	if err != nil {
		return err
	}

	coreFirings := 0
	for _, phase := range []core.Phase{core.PhasePre, core.PhasePost} {
		for _, call := range f.trace.calls(core.OperationAggregate, phase) {
			if call.Origin == core.OriginCore {
				coreFirings++
			}
		}
	}

	c := &checker{scenario: "non-delegating-override"}
	c.equal("result", canned, resultList)
	c.equal("core firings", 0, coreFirings)
	c.equal("static pre firings", 1, f.trace.count(core.OperationAggregate, core.PhasePre))
	c.equal("built-in executions", 0, f.executions.count(core.OperationAggregate))
	return c.err
}

func runStrictPolicy(ctx context.Context, env *Env) error {
	f, resultList, err := aggregateFixture(ctx, env, "strict-policy", core.StaticHooksStrict)
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	c := &checker{scenario: "strict-policy"}
	c.isTrue("result is not empty", len(resultList) > 0)
	c.equal("pre kinds", []core.ContextKind{core.ContextAggregate}, kinds(f.trace.calls(core.OperationAggregate, core.PhasePre)))
	c.equal("post kinds", []core.ContextKind{core.ContextAggregate}, kinds(f.trace.calls(core.OperationAggregate, core.PhasePost)))
	return c.err
}

func runOriginFilteredHooks(ctx context.Context, env *Env) error {
	f, resultList, err := aggregateFixture(ctx, env, "origin-filtered-hooks", core.StaticHooksLegacy, core.OnlyOrigin(core.OriginCore))
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)

	c := &checker{scenario: "origin-filtered-hooks"}
	c.isTrue("result is not empty", len(resultList) > 0)
	c.equal("pre aggregate firings", 1, f.trace.count(core.OperationAggregate, core.PhasePre))
	c.equal("post aggregate firings", 1, f.trace.count(core.OperationAggregate, core.PhasePost))

	// The static frame still happens; it just matches no hook.
	staticFrames := 0
	for _, firing := range f.recorder.Firings() {
		if firing.Origin == core.OriginStatic {
			c.equal("static frame hook count", 0, firing.Count)
			staticFrames++
		}
	}
	c.equal("static frames", 2, staticFrames)
	return c.err
}

// errRejected is returned by the aborting pre hook of pre-hook-abort.
var errRejected = errors.New("rejected by pre hook")

func runPreHookAbort(ctx context.Context, env *Env) error {
	staticCalls := 0
	f, err := newFixture(ctx, env, "pre-hook-abort", core.StaticHooksLegacy, func(f *fixture) {
		f.schema.Static(core.OperationAggregate, func(ctx context.Context, m *core.Model[Item], args ...any) (any, error) {
			staticCalls++
			return softDeleteAggregate(ctx, m, args...)
		})
		f.schema.RegisterPreHook(core.OperationAggregate, func(ctx context.Context, hc *core.HookContext) error {
			return errRejected
		})
		f.schema.RegisterPostHook(core.OperationAggregate, f.trace.hook)
	})
	if err != nil {
		return err
	}
	defer f.cleanup(ctx)
	if err := f.seed(ctx, newItem("foo", true)); err != nil {
		return err
	}

	_, err = f.model.Aggregate(ctx, fooPipeline())

	var abortErr *core.HookAbortError
	c := &checker{scenario: "pre-hook-abort"}
	c.isTrue("error is a hook abort", errors.Is(err, core.ErrHookAbort))
	c.isTrue("error wraps the hook error", errors.Is(err, errRejected))
	c.isTrue("error is a *HookAbortError", errors.As(err, &abortErr))
	if c.err != nil {
		return c.err
	}
	c.equal("aborting origin", core.OriginStatic, abortErr.Origin)
	c.equal("static body calls", 0, staticCalls)
	c.equal("built-in executions", 0, f.executions.count(core.OperationAggregate))
	c.equal("post firings", 0, f.trace.count(core.OperationAggregate, core.PhasePost))
	return c.err
}
