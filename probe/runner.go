package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrFailed is returned by Runner.Run when at least one scenario failed.
var ErrFailed = errors.New("probe: scenarios failed")

// Result is the outcome of one scenario.
type Result struct {
	Scenario Scenario
	Err      error
	Duration time.Duration
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Reporter receives progress while scenarios run. Calls may come from several
// goroutines when the runner is parallel.
type Reporter interface {
	ScenarioStarted(scenario Scenario)
	ScenarioFinished(result Result)
}

// Runner executes scenarios against an Env.
type Runner struct {
	env      *Env
	parallel int
	timeout  time.Duration
	reporter Reporter
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithParallel runs up to n scenarios at once. n <= 1 runs them in order.
func WithParallel(n int) RunnerOption {
	return func(r *Runner) { r.parallel = n }
}

// WithTimeout bounds each scenario. Zero means no bound.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = timeout }
}

// WithReporter sets the progress reporter.
func WithReporter(reporter Reporter) RunnerOption {
	return func(r *Runner) { r.reporter = reporter }
}

// NewRunner creates a Runner for env.
func NewRunner(env *Env, opts ...RunnerOption) *Runner {
	r := &Runner{env: env, parallel: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes scenarios and returns one Result per scenario, in the order
// given. The error is ErrFailed when any scenario failed; a failing scenario
// never stops the others.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) ([]Result, error) {
	resultList := make([]Result, len(scenarios))

	group := new(errgroup.Group)
	group.SetLimit(max(r.parallel, 1))
	for i, scenario := range scenarios {
		group.Go(func() error {
			resultList[i] = r.runOne(ctx, scenario)
			return nil
		})
	}
	_ = group.Wait()

	failed := 0
	for _, result := range resultList {
		if !result.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return resultList, fmt.Errorf("%w: %d of %d", ErrFailed, failed, len(resultList))
	}
	return resultList, nil
}

func (r *Runner) runOne(ctx context.Context, scenario Scenario) (result Result) {
	logger := r.env.logger().With(zap.String("scenario", scenario.Name))
	if r.reporter != nil {
		r.reporter.ScenarioStarted(scenario)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result.Err = fmt.Errorf("probe: scenario %s panicked: %v", scenario.Name, p)
		}
		result.Scenario = scenario
		result.Duration = time.Since(start)
		if result.Err != nil {
			logger.Warn("scenario failed", zap.Duration("took", result.Duration), zap.Error(result.Err))
		} else {
			logger.Info("scenario passed", zap.Duration("took", result.Duration))
		}
		if r.reporter != nil {
			r.reporter.ScenarioFinished(result)
		}
	}()

	result.Err = scenario.Run(ctx, r.env)
	return result
}
