// Package probe runs scenarios that observe how hooks fire around static
// overrides and built-in operations, against any core.Driver.
package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/leandroluk/golem-statichooks/core"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Env is the environment shared by every scenario of a run.
type Env struct {
	Driver core.Driver
	// Database overrides the schema database; empty uses the driver default.
	Database string
	Logger   *zap.Logger
	// Observers are attached to every model a scenario builds, next to the
	// scenario's own recorder.
	Observers []core.Observer
	// Middleware is appended to every model a scenario builds.
	Middleware []core.Middleware
}

func (env *Env) logger() *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}
	return env.Logger
}

// collection returns a collection name unique to one scenario run.
func (env *Env) collection(base string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strings.ReplaceAll(base, "-", "_") + "_" + suffix
}

// Scenario is a single named check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

// AssertionError reports an expectation of a scenario that did not hold.
type AssertionError struct {
	Scenario string
	Check    string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s: expected %v, got %v", e.Scenario, e.Check, e.Expected, e.Actual)
}

// checker collects assertion errors for one scenario and stops at the first.
type checker struct {
	scenario string
	err      error
}

func (c *checker) equal(check string, expected, actual any) {
	if c.err != nil {
		return
	}
	if !assert.ObjectsAreEqual(expected, actual) {
		c.err = &AssertionError{Scenario: c.scenario, Check: check, Expected: expected, Actual: actual}
	}
}

func (c *checker) isTrue(check string, actual bool) {
	c.equal(check, true, actual)
}
