// Package measure defines per-step measurements and the set they are
// evaluated in. Dependencies between measures are declared statically and
// ordered by the scheduler package before the first episode.
package measure

import (
	"context"

	"github.com/kination/stagehand/internal/task"
)

// Measure is one named value computed once per step.
type Measure interface {
	// UUID returns the name other measures use to read this one
	UUID() string

	// Dependencies returns the UUIDs that must be evaluated before this one
	Dependencies() []string

	// Reset clears episode state and performs the first evaluation
	Reset(ctx context.Context, ep *task.Episode, t task.Task, set *Set) error

	// Update evaluates the measure for the current step
	Update(ctx context.Context, ep *task.Episode, t task.Task, set *Set) error

	// Metric returns the value computed by the last Reset or Update
	Metric() any
}

// Func adapts a plain function into a dependency-free Measure.
// It is mostly useful for simulator-provided values and tests.
type Func struct {
	Name string
	Deps []string
	Fn   func(ep *task.Episode, t task.Task, set *Set) (any, error)

	value any
}

// UUID returns the measure name
func (f *Func) UUID() string { return f.Name }

// Dependencies returns the declared dependencies
func (f *Func) Dependencies() []string { return f.Deps }

// Reset evaluates the function once
func (f *Func) Reset(ctx context.Context, ep *task.Episode, t task.Task, set *Set) error {
	return f.Update(ctx, ep, t, set)
}

// Update evaluates the function
func (f *Func) Update(_ context.Context, ep *task.Episode, t task.Task, set *Set) error {
	v, err := f.Fn(ep, t, set)
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

// Metric returns the last value
func (f *Func) Metric() any { return f.value }
