package composite

import (
	"context"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/task"
)

// SuccessUUID is the measure name of the SuccessEvaluator
const SuccessUUID = "composite_success"

// SuccessEvaluator reports terminal success of the composite task. It is
// always false while a subtask is being evaluated in isolation.
type SuccessEvaluator struct {
	metric bool
}

// NewSuccessEvaluator creates a success evaluator
func NewSuccessEvaluator() *SuccessEvaluator {
	return &SuccessEvaluator{}
}

// UUID returns the measure name
func (e *SuccessEvaluator) UUID() string { return SuccessUUID }

// Dependencies returns nothing; success is read from the task directly
func (e *SuccessEvaluator) Dependencies() []string { return nil }

// Reset evaluates once for the new episode
func (e *SuccessEvaluator) Reset(ctx context.Context, ep *task.Episode, t task.Task, set *measure.Set) error {
	return e.Update(ctx, ep, t, set)
}

// Update evaluates success for the current step
func (e *SuccessEvaluator) Update(_ context.Context, _ *task.Episode, t task.Task, _ *measure.Set) error {
	if t.GetCurTask() != nil {
		e.metric = false
		return nil
	}
	e.metric = t.IsGoalStateSatisfied()
	return nil
}

// Metric returns the last success value
func (e *SuccessEvaluator) Metric() any { return e.metric }

// Succeeded returns the last success value
func (e *SuccessEvaluator) Succeeded() bool { return e.metric }
