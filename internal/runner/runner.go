package runner

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/kination/stagehand/internal/composite"
	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/task"
)

var log = ctrl.Log.WithName("runner")

// DefaultRunner implements the Runner interface over a measure set.
type DefaultRunner struct {
	set       *measure.Set
	composite *composite.Measures
	config    RunnerConfig
	log       logr.Logger

	episode string
	step    int
	ready   bool
}

// NewRunner creates a runner. The composite measures must be part of set.
func NewRunner(set *measure.Set, measures *composite.Measures, config RunnerConfig) (*DefaultRunner, error) {
	for _, m := range measures.All() {
		got, ok := set.Get(m.UUID())
		if !ok || got != m {
			return nil, measure.Configf(measure.ErrMissingDependency, m.UUID(), "composite measure is not part of the measure set")
		}
	}
	l := config.Log
	if l.GetSink() == nil {
		l = log
	}
	return &DefaultRunner{
		set:       set,
		composite: measures,
		config:    config,
		log:       l,
	}, nil
}

// NewDefaultRunner creates a runner with default configuration
func NewDefaultRunner(set *measure.Set, measures *composite.Measures) (*DefaultRunner, error) {
	return NewRunner(set, measures, DefaultRunnerConfig())
}

// Reset resets every measure in evaluation order
func (r *DefaultRunner) Reset(ctx context.Context, ep *task.Episode, t task.Task) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.episode = episodeID(ep)
	r.step = 0
	r.ready = false

	r.log.Info("Resetting episode", "episode", r.episode, "measures", r.set.Order())
	for _, m := range r.set.Measures() {
		if err := m.Reset(ctx, ep, t, r.set); err != nil {
			return nil, fmt.Errorf("reset of measure %s failed: %w", m.UUID(), err)
		}
	}
	r.ready = true
	return r.finish(ctx)
}

// Step evaluates every measure in evaluation order
func (r *DefaultRunner) Step(ctx context.Context, ep *task.Episode, t task.Task) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.ready {
		return nil, fmt.Errorf("%w: episode %q", ErrNotReset, episodeID(ep))
	}
	if id := episodeID(ep); id != r.episode {
		return nil, fmt.Errorf("step for episode %q before reset (current %q)", id, r.episode)
	}
	r.step++

	for _, m := range r.set.Measures() {
		if err := m.Update(ctx, ep, t, r.set); err != nil {
			return nil, fmt.Errorf("update of measure %s failed at step %d: %w", m.UUID(), r.step, err)
		}
	}
	return r.finish(ctx)
}

func (r *DefaultRunner) finish(ctx context.Context) (*StepResult, error) {
	result := &StepResult{
		EpisodeID:   r.episode,
		Step:        r.step,
		Reward:      r.composite.Reward.Reward(),
		TotalReward: r.composite.Reward.Total(),
		StageBonus:  r.composite.Reward.StageBonusPaid(),
		Success:     r.composite.Success.Succeeded(),
		Snapshot:    r.composite.Tracker.Snapshot(),
	}

	r.log.V(1).Info("Step evaluated",
		"episode", result.EpisodeID,
		"step", result.Step,
		"node", result.Snapshot.NodeIdx,
		"reward", result.Reward,
		"total", result.TotalReward,
		"success", result.Success)

	if r.config.Store != nil {
		if err := r.config.Store.SaveStep(ctx, result.Record()); err != nil {
			return nil, fmt.Errorf("failed to save step %d: %w", result.Step, err)
		}
	}
	for _, o := range r.config.Observers {
		o.ObserveStep(result)
	}
	return result, nil
}

// AddObserver registers an observer for every following step
func (r *DefaultRunner) AddObserver(o Observer) {
	r.config.Observers = append(r.config.Observers, o)
}

// Set returns the measure set
func (r *DefaultRunner) Set() *measure.Set {
	return r.set
}

// Config returns the runner configuration
func (r *DefaultRunner) Config() RunnerConfig {
	return r.config
}

func episodeID(ep *task.Episode) string {
	if ep == nil {
		return ""
	}
	return ep.ID
}
