package replay

import (
	"context"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/kination/stagehand/internal/config"
	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/runner"
	"github.com/kination/stagehand/internal/scheduler"
	"github.com/kination/stagehand/internal/task"
)

var log = ctrl.Log.WithName("replay")

// EpisodeResult holds the step results of one replayed episode
type EpisodeResult struct {
	EpisodeID string
	Steps     []*runner.StepResult
}

// Return sums the total reward over the episode
func (e *EpisodeResult) Return() float64 {
	sum := 0.0
	for _, s := range e.Steps {
		sum += s.TotalReward
	}
	return sum
}

// Player replays traces through the composite measures of a bundle.
type Player struct {
	task   *ScriptedTask
	set    *measure.Set
	runner *runner.DefaultRunner
}

// NewPlayer plans the scripted subtask measures together with the
// composite measures and creates a runner over them.
func NewPlayer(bundle *config.Bundle, cfg runner.RunnerConfig) (*Player, error) {
	t := NewScriptedTask(bundle.Solution, bundle.StageGoals)

	measures := scriptedMeasures(t, bundle.SuccessMeasurements, bundle.RewardMeasurements)
	measures = append(measures, bundle.Measures.All()...)

	set, err := scheduler.Plan(measures...)
	if err != nil {
		return nil, fmt.Errorf("plan measures error: %w", err)
	}
	r, err := runner.NewRunner(set, bundle.Measures, cfg)
	if err != nil {
		return nil, err
	}
	return &Player{task: t, set: set, runner: r}, nil
}

// Observe registers an observer with the underlying runner
func (p *Player) Observe(o runner.Observer) { p.runner.AddObserver(o) }

// Set returns the planned measure set
func (p *Player) Set() *measure.Set { return p.set }

// Play replays every episode of the trace in order
func (p *Player) Play(ctx context.Context, trace *Trace) ([]*EpisodeResult, error) {
	results := make([]*EpisodeResult, 0, len(trace.Episodes))
	for _, ep := range trace.Episodes {
		res, err := p.PlayEpisode(ctx, ep)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PlayEpisode resets on the first step of the episode and steps through the rest
func (p *Player) PlayEpisode(ctx context.Context, trace EpisodeTrace) (*EpisodeResult, error) {
	ep := &task.Episode{ID: trace.ID, SceneID: trace.SceneID}
	out := &EpisodeResult{EpisodeID: trace.ID}

	for i, step := range trace.Steps {
		if err := p.task.Load(ep, step); err != nil {
			return out, fmt.Errorf("episode %q step %d: %w", trace.ID, i, err)
		}

		var (
			res *runner.StepResult
			err error
		)
		if i == 0 {
			res, err = p.runner.Reset(ctx, ep, p.task)
		} else {
			res, err = p.runner.Step(ctx, ep, p.task)
		}
		if err != nil {
			return out, fmt.Errorf("episode %q: %w", trace.ID, err)
		}
		out.Steps = append(out.Steps, res)
	}

	log.Info("Replayed episode", "episode", trace.ID, "steps", len(out.Steps), "return", out.Return())
	return out, nil
}

// scriptedMeasures exposes recorded measurements as dependency-free measures
func scriptedMeasures(t *ScriptedTask, groups ...[]string) []measure.Measure {
	seen := make(map[string]struct{})
	var out []measure.Measure
	for _, names := range groups {
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, &measure.Func{
				Name: name,
				Fn: func(*task.Episode, task.Task, *measure.Set) (any, error) {
					return t.Measurement(name), nil
				},
			})
		}
	}
	return out
}
