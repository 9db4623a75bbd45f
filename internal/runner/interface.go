// Package runner drives evaluation passes over a planned measure set.
// Runner is responsible for turning one reset or step into a StepResult.
package runner

import (
	"context"
	"errors"

	"github.com/go-logr/logr"

	"github.com/kination/stagehand/internal/composite"
	"github.com/kination/stagehand/internal/store"
	"github.com/kination/stagehand/internal/task"
)

// ErrNotReset is returned by Step until a Reset has succeeded
var ErrNotReset = errors.New("step before reset")

// Runner defines the interface for step evaluation.
type Runner interface {
	// Reset resets every measure for a new episode and returns step 0
	Reset(ctx context.Context, ep *task.Episode, t task.Task) (*StepResult, error)

	// Step evaluates every measure once and returns the result
	Step(ctx context.Context, ep *task.Episode, t task.Task) (*StepResult, error)
}

// StepResult contains the training signal of one step
type StepResult struct {
	// EpisodeID is the episode the step belongs to
	EpisodeID string

	// Step is 0 for the reset pass and counts up from there
	Step int

	// Reward is the reported reward metric: the active subtask's reward only
	Reward float64

	// TotalReward adds the stage and success bonuses to Reward
	TotalReward float64

	// StageBonus is true when this step paid the stage-complete bonus
	StageBonus bool

	// Success is the terminal success of the composite task
	Success bool

	// Snapshot is the tracker output of this step
	Snapshot composite.Snapshot
}

// Record converts the result for storage
func (r *StepResult) Record() *store.StepRecord {
	return &store.StepRecord{
		EpisodeID:   r.EpisodeID,
		Step:        r.Step,
		Reward:      r.Reward,
		TotalReward: r.TotalReward,
		StageBonus:  r.StageBonus,
		Success:     r.Success,
		NodeIdx:     r.Snapshot.NodeIdx,
		Metrics:     r.Snapshot.Flatten(),
	}
}

// Observer receives every step result, e.g. for metrics
type Observer interface {
	ObserveStep(result *StepResult)
}

// RunnerConfig holds configuration for the runner
type RunnerConfig struct {
	// Observers are notified after each successful pass
	Observers []Observer

	// Store persists each successful pass when set
	Store store.Store

	// Log receives per-episode and per-step logs. Zero value uses the
	// package logger.
	Log logr.Logger
}

// DefaultRunnerConfig returns the default runner configuration
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{}
}
