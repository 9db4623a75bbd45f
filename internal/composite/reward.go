package composite

import (
	"context"
	"fmt"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/task"
)

// RewardUUID is the measure name of the RewardAggregator
const RewardUUID = "composite_reward"

// RewardConfig holds the bonus constants
type RewardConfig struct {
	// StageCompleteReward is added once on the step the node index grows
	StageCompleteReward float64
	// SuccessReward is added on every step the composite task succeeds
	SuccessReward float64
}

// DefaultRewardConfig returns the default reward configuration
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		StageCompleteReward: 1.0,
		SuccessReward:       10.0,
	}
}

// RewardAggregator combines subtask reward with stage and success bonuses.
//
// Total returns the aggregated reward. The reported metric is the subtask
// reward alone; the bonuses are kept out of it.
type RewardAggregator struct {
	config  RewardConfig
	tracker *StageTracker
	success *SuccessEvaluator

	rewardMeasurements []string

	prevNode    int
	hasPrevNode bool

	total      float64
	metric     float64
	stageBonus bool
}

// NewRewardAggregator creates an aggregator reading from tracker and success.
// rewardMeasurements are the subtask reward measures it may read.
func NewRewardAggregator(config RewardConfig, tracker *StageTracker, success *SuccessEvaluator, rewardMeasurements ...string) *RewardAggregator {
	return &RewardAggregator{
		config:             config,
		tracker:            tracker,
		success:            success,
		rewardMeasurements: rewardMeasurements,
	}
}

// UUID returns the measure name
func (r *RewardAggregator) UUID() string { return RewardUUID }

// Dependencies returns the tracker, the success evaluator and the subtask
// reward measures
func (r *RewardAggregator) Dependencies() []string {
	deps := []string{r.tracker.UUID(), r.success.UUID()}
	return append(deps, r.rewardMeasurements...)
}

// Reset verifies the upstream measures run first, forgets the previous node
// and evaluates once. The first evaluation never pays a stage bonus.
func (r *RewardAggregator) Reset(ctx context.Context, ep *task.Episode, t task.Task, set *measure.Set) error {
	if err := set.CheckDependencies(r.UUID(), []string{r.tracker.UUID(), r.success.UUID()}); err != nil {
		return err
	}
	r.hasPrevNode = false
	return r.Update(ctx, ep, t, set)
}

// Update computes the reward for the current step
func (r *RewardAggregator) Update(_ context.Context, _ *task.Episode, t task.Task, set *measure.Set) error {
	reward := 0.0
	r.stageBonus = false

	node := r.tracker.NodeIdx()
	if r.hasPrevNode && node > r.prevNode {
		reward += r.config.StageCompleteReward
		r.stageBonus = true
	}
	r.prevNode = node
	r.hasPrevNode = true

	var cfg task.SubtaskConfig
	if cur := t.GetCurTask(); cur != nil {
		cfg = cur.Config()
	} else {
		inferred := r.tracker.InferredTask()
		if inferred == nil {
			return measure.Configf(measure.ErrMissingDependency, r.UUID(), "tracker has no inferred subtask")
		}
		cfg = inferred.Config()
	}

	if cfg.RewardMeasurement == "" {
		return measure.Configf(measure.ErrMissingMeasurementKey, r.UUID(), "cannot find reward measurement key for subtask %q", cfg.Name)
	}
	if err := set.CheckDependencies(r.UUID(), []string{cfg.RewardMeasurement}); err != nil {
		return err
	}
	subtaskReward, err := set.Float(cfg.RewardMeasurement)
	if err != nil {
		return fmt.Errorf("failed to read reward of subtask %q: %w", cfg.Name, err)
	}
	reward += subtaskReward

	if r.success.Succeeded() {
		reward += r.config.SuccessReward
	}

	r.total = reward
	r.metric = subtaskReward
	return nil
}

// Metric returns the subtask reward of the last step
func (r *RewardAggregator) Metric() any { return r.metric }

// Reward returns the subtask reward of the last step
func (r *RewardAggregator) Reward() float64 { return r.metric }

// Total returns the aggregated reward of the last step
func (r *RewardAggregator) Total() float64 { return r.total }

// StageBonusPaid reports whether the last step paid the stage bonus
func (r *RewardAggregator) StageBonusPaid() bool { return r.stageBonus }

// Config returns the reward configuration
func (r *RewardAggregator) Config() RewardConfig { return r.config }
