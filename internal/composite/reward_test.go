package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/subtask"
	"github.com/kination/stagehand/internal/task"
)

func TestRewardAggregator_BonusesAndReportedMetric(t *testing.T) {
	e := newEnv(t, specs("a", "b", "c"), nil, RewardConfig{StageCompleteReward: 1.0, SuccessReward: 5.0})
	reward := e.measures.Reward
	e.mustReset(t)

	e.task.values["a_success"] = 1
	e.task.values["b_reward"] = 0.3
	e.task.goal = true
	e.mustStep(t)

	if !approxEqual(reward.Total(), 6.3) {
		t.Errorf("expected total reward 6.3, got %v", reward.Total())
	}
	if reward.Metric().(float64) != 0.3 {
		t.Errorf("expected reported metric 0.3, got %v", reward.Metric())
	}
	if !reward.StageBonusPaid() {
		t.Error("expected stage bonus on the advancing step")
	}
}

func TestRewardAggregator_NoBonusAtEpisodeStart(t *testing.T) {
	e := newEnv(t, specs("nav", "pick"), []string{"nav"}, RewardConfig{StageCompleteReward: 1.0, SuccessReward: 5.0})
	e.task.values["pick_reward"] = 0.5
	e.mustReset(t)

	if e.measures.Tracker.NodeIdx() != 1 {
		t.Fatalf("expected reset to start at node 1, got %d", e.measures.Tracker.NodeIdx())
	}
	if !approxEqual(e.measures.Reward.Total(), 0.5) || e.measures.Reward.StageBonusPaid() {
		t.Errorf("expected no stage bonus at reset, got total %v", e.measures.Reward.Total())
	}
}

func TestRewardAggregator_BonusPaidOncePerAdvance(t *testing.T) {
	e := newEnv(t, specs("a", "b"), nil, RewardConfig{StageCompleteReward: 2.0})
	reward := e.measures.Reward
	e.mustReset(t)

	e.task.values["a_success"] = 1
	e.mustStep(t)
	if !approxEqual(reward.Total(), 2.0) {
		t.Fatalf("expected stage bonus, got %v", reward.Total())
	}

	e.mustStep(t)
	if !approxEqual(reward.Total(), 0) {
		t.Errorf("expected no bonus without a new advance, got %v", reward.Total())
	}

	// b is last: its success cannot advance the node further
	e.task.values["b_success"] = 1
	e.mustStep(t)
	e.mustStep(t)
	if !approxEqual(reward.Total(), 0) || reward.StageBonusPaid() {
		t.Errorf("expected no bonus when the tracker holds, got %v", reward.Total())
	}
}

func TestRewardAggregator_GroundTruthUsesActiveSubtask(t *testing.T) {
	e := newEnv(t, specs("a", "b"), nil, RewardConfig{StageCompleteReward: 1.0, SuccessReward: 5.0})
	e.mustReset(t)

	cur, _ := e.task.solution[1].InitTask(nil, e.ep, true)
	e.task.cur = cur
	e.task.curNode = 1
	e.task.values["a_reward"] = 0.1
	e.task.values["b_reward"] = 0.7
	e.task.goal = true
	e.mustStep(t)

	reward := e.measures.Reward
	if reward.Reward() != 0.7 {
		t.Errorf("expected the active subtask's reward 0.7, got %v", reward.Reward())
	}
	if e.measures.Success.Succeeded() {
		t.Error("success must be suppressed while a subtask is isolated")
	}
	// node moved from 0 to 1 externally
	if !approxEqual(reward.Total(), 1.7) {
		t.Errorf("expected 1.7, got %v", reward.Total())
	}
}

func TestRewardAggregator_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing reward measurement key", func(t *testing.T) {
		e := newEnv(t, []task.SubtaskSpec{subtask.NewSpec(task.SubtaskConfig{Name: "a", SuccessMeasurement: "a_success"})}, nil, DefaultRewardConfig())
		err := e.reset()
		if !errors.Is(err, measure.ErrMissingMeasurementKey) || !measure.IsConfigError(err) {
			t.Fatalf("expected missing reward key configuration error, got %v", err)
		}
	})

	t.Run("tracker absent from set", func(t *testing.T) {
		m := New(Config{Reward: DefaultRewardConfig()})
		set, err := measure.NewSet([]measure.Measure{m.Success, m.Reward})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err = m.Reward.Reset(ctx, &task.Episode{ID: "ep"}, &fakeTask{}, set)
		if !errors.Is(err, measure.ErrMissingDependency) {
			t.Fatalf("expected missing dependency, got %v", err)
		}
	})

	t.Run("success evaluated after aggregator", func(t *testing.T) {
		m := New(Config{Reward: DefaultRewardConfig()})
		set, err := measure.NewSet([]measure.Measure{m.Tracker, m.Reward, m.Success})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err = m.Reward.Reset(ctx, &task.Episode{ID: "ep"}, &fakeTask{}, set)
		if !measure.IsConfigError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestSuccessEvaluator(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTask{goal: true}
	e := NewSuccessEvaluator()

	if err := e.Reset(ctx, nil, ft, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Succeeded() {
		t.Error("expected success when the goal holds in a full rollout")
	}

	inst, _ := subtask.NewSpec(task.SubtaskConfig{Name: "a"}).InitTask(nil, nil, false)
	ft.cur = inst
	for _, goal := range []bool{true, false} {
		ft.goal = goal
		if err := e.Update(ctx, nil, ft, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Metric().(bool) {
			t.Errorf("expected false while a subtask is isolated (goal=%t)", goal)
		}
	}

	ft.cur = nil
	ft.goal = false
	_ = e.Update(ctx, nil, ft, nil)
	if e.Succeeded() {
		t.Error("expected false when the goal does not hold")
	}
}
