package composite

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/task"
)

var log = ctrl.Log.WithName("composite")

// NodeIdxUUID is the measure name of the StageTracker
const NodeIdxUUID = "composite_node_idx"

// TrackerConfig holds configuration for the stage tracker
type TrackerConfig struct {
	// SkipNodes lists subtask names the inferred node never rests on
	SkipNodes []string

	// SuccessMeasurements are the subtask success measures the tracker reads.
	// They are declared as dependencies so they are evaluated first.
	SuccessMeasurements []string
}

// StageTracker maintains the current node of the solution.
type StageTracker struct {
	config TrackerConfig
	skip   sets.Set[string]

	state    *EpisodeContext
	goals    *StageGoalEvaluator
	snapshot Snapshot
	advanced bool
}

// NewStageTracker creates a tracker
func NewStageTracker(config TrackerConfig) *StageTracker {
	return &StageTracker{
		config: config,
		skip:   sets.New(config.SkipNodes...),
		state:  newEpisodeContext(),
		goals:  NewStageGoalEvaluator(),
	}
}

// UUID returns the measure name
func (s *StageTracker) UUID() string { return NodeIdxUUID }

// Dependencies returns the subtask success measures
func (s *StageTracker) Dependencies() []string {
	return append([]string(nil), s.config.SuccessMeasurements...)
}

// Reset starts a new episode at node 0 and evaluates once
func (s *StageTracker) Reset(ctx context.Context, ep *task.Episode, t task.Task, set *measure.Set) error {
	s.state.reset(ep, t.GetSolution())
	s.goals.Reset()
	return s.Update(ctx, ep, t, set)
}

// Update computes the node index for the current step. In inferred mode the
// node advances by one (past skipped subtasks) when the inferred subtask
// reports success; an advance past the end of the solution is dropped.
func (s *StageTracker) Update(_ context.Context, ep *task.Episode, t task.Task, set *measure.Set) error {
	s.advanced = false
	snapshot := Snapshot{StageSuccess: make(map[string]float64)}

	if t.GetCurTask() != nil {
		snapshot.NodeIdx = t.GetCurNode()
	} else {
		if err := s.updateInferred(ep, t, set); err != nil {
			return err
		}
		snapshot.NodeIdx = s.state.node
		snapshot.Reached = make([]bool, t.GetNumNodes())
		for i := range snapshot.Reached {
			snapshot.Reached[i] = s.state.node >= i
		}
	}

	s.goals.Evaluate(t, t.GetStageGoals(), snapshot.StageSuccess)
	s.snapshot = snapshot
	return nil
}

func (s *StageTracker) updateInferred(ep *task.Episode, t task.Task, set *measure.Set) error {
	solution := t.GetSolution()

	if s.state.task == nil {
		ok, err := s.state.resolve(s, ep, solution, s.skip)
		if err != nil {
			return err
		}
		if !ok {
			return measure.Configf(measure.ErrEmptySolution, s.UUID(), "%d subtasks, skip set %v", len(solution), sets.List(s.skip))
		}
	}

	cfg := s.state.task.Config()
	if cfg.SuccessMeasurement == "" {
		return measure.Configf(measure.ErrMissingMeasurementKey, s.UUID(), "success measurement key not in subtask %q", cfg.Name)
	}
	if err := set.CheckDependencies(s.UUID(), []string{cfg.SuccessMeasurement}); err != nil {
		return err
	}
	succeeded, err := set.Bool(cfg.SuccessMeasurement)
	if err != nil {
		return fmt.Errorf("failed to read success of subtask %q: %w", cfg.Name, err)
	}
	if !succeeded {
		return nil
	}

	prev := s.state.node
	s.state.node++
	ok, err := s.state.resolve(s, ep, solution, s.skip)
	if err != nil {
		return err
	}
	if !ok {
		s.state.node = prev
		log.V(1).Info("Solution exhausted, holding node", "node", prev, "subtask", cfg.Name)
		return nil
	}
	s.advanced = true
	log.V(1).Info("Advanced inferred node", "from", prev, "to", s.state.node, "subtask", s.state.task.Config().Name)
	return nil
}

// Metric returns the last Snapshot
func (s *StageTracker) Metric() any { return s.snapshot }

// Snapshot returns a copy of the last snapshot
func (s *StageTracker) Snapshot() Snapshot { return s.snapshot.Clone() }

// NodeIdx returns the node index of the last update
func (s *StageTracker) NodeIdx() int { return s.snapshot.NodeIdx }

// Advanced reports whether the last update moved the inferred node
func (s *StageTracker) Advanced() bool { return s.advanced }

// InferredTask returns the subtask the tracker last inferred as active.
// It is not recomputed while a subtask is driven externally.
func (s *StageTracker) InferredTask() task.SubtaskInstance { return s.state.task }

// Context returns the tracker's episode context
func (s *StageTracker) Context() *EpisodeContext { return s.state }

// StageGoals returns the stage-goal evaluator
func (s *StageTracker) StageGoals() *StageGoalEvaluator { return s.goals }
