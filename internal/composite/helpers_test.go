package composite

import (
	"context"
	"math"
	"testing"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/scheduler"
	"github.com/kination/stagehand/internal/subtask"
	"github.com/kination/stagehand/internal/task"
)

// fakeTask is a task whose world state is set directly by the test
type fakeTask struct {
	solution []task.SubtaskSpec
	goals    task.StageGoals

	cur     task.SubtaskInstance
	curNode int

	preds     sets.Set[string]
	goal      bool
	predCalls int

	values map[string]float64
}

func (f *fakeTask) GetCurTask() task.SubtaskInstance { return f.cur }
func (f *fakeTask) GetCurNode() int                  { return f.curNode }
func (f *fakeTask) GetNumNodes() int                 { return len(f.solution) }
func (f *fakeTask) GetSolution() []task.SubtaskSpec  { return f.solution }
func (f *fakeTask) GetStageGoals() task.StageGoals   { return f.goals }
func (f *fakeTask) IsGoalStateSatisfied() bool       { return f.goal }

func (f *fakeTask) IsPredListSat(preds []task.Predicate) bool {
	f.predCalls++
	for _, p := range preds {
		if !f.preds.Has(string(p)) {
			return false
		}
	}
	return true
}

func specs(names ...string) []task.SubtaskSpec {
	out := make([]task.SubtaskSpec, 0, len(names))
	for _, n := range names {
		out = append(out, subtask.NewSpec(task.SubtaskConfig{
			Name:               n,
			SuccessMeasurement: n + "_success",
			RewardMeasurement:  n + "_reward",
		}))
	}
	return out
}

// env wires a fake task, its subtask measures and the composite measures
type env struct {
	task     *fakeTask
	measures *Measures
	set      *measure.Set
	ep       *task.Episode
}

func newEnv(tb testing.TB, solution []task.SubtaskSpec, skip []string, reward RewardConfig) *env {
	tb.Helper()

	ft := &fakeTask{
		solution: solution,
		goals:    task.StageGoals{},
		curNode:  -1,
		preds:    sets.New[string](),
		values:   map[string]float64{},
	}

	var scripted []measure.Measure
	var successes, rewards []string
	seen := sets.New[string]()
	for _, s := range solution {
		for _, name := range []string{s.Name() + "_success", s.Name() + "_reward"} {
			if seen.Has(name) {
				continue
			}
			seen.Insert(name)
			scripted = append(scripted, &measure.Func{
				Name: name,
				Fn: func(*task.Episode, task.Task, *measure.Set) (any, error) {
					return ft.values[name], nil
				},
			})
		}
		successes = append(successes, s.Name()+"_success")
		rewards = append(rewards, s.Name()+"_reward")
	}

	measures := New(Config{
		Reward:             reward,
		Tracker:            TrackerConfig{SkipNodes: skip, SuccessMeasurements: successes},
		RewardMeasurements: rewards,
	})
	set, err := scheduler.Plan(append(scripted, measures.All()...)...)
	if err != nil {
		tb.Fatalf("plan failed: %v", err)
	}
	return &env{task: ft, measures: measures, set: set, ep: &task.Episode{ID: "ep-1"}}
}

func (e *env) reset() error {
	for _, m := range e.set.Measures() {
		if err := m.Reset(context.Background(), e.ep, e.task, e.set); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) step() error {
	for _, m := range e.set.Measures() {
		if err := m.Update(context.Background(), e.ep, e.task, e.set); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) mustReset(tb testing.TB) {
	tb.Helper()
	if err := e.reset(); err != nil {
		tb.Fatalf("reset failed: %v", err)
	}
}

func (e *env) mustStep(tb testing.TB) {
	tb.Helper()
	if err := e.step(); err != nil {
		tb.Fatalf("step failed: %v", err)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
