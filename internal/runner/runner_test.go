package runner_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kination/stagehand/internal/composite"
	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/runner"
	"github.com/kination/stagehand/internal/scheduler"
	"github.com/kination/stagehand/internal/store"
	"github.com/kination/stagehand/internal/subtask"
	"github.com/kination/stagehand/internal/task"
)

type worldTask struct {
	solution []task.SubtaskSpec
	goals    task.StageGoals
	preds    sets.Set[string]
	goal     bool
	values   map[string]float64
}

func (w *worldTask) GetCurTask() task.SubtaskInstance { return nil }
func (w *worldTask) GetCurNode() int                  { return -1 }
func (w *worldTask) GetNumNodes() int                 { return len(w.solution) }
func (w *worldTask) GetSolution() []task.SubtaskSpec  { return w.solution }
func (w *worldTask) GetStageGoals() task.StageGoals   { return w.goals }
func (w *worldTask) IsGoalStateSatisfied() bool       { return w.goal }

func (w *worldTask) IsPredListSat(preds []task.Predicate) bool {
	for _, p := range preds {
		if !w.preds.Has(string(p)) {
			return false
		}
	}
	return true
}

type recorder struct {
	results []*runner.StepResult
}

func (r *recorder) ObserveStep(result *runner.StepResult) {
	r.results = append(r.results, result)
}

// failingStore rejects every save
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) SaveStep(context.Context, *store.StepRecord) error {
	return errors.New("disk full")
}

var _ = Describe("DefaultRunner", func() {
	var (
		ctx      context.Context
		world    *worldTask
		measures *composite.Measures
		set      *measure.Set
		history  *store.MemoryStore
		rec      *recorder
		r        *runner.DefaultRunner
		ep       *task.Episode
	)

	BeforeEach(func() {
		ctx = context.Background()
		world = &worldTask{
			goals:  task.StageGoals{"stage_0": {"holding(obj0)"}},
			preds:  sets.New[string](),
			values: map[string]float64{},
		}

		var scripted []measure.Measure
		var successes, rewards []string
		for _, name := range []string{"pick", "place"} {
			world.solution = append(world.solution, subtask.NewSpec(task.SubtaskConfig{
				Name:               name,
				SuccessMeasurement: name + "_success",
				RewardMeasurement:  name + "_reward",
			}))
			successes = append(successes, name+"_success")
			rewards = append(rewards, name+"_reward")
			for _, key := range []string{name + "_success", name + "_reward"} {
				scripted = append(scripted, &measure.Func{
					Name: key,
					Fn: func(*task.Episode, task.Task, *measure.Set) (any, error) {
						return world.values[key], nil
					},
				})
			}
		}

		measures = composite.New(composite.Config{
			Reward:             composite.RewardConfig{StageCompleteReward: 1.0, SuccessReward: 5.0},
			Tracker:            composite.TrackerConfig{SuccessMeasurements: successes},
			RewardMeasurements: rewards,
		})

		var err error
		set, err = scheduler.Plan(append(measures.All(), scripted...)...)
		Expect(err).NotTo(HaveOccurred())

		history = store.NewMemoryStore()
		rec = &recorder{}
		r, err = runner.NewRunner(set, measures, runner.RunnerConfig{
			Observers: []runner.Observer{rec},
			Store:     history,
		})
		Expect(err).NotTo(HaveOccurred())

		ep = &task.Episode{ID: "ep-1", SceneID: "apt_0"}
	})

	Context("When running an episode", func() {
		It("Should advance through the solution and pay bonuses", func() {
			world.values["pick_reward"] = 0.2
			res, err := r.Reset(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Step).To(Equal(0))
			Expect(res.Snapshot.NodeIdx).To(Equal(0))
			Expect(res.TotalReward).To(BeNumerically("~", 0.2, 1e-9))
			Expect(res.StageBonus).To(BeFalse())

			world.values["pick_success"] = 1
			world.values["place_reward"] = 0.3
			world.preds.Insert("holding(obj0)")
			world.goal = true
			res, err = r.Step(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Step).To(Equal(1))
			Expect(res.Snapshot.NodeIdx).To(Equal(1))
			Expect(res.Reward).To(Equal(0.3))
			Expect(res.TotalReward).To(BeNumerically("~", 6.3, 1e-9))
			Expect(res.StageBonus).To(BeTrue())
			Expect(res.Success).To(BeTrue())
			Expect(res.Snapshot.Flatten()).To(HaveKeyWithValue("stage_0_success", 1.0))
			Expect(res.Snapshot.Flatten()).To(HaveKeyWithValue("reached_1", 1.0))
		})

		It("Should notify observers and persist every step", func() {
			_, err := r.Reset(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 3; i++ {
				_, err = r.Step(ctx, ep, world)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(rec.results).To(HaveLen(4))

			run, err := history.GetEpisode(ctx, "ep-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Steps).To(HaveLen(4))
			Expect(run.Steps[3].Step).To(Equal(3))
			Expect(run.Succeeded()).To(BeFalse())
		})

		It("Should restart the step count on reset", func() {
			_, err := r.Reset(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.Step(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())

			next := &task.Episode{ID: "ep-2"}
			res, err := r.Reset(ctx, next, world)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Step).To(Equal(0))
			Expect(res.EpisodeID).To(Equal("ep-2"))
		})
	})

	Context("When the pass cannot run", func() {
		It("Should reject a step before any reset", func() {
			for _, e := range []*task.Episode{{}, nil, ep} {
				_, err := r.Step(ctx, e, world)
				Expect(err).To(MatchError(runner.ErrNotReset))
			}
			Expect(rec.results).To(BeEmpty())
		})

		It("Should reject steps after a failed reset", func() {
			_, err := r.Reset(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())

			world.solution[0] = subtask.NewSpec(task.SubtaskConfig{Name: "grab", RewardMeasurement: "pick_reward"})
			_, err = r.Reset(ctx, &task.Episode{ID: "ep-2"}, world)
			Expect(err).To(HaveOccurred())

			_, err = r.Step(ctx, &task.Episode{ID: "ep-2"}, world)
			Expect(err).To(MatchError(runner.ErrNotReset))
		})

		It("Should not notify observers of a step that was not saved", func() {
			failing, err := runner.NewRunner(set, measures, runner.RunnerConfig{
				Observers: []runner.Observer{rec},
				Store:     failingStore{store.NewMemoryStore()},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = failing.Reset(ctx, ep, world)
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(rec.results).To(BeEmpty())
		})

		It("Should reject a step for another episode", func() {
			_, err := r.Reset(ctx, ep, world)
			Expect(err).NotTo(HaveOccurred())

			_, err = r.Step(ctx, &task.Episode{ID: "other"}, world)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("before reset"))
		})

		It("Should stop on a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.Reset(cancelled, ep, world)
			Expect(err).To(MatchError(context.Canceled))
		})

		It("Should wrap configuration errors with the measure name", func() {
			world.solution[0] = subtask.NewSpec(task.SubtaskConfig{Name: "pick", RewardMeasurement: "pick_reward"})
			_, err := r.Reset(ctx, ep, world)
			Expect(err).To(MatchError(measure.ErrMissingMeasurementKey))
			Expect(err.Error()).To(ContainSubstring(composite.NodeIdxUUID))
		})

		It("Should refuse a set without the composite measures", func() {
			other := composite.New(composite.Config{Reward: composite.DefaultRewardConfig()})
			_, err := runner.NewDefaultRunner(set, other)
			Expect(err).To(MatchError(measure.ErrMissingDependency))
		})
	})
})
