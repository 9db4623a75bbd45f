package composite

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kination/stagehand/internal/task"
)

// StageGoalEvaluator reports which stage goals have been satisfied so far.
// A stage is recorded the first time its predicates hold and is reported as
// 1.0 for the rest of the episode without querying the task again.
type StageGoalEvaluator struct {
	achieved sets.Set[string]
}

// NewStageGoalEvaluator creates an evaluator with nothing achieved
func NewStageGoalEvaluator() *StageGoalEvaluator {
	return &StageGoalEvaluator{achieved: sets.New[string]()}
}

// Reset forgets every achieved stage
func (e *StageGoalEvaluator) Reset() {
	e.achieved = sets.New[string]()
}

// Evaluate writes 0.0 or 1.0 for every stage of goals into out.
func (e *StageGoalEvaluator) Evaluate(t task.Task, goals task.StageGoals, out map[string]float64) {
	stages := make([]string, 0, len(goals))
	for stage := range goals {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	for _, stage := range stages {
		if e.achieved.Has(stage) {
			out[stage] = 1.0
			continue
		}
		if t.IsPredListSat(goals[stage]) {
			e.achieved.Insert(stage)
			out[stage] = 1.0
			log.V(1).Info("Stage goal achieved", "stage", stage)
			continue
		}
		out[stage] = 0.0
	}
}

// Achieved returns the achieved stage names in sorted order
func (e *StageGoalEvaluator) Achieved() []string {
	return sets.List(e.achieved)
}

// IsAchieved checks if a stage has been achieved this episode
func (e *StageGoalEvaluator) IsAchieved(stage string) bool {
	return e.achieved.Has(stage)
}
