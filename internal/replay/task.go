package replay

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kination/stagehand/internal/task"
)

// ScriptedTask implements task.Task from trace steps.
type ScriptedTask struct {
	solution []task.SubtaskSpec
	goals    task.StageGoals

	step       StepTrace
	predicates sets.Set[string]

	episode  string
	curTasks map[int]task.SubtaskInstance
}

// NewScriptedTask creates a task over a fixed solution and stage goals
func NewScriptedTask(solution []task.SubtaskSpec, goals task.StageGoals) *ScriptedTask {
	return &ScriptedTask{
		solution:   solution,
		goals:      goals,
		predicates: sets.New[string](),
		curTasks:   make(map[int]task.SubtaskInstance),
	}
}

// UUID identifies the task when it instantiates ground-truth subtasks
func (t *ScriptedTask) UUID() string { return "scripted_task" }

// Load makes step the current state of the task. When the step drives a
// node, the subtask for that node is instantiated once per episode.
func (t *ScriptedTask) Load(ep *task.Episode, step StepTrace) error {
	if ep.ID != t.episode {
		t.episode = ep.ID
		t.curTasks = make(map[int]task.SubtaskInstance)
	}
	if step.CurNode != nil {
		node := *step.CurNode
		if node < 0 || node >= len(t.solution) {
			return fmt.Errorf("curNode %d out of range for %d subtasks", node, len(t.solution))
		}
		if _, ok := t.curTasks[node]; !ok {
			inst, err := t.solution[node].InitTask(t, ep, true)
			if err != nil {
				return fmt.Errorf("failed to init subtask %q: %w", t.solution[node].Name(), err)
			}
			t.curTasks[node] = inst
		}
	}
	t.step = step
	t.predicates = sets.New(step.Predicates...)
	return nil
}

// Measurement returns a recorded measurement of the current step, 0 if absent
func (t *ScriptedTask) Measurement(name string) float64 {
	return t.step.Measurements[name]
}

// GetCurTask returns the driven subtask, or nil in inferred mode
func (t *ScriptedTask) GetCurTask() task.SubtaskInstance {
	if t.step.CurNode == nil {
		return nil
	}
	return t.curTasks[*t.step.CurNode]
}

// GetCurNode returns the driven node, or -1 in inferred mode
func (t *ScriptedTask) GetCurNode() int {
	if t.step.CurNode == nil {
		return -1
	}
	return *t.step.CurNode
}

// GetNumNodes returns the solution length
func (t *ScriptedTask) GetNumNodes() int { return len(t.solution) }

// GetSolution returns the solution
func (t *ScriptedTask) GetSolution() []task.SubtaskSpec { return t.solution }

// GetStageGoals returns the stage goals
func (t *ScriptedTask) GetStageGoals() task.StageGoals { return t.goals }

// IsPredListSat reports whether every predicate was recorded as holding
func (t *ScriptedTask) IsPredListSat(preds []task.Predicate) bool {
	for _, p := range preds {
		if !t.predicates.Has(string(p)) {
			return false
		}
	}
	return true
}

// IsGoalStateSatisfied returns the recorded goal state
func (t *ScriptedTask) IsGoalStateSatisfied() bool { return t.step.GoalSatisfied }
