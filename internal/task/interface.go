// Package task defines the collaborator interfaces the composite measures
// consume. The simulator-facing task, its subtasks and the episode all live
// outside this module and are only seen through these types.
package task

// Predicate is a single world-state condition understood by the host task
type Predicate string

// StageGoals maps a stage name to the predicates that must hold together
type StageGoals map[string][]Predicate

// Episode identifies one rollout
type Episode struct {
	ID      string
	SceneID string
}

// SubtaskConfig names the measurements a subtask is scored by.
// An empty key means the subtask does not declare it.
type SubtaskConfig struct {
	Name               string
	SuccessMeasurement string
	RewardMeasurement  string
}

// Owner is whoever instantiates a subtask. The stage tracker passes itself.
type Owner interface {
	UUID() string
}

// SubtaskInstance is a live subtask bound to an episode
type SubtaskInstance interface {
	// Config returns the measurement configuration of the subtask
	Config() SubtaskConfig

	// Reset rebinds a cached instance to a new episode
	Reset(ep *Episode) error
}

// SubtaskSpec identifies one solution entry and builds its instances
type SubtaskSpec interface {
	// Name returns the subtask name, matched against the skip set
	Name() string

	// InitTask creates an instance. When shouldReset is false the caller
	// decides when Reset runs.
	InitTask(owner Owner, ep *Episode, shouldReset bool) (SubtaskInstance, error)
}

// Task is the composite task being rolled out.
type Task interface {
	// GetCurTask returns the externally driven subtask, or nil when the whole
	// task is being rolled out
	GetCurTask() SubtaskInstance

	// GetCurNode returns the externally driven node index
	GetCurNode() int

	// GetNumNodes returns the number of nodes in the solution
	GetNumNodes() int

	// GetSolution returns the ordered solution
	GetSolution() []SubtaskSpec

	// GetStageGoals returns the stage goals of the outer task
	GetStageGoals() StageGoals

	// IsPredListSat reports whether all predicates currently hold
	IsPredListSat(preds []Predicate) bool

	// IsGoalStateSatisfied reports whether the composite goal holds
	IsGoalStateSatisfied() bool
}
