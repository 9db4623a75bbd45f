// Package composite tracks progress through a composite task's solution and
// turns it into the reward and success signals used for training.
//
// Three measures are exposed:
//   - StageTracker (composite_node_idx): the current node of the solution,
//     cumulative reached flags and sticky stage-goal success
//   - SuccessEvaluator (composite_success): terminal success of the whole task
//   - RewardAggregator (composite_reward): subtask reward plus stage and
//     success bonuses
//
// The tracker runs in ground-truth mode while the host task isolates a
// subtask (Task.GetCurTask is non-nil) and in inferred mode otherwise, where
// it advances on its own by reading the success measurement of the subtask it
// believes is active.
package composite
