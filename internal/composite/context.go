package composite

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kination/stagehand/internal/measure"
	"github.com/kination/stagehand/internal/task"
)

// EpisodeContext is the inferred-mode state of a StageTracker: the inferred
// node, the subtask bound to it and the cache of instantiated subtasks.
// Only the tracker mutates it; other components read it through accessors.
type EpisodeContext struct {
	episode *task.Episode

	node int // -1 until the first reset
	task task.SubtaskInstance

	cache       map[int]task.SubtaskInstance
	solutionKey string
}

func newEpisodeContext() *EpisodeContext {
	return &EpisodeContext{
		node:  -1,
		cache: make(map[int]task.SubtaskInstance),
	}
}

// Episode returns the episode the context was last reset for
func (c *EpisodeContext) Episode() *task.Episode { return c.episode }

// InferredNode returns the inferred node index, -1 before the first reset
func (c *EpisodeContext) InferredNode() int { return c.node }

// InferredTask returns the subtask bound to the inferred node, if any
func (c *EpisodeContext) InferredTask() task.SubtaskInstance { return c.task }

// Cached reports how many subtask instances are cached
func (c *EpisodeContext) Cached() int { return len(c.cache) }

// reset starts a new episode at node 0. Cached instances are kept while the
// solution is unchanged so they can be re-reset instead of rebuilt.
func (c *EpisodeContext) reset(ep *task.Episode, solution []task.SubtaskSpec) {
	key := solutionKey(solution)
	if key != c.solutionKey {
		c.cache = make(map[int]task.SubtaskInstance)
		c.solutionKey = key
	}
	c.episode = ep
	c.node = 0
	c.task = nil
}

// resolve binds the first non-skipped subtask at or after the current node.
// It returns false, leaving the node past the end, when there is none.
func (c *EpisodeContext) resolve(owner task.Owner, ep *task.Episode, solution []task.SubtaskSpec, skip sets.Set[string]) (bool, error) {
	if c.node < 0 {
		return false, measure.Configf(measure.ErrNotReset, NodeIdxUUID, "no episode has been reset")
	}
	if c.node >= len(solution) {
		return false, nil
	}
	for skip.Has(solution[c.node].Name()) {
		c.node++
		if c.node >= len(solution) {
			return false, nil
		}
	}

	if inst, ok := c.cache[c.node]; ok {
		if err := inst.Reset(ep); err != nil {
			return false, fmt.Errorf("failed to reset cached subtask %q: %w", solution[c.node].Name(), err)
		}
		c.task = inst
		return true, nil
	}

	inst, err := solution[c.node].InitTask(owner, ep, false)
	if err != nil {
		return false, fmt.Errorf("failed to init subtask %q: %w", solution[c.node].Name(), err)
	}
	c.cache[c.node] = inst
	c.task = inst
	return true, nil
}

func solutionKey(solution []task.SubtaskSpec) string {
	names := make([]string, 0, len(solution))
	for _, s := range solution {
		names = append(names, s.Name())
	}
	return strings.Join(names, "\x00")
}
