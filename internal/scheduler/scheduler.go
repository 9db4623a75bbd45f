package scheduler

import (
	"container/heap"
	"sort"
	"strings"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/kination/stagehand/internal/measure"
)

var log = ctrl.Log.WithName("scheduler")

// DefaultScheduler orders measures with Kahn's algorithm.
type DefaultScheduler struct {
	config SchedulerConfig
}

// NewScheduler creates a new DefaultScheduler with the given configuration
func NewScheduler(config SchedulerConfig) *DefaultScheduler {
	return &DefaultScheduler{config: config}
}

// NewDefaultScheduler creates a scheduler with default configuration
func NewDefaultScheduler() *DefaultScheduler {
	return NewScheduler(DefaultSchedulerConfig())
}

// Name returns the scheduler name
func (s *DefaultScheduler) Name() string {
	return "default-scheduler"
}

// Policy returns the tie-break policy
func (s *DefaultScheduler) Policy() Policy {
	return s.config.Policy
}

// Plan orders measures with the default scheduler and wraps them in a Set.
func Plan(measures ...measure.Measure) (*measure.Set, error) {
	ordered, err := NewDefaultScheduler().Schedule(measures)
	if err != nil {
		return nil, err
	}
	return measure.NewSet(ordered)
}

// Schedule returns a deterministic topological order of the measures.
//
// It rejects duplicate UUIDs, dependencies on unregistered measures,
// self-dependencies and cycles.
func (s *DefaultScheduler) Schedule(measures []measure.Measure) ([]measure.Measure, error) {
	nodes := s.rank(measures)

	index := make(map[string]int, len(nodes))
	for i, m := range nodes {
		if _, exists := index[m.UUID()]; exists {
			return nil, measure.Configf(measure.ErrDuplicateMeasure, m.UUID(), "registered twice")
		}
		index[m.UUID()] = i
	}

	outgoing := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for i, m := range nodes {
		seen := make(map[int]struct{})
		for _, dep := range m.Dependencies() {
			j, ok := index[dep]
			if !ok {
				return nil, measure.Configf(measure.ErrMissingDependency, m.UUID(), "requires %q which is not registered", dep)
			}
			if j == i {
				return nil, measure.Configf(measure.ErrCycle, m.UUID(), "depends on itself")
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			outgoing[j] = append(outgoing[j], i)
			indeg[i]++
		}
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}

	order := topoOrder(outgoing, indeg)
	if len(order) != len(nodes) {
		path := findCycle(outgoing)
		names := make([]string, 0, len(path))
		for _, idx := range path {
			names = append(names, nodes[idx].UUID())
		}
		return nil, measure.Configf(measure.ErrCycle, "", "%s", strings.Join(names, " -> "))
	}

	out := make([]measure.Measure, 0, len(order))
	for _, idx := range order {
		out = append(out, nodes[idx])
	}
	log.V(1).Info("Planned measures", "policy", s.config.Policy, "order", uuids(out))
	return out, nil
}

// rank returns the measures in tie-break order
func (s *DefaultScheduler) rank(measures []measure.Measure) []measure.Measure {
	nodes := make([]measure.Measure, len(measures))
	copy(nodes, measures)
	if s.config.Policy == PolicyLexical {
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].UUID() < nodes[j].UUID()
		})
	}
	return nodes
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder returns a topological order; the ready queue is a min-heap by rank.
func topoOrder(outgoing [][]int, indegree []int) []int {
	indeg := make([]int, len(indegree))
	copy(indeg, indegree)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle extracts one cycle as a closed path, e.g. [a b a].
func findCycle(outgoing [][]int) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(outgoing))
	parent := make([]int, len(outgoing))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// back-edge u -> v
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range outgoing {
		if color[i] == white && dfs(i) {
			break
		}
	}

	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

func uuids(measures []measure.Measure) []string {
	out := make([]string, 0, len(measures))
	for _, m := range measures {
		out = append(out, m.UUID())
	}
	return out
}
