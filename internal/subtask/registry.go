package subtask

import (
	"fmt"
	"slices"
	"sync"

	v1 "github.com/kination/stagehand/api/v1"
	"github.com/kination/stagehand/internal/task"
)

// Registry manages factory registration and lookup
type Registry struct {
	mu        sync.RWMutex
	factories map[v1.SubtaskType]Factory
}

// NewRegistry creates a new, empty factory registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[v1.SubtaskType]Factory),
	}
}

// NewDefaultRegistry creates a registry with the built-in subtask types
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MeasuredFactory{})
	return r
}

// Register adds a factory to the registry
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, subtaskType := range f.Type() {
		r.factories[subtaskType] = f
	}
}

// Get retrieves a factory for the given subtask type
func (r *Registry) Get(subtaskType v1.SubtaskType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[subtaskType]
	if !ok {
		return nil, fmt.Errorf("no factory registered for subtask type: %s (known: %v)", subtaskType, r.types())
	}
	return f, nil
}

// Has checks if a factory is registered for the given subtask type
func (r *Registry) Has(subtaskType v1.SubtaskType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[subtaskType]
	return ok
}

// Types returns all registered subtask types in sorted order
func (r *Registry) Types() []v1.SubtaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types()
}

func (r *Registry) types() []v1.SubtaskType {
	types := make([]v1.SubtaskType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// BuildSolution builds every solution entry of a manifest in order.
// An empty type selects SubtaskTypeMeasured.
func (r *Registry) BuildSolution(specs []v1.SubtaskSpec) ([]task.SubtaskSpec, error) {
	solution := make([]task.SubtaskSpec, 0, len(specs))
	for i, spec := range specs {
		subtaskType := spec.Type
		if subtaskType == "" {
			subtaskType = v1.SubtaskTypeMeasured
		}
		f, err := r.Get(subtaskType)
		if err != nil {
			return nil, fmt.Errorf("solution[%d] %q: %w", i, spec.Name, err)
		}
		built, err := f.Build(spec)
		if err != nil {
			return nil, fmt.Errorf("solution[%d] %q: %w", i, spec.Name, err)
		}
		solution = append(solution, built)
	}
	return solution, nil
}
