package measure

import (
	"fmt"
)

// Set holds the measures of a task in evaluation order.
type Set struct {
	ordered []Measure
	index   map[string]int
}

// NewSet wraps measures that are already in evaluation order.
// Use scheduler.Plan to obtain that order from declared dependencies.
func NewSet(ordered []Measure) (*Set, error) {
	index := make(map[string]int, len(ordered))
	for i, m := range ordered {
		if _, exists := index[m.UUID()]; exists {
			return nil, Configf(ErrDuplicateMeasure, m.UUID(), "registered twice")
		}
		index[m.UUID()] = i
	}
	return &Set{ordered: ordered, index: index}, nil
}

// Measures returns the measures in evaluation order
func (s *Set) Measures() []Measure {
	out := make([]Measure, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Order returns the UUIDs in evaluation order
func (s *Set) Order() []string {
	out := make([]string, 0, len(s.ordered))
	for _, m := range s.ordered {
		out = append(out, m.UUID())
	}
	return out
}

// Has checks if a measure is in the set
func (s *Set) Has(uuid string) bool {
	_, ok := s.index[uuid]
	return ok
}

// Get retrieves a measure by UUID
func (s *Set) Get(uuid string) (Measure, bool) {
	i, ok := s.index[uuid]
	if !ok {
		return nil, false
	}
	return s.ordered[i], true
}

// CheckDependencies verifies that every dependency is present and is
// evaluated before uuid.
func (s *Set) CheckDependencies(uuid string, deps []string) error {
	self, ok := s.index[uuid]
	if !ok {
		return Configf(ErrMissingDependency, uuid, "measure is not part of the set")
	}
	for _, dep := range deps {
		i, ok := s.index[dep]
		if !ok {
			return Configf(ErrMissingDependency, uuid, "requires %q which is not registered", dep)
		}
		if i >= self {
			return Configf(ErrMissingDependency, uuid, "requires %q to be evaluated first", dep)
		}
	}
	return nil
}

// Value returns the current metric of a measure
func (s *Set) Value(uuid string) (any, error) {
	m, ok := s.Get(uuid)
	if !ok {
		return nil, Configf(ErrMissingDependency, uuid, "measure is not registered")
	}
	return m.Metric(), nil
}

// Float returns the current metric of a measure as a float64
func (s *Set) Float(uuid string) (float64, error) {
	v, err := s.Value(uuid)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("measure %q has non-numeric value %T", uuid, v)
	}
}

// Bool returns the current metric of a measure as a truth value.
// Numbers are true when non-zero.
func (s *Set) Bool(uuid string) (bool, error) {
	v, err := s.Value(uuid)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	f, err := s.Float(uuid)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}
