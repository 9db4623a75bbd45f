// Package replay drives composite measures offline from a recorded trace.
// Each trace step supplies the simulator-side facts for one evaluation pass:
// subtask measurements, the predicates that hold and whether the goal holds.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Trace is a sequence of recorded episodes
type Trace struct {
	Episodes []EpisodeTrace `yaml:"episodes"`
}

// EpisodeTrace is one recorded episode. Steps[0] is the reset observation.
type EpisodeTrace struct {
	ID      string      `yaml:"id"`
	SceneID string      `yaml:"sceneId,omitempty"`
	Steps   []StepTrace `yaml:"steps"`
}

// StepTrace is the recorded state of one step
type StepTrace struct {
	Measurements  map[string]float64 `yaml:"measurements,omitempty"`
	Predicates    []string           `yaml:"predicates,omitempty"`
	GoalSatisfied bool               `yaml:"goalSatisfied,omitempty"`

	// CurNode, when set, drives the task in ground-truth mode
	CurNode *int `yaml:"curNode,omitempty"`
}

// LoadTrace reads a trace file
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace error: %w", err)
	}
	trace, err := ParseTrace(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return trace, nil
}

// ParseTrace decodes trace bytes. Unknown fields are rejected.
func ParseTrace(data []byte) (*Trace, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var trace Trace
	if err := dec.Decode(&trace); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	for i, ep := range trace.Episodes {
		if ep.ID == "" {
			return nil, fmt.Errorf("episodes[%d]: id is required", i)
		}
		if len(ep.Steps) == 0 {
			return nil, fmt.Errorf("episode %q: at least the reset step is required", ep.ID)
		}
	}
	return &trace, nil
}
