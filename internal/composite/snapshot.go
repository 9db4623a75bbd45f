package composite

import (
	"fmt"
	"maps"
)

// Snapshot is the per-step output of the stage tracker. A new snapshot is
// built on every update.
type Snapshot struct {
	NodeIdx int `json:"node_idx"`

	// Reached[i] is true once the inferred node is at or past i.
	// Only filled in inferred mode.
	Reached []bool `json:"reached,omitempty"`

	// StageSuccess is 1.0 for stages whose goals have held at least once
	StageSuccess map[string]float64 `json:"stage_success,omitempty"`
}

// ReachedKey returns the flattened key for reached flag i
func ReachedKey(i int) string { return fmt.Sprintf("reached_%d", i) }

// StageSuccessKey returns the flattened key for a stage
func StageSuccessKey(stage string) string { return stage + "_success" }

// Flatten returns the snapshot as a flat metric map.
func (s Snapshot) Flatten() map[string]float64 {
	out := make(map[string]float64, 1+len(s.Reached)+len(s.StageSuccess))
	out["node_idx"] = float64(s.NodeIdx)
	for i, reached := range s.Reached {
		v := 0.0
		if reached {
			v = 1.0
		}
		out[ReachedKey(i)] = v
	}
	for stage, v := range s.StageSuccess {
		out[StageSuccessKey(stage)] = v
	}
	return out
}

// Clone returns a deep copy
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{NodeIdx: s.NodeIdx}
	if s.Reached != nil {
		out.Reached = append([]bool(nil), s.Reached...)
	}
	if s.StageSuccess != nil {
		out.StageSuccess = maps.Clone(s.StageSuccess)
	}
	return out
}
