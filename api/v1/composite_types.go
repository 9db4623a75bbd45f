package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SubtaskType defines the kind of subtask a solution entry instantiates
type SubtaskType string

const (
	// SubtaskTypeMeasured reads its success and reward from named measurements
	SubtaskTypeMeasured SubtaskType = "Measured"
)

// SubtaskSpec defines one entry of the solution
type SubtaskSpec struct {
	Name string      `json:"name"`
	Type SubtaskType `json:"type,omitempty"` // Defaults to Measured

	// Measurement keys read by the composite measures
	SuccessMeasurement string `json:"successMeasurement,omitempty"`
	RewardMeasurement  string `json:"rewardMeasurement,omitempty"`
}

// CompositeTaskSpec defines the composite task as written by the user.
type CompositeTaskSpec struct {
	// StageCompleteReward is paid once each time the node index grows
	StageCompleteReward *float64 `json:"stageCompleteReward,omitempty"`
	// SuccessReward is paid on every step the composite goal is satisfied
	SuccessReward *float64 `json:"successReward,omitempty"`

	// SkipNodes lists subtask names the tracker never stops on
	SkipNodes []string `json:"skipNodes,omitempty"`

	Solution   []SubtaskSpec       `json:"solution"`
	StageGoals map[string][]string `json:"stageGoals,omitempty"`
}

// CompositeTask is the Schema for composite task manifests
type CompositeTask struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec CompositeTaskSpec `json:"spec"`
}

// SubtaskNames returns the solution names in order.
func (c *CompositeTask) SubtaskNames() []string {
	names := make([]string, 0, len(c.Spec.Solution))
	for _, s := range c.Spec.Solution {
		names = append(names, s.Name)
	}
	return names
}
