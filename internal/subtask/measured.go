package subtask

import (
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"

	v1 "github.com/kination/stagehand/api/v1"
	"github.com/kination/stagehand/internal/task"
)

var log = ctrl.Log.WithName("subtask")

// MeasuredFactory builds subtasks scored by named measurements
type MeasuredFactory struct{}

// Type returns the subtask types this factory handles
func (MeasuredFactory) Type() []v1.SubtaskType {
	return []v1.SubtaskType{v1.SubtaskTypeMeasured}
}

// Build returns a Spec for the manifest entry
func (MeasuredFactory) Build(spec v1.SubtaskSpec) (task.SubtaskSpec, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("subtask name is required")
	}
	return &Spec{
		config: task.SubtaskConfig{
			Name:               spec.Name,
			SuccessMeasurement: spec.SuccessMeasurement,
			RewardMeasurement:  spec.RewardMeasurement,
		},
	}, nil
}

// Spec is a solution entry whose instances carry a fixed measurement config.
type Spec struct {
	config task.SubtaskConfig
}

// NewSpec creates a Spec directly from a config
func NewSpec(config task.SubtaskConfig) *Spec {
	return &Spec{config: config}
}

// Name returns the subtask name
func (s *Spec) Name() string { return s.config.Name }

// InitTask creates a new instance bound to ep.
func (s *Spec) InitTask(owner task.Owner, ep *task.Episode, shouldReset bool) (task.SubtaskInstance, error) {
	inst := &Instance{config: s.config}
	if owner != nil {
		inst.owner = owner.UUID()
	}
	inst.episode = episodeID(ep)
	if shouldReset {
		if err := inst.Reset(ep); err != nil {
			return nil, err
		}
	}
	log.V(1).Info("Initialized subtask", "subtask", s.config.Name, "owner", inst.owner, "episode", inst.episode, "reset", shouldReset)
	return inst, nil
}

// Instance is a live measured subtask
type Instance struct {
	config  task.SubtaskConfig
	owner   string
	episode string
	resets  int
}

// Config returns the measurement configuration
func (i *Instance) Config() task.SubtaskConfig { return i.config }

// Reset rebinds the instance to ep
func (i *Instance) Reset(ep *task.Episode) error {
	i.episode = episodeID(ep)
	i.resets++
	return nil
}

// Episode returns the ID of the episode the instance is bound to
func (i *Instance) Episode() string { return i.episode }

// Owner returns the UUID of the owner that created the instance
func (i *Instance) Owner() string { return i.owner }

// Resets returns how many times Reset has run
func (i *Instance) Resets() int { return i.resets }

func episodeID(ep *task.Episode) string {
	if ep == nil {
		return ""
	}
	return ep.ID
}
