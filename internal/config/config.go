// Package config loads CompositeTask manifests and builds the composite
// measures they describe.
package config

import (
	"fmt"
	"math"
	"os"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/yaml"

	v1 "github.com/kination/stagehand/api/v1"
	"github.com/kination/stagehand/internal/composite"
	"github.com/kination/stagehand/internal/subtask"
	"github.com/kination/stagehand/internal/task"
)

var log = ctrl.Log.WithName("config")

// Load reads and validates a manifest
func Load(path string) (*v1.CompositeTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest error: %w", err)
	}
	ct, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.V(1).Info("Loaded manifest", "path", path, "name", ct.Name, "subtasks", len(ct.Spec.Solution))
	return ct, nil
}

// Parse decodes and validates manifest bytes. Unknown fields are rejected.
func Parse(data []byte) (*v1.CompositeTask, error) {
	var ct v1.CompositeTask
	if err := yaml.UnmarshalStrict(data, &ct); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	if errs := Validate(&ct); len(errs) > 0 {
		return nil, errs.ToAggregate()
	}
	return &ct, nil
}

// Validate checks a manifest and returns every problem found
func Validate(ct *v1.CompositeTask) field.ErrorList {
	var errs field.ErrorList

	if ct.APIVersion != v1.GroupVersion.String() {
		errs = append(errs, field.NotSupported(field.NewPath("apiVersion"), ct.APIVersion, []string{v1.GroupVersion.String()}))
	}
	if ct.Kind != v1.Kind {
		errs = append(errs, field.NotSupported(field.NewPath("kind"), ct.Kind, []string{v1.Kind}))
	}
	if ct.Name == "" {
		errs = append(errs, field.Required(field.NewPath("metadata", "name"), ""))
	}

	spec := field.NewPath("spec")
	errs = append(errs, validateReward(spec.Child("stageCompleteReward"), ct.Spec.StageCompleteReward)...)
	errs = append(errs, validateReward(spec.Child("successReward"), ct.Spec.SuccessReward)...)

	skip := sets.New(ct.Spec.SkipNodes...)
	names := sets.New(ct.SubtaskNames()...)
	for i, name := range ct.Spec.SkipNodes {
		if !names.Has(name) {
			errs = append(errs, field.Invalid(spec.Child("skipNodes").Index(i), name, "does not name a subtask of the solution"))
		}
	}

	solution := spec.Child("solution")
	if len(ct.Spec.Solution) == 0 {
		errs = append(errs, field.Required(solution, "at least one subtask is required"))
	}
	active := 0
	for i, s := range ct.Spec.Solution {
		p := solution.Index(i)
		if s.Name == "" {
			errs = append(errs, field.Required(p.Child("name"), ""))
			continue
		}
		if skip.Has(s.Name) {
			continue
		}
		active++
		if s.SuccessMeasurement == "" {
			errs = append(errs, field.Required(p.Child("successMeasurement"), "required for subtasks that are not skipped"))
		}
		if s.RewardMeasurement == "" {
			errs = append(errs, field.Required(p.Child("rewardMeasurement"), "required for subtasks that are not skipped"))
		}
	}
	if len(ct.Spec.Solution) > 0 && active == 0 {
		errs = append(errs, field.Invalid(spec.Child("skipNodes"), ct.Spec.SkipNodes, "every subtask of the solution is skipped"))
	}

	for stage := range ct.Spec.StageGoals {
		if stage == "" {
			errs = append(errs, field.Invalid(spec.Child("stageGoals"), stage, "stage name must not be empty"))
		}
	}
	return errs
}

func validateReward(p *field.Path, v *float64) field.ErrorList {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return field.ErrorList{field.Invalid(p, *v, "must be a finite number")}
	}
	return nil
}

// ValidateTypes checks that every solution entry names a registered subtask type
func ValidateTypes(ct *v1.CompositeTask, registry *subtask.Registry) field.ErrorList {
	var errs field.ErrorList
	known := registry.Types()
	supported := make([]string, 0, len(known))
	for _, t := range known {
		supported = append(supported, string(t))
	}
	for i, s := range ct.Spec.Solution {
		if s.Type == "" || registry.Has(s.Type) {
			continue
		}
		errs = append(errs, field.NotSupported(field.NewPath("spec", "solution").Index(i).Child("type"), s.Type, supported))
	}
	return errs
}

// Bundle is everything built from one manifest
type Bundle struct {
	Name       string
	Solution   []task.SubtaskSpec
	StageGoals task.StageGoals
	Measures   *composite.Measures

	// SuccessMeasurements and RewardMeasurements are the subtask measures the
	// composite measures read, in first-use order
	SuccessMeasurements []string
	RewardMeasurements  []string
}

// Build turns a validated manifest into a solution and composite measures.
func Build(ct *v1.CompositeTask, registry *subtask.Registry) (*Bundle, error) {
	if registry == nil {
		registry = subtask.NewDefaultRegistry()
	}
	if errs := ValidateTypes(ct, registry); len(errs) > 0 {
		return nil, errs.ToAggregate()
	}
	solution, err := registry.BuildSolution(ct.Spec.Solution)
	if err != nil {
		return nil, fmt.Errorf("build solution error: %w", err)
	}

	var successes, rewards []string
	seenSuccess, seenReward := sets.New[string](), sets.New[string]()
	for _, s := range ct.Spec.Solution {
		if s.SuccessMeasurement != "" && !seenSuccess.Has(s.SuccessMeasurement) {
			seenSuccess.Insert(s.SuccessMeasurement)
			successes = append(successes, s.SuccessMeasurement)
		}
		if s.RewardMeasurement != "" && !seenReward.Has(s.RewardMeasurement) {
			seenReward.Insert(s.RewardMeasurement)
			rewards = append(rewards, s.RewardMeasurement)
		}
	}

	reward := composite.DefaultRewardConfig()
	if ct.Spec.StageCompleteReward != nil {
		reward.StageCompleteReward = *ct.Spec.StageCompleteReward
	}
	if ct.Spec.SuccessReward != nil {
		reward.SuccessReward = *ct.Spec.SuccessReward
	}

	goals := make(task.StageGoals, len(ct.Spec.StageGoals))
	for stage, preds := range ct.Spec.StageGoals {
		converted := make([]task.Predicate, 0, len(preds))
		for _, p := range preds {
			converted = append(converted, task.Predicate(p))
		}
		goals[stage] = converted
	}

	measures := composite.New(composite.Config{
		Reward: reward,
		Tracker: composite.TrackerConfig{
			SkipNodes:           ct.Spec.SkipNodes,
			SuccessMeasurements: successes,
		},
		RewardMeasurements: rewards,
	})

	return &Bundle{
		Name:                ct.Name,
		Solution:            solution,
		StageGoals:          goals,
		Measures:            measures,
		SuccessMeasurements: successes,
		RewardMeasurements:  rewards,
	}, nil
}
