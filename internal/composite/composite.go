package composite

import (
	"github.com/kination/stagehand/internal/measure"
)

// Config holds everything needed to build the composite measures
type Config struct {
	Reward  RewardConfig
	Tracker TrackerConfig

	// RewardMeasurements are the subtask reward measures the aggregator reads
	RewardMeasurements []string
}

// Measures bundles the three composite measures, wired to each other.
type Measures struct {
	Tracker *StageTracker
	Success *SuccessEvaluator
	Reward  *RewardAggregator
}

// New builds the composite measures. The aggregator holds references to the
// tracker and success evaluator it reads from.
func New(config Config) *Measures {
	tracker := NewStageTracker(config.Tracker)
	success := NewSuccessEvaluator()
	return &Measures{
		Tracker: tracker,
		Success: success,
		Reward:  NewRewardAggregator(config.Reward, tracker, success, config.RewardMeasurements...),
	}
}

// All returns the measures in registration order
func (m *Measures) All() []measure.Measure {
	return []measure.Measure{m.Tracker, m.Success, m.Reward}
}
