// Package scheduler orders measures so that every measure is evaluated after
// the measures it reads. The order is computed once, before the first
// episode, and never renegotiated at runtime.
package scheduler

import (
	"github.com/kination/stagehand/internal/measure"
)

// Policy defines how ties between independent measures are broken
type Policy string

const (
	// PolicyRegistration keeps independent measures in registration order
	PolicyRegistration Policy = "Registration"
	// PolicyLexical orders independent measures by UUID
	PolicyLexical Policy = "Lexical"
)

// Scheduler defines the interface for measure ordering.
type Scheduler interface {
	// Name returns the scheduler name
	Name() string

	// Policy returns the tie-break policy
	Policy() Policy

	// Schedule returns the measures in an order satisfying every dependency
	Schedule(measures []measure.Measure) ([]measure.Measure, error)
}

// SchedulerConfig holds common configuration for schedulers
type SchedulerConfig struct {
	Policy Policy
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Policy: PolicyRegistration,
	}
}
