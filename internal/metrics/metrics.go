// Package metrics exposes Prometheus collectors for composite task rollouts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kination/stagehand/internal/runner"
)

const (
	namespace = "stagehand"
	subsystem = "composite"
)

// Metrics reports step results as Prometheus series labelled by task.
// It implements runner.Observer.
type Metrics struct {
	task string

	episodes      *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stageAdvances *prometheus.CounterVec
	successSteps  *prometheus.CounterVec
	reward        *prometheus.HistogramVec
	nodeIndex     *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg for the named task.
// Collectors already registered by another Metrics are reused.
func NewMetrics(reg prometheus.Registerer, task string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		task: task,
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "episodes_total",
			Help:      "Number of episode resets.",
		}, []string{"task"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "steps_total",
			Help:      "Number of evaluated steps, resets included.",
		}, []string{"task"}),
		stageAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_advances_total",
			Help:      "Number of steps that paid the stage-complete bonus.",
		}, []string{"task"}),
		successSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "success_steps_total",
			Help:      "Number of steps on which the composite task reported success.",
		}, []string{"task"}),
		reward: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_reward",
			Help:      "Per-step reward, split into the subtask component and the aggregated total.",
			Buckets:   prometheus.LinearBuckets(-1, 0.5, 24),
		}, []string{"task", "component"}),
		nodeIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_index",
			Help:      "Node index reported by the stage tracker on the last step.",
		}, []string{"task"}),
	}

	if err := register(reg, &m.episodes); err != nil {
		return nil, err
	}
	if err := register(reg, &m.steps); err != nil {
		return nil, err
	}
	if err := register(reg, &m.stageAdvances); err != nil {
		return nil, err
	}
	if err := register(reg, &m.successSteps); err != nil {
		return nil, err
	}
	if err := register(reg, &m.reward); err != nil {
		return nil, err
	}
	if err := register(reg, &m.nodeIndex); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, swapping in the existing collector when the same
// descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return err
		}
		*c = existing
	}
	return nil
}

// ObserveStep records one step result
func (m *Metrics) ObserveStep(result *runner.StepResult) {
	if m == nil || result == nil {
		return
	}
	if result.Step == 0 {
		m.episodes.WithLabelValues(m.task).Inc()
	}
	m.steps.WithLabelValues(m.task).Inc()
	if result.StageBonus {
		m.stageAdvances.WithLabelValues(m.task).Inc()
	}
	if result.Success {
		m.successSteps.WithLabelValues(m.task).Inc()
	}
	m.reward.WithLabelValues(m.task, "subtask").Observe(result.Reward)
	m.reward.WithLabelValues(m.task, "total").Observe(result.TotalReward)
	m.nodeIndex.WithLabelValues(m.task).Set(float64(result.Snapshot.NodeIdx))
}
