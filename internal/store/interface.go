// Package store provides storage interfaces for episode and step history.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an episode is unknown to the store
var ErrNotFound = errors.New("episode not found")

// Store defines the interface for step persistence.
type Store interface {
	// Step operations
	SaveStep(ctx context.Context, rec *StepRecord) error

	// Episode operations
	GetEpisode(ctx context.Context, episodeID string) (*EpisodeRun, error)
	ListEpisodes(ctx context.Context, opts ListOptions) ([]*EpisodeRun, error)
	DeleteEpisode(ctx context.Context, episodeID string) error

	// Health check
	Ping(ctx context.Context) error

	// Close releases resources
	Close() error
}

// ListOptions defines options for listing operations
type ListOptions struct {
	// Limit is the maximum number of items to return
	Limit int
	// Offset is the number of items to skip
	Offset int
	// SucceededOnly keeps episodes whose last step reported success
	SucceededOnly bool
}

// EpisodeRun is the step history of one episode
type EpisodeRun struct {
	// EpisodeID identifies the episode
	EpisodeID string
	// StartTime is when step 0 was saved
	StartTime time.Time
	// EndTime is when the last step was saved
	EndTime *time.Time
	// Steps holds the saved steps in order
	Steps []StepRecord
}

// StepRecord is one stored step
type StepRecord struct {
	EpisodeID   string
	Step        int
	Reward      float64
	TotalReward float64
	StageBonus  bool
	Success     bool
	NodeIdx     int
	// Metrics is the flattened tracker snapshot
	Metrics map[string]float64
}

// Return sums the total reward over the episode
func (e *EpisodeRun) Return() float64 {
	sum := 0.0
	for _, s := range e.Steps {
		sum += s.TotalReward
	}
	return sum
}

// Succeeded reports whether the last step reported success
func (e *EpisodeRun) Succeeded() bool {
	if len(e.Steps) == 0 {
		return false
	}
	return e.Steps[len(e.Steps)-1].Success
}
