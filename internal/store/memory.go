package store

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps episode history in memory
type MemoryStore struct {
	mu       sync.RWMutex
	episodes map[string]*EpisodeRun
	order    []string
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		episodes: make(map[string]*EpisodeRun),
		now:      time.Now,
	}
}

// SaveStep appends a step. Step 0 starts the episode over.
func (s *MemoryStore) SaveStep(_ context.Context, rec *StepRecord) error {
	if rec == nil {
		return fmt.Errorf("nil step record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.episodes[rec.EpisodeID]
	want := 0
	if ok && rec.Step != 0 {
		want = len(run.Steps)
	}
	if rec.Step != want {
		return fmt.Errorf("episode %q: expected step %d, got %d", rec.EpisodeID, want, rec.Step)
	}

	now := s.now()
	if rec.Step == 0 {
		if !ok {
			s.order = append(s.order, rec.EpisodeID)
		}
		run = &EpisodeRun{EpisodeID: rec.EpisodeID, StartTime: now}
		s.episodes[rec.EpisodeID] = run
	}

	stored := *rec
	stored.Metrics = maps.Clone(rec.Metrics)
	run.Steps = append(run.Steps, stored)
	run.EndTime = &now
	return nil
}

// GetEpisode returns a copy of the episode history
func (s *MemoryStore) GetEpisode(_ context.Context, episodeID string) (*EpisodeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.episodes[episodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, episodeID)
	}
	return copyRun(run), nil
}

// ListEpisodes returns episodes in the order they were first saved
func (s *MemoryStore) ListEpisodes(_ context.Context, opts ListOptions) ([]*EpisodeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EpisodeRun
	skipped := 0
	for _, id := range s.order {
		run := s.episodes[id]
		if opts.SucceededOnly && !run.Succeeded() {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, copyRun(run))
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// DeleteEpisode removes an episode
func (s *MemoryStore) DeleteEpisode(_ context.Context, episodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.episodes[episodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, episodeID)
	}
	delete(s.episodes, episodeID)
	for i, id := range s.order {
		if id == episodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

func copyRun(run *EpisodeRun) *EpisodeRun {
	out := *run
	out.Steps = make([]StepRecord, len(run.Steps))
	for i, step := range run.Steps {
		out.Steps[i] = step
		out.Steps[i].Metrics = maps.Clone(step.Metrics)
	}
	if run.EndTime != nil {
		end := *run.EndTime
		out.EndTime = &end
	}
	return &out
}
