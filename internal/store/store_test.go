package store

import (
	"context"
	"errors"
	"testing"
)

func testSaveAndGet(t *testing.T, s Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &StepRecord{EpisodeID: "ep-1", Step: i, TotalReward: 1.5, Metrics: map[string]float64{"node_idx": float64(i)}}
		if err := s.SaveStep(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	run, err := s.GetEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(run.Steps))
	}
	if run.Return() != 4.5 {
		t.Errorf("expected return 4.5, got %v", run.Return())
	}
	if run.EndTime == nil {
		t.Error("EndTime should be set")
	}

	// Returned runs are copies
	run.Steps[0].Metrics["node_idx"] = 42
	again, _ := s.GetEpisode(ctx, "ep-1")
	if again.Steps[0].Metrics["node_idx"] != 0 {
		t.Error("store should not share metric maps with callers")
	}
}

func testStepOrdering(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.SaveStep(ctx, &StepRecord{EpisodeID: "ep-1", Step: 1}); err == nil {
		t.Error("expected error when the first step is not 0")
	}
	if _, err := s.GetEpisode(ctx, "ep-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected step must not create the episode, got %v", err)
	}
	if runs, _ := s.ListEpisodes(ctx, ListOptions{}); len(runs) != 0 {
		t.Errorf("expected no listed episodes after a rejected step, got %d", len(runs))
	}
	if err := s.SaveStep(ctx, &StepRecord{EpisodeID: "ep-1", Step: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveStep(ctx, &StepRecord{EpisodeID: "ep-1", Step: 2}); err == nil {
		t.Error("expected error for a gap in steps")
	}

	// A new step 0 restarts the episode
	if err := s.SaveStep(ctx, &StepRecord{EpisodeID: "ep-1", Step: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveStep(ctx, &StepRecord{EpisodeID: "ep-1", Step: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, _ := s.GetEpisode(ctx, "ep-1")
	if len(run.Steps) != 1 {
		t.Errorf("expected restarted episode with 1 step, got %d", len(run.Steps))
	}
	if err := s.SaveStep(ctx, nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func testListAndDelete(t *testing.T, s Store) {
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = s.SaveStep(ctx, &StepRecord{EpisodeID: id, Step: 0, Success: id != "b"})
	}

	all, _ := s.ListEpisodes(ctx, ListOptions{})
	if len(all) != 3 || all[0].EpisodeID != "a" || all[2].EpisodeID != "c" {
		t.Fatalf("unexpected listing: %+v", all)
	}

	succeeded, _ := s.ListEpisodes(ctx, ListOptions{SucceededOnly: true})
	if len(succeeded) != 2 {
		t.Errorf("expected 2 succeeded episodes, got %d", len(succeeded))
	}

	page, _ := s.ListEpisodes(ctx, ListOptions{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].EpisodeID != "b" {
		t.Errorf("unexpected page: %+v", page)
	}

	if err := s.DeleteEpisode(ctx, "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetEpisode(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteEpisode(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}
