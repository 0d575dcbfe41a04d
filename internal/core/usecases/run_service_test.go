package usecases_test

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

type countingRuns struct {
	runs     []domain.Run
	err      error
	listHits int
	byTarget []string
}

func (m *countingRuns) Upsert(ctx context.Context, run *domain.Run) error { return nil }

func (m *countingRuns) List(ctx context.Context) ([]domain.Run, error) {
	m.listHits++
	return m.runs, m.err
}

func (m *countingRuns) ListByTarget(ctx context.Context, target string) ([]domain.Run, error) {
	m.byTarget = append(m.byTarget, target)
	return m.runs, m.err
}

func TestRunService_ListCachesResult(t *testing.T) {
	repo := &countingRuns{runs: []domain.Run{{Target: "Scott County", LayerID: 7, Status: domain.RunStatusDone}}}
	svc := usecases.NewRunService(repo, newMockCache())

	for i := 0; i < 2; i++ {
		runs, err := svc.List(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 1 || runs[0].LayerID != 7 {
			t.Fatalf("runs = %+v", runs)
		}
	}
	if repo.listHits != 1 {
		t.Errorf("repository hit %d times, want 1", repo.listHits)
	}
}

func TestRunService_NoCache(t *testing.T) {
	repo := &countingRuns{}
	svc := usecases.NewRunService(repo, nil)

	_, _ = svc.List(context.Background())
	_, _ = svc.List(context.Background())
	if repo.listHits != 2 {
		t.Errorf("repository hit %d times, want 2", repo.listHits)
	}
}

func TestRunService_ForTargetPassesName(t *testing.T) {
	repo := &countingRuns{}
	svc := usecases.NewRunService(repo, newMockCache())

	if _, err := svc.ForTarget(context.Background(), "Scott County"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.byTarget) != 1 || repo.byTarget[0] != "Scott County" {
		t.Errorf("ListByTarget calls = %v", repo.byTarget)
	}
}

func TestRunService_ErrorNotCached(t *testing.T) {
	cache := newMockCache()
	repo := &countingRuns{err: eris.New("db down")}
	svc := usecases.NewRunService(repo, cache)

	if _, err := svc.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := cache.Get(context.Background(), "runs:all"); err == nil {
		t.Error("error result must not be cached")
	}
}

func TestRunService_InvalidateDropsCachedLists(t *testing.T) {
	repo := &countingRuns{runs: []domain.Run{{Target: "Scott County", LayerID: 7}}}
	svc := usecases.NewRunService(repo, newMockCache())
	ctx := context.Background()

	_, _ = svc.List(ctx)
	if err := svc.Invalidate(ctx, "Scott County"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = svc.List(ctx)
	if repo.listHits != 2 {
		t.Errorf("repository hit %d times, want 2 after invalidation", repo.listHits)
	}
}
