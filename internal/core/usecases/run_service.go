package usecases

import (
	"context"
	"encoding/json"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
)

// runCacheTTL is short because runs change every pass.
const runCacheTTL = 10

// RunService serves run bookkeeping to the status API.
type RunService struct {
	runs  ports.RunRepository
	cache ports.CacheService
}

// NewRunService creates a new RunService. cache may be nil.
func NewRunService(runs ports.RunRepository, cache ports.CacheService) *RunService {
	return &RunService{runs: runs, cache: cache}
}

// List returns every run, most recently updated first.
func (s *RunService) List(ctx context.Context) ([]domain.Run, error) {
	return s.cached(ctx, "runs:all", func() ([]domain.Run, error) {
		return s.runs.List(ctx)
	})
}

// ForTarget returns the runs of one target ordered by layer id.
func (s *RunService) ForTarget(ctx context.Context, target string) ([]domain.Run, error) {
	return s.cached(ctx, "runs:target:"+domain.Slugify(target), func() ([]domain.Run, error) {
		return s.runs.ListByTarget(ctx, target)
	})
}

func (s *RunService) cached(ctx context.Context, key string, load func() ([]domain.Run, error)) ([]domain.Run, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var runs []domain.Run
			if err := json.Unmarshal(data, &runs); err == nil {
				return runs, nil
			}
		}
	}

	runs, err := load()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(runs); err == nil {
			_ = s.cache.Set(ctx, key, data, runCacheTTL)
		}
	}
	return runs, nil
}

// Invalidate drops cached run lists touching target.
func (s *RunService) Invalidate(ctx context.Context, target string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, "runs:all"); err != nil {
		return err
	}
	return s.cache.Delete(ctx, "runs:target:"+domain.Slugify(target))
}
