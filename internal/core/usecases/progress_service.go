package usecases

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
)

// progressTTL keeps live progress around for a day after the last pass.
const progressTTL = 24 * 60 * 60

// ProgressService keeps the latest reconciliation event of every layer so
// the status API can show live download progress.
type ProgressService struct {
	cache ports.CacheService
}

// NewProgressService creates a new ProgressService.
func NewProgressService(cache ports.CacheService) *ProgressService {
	return &ProgressService{cache: cache}
}

func progressKey(target string, layerID int) string {
	return "progress:" + domain.Slugify(target) + ":" + strconv.Itoa(layerID)
}

// Record stores ev as the layer's latest progress.
func (s *ProgressService) Record(ctx context.Context, ev domain.PassEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "marshal pass event")
	}
	return s.cache.Set(ctx, progressKey(ev.Target, ev.LayerID), data, progressTTL)
}

// ForTarget returns the latest progress of each layer of target, ordered by
// layer id.
func (s *ProgressService) ForTarget(ctx context.Context, target string) ([]domain.PassEvent, error) {
	keys, err := s.cache.Keys(ctx, "progress:"+domain.Slugify(target)+":*")
	if err != nil {
		return nil, err
	}
	out := make([]domain.PassEvent, 0, len(keys))
	for _, k := range keys {
		data, err := s.cache.Get(ctx, k)
		if err != nil {
			continue // expired between scan and get
		}
		var ev domain.PassEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LayerID < out[j].LayerID })
	return out, nil
}
