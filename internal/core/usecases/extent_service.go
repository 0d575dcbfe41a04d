package usecases

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
)

// ExtentService resolves a place to a bounding box and reprojects it.
type ExtentService struct {
	geocoder ports.Geocoder
	spatial  ports.SpatialStore
	cache    ports.CacheService
	cacheTTL time.Duration
}

// NewExtentService creates a new ExtentService. cache may be nil.
func NewExtentService(geocoder ports.Geocoder, spatial ports.SpatialStore, cache ports.CacheService, cacheTTL time.Duration) *ExtentService {
	return &ExtentService{geocoder: geocoder, spatial: spatial, cache: cache, cacheTTL: cacheTTL}
}

// Resolve geocodes place. Any failure is reported as ErrExtentResolution.
func (s *ExtentService) Resolve(ctx context.Context, place string) (domain.BoundingBox, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return domain.BoundingBox{}, eris.Wrap(domain.ErrExtentResolution, "empty place name")
	}

	// Try cache
	cacheKey := "geocode:" + strings.ToLower(place)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var box domain.BoundingBox
			if err := json.Unmarshal(data, &box); err == nil && box.Valid() {
				return box, nil
			}
		}
	}

	box, err := s.geocoder.Geocode(ctx, place)
	if err != nil {
		if eris.Is(err, domain.ErrExtentResolution) {
			return domain.BoundingBox{}, err
		}
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "geocode %q: %v", place, err)
	}
	if !box.Valid() {
		return domain.BoundingBox{}, eris.Wrapf(domain.ErrExtentResolution, "geocode %q returned degenerate box %s", place, box)
	}

	if s.cache != nil {
		if data, err := json.Marshal(box); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, int(s.cacheTTL/time.Second))
		}
	}

	slog.Info("extent resolved", "place", place, "bbox", box.String())
	return box, nil
}

// Project reprojects box into srid and rejects empty results.
func (s *ExtentService) Project(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
	if !box.Valid() {
		return domain.ProjectedExtent{}, eris.Wrapf(domain.ErrInvalidExtent, "bbox %s", box)
	}
	ext, err := s.spatial.ProjectExtent(ctx, box, srid)
	if err != nil {
		return domain.ProjectedExtent{}, eris.Wrapf(err, "project bbox to EPSG:%d", srid)
	}
	if !(ext.Width() > 0) || !(ext.Height() > 0) {
		return domain.ProjectedExtent{}, eris.Wrapf(domain.ErrInvalidExtent, "projected extent %+v", ext)
	}
	return ext, nil
}
