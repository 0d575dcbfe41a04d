package ports

import (
	"context"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// Geocoder turns a place name into a bounding box.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (domain.BoundingBox, error)
}

// TokenSource acquires a fresh access token from the portal.
type TokenSource interface {
	AcquireToken(ctx context.Context, portalURL string) (string, error)
}

// TileFetcher sends one tile request and returns the raw response body.
type TileFetcher interface {
	FetchTile(ctx context.Context, token string, req domain.TileRequest) ([]byte, error)
}

// PortalInspector reads the projection and layer catalogue from a portal.
type PortalInspector interface {
	Inspect(ctx context.Context, portalURL string) (string, error)
}

// EventPublisher publishes progress events to a message broker.
type EventPublisher interface {
	PublishTile(ctx context.Context, ev domain.TileEvent) error
	PublishPass(ctx context.Context, ev domain.PassEvent) error
	PublishRun(ctx context.Context, run *domain.Run) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
