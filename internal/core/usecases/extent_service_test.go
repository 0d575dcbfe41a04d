package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

var cassCounty = domain.BoundingBox{South: 39.7, North: 40.2, West: -90.6, East: -90.1}

func TestExtentService_Resolve_CachesResult(t *testing.T) {
	geo := &mockGeocoder{
		geocodeFn: func(ctx context.Context, place string) (domain.BoundingBox, error) {
			if place != "Cass County IL" {
				t.Errorf("unexpected place %q", place)
			}
			return cassCounty, nil
		},
	}
	cache := newMockCache()
	svc := usecases.NewExtentService(geo, &mockSpatial{}, cache, time.Hour)

	for i := 0; i < 2; i++ {
		box, err := svc.Resolve(context.Background(), " Cass County IL ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if box != cassCounty {
			t.Errorf("got %v, want %v", box, cassCounty)
		}
	}
	if geo.calls != 1 {
		t.Errorf("expected 1 geocoder call, got %d", geo.calls)
	}
	if _, err := cache.Get(context.Background(), "geocode:cass county il"); err != nil {
		t.Errorf("expected cached entry: %v", err)
	}
}

func TestExtentService_Resolve_WrapsFailure(t *testing.T) {
	geo := &mockGeocoder{
		geocodeFn: func(ctx context.Context, place string) (domain.BoundingBox, error) {
			return domain.BoundingBox{}, errors.New("connection refused")
		},
	}
	svc := usecases.NewExtentService(geo, &mockSpatial{}, nil, 0)

	_, err := svc.Resolve(context.Background(), "Nowhere")
	if !eris.Is(err, domain.ErrExtentResolution) {
		t.Errorf("expected ErrExtentResolution, got %v", err)
	}
}

func TestExtentService_Resolve_DegenerateBox(t *testing.T) {
	geo := &mockGeocoder{
		geocodeFn: func(ctx context.Context, place string) (domain.BoundingBox, error) {
			return domain.BoundingBox{South: 1, North: 1, West: 0, East: 1}, nil
		},
	}
	svc := usecases.NewExtentService(geo, &mockSpatial{}, nil, 0)

	if _, err := svc.Resolve(context.Background(), "Flatland"); !eris.Is(err, domain.ErrExtentResolution) {
		t.Errorf("expected ErrExtentResolution, got %v", err)
	}
}

func TestExtentService_Resolve_EmptyPlace(t *testing.T) {
	geo := &mockGeocoder{}
	svc := usecases.NewExtentService(geo, &mockSpatial{}, nil, 0)
	if _, err := svc.Resolve(context.Background(), "  "); err == nil {
		t.Error("expected error for empty place")
	}
	if geo.calls != 0 {
		t.Error("geocoder should not be called")
	}
}

func TestExtentService_Project(t *testing.T) {
	spatial := &mockSpatial{
		projectFn: func(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
			if srid != 3435 {
				t.Errorf("expected srid 3435, got %d", srid)
			}
			return domain.ProjectedExtent{XMin: 100, XMax: 9100, YMin: 50, YMax: 4550, SRID: srid}, nil
		},
	}
	svc := usecases.NewExtentService(&mockGeocoder{}, spatial, nil, 0)

	ext, err := svc.Project(context.Background(), cassCounty, 3435)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.Width() != 9000 || ext.Height() != 4500 {
		t.Errorf("got %vx%v, want 9000x4500", ext.Width(), ext.Height())
	}
}

func TestExtentService_Project_RejectsEmptyExtent(t *testing.T) {
	spatial := &mockSpatial{
		projectFn: func(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
			return domain.ProjectedExtent{XMin: 5, XMax: 5, YMin: 0, YMax: 1}, nil
		},
	}
	svc := usecases.NewExtentService(&mockGeocoder{}, spatial, nil, 0)
	if _, err := svc.Project(context.Background(), cassCounty, 3435); !eris.Is(err, domain.ErrInvalidExtent) {
		t.Errorf("expected ErrInvalidExtent, got %v", err)
	}
}
