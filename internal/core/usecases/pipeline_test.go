package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

// --- Mock RunRepository ---

type mockRuns struct {
	mu      sync.Mutex
	history []domain.Run
}

func (m *mockRuns) Upsert(ctx context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *run)
	return nil
}

func (m *mockRuns) List(ctx context.Context) ([]domain.Run, error) { return m.history, nil }

func (m *mockRuns) ListByTarget(ctx context.Context, target string) ([]domain.Run, error) {
	return m.history, nil
}

func (m *mockRuns) statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	for i, r := range m.history {
		out[i] = r.Status
	}
	return out
}

type pipelineFixture struct {
	geocoder *mockGeocoder
	fetcher  *mockFetcher
	ws       *memWorkspace
	store    *memFeatureStore
	runs     *mockRuns
	pipeline *usecases.Pipeline
}

func newPipelineFixture(page string, maxPasses int) *pipelineFixture {
	f := &pipelineFixture{
		geocoder: &mockGeocoder{
			geocodeFn: func(ctx context.Context, place string) (domain.BoundingBox, error) {
				return cassCounty, nil
			},
		},
		fetcher: &mockFetcher{
			fetchFn: func(ctx context.Context, token string, req domain.TileRequest) ([]byte, error) {
				return []byte(`{"d":[{"WktGeometry":"POLYGON((0 0,1 0,1 1,0 0))","TipHtml":"ZONE=A"}]}`), nil
			},
		},
		ws:    newMemWorkspace(),
		store: newMemFeatureStore(),
		runs:  &mockRuns{},
	}
	spatial := &mockSpatial{
		projectFn: func(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
			return domain.ProjectedExtent{XMax: 9000, YMax: 4500, SRID: srid}, nil
		},
	}
	cfg := testDownloadConfig()
	cfg.MaxPasses = maxPasses

	download := usecases.NewDownloadService(&mockTokens{}, f.fetcher, f.ws, nil, cfg)
	f.pipeline = usecases.NewPipeline(
		usecases.NewPortalService(&mockInspector{
			inspectFn: func(ctx context.Context, url string) (string, error) { return page, nil },
		}, "zoning"),
		usecases.NewExtentService(f.geocoder, spatial, nil, 0),
		usecases.NewGridService(defaultGridConfig()),
		download,
		usecases.NewIngestService(f.store, f.ws),
		usecases.NewExportService(f.store, f.ws),
		f.ws, f.runs, nil,
	)
	return f
}

func TestPipeline_RunTarget(t *testing.T) {
	f := newPipelineFixture(portalPage, 10)

	rep, err := f.pipeline.RunTarget(context.Background(), testTarget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.SRID != 3435 || len(rep.Layers) != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	for _, lr := range rep.Layers {
		if lr.Status != domain.RunStatusDone || lr.Ingest.Inserted != 162 || !lr.Seeded {
			t.Errorf("layer %s: %+v", lr.Layer.Name, lr)
		}
	}
	if len(f.ws.layers[testTarget.Slug()]) != 2 {
		t.Error("layer list not saved")
	}
	if len(f.ws.grids[testTarget.Slug()]) != 162 {
		t.Errorf("base grid has %d tiles, want 162", len(f.ws.grids[testTarget.Slug()]))
	}
	statuses := f.runs.statuses()
	if statuses[len(statuses)-1] != domain.RunStatusDone {
		t.Errorf("run history = %v", statuses)
	}
}

func TestPipeline_RunTarget_ReusesGrid(t *testing.T) {
	f := newPipelineFixture(portalPage, 10)
	if _, err := f.pipeline.RunTarget(context.Background(), testTarget); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.pipeline.RunTarget(context.Background(), testTarget); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.geocoder.calls != 1 {
		t.Errorf("expected the saved grid to be reused, geocoder called %d times", f.geocoder.calls)
	}
}

func TestPipeline_RunTarget_NoLayers(t *testing.T) {
	f := newPipelineFixture(`{"Projections":[{"SRID":3435}]}`, 10)

	_, err := f.pipeline.RunTarget(context.Background(), testTarget)
	if !eris.Is(err, domain.ErrNoLayers) {
		t.Fatalf("expected ErrNoLayers, got %v", err)
	}
	if f.geocoder.calls != 0 {
		t.Error("extent must not be resolved without layers")
	}
}

func TestPipeline_RunTarget_ExtentFailure(t *testing.T) {
	f := newPipelineFixture(portalPage, 10)
	f.geocoder.geocodeFn = func(ctx context.Context, place string) (domain.BoundingBox, error) {
		return domain.BoundingBox{}, errors.New("quota exceeded")
	}

	_, err := f.pipeline.RunTarget(context.Background(), testTarget)
	if !eris.Is(err, domain.ErrExtentResolution) {
		t.Fatalf("expected ErrExtentResolution, got %v", err)
	}
}

func TestPipeline_RunLayer_IncompleteStillIngests(t *testing.T) {
	f := newPipelineFixture(portalPage, 1)
	var mu sync.Mutex
	calls := 0
	f.fetcher.fetchFn = func(ctx context.Context, token string, req domain.TileRequest) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls%2 == 0 {
			return nil, errors.New("timeout")
		}
		return []byte(`{"d":[{"WktGeometry":"POLYGON((0 0,1 0,1 1,0 0))","TipHtml":"ZONE=A"}]}`), nil
	}

	info, err := f.pipeline.Prepare(context.Background(), testTarget)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	rep, err := f.pipeline.RunLayer(context.Background(), testTarget, info.Layers[0], info.SRID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Status != domain.RunStatusIncomplete || rep.Download.Missing != 81 {
		t.Errorf("got status %s with %d missing, want incomplete with 81", rep.Status, rep.Download.Missing)
	}
	if rep.Ingest.Inserted != 81 {
		t.Errorf("expected 81 ingested features, got %d", rep.Ingest.Inserted)
	}

	last := f.runs.history[len(f.runs.history)-1]
	if want := usecases.RetryBudgetError(81, 1).Error(); last.ErrorMessage != want {
		t.Errorf("recorded error %q, want %q", last.ErrorMessage, want)
	}
}
