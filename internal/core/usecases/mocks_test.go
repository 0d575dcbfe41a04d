package usecases_test

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
)

// --- Mock Geocoder ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, place string) (domain.BoundingBox, error)
	calls     int
}

func (m *mockGeocoder) Geocode(ctx context.Context, place string) (domain.BoundingBox, error) {
	m.calls++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, place)
	}
	return domain.BoundingBox{}, domain.ErrExtentResolution
}

// --- Mock SpatialStore ---

type mockSpatial struct {
	projectFn func(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error)
}

func (m *mockSpatial) ProjectExtent(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
	if m.projectFn != nil {
		return m.projectFn(ctx, box, srid)
	}
	return domain.ProjectedExtent{}, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, eris.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Mock TokenSource ---

type mockTokens struct {
	mu        sync.Mutex
	acquireFn func(ctx context.Context, url string, call int) (string, error)
	calls     int
}

func (m *mockTokens) AcquireToken(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	if m.acquireFn != nil {
		return m.acquireFn(ctx, url, call)
	}
	return "token", nil
}

// --- Mock TileFetcher ---

type mockFetcher struct {
	fetchFn func(ctx context.Context, token string, req domain.TileRequest) ([]byte, error)
}

func (m *mockFetcher) FetchTile(ctx context.Context, token string, req domain.TileRequest) ([]byte, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, token, req)
	}
	return []byte(`{"d":[]}`), nil
}

// --- Mock EventPublisher ---

type mockEvents struct {
	mu     sync.Mutex
	tiles  []domain.TileEvent
	passes []domain.PassEvent
	runs   []domain.Run
}

func (m *mockEvents) PublishTile(ctx context.Context, ev domain.TileEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles = append(m.tiles, ev)
	return nil
}

func (m *mockEvents) PublishPass(ctx context.Context, ev domain.PassEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, ev)
	return nil
}

func (m *mockEvents) PublishRun(ctx context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

// --- In-memory Workspace ---

type memWorkList struct {
	list   domain.WorkList
	exists bool
	saves  int
}

func (m *memWorkList) Exists() bool { return m.exists }

func (m *memWorkList) Load() (domain.WorkList, error) {
	if !m.exists {
		return nil, eris.New("work list not found")
	}
	return append(domain.WorkList(nil), m.list...), nil
}

func (m *memWorkList) Save(w domain.WorkList) error {
	m.list = append(domain.WorkList(nil), w...)
	m.exists = true
	m.saves++
	return nil
}

type memTiles struct {
	mu    sync.Mutex
	files map[string][]byte
	polls int
}

func newMemTiles() *memTiles { return &memTiles{files: make(map[string][]byte)} }

func (m *memTiles) Save(tile domain.TileBounds, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[tile.FileName()]; ok {
		return nil
	}
	m.files[tile.FileName()] = body
	return nil
}

func (m *memTiles) put(name string, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = []byte(body)
}

func (m *memTiles) Downloaded() (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.files))
	for name := range m.files {
		out[name] = struct{}{}
	}
	return out, nil
}

func (m *memTiles) Files() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTiles) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.files[name]
	if !ok {
		return nil, eris.Errorf("no such tile %s", name)
	}
	return body, nil
}

func (m *memTiles) WaitStable(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	return len(m.files), nil
}

type export struct {
	table string
	dedup bool
	data  []byte
}

type memWorkspace struct {
	mu        sync.Mutex
	worklists map[string]*memWorkList
	tiles     map[string]*memTiles
	grids     map[string]domain.WorkList
	layers    map[string][]domain.Layer
	tokens    map[string]string
	exports   []export
}

func newMemWorkspace() *memWorkspace {
	return &memWorkspace{
		worklists: make(map[string]*memWorkList),
		tiles:     make(map[string]*memTiles),
		grids:     make(map[string]domain.WorkList),
		layers:    make(map[string][]domain.Layer),
		tokens:    make(map[string]string),
	}
}

func (m *memWorkspace) WorkList(target, layer string) ports.WorkListStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := target + "/" + layer
	if _, ok := m.worklists[key]; !ok {
		m.worklists[key] = &memWorkList{}
	}
	return m.worklists[key]
}

func (m *memWorkspace) Tiles(target, layer string) ports.TileStore {
	return m.tileStore(target, layer)
}

func (m *memWorkspace) tileStore(target, layer string) *memTiles {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := target + "/" + layer
	if _, ok := m.tiles[key]; !ok {
		m.tiles[key] = newMemTiles()
	}
	return m.tiles[key]
}

func (m *memWorkspace) SaveGrid(target string, grid domain.WorkList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grids[target] = grid
	return nil
}

func (m *memWorkspace) LoadGrid(target string) (domain.WorkList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grids[target]
	if !ok {
		return nil, eris.New("grid not found")
	}
	return g, nil
}

func (m *memWorkspace) SaveLayers(target string, layers []domain.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[target] = layers
	return nil
}

func (m *memWorkspace) SaveToken(target, layer string, batch int, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[target+"/"+layer+"/"+strconv.Itoa(batch)] = token
	return nil
}

func (m *memWorkspace) WriteExport(target, layer, table string, dedup bool, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, export{table: table, dedup: dedup, data: data})
	return target + "/" + layer + "/" + table + ".geojson", nil
}
