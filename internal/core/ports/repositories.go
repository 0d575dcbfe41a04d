package ports

import (
	"context"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// SpatialStore performs the spatial-reference work the core delegates to the
// database.
type SpatialStore interface {
	// ProjectExtent reprojects a WGS 84 box into srid.
	ProjectExtent(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error)
}

// FeatureTx is the unit of work for a single feature. Everything done
// through it commits or rolls back together.
type FeatureTx interface {
	// EnsureColumn adds a nullable text column if it does not exist yet.
	EnsureColumn(ctx context.Context, column string) error
	// Insert writes one row; the geometry is WKT in sourceSRID.
	Insert(ctx context.Context, rec domain.DynamicRecord, sourceSRID int) error
}

// FeatureStore owns the per-layer feature tables.
type FeatureStore interface {
	// RecreateTable drops table if present and creates it with only id and geom.
	RecreateTable(ctx context.Context, table string) error
	// Columns lists the attribute columns table currently has.
	Columns(ctx context.Context, table string) ([]string, error)
	// WithinFeatureTx runs fn in a transaction on table.
	WithinFeatureTx(ctx context.Context, table string, fn func(tx FeatureTx) error) error
	// ReadFeatures returns every row of table in id order.
	ReadFeatures(ctx context.Context, table string) ([]domain.ExportRow, error)
}

// RunRepository persists per-target/layer progress.
type RunRepository interface {
	Upsert(ctx context.Context, run *domain.Run) error
	List(ctx context.Context) ([]domain.Run, error)
	ListByTarget(ctx context.Context, target string) ([]domain.Run, error)
}

// WorkListStore persists the work list between passes.
type WorkListStore interface {
	Exists() bool
	Load() (domain.WorkList, error)
	Save(w domain.WorkList) error
}

// TileStore is the download directory: write-once raw responses keyed by
// tile file name.
type TileStore interface {
	// Save writes body under tile's file name. It never overwrites.
	Save(tile domain.TileBounds, body []byte) error
	// Downloaded lists the file names present.
	Downloaded() (map[string]struct{}, error)
	// Files lists the stored file names in lexical order.
	Files() ([]string, error)
	// Read returns the content of a stored file.
	Read(name string) ([]byte, error)
	// WaitStable blocks until the file count stops changing.
	WaitStable(ctx context.Context) (int, error)
}

// Workspace resolves the per-target and per-layer artifacts on disk.
// target and layer are slugs.
type Workspace interface {
	WorkList(target, layer string) WorkListStore
	Tiles(target, layer string) TileStore

	SaveGrid(target string, grid domain.WorkList) error
	LoadGrid(target string) (domain.WorkList, error)
	SaveLayers(target string, layers []domain.Layer) error
	SaveToken(target, layer string, batch int, token string) error
	// WriteExport stores a GeoJSON document and returns its path. dedup
	// selects the deduplicated location.
	WriteExport(target, layer, table string, dedup bool, data []byte) (string, error)
}
