package postgres

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// SpatialRepo implements ports.SpatialStore with PostGIS.
type SpatialRepo struct {
	db *DB
}

// NewSpatialRepo creates a new SpatialRepo.
func NewSpatialRepo(db *DB) *SpatialRepo {
	return &SpatialRepo{db: db}
}

// ProjectExtent transforms the WGS 84 envelope into srid and returns the
// bounds of the result.
func (r *SpatialRepo) ProjectExtent(ctx context.Context, box domain.BoundingBox, srid int) (domain.ProjectedExtent, error) {
	ext := domain.ProjectedExtent{SRID: srid}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT ST_XMin(e), ST_XMax(e), ST_YMin(e), ST_YMax(e)
		FROM (SELECT ST_Transform(ST_MakeEnvelope($1, $2, $3, $4, 4326), $5::int) AS e) s
	`, box.West, box.South, box.East, box.North, srid).Scan(&ext.XMin, &ext.XMax, &ext.YMin, &ext.YMax)
	if err != nil {
		return domain.ProjectedExtent{}, eris.Wrapf(err, "transform %s to EPSG:%d", box, srid)
	}
	return ext, nil
}
