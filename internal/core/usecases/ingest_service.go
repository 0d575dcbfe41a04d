package usecases

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/attributes"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/metrics"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
)

// IngestResult counts what happened to the features of one layer.
type IngestResult struct {
	Table        string `json:"table"`
	Files        int    `json:"files"`
	Malformed    int    `json:"malformed"`
	Inserted     int    `json:"inserted"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	ColumnsAdded int    `json:"columns_added"`
	// Columns is the table's attribute columns once ingestion finished.
	Columns []string `json:"columns"`
}

// IngestService loads downloaded tiles into a feature table whose columns
// grow as new attribute keys show up.
type IngestService struct {
	features  ports.FeatureStore
	workspace ports.Workspace
}

// NewIngestService creates a new IngestService.
func NewIngestService(features ports.FeatureStore, workspace ports.Workspace) *IngestService {
	return &IngestService{features: features, workspace: workspace}
}

// TableName returns the feature table for a target/layer pair.
func TableName(target domain.Target, layer domain.Layer) string {
	return domain.Slugify(target.Slug() + "_" + layer.Slug())
}

// Ingest recreates the layer's table and inserts every feature of every
// downloaded tile. sourceSRID is the projection of the tile geometries.
// Malformed files and failing features are logged and skipped; only errors
// that make the table unusable are returned.
func (s *IngestService) Ingest(ctx context.Context, target domain.Target, layer domain.Layer, sourceSRID int) (IngestResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanIngest)
	defer span.End()

	log := logging.ForLayer(target.Name, layer.ID, layer.Name)
	layerLabel := strconv.Itoa(layer.ID)
	table := TableName(target, layer)
	res := IngestResult{Table: table}
	span.SetAttributes(attribute.String("table", table))

	if err := s.features.RecreateTable(ctx, table); err != nil {
		return res, eris.Wrapf(err, "recreate table %s", table)
	}
	schema := domain.NewSchema(table)

	tiles := s.workspace.Tiles(target.Slug(), layer.Slug())
	files, err := tiles.Files()
	if err != nil {
		return res, eris.Wrap(err, "list tiles")
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Files++

		raw, err := tiles.Read(name)
		if err != nil {
			res.Malformed++
			log.Warn("read tile", "file", name, "error", err)
			continue
		}
		feats, err := attributes.DecodeTile(raw)
		if err != nil {
			res.Malformed++
			metrics.MalformedTiles.WithLabelValues(layerLabel).Inc()
			log.Warn("malformed tile left in place", "file", name,
				"error", eris.Wrap(domain.ErrMalformedTilePayload, err.Error()))
			continue
		}

		for i, f := range feats {
			rec, err := toRecord(f)
			if err != nil {
				res.Skipped++
				metrics.FeaturesIngested.WithLabelValues(layerLabel, "skipped").Inc()
				log.Warn("feature skipped", "file", name, "feature", i, "error", err)
				continue
			}

			added, err := s.insert(ctx, schema, rec, sourceSRID)
			if err != nil {
				res.Failed++
				metrics.FeaturesIngested.WithLabelValues(layerLabel, "failure").Inc()
				log.Warn("feature rolled back", "file", name, "feature", i, "error", err)
				continue
			}
			res.Inserted++
			res.ColumnsAdded += added
			metrics.FeaturesIngested.WithLabelValues(layerLabel, "success").Inc()
			if added > 0 {
				metrics.ColumnsAdded.WithLabelValues(layerLabel).Add(float64(added))
			}
		}
	}

	cols, err := s.features.Columns(ctx, table)
	if err != nil {
		log.Warn("list table columns", "table", table, "error", err)
	} else {
		res.Columns = cols
	}

	log.Info("ingestion finished", "table", table, "files", res.Files, "inserted", res.Inserted,
		"skipped", res.Skipped, "failed", res.Failed, "malformed", res.Malformed,
		"columns", schema.Columns(), "schema", res.Columns)
	return res, nil
}

// insert widens the table for rec's unknown keys and inserts it in one
// transaction. The schema only learns the new columns once it commits.
func (s *IngestService) insert(ctx context.Context, schema *domain.Schema, rec domain.DynamicRecord, sourceSRID int) (int, error) {
	var newCols []string
	for key := range rec.Attributes {
		if !schema.Has(key) {
			newCols = append(newCols, key)
		}
	}
	sort.Strings(newCols)

	err := s.features.WithinFeatureTx(ctx, schema.Table, func(tx ports.FeatureTx) error {
		for _, col := range newCols {
			if err := tx.EnsureColumn(ctx, col); err != nil {
				return eris.Wrapf(domain.ErrSchemaWiden, "column %q: %v", col, err)
			}
		}
		if err := tx.Insert(ctx, rec, sourceSRID); err != nil {
			return eris.Wrapf(domain.ErrInsert, "%v", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, col := range newCols {
		schema.Add(col)
	}
	return len(newCols), nil
}

// toRecord validates a feature's geometry and extracts its attributes.
func toRecord(f attributes.Feature) (domain.DynamicRecord, error) {
	geom := strings.TrimSpace(f.WktGeometry)
	if geom == "" {
		return domain.DynamicRecord{}, domain.ErrMissingGeometry
	}
	if _, err := wkt.Unmarshal(geom); err != nil {
		return domain.DynamicRecord{}, eris.Wrapf(domain.ErrMissingGeometry, "unparseable WKT: %v", err)
	}
	attrs := f.Attributes()
	if attrs == nil {
		attrs = map[string]*string{}
	}
	return domain.DynamicRecord{WKT: geom, Attributes: attrs}, nil
}
