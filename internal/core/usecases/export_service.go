package usecases

import (
	"context"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/metrics"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
)

// ExportResult describes the two GeoJSON documents written for a layer.
type ExportResult struct {
	FullPath        string `json:"full_path"`
	DedupPath       string `json:"dedup_path"`
	Rows            int    `json:"rows"`
	NullGeometry    int    `json:"null_geometry"`
	Exported        int    `json:"exported"`
	Duplicates      int    `json:"duplicates"`
	EmptyProperties int    `json:"empty_properties"`
}

// ExportService reads a feature table back and writes it as GeoJSON, once
// in full and once without duplicate geometries.
type ExportService struct {
	features  ports.FeatureStore
	workspace ports.Workspace
}

// NewExportService creates a new ExportService.
func NewExportService(features ports.FeatureStore, workspace ports.Workspace) *ExportService {
	return &ExportService{features: features, workspace: workspace}
}

// Export writes the layer's table to the full and deduplicated locations.
func (s *ExportService) Export(ctx context.Context, target domain.Target, layer domain.Layer) (ExportResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanExport)
	defer span.End()

	log := logging.ForLayer(target.Name, layer.ID, layer.Name)
	layerLabel := strconv.Itoa(layer.ID)
	table := TableName(target, layer)
	span.SetAttributes(attribute.String("table", table))

	rows, err := s.features.ReadFeatures(ctx, table)
	if err != nil {
		return ExportResult{}, eris.Wrapf(err, "read %s", table)
	}
	res := ExportResult{Rows: len(rows)}

	full := geojson.NewFeatureCollection()
	for i, row := range rows {
		if len(row.Geometry) == 0 {
			res.NullGeometry++
			log.Warn("row without geometry skipped", "row", i)
			continue
		}
		g, err := geojson.UnmarshalGeometry(row.Geometry)
		if err != nil || g.Geometry() == nil {
			res.NullGeometry++
			log.Warn("row with unreadable geometry skipped", "row", i, "error", err)
			continue
		}
		f := geojson.NewFeature(g.Geometry())
		if row.Properties != nil {
			f.Properties = row.Properties
		}
		full.Append(f)
	}

	if res.FullPath, err = s.write(target, layer, table, false, full); err != nil {
		return res, err
	}

	deduped := geojson.NewFeatureCollection()
	deduped.Features, res.Duplicates = DedupeFeatures(full.Features)
	res.Exported = len(deduped.Features)
	if res.DedupPath, err = s.write(target, layer, table, true, deduped); err != nil {
		return res, err
	}

	for _, f := range deduped.Features {
		if emptyProperties(f.Properties) {
			res.EmptyProperties++
		}
	}

	metrics.FeaturesExported.WithLabelValues(layerLabel).Add(float64(res.Exported))
	metrics.DuplicatesRemoved.WithLabelValues(layerLabel).Add(float64(res.Duplicates))
	metrics.EmptyProperties.WithLabelValues(layerLabel).Add(float64(res.EmptyProperties))
	if res.EmptyProperties > 0 {
		log.Warn("features with empty properties", "count", res.EmptyProperties)
	}
	log.Info("export finished", "rows", res.Rows, "exported", res.Exported,
		"duplicates", res.Duplicates, "path", res.DedupPath)
	return res, nil
}

func (s *ExportService) write(target domain.Target, layer domain.Layer, table string, dedup bool, fc *geojson.FeatureCollection) (string, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", eris.Wrap(err, "marshal feature collection")
	}
	path, err := s.workspace.WriteExport(target.Slug(), layer.Slug(), table, dedup, data)
	if err != nil {
		return "", eris.Wrapf(err, "write export for %s", table)
	}
	return path, nil
}

// DedupeFeatures keeps the first feature for each distinct geometry, in
// input order, and reports how many were dropped. Geometries are compared
// by their canonical GeoJSON encoding. Features without geometry are dropped
// and counted.
func DedupeFeatures(features []*geojson.Feature) ([]*geojson.Feature, int) {
	seen := make(map[string]struct{}, len(features))
	out := make([]*geojson.Feature, 0, len(features))
	dropped := 0
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			dropped++
			continue
		}
		key, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[string(key)]; dup {
			dropped++
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, f)
	}
	return out, dropped
}

func emptyProperties(p geojson.Properties) bool {
	for _, v := range p {
		switch val := v.(type) {
		case nil:
		case string:
			if val != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
