package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Target is one portal to scrape, e.g. a county's Beacon application.
type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Slug returns the lowercase, underscore-separated target name used for
// directories and table prefixes.
func (t Target) Slug() string {
	return Slugify(t.Name)
}

// Layer is a vector layer advertised by the portal.
type Layer struct {
	ID   int    `json:"LayerId"`
	Name string `json:"LayerName"`
}

// Slug returns the layer name and id in directory/table form. The id keeps
// layers whose names normalize alike apart.
func (l Layer) Slug() string {
	return Slugify(l.Name + "_" + strconv.Itoa(l.ID))
}

// PortalInfo is the metadata scraped from a portal's landing page.
type PortalInfo struct {
	SRID   int     `json:"srid"`
	Layers []Layer `json:"layers"`
}

// TileRequest is the JSON body the vector-layer endpoint expects.
type TileRequest struct {
	LayerID         int        `json:"layerId"`
	UseSelection    bool       `json:"useSelection"`
	SpatialRelation int        `json:"spatialRelation"`
	FeatureLimit    int        `json:"featureLimit"`
	WKT             *string    `json:"wkt"`
	Ext             TileBounds `json:"ext"`
}

// NewTileRequest builds the request body for one tile.
func NewTileRequest(layerID, featureLimit int, tile TileBounds) TileRequest {
	return TileRequest{
		LayerID:         layerID,
		UseSelection:    false,
		SpatialRelation: 1,
		FeatureLimit:    featureLimit,
		Ext:             tile,
	}
}

// DynamicRecord is one parsed feature: a WKT geometry plus attributes whose
// keys are only known at ingestion time. A nil value is a SQL NULL.
type DynamicRecord struct {
	WKT        string
	Attributes map[string]*string
}

// Schema tracks which attribute columns a feature table already has.
// Columns are only ever added.
type Schema struct {
	Table   string
	columns map[string]struct{}
}

// NewSchema returns an empty schema for table.
func NewSchema(table string) *Schema {
	return &Schema{Table: table, columns: make(map[string]struct{})}
}

// Has reports whether column is known.
func (s *Schema) Has(column string) bool {
	_, ok := s.columns[column]
	return ok
}

// Add records column as present.
func (s *Schema) Add(column string) {
	s.columns[column] = struct{}{}
}

// Columns returns the number of known attribute columns.
func (s *Schema) Columns() int {
	return len(s.columns)
}

// ExportRow is one feature-table row read back for export. Geometry is the
// GeoJSON rendering of the geometry column, nil when the column is NULL.
type ExportRow struct {
	Geometry   []byte
	Properties map[string]any
}

// RunStatus values recorded per target/layer.
const (
	RunStatusPending     = "pending"
	RunStatusDownloading = "downloading"
	RunStatusIngesting   = "ingesting"
	RunStatusExporting   = "exporting"
	RunStatusDone        = "done"
	RunStatusIncomplete  = "incomplete"
	RunStatusFailed      = "failed"
)

// Run is the bookkeeping row for one target/layer.
type Run struct {
	Target       string    `json:"target"`
	LayerID      int       `json:"layer_id"`
	LayerName    string    `json:"layer_name"`
	Status       string    `json:"status"`
	Missing      int       `json:"missing"`
	Passes       int       `json:"passes"`
	Features     int       `json:"features"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TileEvent is published after each tile fetch attempt.
type TileEvent struct {
	Target  string `json:"target"`
	LayerID int    `json:"layer_id"`
	Tile    string `json:"tile"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// PassEvent is published after each reconciliation.
type PassEvent struct {
	Target  string `json:"target"`
	LayerID int    `json:"layer_id"`
	Pass    int    `json:"pass"`
	Total   int    `json:"total"`
	Missing int    `json:"missing"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9_]+`)

// Slugify lowercases s and collapses everything outside [a-z0-9_] into
// single underscores.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
