package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

var geometryTypeName = regexp.MustCompile(`^[A-Z]+$`)

// FeatureRepo implements ports.FeatureStore. Every feature table has an
// id serial, a geom column of the configured type in the storage SRID, and
// one nullable text column per attribute key.
type FeatureRepo struct {
	db           *DB
	storageSRID  int
	geometryType string
	geomExpr     string
}

// NewFeatureRepo creates a new FeatureRepo.
func NewFeatureRepo(db *DB, cfg config.IngestConfig) (*FeatureRepo, error) {
	gt := strings.ToUpper(strings.TrimSpace(cfg.GeometryType))
	if !geometryTypeName.MatchString(gt) {
		return nil, eris.Errorf("invalid geometry type %q", cfg.GeometryType)
	}
	expr := fmt.Sprintf("ST_Transform(ST_GeomFromText($1, $2::int), %d)", cfg.StorageSRID)
	if strings.HasPrefix(gt, "MULTI") {
		expr = "ST_Multi(" + expr + ")"
	}
	return &FeatureRepo{db: db, storageSRID: cfg.StorageSRID, geometryType: gt, geomExpr: expr}, nil
}

// RecreateTable drops table if present and creates it with only id and geom.
func (r *FeatureRepo) RecreateTable(ctx context.Context, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	_, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		DROP TABLE IF EXISTS %[1]s;
		CREATE TABLE %[1]s (
			id   SERIAL PRIMARY KEY,
			geom GEOMETRY(%[2]s, %[3]d)
		)`, ident, r.geometryType, r.storageSRID))
	if err != nil {
		return eris.Wrapf(err, "recreate %s", table)
	}
	return nil
}

// Columns lists the attribute columns of table in creation order.
func (r *FeatureRepo) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		  AND column_name NOT IN ('id', 'geom')
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, eris.Wrapf(err, "columns of %s", table)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "scan columns of %s", table)
	}
	return cols, nil
}

// WithinFeatureTx runs fn in one transaction; any error rolls back both the
// columns it added and the row it inserted.
func (r *FeatureRepo) WithinFeatureTx(ctx context.Context, table string, fn func(tx ports.FeatureTx) error) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		return fn(&featureTx{tx: tx, table: pgx.Identifier{table}.Sanitize(), geomExpr: r.geomExpr})
	})
}

// ReadFeatures returns every row in id order with the geometry as GeoJSON
// and all other columns as properties.
func (r *FeatureRepo) ReadFeatures(ctx context.Context, table string) ([]domain.ExportRow, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT to_jsonb(t) - 'geom' - 'id', ST_AsGeoJSON(t.geom)
		FROM %s t
		ORDER BY t.id
	`, pgx.Identifier{table}.Sanitize()))
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", table)
	}
	defer rows.Close()

	var out []domain.ExportRow
	for rows.Next() {
		var props []byte
		var geom *string
		if err := rows.Scan(&props, &geom); err != nil {
			return nil, eris.Wrap(err, "scan feature")
		}
		row := domain.ExportRow{Properties: map[string]any{}}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &row.Properties); err != nil {
				return nil, eris.Wrap(err, "decode properties")
			}
		}
		if geom != nil {
			row.Geometry = []byte(*geom)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type featureTx struct {
	tx       pgx.Tx
	table    string
	geomExpr string
}

// EnsureColumn adds column as nullable text. It is a no-op when the column
// already exists.
func (t *featureTx) EnsureColumn(ctx context.Context, column string) error {
	_, err := t.tx.Exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT",
		t.table, pgx.Identifier{column}.Sanitize()))
	return err
}

// Insert writes one row, reprojecting the geometry from sourceSRID.
func (t *featureTx) Insert(ctx context.Context, rec domain.DynamicRecord, sourceSRID int) error {
	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := []string{"geom"}
	vals := []string{t.geomExpr}
	args := []any{rec.WKT, sourceSRID}
	for _, k := range keys {
		args = append(args, rec.Attributes[k])
		cols = append(cols, pgx.Identifier{k}.Sanitize())
		vals = append(vals, fmt.Sprintf("$%d", len(args)))
	}

	_, err := t.tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.table, strings.Join(cols, ", "), strings.Join(vals, ", ")), args...)
	return err
}
