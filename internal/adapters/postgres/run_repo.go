package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// RunRepo implements ports.RunRepository on the scrape_runs table.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Upsert inserts or updates the row for run's target and layer.
func (r *RunRepo) Upsert(ctx context.Context, run *domain.Run) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO scrape_runs (target, layer_id, layer_name, status, missing, passes, features, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (target, layer_id) DO UPDATE
		SET layer_name = EXCLUDED.layer_name, status = EXCLUDED.status,
		    missing = EXCLUDED.missing, passes = EXCLUDED.passes,
		    features = EXCLUDED.features, error_message = EXCLUDED.error_message,
		    updated_at = EXCLUDED.updated_at
	`, run.Target, run.LayerID, run.LayerName, run.Status, run.Missing, run.Passes,
		run.Features, run.ErrorMessage, run.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "upsert run %s/%d", run.Target, run.LayerID)
	}
	return nil
}

const runColumns = `target, layer_id, layer_name, status, missing, passes, features,
	COALESCE(error_message, '') AS error_message, updated_at`

// List returns every run, most recently updated first.
func (r *RunRepo) List(ctx context.Context) ([]domain.Run, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+runColumns+` FROM scrape_runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "list runs")
	}
	return collectRuns(rows)
}

// ListByTarget returns the runs of one target in layer order.
func (r *RunRepo) ListByTarget(ctx context.Context, target string) ([]domain.Run, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE target = $1 ORDER BY layer_id`, target)
	if err != nil {
		return nil, eris.Wrapf(err, "list runs of %s", target)
	}
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Run, error) {
		var run domain.Run
		err := row.Scan(&run.Target, &run.LayerID, &run.LayerName, &run.Status, &run.Missing,
			&run.Passes, &run.Features, &run.ErrorMessage, &run.UpdatedAt)
		return run, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "scan runs")
	}
	return runs, nil
}
