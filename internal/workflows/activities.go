package workflows

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

// ScrapeActivities exposes the pipeline steps as Temporal activities. Each
// step is idempotent over the workspace, so a retried activity resumes
// rather than repeats work.
type ScrapeActivities struct {
	Pipeline *usecases.Pipeline
	Download *usecases.DownloadService
	Ingest   *usecases.IngestService
	Export   *usecases.ExportService
}

// Prepare inspects the portal and ensures the target's base grid.
func (a *ScrapeActivities) Prepare(ctx context.Context, target domain.Target) (domain.PortalInfo, error) {
	return a.Pipeline.Prepare(ctx, target)
}

// SeedLayer creates the layer's work list from the base grid if needed.
func (a *ScrapeActivities) SeedLayer(ctx context.Context, target domain.Target, layer domain.Layer) (bool, error) {
	return a.Pipeline.SeedLayer(ctx, target, layer)
}

// Reconcile trims the work list to what is still missing. pass 0 is the
// check made before any download.
func (a *ScrapeActivities) Reconcile(ctx context.Context, target domain.Target, layer domain.Layer, pass int) (int, error) {
	if pass == 0 {
		return a.Download.Reconcile(ctx, target, layer)
	}
	return a.Download.ReconcilePass(ctx, target, layer, pass)
}

// DownloadPass runs one pass over the current work list.
func (a *ScrapeActivities) DownloadPass(ctx context.Context, target domain.Target, layer domain.Layer) (usecases.PassStats, error) {
	activity.GetLogger(ctx).Info("download pass", "target", target.Name, "layer", layer.Name)
	return a.Download.NextPass(ctx, target, layer)
}

// IngestLayer loads the downloaded tiles into the layer's table.
func (a *ScrapeActivities) IngestLayer(ctx context.Context, target domain.Target, layer domain.Layer, srid int) (usecases.IngestResult, error) {
	return a.Ingest.Ingest(ctx, target, layer, srid)
}

// ExportLayer writes the layer's GeoJSON exports.
func (a *ScrapeActivities) ExportLayer(ctx context.Context, target domain.Target, layer domain.Layer) (usecases.ExportResult, error) {
	return a.Export.Export(ctx, target, layer)
}

// RecordRun stores and publishes run.
func (a *ScrapeActivities) RecordRun(ctx context.Context, run domain.Run) error {
	a.Pipeline.Record(ctx, &run)
	return nil
}
