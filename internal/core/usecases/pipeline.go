package usecases

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
)

// LayerReport is the outcome of one layer.
type LayerReport struct {
	Layer    domain.Layer `json:"layer"`
	Seeded   bool         `json:"seeded"`
	Download LoopResult   `json:"download"`
	Ingest   IngestResult `json:"ingest"`
	Export   ExportResult `json:"export"`
	Status   string       `json:"status"`
}

// TargetReport is the outcome of one target.
type TargetReport struct {
	Target domain.Target `json:"target"`
	SRID   int           `json:"srid"`
	Layers []LayerReport `json:"layers"`
}

// Pipeline runs the whole scrape for a target: portal inspection, extent
// and grid, then download, ingestion and export for each layer.
type Pipeline struct {
	portal    *PortalService
	extent    *ExtentService
	grid      *GridService
	download  *DownloadService
	ingest    *IngestService
	export    *ExportService
	workspace ports.Workspace
	runs      ports.RunRepository
	events    ports.EventPublisher
}

// NewPipeline creates a new Pipeline. runs and events may be nil.
func NewPipeline(
	portal *PortalService,
	extent *ExtentService,
	grid *GridService,
	download *DownloadService,
	ingest *IngestService,
	export *ExportService,
	workspace ports.Workspace,
	runs ports.RunRepository,
	events ports.EventPublisher,
) *Pipeline {
	return &Pipeline{
		portal:    portal,
		extent:    extent,
		grid:      grid,
		download:  download,
		ingest:    ingest,
		export:    export,
		workspace: workspace,
		runs:      runs,
		events:    events,
	}
}

// Prepare inspects the portal and makes sure the target's base grid exists.
// A grid saved by an earlier run is reused as is.
func (p *Pipeline) Prepare(ctx context.Context, target domain.Target) (domain.PortalInfo, error) {
	info, err := p.portal.Discover(ctx, target.URL)
	if err != nil {
		return info, err
	}
	if err := p.workspace.SaveLayers(target.Slug(), info.Layers); err != nil {
		slog.Warn("save layer list", "target", target.Name, "error", err)
	}

	if grid, err := p.workspace.LoadGrid(target.Slug()); err == nil && len(grid) > 0 {
		slog.Info("reusing base grid", "target", target.Name, "tiles", len(grid))
		return info, nil
	}

	grid, err := p.BuildGrid(ctx, target, info.SRID)
	if err != nil {
		return info, err
	}
	if err := p.workspace.SaveGrid(target.Slug(), grid); err != nil {
		return info, eris.Wrap(err, "save base grid")
	}
	return info, nil
}

// BuildGrid resolves the target's extent in srid and tiles it.
func (p *Pipeline) BuildGrid(ctx context.Context, target domain.Target, srid int) (domain.WorkList, error) {
	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanGridSize)
	defer span.End()

	box, err := p.extent.Resolve(ctx, target.Name)
	if err != nil {
		return nil, err
	}
	ext, err := p.extent.Project(ctx, box, srid)
	if err != nil {
		return nil, err
	}
	size, err := p.grid.Size(ext)
	if err != nil {
		return nil, err
	}
	grid := p.grid.Materialize(ext, size.Step)

	span.SetAttributes(attribute.Float64("step", size.Step), attribute.Int("tiles", len(grid)))
	slog.Info("grid sized", "target", target.Name, "srid", srid,
		"step", size.Step, "cols", size.Cols, "rows", size.Rows, "tiles", len(grid))
	return grid, nil
}

// SeedLayer copies the base grid into the layer's work list unless the
// layer already has one.
func (p *Pipeline) SeedLayer(ctx context.Context, target domain.Target, layer domain.Layer) (bool, error) {
	grid, err := p.workspace.LoadGrid(target.Slug())
	if err != nil {
		return false, eris.Wrap(err, "load base grid")
	}
	return p.download.InitWorkList(target, layer, grid)
}

// RunLayer downloads, ingests and exports one layer. Running out of
// download passes is not fatal: what was downloaded is still ingested and
// the run is marked incomplete.
func (p *Pipeline) RunLayer(ctx context.Context, target domain.Target, layer domain.Layer, srid int) (LayerReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanLayer)
	defer span.End()
	span.SetAttributes(attribute.String("target", target.Name), attribute.Int("layer_id", layer.ID))

	log := logging.ForLayer(target.Name, layer.ID, layer.Name)
	rep := LayerReport{Layer: layer}
	run := &domain.Run{Target: target.Name, LayerID: layer.ID, LayerName: layer.Name}

	fail := func(err error) (LayerReport, error) {
		rep.Status = domain.RunStatusFailed
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		p.Record(ctx, run)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	seeded, err := p.SeedLayer(ctx, target, layer)
	if err != nil {
		return fail(err)
	}
	rep.Seeded = seeded

	run.Status = domain.RunStatusDownloading
	p.Record(ctx, run)
	rep.Download, err = p.download.RunUntilComplete(ctx, target, layer)
	run.Passes, run.Missing = rep.Download.Passes, rep.Download.Missing
	var incomplete error
	switch {
	case eris.Is(err, domain.ErrRetryBudgetExhausted):
		incomplete = err
		log.Warn("download incomplete, ingesting what exists", "missing", rep.Download.Missing, "error", err)
	case err != nil:
		return fail(err)
	}

	run.Status = domain.RunStatusIngesting
	p.Record(ctx, run)
	rep.Ingest, err = p.ingest.Ingest(ctx, target, layer, srid)
	if err != nil {
		return fail(err)
	}
	run.Features = rep.Ingest.Inserted

	run.Status = domain.RunStatusExporting
	p.Record(ctx, run)
	rep.Export, err = p.export.Export(ctx, target, layer)
	if err != nil {
		return fail(err)
	}

	rep.Status = domain.RunStatusDone
	if incomplete != nil {
		rep.Status = domain.RunStatusIncomplete
		run.ErrorMessage = incomplete.Error()
	}
	run.Status = rep.Status
	p.Record(ctx, run)
	log.Info("layer finished", "status", rep.Status, "features", rep.Export.Exported)
	return rep, nil
}

// RunTarget processes every matching layer of target. Portal, extent and
// grid failures abort the target. A failing layer is recorded and the next
// layer still runs; the combined layer errors are returned at the end.
func (p *Pipeline) RunTarget(ctx context.Context, target domain.Target) (TargetReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanTarget)
	defer span.End()
	span.SetAttributes(attribute.String("target", target.Name))

	start := time.Now()
	rep := TargetReport{Target: target}

	info, err := p.Prepare(ctx, target)
	rep.SRID = info.SRID
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	var failed []string
	for _, layer := range info.Layers {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		lr, err := p.RunLayer(ctx, target, layer, info.SRID)
		rep.Layers = append(rep.Layers, lr)
		if err != nil {
			slog.Error("layer failed", "target", target.Name, "layer", layer.Name, "error", err)
			failed = append(failed, layer.Name+": "+err.Error())
		}
	}

	slog.Info("target finished", "target", target.Name, "layers", len(info.Layers),
		"failed", len(failed), "elapsed", time.Since(start).Round(time.Second))
	if len(failed) > 0 {
		return rep, eris.Errorf("%d of %d layers failed: %s", len(failed), len(info.Layers), strings.Join(failed, "; "))
	}
	return rep, nil
}

// Record stamps run and stores it, then publishes it. Failures are logged
// and never fail the layer.
func (p *Pipeline) Record(ctx context.Context, run *domain.Run) {
	run.UpdatedAt = time.Now().UTC()
	if p.runs != nil {
		if err := p.runs.Upsert(ctx, run); err != nil {
			slog.Warn("record run", "target", run.Target, "layer_id", run.LayerID, "error", err)
		}
	}
	if p.events != nil {
		if err := p.events.PublishRun(ctx, run); err != nil {
			slog.Debug("publish run event", "error", err)
		}
	}
}
