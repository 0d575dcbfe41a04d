// Package workflows runs the scrape as durable Temporal workflows: one
// workflow per target, one child workflow per layer.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

// LayerInput is the input of LayerWorkflow.
type LayerInput struct {
	Target    domain.Target
	Layer     domain.Layer
	SRID      int
	MaxPasses int
	PassPause time.Duration
}

// TargetInput is the input of TargetWorkflow.
type TargetInput struct {
	Target    domain.Target
	MaxPasses int
	PassPause time.Duration
}

var acts *ScrapeActivities

func shortOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
}

// longOptions is for passes, ingestion and export, which scale with the
// tile count.
func longOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 4 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	})
}

// LayerWorkflow downloads, ingests and exports one layer. Download passes
// alternate with reconciliation until nothing is missing or MaxPasses ran;
// running out of passes still ingests and exports, and the layer ends
// incomplete.
func LayerWorkflow(ctx workflow.Context, in LayerInput) (usecases.LayerReport, error) {
	logger := workflow.GetLogger(ctx)
	short, long := shortOptions(ctx), longOptions(ctx)

	rep := usecases.LayerReport{Layer: in.Layer}
	run := domain.Run{Target: in.Target.Name, LayerID: in.Layer.ID, LayerName: in.Layer.Name}
	record := func(status string) {
		run.Status = status
		if err := workflow.ExecuteActivity(short, acts.RecordRun, run).Get(ctx, nil); err != nil {
			logger.Warn("record run", "status", status, "error", err)
		}
	}
	fail := func(err error) (usecases.LayerReport, error) {
		rep.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		record(domain.RunStatusFailed)
		return rep, err
	}

	if err := workflow.ExecuteActivity(short, acts.SeedLayer, in.Target, in.Layer).Get(ctx, &rep.Seeded); err != nil {
		return fail(err)
	}
	record(domain.RunStatusDownloading)

	var missing int
	if err := workflow.ExecuteActivity(short, acts.Reconcile, in.Target, in.Layer, 0).Get(ctx, &missing); err != nil {
		return fail(err)
	}

	passes := 0
	for missing > 0 && passes < in.MaxPasses {
		if passes > 0 && in.PassPause > 0 {
			if err := workflow.Sleep(ctx, in.PassPause); err != nil {
				return fail(err)
			}
		}
		passes++

		var stats usecases.PassStats
		if err := workflow.ExecuteActivity(long, acts.DownloadPass, in.Target, in.Layer).Get(ctx, &stats); err != nil {
			return fail(err)
		}
		if err := workflow.ExecuteActivity(short, acts.Reconcile, in.Target, in.Layer, passes).Get(ctx, &missing); err != nil {
			return fail(err)
		}
		logger.Info("pass reconciled", "pass", passes, "succeeded", stats.Succeeded, "missing", missing)

		run.Passes, run.Missing = passes, missing
		record(domain.RunStatusDownloading)
	}
	rep.Download = usecases.LoopResult{Passes: passes, Missing: missing}
	run.Passes, run.Missing = passes, missing

	record(domain.RunStatusIngesting)
	if err := workflow.ExecuteActivity(long, acts.IngestLayer, in.Target, in.Layer, in.SRID).Get(ctx, &rep.Ingest); err != nil {
		return fail(err)
	}
	run.Features = rep.Ingest.Inserted

	record(domain.RunStatusExporting)
	if err := workflow.ExecuteActivity(long, acts.ExportLayer, in.Target, in.Layer).Get(ctx, &rep.Export); err != nil {
		return fail(err)
	}

	rep.Status = domain.RunStatusDone
	if missing > 0 {
		rep.Status = domain.RunStatusIncomplete
		run.ErrorMessage = usecases.RetryBudgetError(missing, passes).Error()
	}
	record(rep.Status)
	return rep, nil
}

// LayerWorkflowID is the workflow id of one layer of a target.
func LayerWorkflowID(target domain.Target, layer domain.Layer) string {
	return fmt.Sprintf("scrape-%s-layer-%d", target.Slug(), layer.ID)
}

// TargetWorkflowID is the workflow id of a target.
func TargetWorkflowID(target domain.Target) string {
	return "scrape-" + target.Slug()
}

// TargetWorkflow prepares a target and runs its layers one after another
// as child workflows. A failed layer does not stop the next one; the
// failures are combined into the returned error.
func TargetWorkflow(ctx workflow.Context, in TargetInput) (usecases.TargetReport, error) {
	rep := usecases.TargetReport{Target: in.Target}

	var info domain.PortalInfo
	err := workflow.ExecuteActivity(shortOptions(ctx), acts.Prepare, in.Target).Get(ctx, &info)
	rep.SRID = info.SRID
	if err != nil {
		return rep, err
	}

	var failed []string
	for _, layer := range info.Layers {
		cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: LayerWorkflowID(in.Target, layer),
		})
		var lr usecases.LayerReport
		err := workflow.ExecuteChildWorkflow(cctx, LayerWorkflow, LayerInput{
			Target:    in.Target,
			Layer:     layer,
			SRID:      info.SRID,
			MaxPasses: in.MaxPasses,
			PassPause: in.PassPause,
		}).Get(ctx, &lr)
		if err != nil {
			workflow.GetLogger(ctx).Error("layer failed", "layer", layer.Name, "error", err)
			failed = append(failed, layer.Name+": "+err.Error())
			lr = usecases.LayerReport{Layer: layer, Status: domain.RunStatusFailed}
		}
		rep.Layers = append(rep.Layers, lr)
	}

	if len(failed) > 0 {
		return rep, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%d of %d layers failed: %s", len(failed), len(info.Layers), strings.Join(failed, "; ")),
			"LayerFailures", nil)
	}
	return rep, nil
}
