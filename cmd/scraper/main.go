package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.temporal.io/sdk/client"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/targets"
	"github.com/wajahatashraf/beacon-scraper/internal/bootstrap"
	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
	"github.com/wajahatashraf/beacon-scraper/internal/workflows"
)

func main() {
	flags := pflag.NewFlagSet("scraper", pflag.ExitOnError)
	targetsPath := flags.String("targets", "targets.csv", "CSV with website_url and county_name columns")
	name := flags.String("name", "", "scrape a single target by name instead of the CSV")
	url := flags.String("url", "", "portal URL of the single target")
	durable := flags.Bool("temporal", false, "start Temporal workflows instead of running in-process")
	flags.Int("download.max_passes", 0, "download passes per layer before giving up")
	flags.String("download.fetch_mode", "", "browser or http")
	flags.String("paths.output_root", "", "workspace root directory")
	flags.Bool("portal.headless", true, "run the browser headless")
	flags.String("log.level", "", "debug, info, warn or error")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags("beacon-scraper", flags)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	var file *targets.File
	var list []domain.Target
	if *name != "" {
		if *url == "" {
			log.Fatal("--url is required with --name")
		}
		list = []domain.Target{{Name: *name, URL: *url}}
	} else {
		file = targets.Open(afero.NewOsFs(), *targetsPath)
		if list, err = file.Load(); err != nil {
			log.Fatalf("targets: %v", err)
		}
	}
	slog.Info("targets loaded", "count", len(list))

	run := inProcess
	if *durable {
		run = viaTemporal
	}
	if err := run(ctx, cfg, list, file); err != nil {
		log.Fatalf("scrape: %v", err)
	}
}

// inProcess runs every target in this process, one after another.
func inProcess(ctx context.Context, cfg *config.Config, list []domain.Target, file *targets.File) error {
	scraper, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer scraper.Close()

	for _, target := range list {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now()
		rep, err := scraper.Pipeline.RunTarget(ctx, target)
		recordOutcome(file, target, err)
		if err != nil {
			slog.Error("target failed", "target", target.Name, "error", err)
			continue
		}
		slog.Info("target done", "target", target.Name, "srid", rep.SRID,
			"layers", len(rep.Layers), "elapsed", time.Since(start).Round(time.Second))
	}
	return nil
}

// viaTemporal starts one TargetWorkflow per target and waits for each.
func viaTemporal(ctx context.Context, cfg *config.Config, list []domain.Target, file *targets.File) error {
	c, err := client.Dial(client.Options{HostPort: cfg.Temporal.HostPort})
	if err != nil {
		return err
	}
	defer c.Close()

	for _, target := range list {
		opts := client.StartWorkflowOptions{
			ID:        workflows.TargetWorkflowID(target),
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		in := workflows.TargetInput{
			Target:    target,
			MaxPasses: cfg.Download.MaxPasses,
			PassPause: cfg.Download.PassPause,
		}
		wr, err := c.ExecuteWorkflow(ctx, opts, workflows.TargetWorkflow, in)
		if err != nil {
			recordOutcome(file, target, err)
			slog.Error("start workflow", "target", target.Name, "error", err)
			continue
		}
		slog.Info("workflow started", "target", target.Name, "workflow_id", wr.GetID(), "run_id", wr.GetRunID())

		var rep usecases.TargetReport
		err = wr.Get(ctx, &rep)
		recordOutcome(file, target, err)
		if err != nil {
			slog.Error("target failed", "target", target.Name, "error", err)
			continue
		}
		slog.Info("target done", "target", target.Name, "layers", len(rep.Layers))
	}
	return nil
}

// recordOutcome writes the failure message into the targets CSV, or clears
// it on success.
func recordOutcome(file *targets.File, target domain.Target, err error) {
	if file == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if werr := file.RecordError(target.Name, msg); werr != nil {
		slog.Warn("update targets file", "target", target.Name, "error", werr)
	}
}
