package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/wajahatashraf/beacon-scraper/internal/bootstrap"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
	"github.com/wajahatashraf/beacon-scraper/internal/workflows"
)

func main() {
	cfg, err := config.Load("beacon-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	scraper, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer scraper.Close()

	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
		Logger:   slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	// One browser session serves all activities; layers run one at a time.
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflow(workflows.TargetWorkflow)
	w.RegisterWorkflow(workflows.LayerWorkflow)
	w.RegisterActivity(scraper.Activities)

	slog.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
