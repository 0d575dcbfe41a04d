package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/http"
	natsadapter "github.com/wajahatashraf/beacon-scraper/internal/adapters/nats"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/postgres"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/valkey"
	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("beacon-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	deps := &http.Dependencies{DB: db}

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, live progress disabled", "error", err)
		deps.Runs = usecases.NewRunService(postgres.NewRunRepo(db), nil)
	} else {
		defer cache.Close()
		deps.Cache = cache
		deps.Runs = usecases.NewRunService(postgres.NewRunRepo(db), cache)
		deps.Progress = usecases.NewProgressService(cache)
	}

	// Raw connection for the WebSocket relay
	if nc, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer nc.Close()
		deps.NATS = nc
	}

	// Durable consumers keep the progress cache and run lists fresh.
	if deps.Progress != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribePasses(ctx, "api-progress", deps.Progress.Record); err != nil {
				slog.Warn("subscribe passes", "error", err)
			}
			err := sub.SubscribeRuns(ctx, "api-runs", func(ctx context.Context, run domain.Run) error {
				return deps.Runs.Invalidate(ctx, run.Target)
			})
			if err != nil {
				slog.Warn("subscribe runs", "error", err)
			}
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Beacon Scraper API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
