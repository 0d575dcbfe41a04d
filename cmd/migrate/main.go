package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/postgres"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("beacon-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var files []string
	switch os.Args[1] {
	case "up":
		files, err = migrations.Up()
	case "down":
		files, err = migrations.Down()
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}

	for _, f := range files {
		sql, err := migrations.Read(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Pool.Exec(ctx, sql); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		slog.Info("applied", "migration", f)
	}
	slog.Info("migrations done", "direction", os.Args[1], "count", len(files))
}
