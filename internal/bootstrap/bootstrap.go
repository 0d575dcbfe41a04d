// Package bootstrap wires adapters and services for the scraper binaries.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/beacon"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/browser"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/filestore"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/geocode"
	natsadapter "github.com/wajahatashraf/beacon-scraper/internal/adapters/nats"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/postgres"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/valkey"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/workflows"
)

// Scraper is a fully wired pipeline plus the resources it holds.
type Scraper struct {
	Pipeline   *usecases.Pipeline
	Activities *workflows.ScrapeActivities
	Workspace  *filestore.Workspace

	closers []func()
}

// Close releases every resource in reverse order of acquisition.
func (s *Scraper) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Build connects to PostgreSQL, starts the browser and assembles the
// pipeline. Valkey and NATS are optional: without them geocodes are not
// cached and no progress events are published.
func Build(ctx context.Context, cfg *config.Config) (*Scraper, error) {
	s := &Scraper{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, eris.Wrap(err, "database")
	}
	s.closers = append(s.closers, db.Close)
	s.closers = append(s.closers, reportPoolStats(db))

	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, geocodes will not be cached", "error", err)
	} else {
		cache = c
		s.closers = append(s.closers, c.Close)
	}

	var events ports.EventPublisher
	if p, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, progress events disabled", "error", err)
	} else {
		events = p
		s.closers = append(s.closers, p.Close)
	}

	session, err := browser.NewSession(ctx, cfg.Portal)
	if err != nil {
		return nil, eris.Wrap(err, "browser")
	}
	s.closers = append(s.closers, session.Close)

	var fetcher ports.TileFetcher = session
	if cfg.Download.FetchMode == "http" {
		fetcher = beacon.NewClient(cfg.Portal, cfg.Download.HTTPTimeout)
	}

	geocoder, err := geocode.New(cfg.Geocode)
	if err != nil {
		return nil, err
	}
	features, err := postgres.NewFeatureRepo(db, cfg.Ingest)
	if err != nil {
		return nil, err
	}

	s.Workspace = filestore.NewOSWorkspace(cfg.Paths.OutputRoot, cfg.Download)

	portal := usecases.NewPortalService(session, cfg.Portal.LayerKeyword)
	extent := usecases.NewExtentService(geocoder, postgres.NewSpatialRepo(db), cache, cfg.Geocode.CacheTTL)
	grid := usecases.NewGridService(cfg.Grid)
	download := usecases.NewDownloadService(session, fetcher, s.Workspace, events, cfg.Download)
	ingest := usecases.NewIngestService(features, s.Workspace)
	export := usecases.NewExportService(features, s.Workspace)

	s.Pipeline = usecases.NewPipeline(portal, extent, grid, download, ingest, export,
		s.Workspace, postgres.NewRunRepo(db), events)
	s.Activities = &workflows.ScrapeActivities{
		Pipeline: s.Pipeline,
		Download: download,
		Ingest:   ingest,
		Export:   export,
	}

	ok = true
	return s, nil
}

// reportPoolStats exports pool gauges every 15s until the returned stop is
// called.
func reportPoolStats(db *postgres.DB) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				db.ReportPoolStats()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
