package usecases

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/core/ports"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/logging"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/metrics"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/telemetry"
)

// PassStats summarizes one orchestrator pass over a work list.
type PassStats struct {
	Batches        int `json:"batches"`
	SkippedBatches int `json:"skipped_batches"`
	Attempted      int `json:"attempted"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
}

// LoopResult is the outcome of RunUntilComplete.
type LoopResult struct {
	Passes  int `json:"passes"`
	Missing int `json:"missing"`
}

// DownloadService drives tile downloads for one layer at a time: batches
// with a fresh token each, bounded concurrent fetches, and reconciliation
// of the work list against the download directory.
type DownloadService struct {
	tokens    ports.TokenSource
	fetcher   ports.TileFetcher
	workspace ports.Workspace
	events    ports.EventPublisher
	cfg       config.DownloadConfig
}

// NewDownloadService creates a new DownloadService. events may be nil.
func NewDownloadService(tokens ports.TokenSource, fetcher ports.TileFetcher, workspace ports.Workspace, events ports.EventPublisher, cfg config.DownloadConfig) *DownloadService {
	return &DownloadService{tokens: tokens, fetcher: fetcher, workspace: workspace, events: events, cfg: cfg}
}

// InitWorkList seeds the layer's work list from grid unless one already
// exists, so an interrupted run resumes where it stopped. It reports whether
// the list was seeded.
func (s *DownloadService) InitWorkList(target domain.Target, layer domain.Layer, grid domain.WorkList) (bool, error) {
	store := s.workspace.WorkList(target.Slug(), layer.Slug())
	if store.Exists() {
		return false, nil
	}
	if err := store.Save(grid); err != nil {
		return false, eris.Wrap(err, "seed work list")
	}
	return true, nil
}

// RunPass downloads every tile of work once. Batches run sequentially; a
// batch without a token is skipped and its tiles stay missing. Individual
// tile failures are logged and never abort the pass. Only cancellation is
// returned as an error.
func (s *DownloadService) RunPass(ctx context.Context, target domain.Target, layer domain.Layer, work domain.WorkList) (PassStats, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPass)
	defer span.End()
	span.SetAttributes(attribute.String("target", target.Name), attribute.Int("layer_id", layer.ID), attribute.Int("tiles", len(work)))

	log := logging.ForLayer(target.Name, layer.ID, layer.Name)
	tiles := s.workspace.Tiles(target.Slug(), layer.Slug())
	layerLabel := strconv.Itoa(layer.ID)

	limit := rate.Inf
	if s.cfg.Pace > 0 {
		limit = rate.Every(s.cfg.Pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	var stats PassStats
	batches := work.Batches(s.cfg.BatchSize)
	stats.Batches = len(batches)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		blog := log.With("batch", i+1, "batches", len(batches))

		token, err := s.tokens.AcquireToken(ctx, target.URL)
		if err != nil {
			metrics.TokenAcquisitions.WithLabelValues("failure").Inc()
			metrics.BatchesSkipped.WithLabelValues(layerLabel).Inc()
			stats.SkippedBatches++
			blog.Warn("skipping batch, no access token", "tiles", len(batch), "error", err)
			continue
		}
		metrics.TokenAcquisitions.WithLabelValues("success").Inc()
		if err := s.workspace.SaveToken(target.Slug(), layer.Slug(), i+1, token); err != nil {
			blog.Warn("save token", "error", err)
		}

		var ok, failed atomic.Int64
		var g errgroup.Group
		g.SetLimit(s.concurrency())
		for _, tile := range batch {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
			tile := tile
			g.Go(func() error {
				if s.fetchOne(ctx, target, layer, token, tile, tiles, blog) {
					ok.Add(1)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		stats.Attempted += int(ok.Load() + failed.Load())
		stats.Succeeded += int(ok.Load())
		stats.Failed += int(failed.Load())

		if err := ctx.Err(); err != nil {
			return stats, err
		}

		count, err := tiles.WaitStable(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			blog.Warn("download directory did not settle", "error", err)
		}
		blog.Info("batch finished", "ok", ok.Load(), "failed", failed.Load(), "files", count)
	}

	return stats, nil
}

// fetchOne downloads and stores a single tile, reporting success.
func (s *DownloadService) fetchOne(ctx context.Context, target domain.Target, layer domain.Layer, token string, tile domain.TileBounds, tiles ports.TileStore, log *slog.Logger) bool {
	layerLabel := strconv.Itoa(layer.ID)
	start := time.Now()

	body, err := s.fetcher.FetchTile(ctx, token, domain.NewTileRequest(layer.ID, s.cfg.FeatureLimit, tile))
	metrics.TileFetchDuration.WithLabelValues(layerLabel).Observe(time.Since(start).Seconds())
	if err == nil && !json.Valid(body) {
		err = eris.Wrap(domain.ErrTileFetch, "response is not JSON")
	}
	if err == nil {
		err = tiles.Save(tile, body)
	}

	ev := domain.TileEvent{Target: target.Name, LayerID: layer.ID, Tile: tile.Key(), OK: err == nil}
	if err != nil {
		ev.Error = err.Error()
		metrics.TilesFetched.WithLabelValues(layerLabel, "failure").Inc()
		log.Warn("tile fetch failed", "tile", tile.Key(), "error", err)
	} else {
		metrics.TilesFetched.WithLabelValues(layerLabel, "success").Inc()
	}
	s.publishTile(ctx, ev)
	return err == nil
}

// Reconcile rewrites the layer's work list to the tiles whose file is not
// in the download directory and returns how many remain.
func (s *DownloadService) Reconcile(ctx context.Context, target domain.Target, layer domain.Layer) (int, error) {
	missing, _, err := s.reconcile(target, layer)
	return missing, err
}

// ReconcilePass reconciles after download pass number pass and reports the
// result as a progress event.
func (s *DownloadService) ReconcilePass(ctx context.Context, target domain.Target, layer domain.Layer, pass int) (int, error) {
	missing, total, err := s.reconcile(target, layer)
	if err != nil {
		return 0, err
	}
	metrics.ReconcilePasses.WithLabelValues(strconv.Itoa(layer.ID)).Inc()
	s.publishPass(ctx, domain.PassEvent{
		Target: target.Name, LayerID: layer.ID, Pass: pass, Total: total, Missing: missing,
	})
	return missing, nil
}

// reconcile returns the missing count and the work list size before the
// rewrite.
func (s *DownloadService) reconcile(target domain.Target, layer domain.Layer) (int, int, error) {
	store := s.workspace.WorkList(target.Slug(), layer.Slug())
	work, err := store.Load()
	if err != nil {
		return 0, 0, eris.Wrap(err, "load work list")
	}
	downloaded, err := s.workspace.Tiles(target.Slug(), layer.Slug()).Downloaded()
	if err != nil {
		return 0, 0, eris.Wrap(err, "list downloaded tiles")
	}

	missing := work.Missing(downloaded)
	if err := store.Save(missing); err != nil {
		return 0, 0, eris.Wrap(err, "save work list")
	}
	metrics.MissingTiles.WithLabelValues(strconv.Itoa(layer.ID)).Set(float64(len(missing)))
	return len(missing), len(work), nil
}

// NextPass loads the current work list and runs one pass over it.
func (s *DownloadService) NextPass(ctx context.Context, target domain.Target, layer domain.Layer) (PassStats, error) {
	work, err := s.workspace.WorkList(target.Slug(), layer.Slug()).Load()
	if err != nil {
		return PassStats{}, eris.Wrap(err, "load work list")
	}
	return s.RunPass(ctx, target, layer, work)
}

// RunUntilComplete alternates download passes and reconciliation until no
// tile is missing or MaxPasses passes have run. Running out of passes
// returns the remaining count with ErrRetryBudgetExhausted.
func (s *DownloadService) RunUntilComplete(ctx context.Context, target domain.Target, layer domain.Layer) (LoopResult, error) {
	log := logging.ForLayer(target.Name, layer.ID, layer.Name)

	missing, err := s.Reconcile(ctx, target, layer)
	if err != nil {
		return LoopResult{}, err
	}

	var res LoopResult
	for missing > 0 {
		if res.Passes >= s.cfg.MaxPasses {
			res.Missing = missing
			return res, RetryBudgetError(missing, res.Passes)
		}
		if res.Passes > 0 && s.cfg.PassPause > 0 {
			if err := sleepCtx(ctx, s.cfg.PassPause); err != nil {
				return res, err
			}
		}

		res.Passes++
		log.Info("download pass", "pass", res.Passes, "tiles", missing)
		stats, err := s.NextPass(ctx, target, layer)
		if err != nil {
			return res, err
		}

		missing, err = s.ReconcilePass(ctx, target, layer, res.Passes)
		if err != nil {
			return res, err
		}
		log.Info("reconciled", "pass", res.Passes, "succeeded", stats.Succeeded, "failed", stats.Failed, "missing", missing)
	}

	res.Missing = 0
	return res, nil
}

// RetryBudgetError reports tiles still missing once the pass budget ran out.
func RetryBudgetError(missing, passes int) error {
	return eris.Wrapf(domain.ErrRetryBudgetExhausted, "%d tiles missing after %d passes", missing, passes)
}

func (s *DownloadService) concurrency() int {
	if s.cfg.Concurrency <= 0 {
		return 1
	}
	return s.cfg.Concurrency
}

func (s *DownloadService) publishTile(ctx context.Context, ev domain.TileEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTile(ctx, ev); err != nil {
		slog.Debug("publish tile event", "error", err)
	}
}

func (s *DownloadService) publishPass(ctx context.Context, ev domain.PassEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPass(ctx, ev); err != nil {
		slog.Debug("publish pass event", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
