package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics for the status API
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beacon",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Download metrics
	TilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "tiles_total",
		Help:      "Tile fetch attempts by result",
	}, []string{"layer", "result"})

	TileFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "tile_fetch_duration_seconds",
		Help:      "Duration of a single tile request",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"layer"})

	TokenAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "token_acquisitions_total",
		Help:      "Access token acquisitions by result",
	}, []string{"result"})

	BatchesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "batches_skipped_total",
		Help:      "Batches skipped because no token was available",
	}, []string{"layer"})

	MissingTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "missing_tiles",
		Help:      "Tiles still missing after the last reconciliation",
	}, []string{"layer"})

	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "download",
		Name:      "passes_total",
		Help:      "Orchestrator passes run",
	}, []string{"layer"})

	// Ingestion metrics
	FeaturesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "ingest",
		Name:      "features_total",
		Help:      "Features processed by result",
	}, []string{"layer", "result"})

	ColumnsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "ingest",
		Name:      "columns_added_total",
		Help:      "Attribute columns added to feature tables",
	}, []string{"layer"})

	MalformedTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "ingest",
		Name:      "malformed_tiles_total",
		Help:      "Tile files that could not be parsed",
	}, []string{"layer"})

	// Export metrics
	FeaturesExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "export",
		Name:      "features_total",
		Help:      "Features written to the deduplicated export",
	}, []string{"layer"})

	DuplicatesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "export",
		Name:      "duplicates_removed_total",
		Help:      "Features dropped because their geometry was already exported",
	}, []string{"layer"})

	EmptyProperties = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "export",
		Name:      "empty_properties_total",
		Help:      "Exported features whose properties are all empty",
	}, []string{"layer"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pgxpool stats into the pool gauges.
func UpdateDBPoolMetrics(stat poolStat) {
	if stat == nil {
		return
	}
	DBPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(stat.IdleConns()))
	DBPoolConnsOpen.Set(float64(stat.TotalConns()))
}
