package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/bazaar/internal/api"
	"github.com/onnwee/bazaar/internal/catalog"
	"github.com/onnwee/bazaar/internal/config"
	"github.com/onnwee/bazaar/internal/db"
	"github.com/onnwee/bazaar/internal/health"
	"github.com/onnwee/bazaar/internal/middleware"
	"github.com/onnwee/bazaar/internal/ranking"
	"github.com/onnwee/bazaar/internal/scoring"
	"github.com/onnwee/bazaar/internal/settings"
)

// serviceName identifies the server in traces and the root endpoint.
const serviceName = "bazaar-api"

// dependencies holds the wired stores and the ranking engine.
type dependencies struct {
	Store        catalog.Store
	WeightStore  settings.WeightStore
	Engine       *scoring.Engine
	Tracker      *scoring.DirtyTracker
	DBChecker    api.HealthChecker
	RedisChecker api.HealthChecker
	RateLimits   middleware.RateLimitStore

	closers []func() error
}

// Close releases database and Redis connections.
func (d *dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// newDependencies connects to Postgres and Redis when configured. Without a
// database URL the catalog and settings live in memory.
func newDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *scoring.Metrics, httpMetrics *middleware.Metrics) (*dependencies, error) {
	deps := &dependencies{
		RateLimits: middleware.NewInMemoryRateLimitStore(),
	}

	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		deps.closers = append(deps.closers, sqlDB.Close)
		deps.Store = catalog.NewPostgresStore(sqlDB, logger)
		deps.WeightStore = settings.NewPostgresWeightSource(sqlDB)
		deps.DBChecker = health.NewDBChecker(sqlDB)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory catalog")
		deps.Store = catalog.NewInMemoryStore()
		deps.WeightStore = settings.NewInMemoryWeightStore()
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		deps.closers = append(deps.closers, client.Close)
		deps.WeightStore = settings.NewCachedWeightSource(client, deps.WeightStore, settings.CacheConfig{
			TTL:    cfg.WeightsCacheTTL,
			Logger: logger,
		})
		deps.RedisChecker = health.NewRedisChecker(client)
		deps.RateLimits = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics)
	}

	var source ranking.WeightSource = deps.WeightStore
	if cfg.RankingCalibrationFile != "" {
		source = ranking.LayeredWeightSource{
			Primary:  deps.WeightStore,
			Fallback: ranking.NewFileWeightSource(cfg.RankingCalibrationFile),
		}
	}
	provider := ranking.NewWeightProvider(source, logger).WithMetrics(metrics)

	deps.Engine = scoring.NewEngine(deps.Store, deps.Store, provider, scoring.EngineConfig{
		Logger:  logger,
		Metrics: metrics,
	})
	deps.Tracker = scoring.NewDirtyTracker()

	return deps, nil
}

// newRouter registers all routes and applies middleware:
// RequestID -> Tracing -> HTTPMetrics -> Logging.
// httpMetrics may be nil.
func newRouter(deps *dependencies, cfg *config.Config, registry *prometheus.Registry, httpMetrics *middleware.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      deps.DBChecker,
		RedisChecker:   deps.RedisChecker,
		MetricsEnabled: registry != nil,
	})
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)

	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	rankingHandlers := api.NewRankingHandlers(api.RankingHandlersConfig{
		Engine:           deps.Engine,
		Listings:         deps.Store,
		WeightStore:      deps.WeightStore,
		DirtyTracker:     deps.Tracker,
		DefaultBatchSize: cfg.RecomputeBatchSize,
	})
	var recompute http.Handler = http.HandlerFunc(rankingHandlers.RecomputeAll)
	if cfg.RecomputeRateLimit > 0 {
		recompute = middleware.RateLimiter(deps.RateLimits, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RecomputeRateLimit,
			WindowDuration:    middleware.DefaultRecomputeLimit().WindowDuration,
		}, middleware.IPKeyFunc(), httpMetrics)(recompute)
	}
	mux.Handle("/admin/ranking/recompute", recompute)
	mux.HandleFunc("/admin/ranking/weights", rankingHandlers.Weights)
	mux.HandleFunc("/listings/ranked", rankingHandlers.Ranked)
	mux.HandleFunc("/listings/", rankingHandlers.ListingRoutes)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + serviceName + `","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	handler := middleware.Logging(logger)(mux)
	if httpMetrics != nil {
		handler = middleware.HTTPMetrics(httpMetrics)(handler)
	}
	return middleware.RequestID(middleware.Tracing(serviceName)(handler))
}
