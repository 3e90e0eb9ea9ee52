package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quiver-search/quiver/internal/engine"
	"github.com/quiver-search/quiver/internal/server"
	"github.com/quiver-search/quiver/internal/snapshot"
	"github.com/quiver-search/quiver/pkg/config"
	"github.com/quiver-search/quiver/pkg/health"
	"github.com/quiver-search/quiver/pkg/kafka"
	"github.com/quiver-search/quiver/pkg/logger"
	"github.com/quiver-search/quiver/pkg/metrics"
	"github.com/quiver-search/quiver/pkg/middleware"
	"github.com/quiver-search/quiver/pkg/postgres"
	pkgredis "github.com/quiver-search/quiver/pkg/redis"
	"github.com/quiver-search/quiver/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searchd", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	eng := engine.New(cfg.Engine, cfg.Search)

	store, err := snapshot.NewStore(cfg.Snapshot.DataDir, cfg.Snapshot.Keep)
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	snapshotter := server.NewSnapshotter(eng, store, cfg.Snapshot.Interval, m)
	if err := snapshotter.Restore(); err != nil {
		slog.Error("failed to restore snapshot", "error", err)
		os.Exit(1)
	}

	var catalog *server.Catalog
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, document catalog disabled", "error", err)
		} else {
			defer pgClient.Close()
			catalog, err = server.NewCatalog(ctx, pgClient)
			if err != nil {
				slog.Error("failed to initialise document catalog", "error", err)
				os.Exit(1)
			}
			slog.Info("document catalog enabled", "host", cfg.Postgres.Host)
			if eng.Stats().Docs == 0 {
				if err := reindexFromCatalog(ctx, eng, catalog); err != nil {
					slog.Error("reindex from catalog failed", "error", err)
					os.Exit(1)
				}
			}
		}
	}

	var queryCache *server.QueryCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = server.NewQueryCache(redisClient, cfg.Redis)
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		stats := eng.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d docs, %d terms", stats.Docs, stats.Terms),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	apiHandler := server.NewHandler(eng, queryCache, catalog, m, cfg.Search)
	mux := http.NewServeMux()
	apiHandler.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.Server.RateLimitPerMin > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimitPerMin, time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("searchd listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return snapshotter.Run(groupCtx)
	})

	if cfg.Kafka.Enabled {
		ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			server.HandleIngestEvent(eng, queryCache, m))
		deleteConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentDelete,
			server.HandleDeleteEvent(eng, queryCache, m))
		group.Go(func() error { return ingestConsumer.Start(groupCtx) })
		group.Go(func() error { return deleteConsumer.Start(groupCtx) })
		slog.Info("kafka ingest pipeline enabled", "brokers", cfg.Kafka.Brokers)
	}

	if err := group.Wait(); err != nil {
		slog.Error("searchd stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("searchd stopped")
}

// reindexFromCatalog rebuilds the index from the document catalog when the
// process starts without a usable snapshot.
func reindexFromCatalog(ctx context.Context, eng *engine.Engine, catalog *server.Catalog) error {
	start := time.Now()
	count := 0
	err := resilience.WithTimeout(ctx, 5*time.Minute, "catalog-reindex", func(ctx context.Context) error {
		return catalog.ForEach(ctx, func(id string, fields map[string]string) error {
			if err := eng.Ingest(id, fields); err != nil {
				slog.Warn("skipping invalid catalog document", "doc_id", id, "error", err)
				return nil
			}
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}
	slog.Info("reindex from catalog complete", "docs", count, "took", time.Since(start))
	return nil
}
