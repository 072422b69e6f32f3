package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"plcwatch/internal/platform/config"
	"plcwatch/internal/platform/httpserver"
	"plcwatch/internal/platform/logger"
	"plcwatch/internal/platform/metrics"
	"plcwatch/internal/platform/redis"
	"plcwatch/internal/plc/cache"
	"plcwatch/internal/plc/handler"
	"plcwatch/internal/plc/ingest"
	plcmetrics "plcwatch/internal/plc/metrics"
	"plcwatch/internal/plc/resolver"
	"plcwatch/internal/plc/service"
	"plcwatch/internal/plc/store/memory"
	"plcwatch/internal/plc/store/postgres"
)

type store interface {
	service.Store
	resolver.Store
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/plc.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	plcMetrics := plcmetrics.New(reg)

	var st store = memory.NewInMemory()
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		st = postgres.New(db)
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(plcMetrics)}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithCache(cache.NewRedis(redisClient.Client, cfg.Redis.TimelineTTL, cache.WithLogger(log))))
		log.Info("timeline cache enabled", "ttl", cfg.Redis.TimelineTTL)
	}

	entities := resolver.New(st,
		resolver.WithMaxAttempts(cfg.ResolverMaxAttempts),
		resolver.WithMetrics(plcMetrics),
		resolver.WithLogger(log),
	)
	svc := service.New(st, entities, opts...)

	consumerErr := make(chan error, 1)
	if cfg.Kafka.Enabled() {
		consumer, err := ingest.NewConsumer(cfg.Kafka, svc, ingest.WithLogger(log), ingest.WithMetrics(plcMetrics))
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() { consumerErr <- consumer.Run(ctx) }()
		log.Info("export consumer enabled", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.Group)
	}

	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				// The cache is optional; report but stay healthy.
				log.WarnContext(r.Context(), "redis health check failed", "error", err)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	handler.New(svc, log, metrics.NewHTTP(reg)).Register(router)

	srv := httpserver.New(cfg.Addr, router, httpserver.WithLogger(log))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	var runErr error
	select {
	case err := <-serveErr:
		return err
	case err := <-consumerErr:
		// A failed batch was not committed; exit so a restart re-reads it.
		if ctx.Err() == nil {
			runErr = err
		}
		stop()
	}
	if err := <-serveErr; err != nil {
		return err
	}
	return runErr
}
