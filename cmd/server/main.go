package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ipwatch/internal/audit"
	"ipwatch/internal/cache"
	"ipwatch/internal/ispdir"
	"ipwatch/internal/lookup/handler"
	"ipwatch/internal/lookup/metrics"
	"ipwatch/internal/lookup/provider"
	"ipwatch/internal/lookup/service"
	"ipwatch/internal/lookup/store"
	"ipwatch/internal/platform/config"
	"ipwatch/internal/platform/httpserver"
	"ipwatch/internal/platform/logger"
	platformmetrics "ipwatch/internal/platform/metrics"
	"ipwatch/internal/platform/postgres"
	platformredis "ipwatch/internal/platform/redis"
	httptransport "ipwatch/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Persistence: Postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("store schema init failed", "error", err)
			os.Exit(1)
		}
		st = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewInMemory()
	}

	lookupMetrics := metrics.New()

	// Cache: optionally backed by Redis so replicas share resolutions.
	cacheOpts := []cache.Option{
		cache.WithAccountingHooks(
			func(key string) { lookupMetrics.RecordCacheHit(cache.NamespaceOf(key)) },
			func(key string) { lookupMetrics.RecordCacheMiss(cache.NamespaceOf(key)) },
		),
	}
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		cacheOpts = append(cacheOpts, cache.WithBacking(cache.NewRedisBacking(rdb.Client)))
	}
	c := cache.New(cache.Config{
		DefaultTTL:      cfg.Cache.DefaultTTL,
		ResolutionTTL:   cfg.Cache.ResolutionTTL,
		StatsTTL:        cfg.Cache.StatsTTL,
		JanitorInterval: cfg.Cache.JanitorInterval,
	}, cacheOpts...)
	defer c.Close()

	dir := ispdir.New(log)
	if err := dir.Load(cfg.ISPDictPath); err != nil {
		log.Warn("isp dictionary load failed", "path", cfg.ISPDictPath, "error", err)
	}

	resolver := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
	}, log)

	// Audit pipeline: channel recorder feeding the fan-out worker, with an
	// optional Kafka sink.
	var sinks []audit.Sink
	kafkaSink, err := audit.NewKafkaSink(ctx, audit.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, log)
	if err != nil {
		log.Error("kafka sink init failed", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
	}

	recorder := audit.NewRecorder(256, log)
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = audit.NewWorker(recorder.Inbox(), log, sinks...).Run(workerCtx)
	}()

	svc := service.New(resolver, st, c, dir, log, lookupMetrics, recorder)

	httpMetrics := platformmetrics.New()
	h := handler.New(svc, log, httpMetrics, cfg.AdminToken, cfg.Server.RequestTimeout)
	router := httptransport.NewRouter(h)

	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting ipwatch", "addr", cfg.Server.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopWorker()
	<-workerDone
	if kafkaSink != nil {
		if err := kafkaSink.Close(shutdownCtx); err != nil {
			log.Warn("kafka sink close failed", "error", err)
		}
	}
}
