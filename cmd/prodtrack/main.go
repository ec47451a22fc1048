package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/dsporty/prodtrack/internal/cache"
	"github.com/dsporty/prodtrack/internal/config"
	"github.com/dsporty/prodtrack/internal/logging"
	"github.com/dsporty/prodtrack/internal/netmon"
	"github.com/dsporty/prodtrack/internal/reconcile"
	"github.com/dsporty/prodtrack/internal/remote"
	"github.com/dsporty/prodtrack/internal/syncer"
	"github.com/dsporty/prodtrack/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if cfg.RemoteDBURL == "" {
		logger.Error("REMOTE_DATABASE_URL is required")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheStore, err := cache.Open(cfg.CacheDBPath, logging.ForComponent(logger, "cache"))
	if err != nil {
		logger.Error("failed to open offline cache", "error", err)
		return
	}
	defer func() {
		if err := cacheStore.Close(); err != nil {
			logger.Error("failed to close offline cache", "error", err)
		}
	}()

	remoteStore, err := remote.OpenPostgres(ctx, cfg.RemoteDBURL, logging.ForComponent(logger, "remote"))
	if err != nil {
		logger.Error("failed to open remote store", "error", err)
		return
	}
	defer func() {
		if err := remoteStore.Close(); err != nil {
			logger.Error("failed to close remote store", "error", err)
		}
	}()

	rec := reconcile.New(remoteStore, cacheStore, cfg.AdminKey, logging.ForComponent(logger, "reconcile"))
	engine := syncer.New(cacheStore, remoteStore, rec, logging.ForComponent(logger, "syncer"))
	monitor := netmon.New(remoteStore, engine, rec, cfg.ProbeInterval, logging.ForComponent(logger, "netmon"))

	// Establish connectivity and session before the first hydration so the
	// reconciler knows which origin to load from.
	monitor.Check(ctx)
	rec.Bootstrap(ctx)
	rec.Hydrate(ctx)

	// The feed supervises its own connection, so it is started regardless of
	// current connectivity and recovers on its own after an offline boot.
	if err := remoteStore.Subscribe(ctx, func() { rec.Refetch(ctx) }); err != nil {
		logger.Warn("change feed unavailable", "error", err)
	}

	go monitor.Run(ctx)

	server := web.NewServer(rec, logging.ForComponent(logger, "web"))
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
