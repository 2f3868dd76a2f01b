// Package main is the entry point for the market data service. It wires the
// local SQLite market store, the file cache, the remote gateway client, the
// tiered resolver and the board relationship graph, then serves them over
// HTTP with scheduled background refreshes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/config"
	"github.com/quantara/marketd/internal/database"
	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/localsource"
	"github.com/quantara/marketd/internal/remotesource"
	"github.com/quantara/marketd/internal/resolver"
	"github.com/quantara/marketd/internal/scheduler"
	"github.com/quantara/marketd/internal/server"
	"github.com/quantara/marketd/internal/tradedate"
	"github.com/quantara/marketd/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting market data service")

	// Local market store: the primary resolution tier.
	storeDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "market.db"),
		Profile: database.ProfileStore,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market store")
	}
	defer storeDB.Close()

	local, err := localsource.New(storeDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market store")
	}

	// File cache with per-kind freshness windows from config.
	policies := cachestore.DefaultPolicies()
	for kind, p := range policies {
		p.TTL = cfg.ReferenceTTL
		if p.DayPartitioned {
			p.IntradayTTL = cfg.IntradayTTL
		}
		policies[kind] = p
	}
	cache, err := cachestore.New(cfg.CacheDir, policies, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize file cache")
	}

	// Remote gateway: the secondary tier. Optional; without it the service
	// serves whatever the store and cache hold.
	var remote domain.Source
	if cfg.RemoteBaseURL != "" {
		remote = remotesource.New(cfg.RemoteBaseURL, cfg.FetchTimeout, log)
		log.Info().Str("gateway", cfg.RemoteBaseURL).Msg("Remote gateway enabled")
	} else {
		log.Warn().Msg("No gateway configured, running offline")
	}

	res := resolver.New(cache, local, remote, log)

	// Partition intraday cache entries by trading session rather than the
	// wall calendar, so weekend requests share Friday's partition.
	res.SetDayFunc(func() string {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if snap, err := res.ResolveSnapshot(ctx, domain.KindTradeCalendar, false); err == nil {
			cal := tradedate.New(snap.Snapshot.TradeDates)
			if day := cal.LatestOn(time.Now()); day != "" {
				return day
			}
		}
		return time.Now().Format("2006-01-02")
	})

	graphProvider := func(ctx context.Context, kind domain.DataKind, force bool) (*domain.Snapshot, error) {
		snapRes, err := res.ResolveSnapshot(ctx, kind, force)
		if err != nil {
			return nil, err
		}
		return snapRes.Snapshot, nil
	}
	graphCache := boardgraph.NewSnapshotCache(filepath.Join(cfg.DataDir, "boardgraph.bin"), log)
	graph := boardgraph.NewManager(graphProvider, graphCache, cfg.ReferenceTTL, log)

	// Warm the graph at startup; failure is not fatal, the first request
	// retries through Ensure.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if _, err := graph.Ensure(ctx); err != nil {
			log.Warn().Err(err).Msg("Board graph not available at startup")
		}
		cancel()
	}

	// Background maintenance.
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.GraphRefreshSchedule, &scheduler.GraphRefreshJob{Manager: graph, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register graph refresh job")
	}
	if err := sched.AddJob(cfg.ReferenceRefreshSchedule, &scheduler.ReferenceRefreshJob{Resolver: res, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register reference refresh job")
	}
	if err := sched.AddJob(cfg.CacheSweepSchedule, &scheduler.CacheSweepJob{Cache: cache, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache sweep job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:      log,
		Config:   cfg,
		Resolver: res,
		Graph:    graph,
		Cache:    cache,
		Sched:    sched,
		StoreDB:  storeDB,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
