package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kuwaiba/osp-core/internal/config"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/db"
	"kuwaiba/osp-core/internal/httpapi"
	"kuwaiba/osp-core/internal/inventory"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/midspan"
	"kuwaiba/osp-core/internal/portsync"
)

func main() {
	logger := httpapi.NewLogger(envOr("LOG_LEVEL", "info"))

	cfgPath := envOr("OSP_CONFIG", "")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		logger.Fatal().Err(err).Msg("invalid environment")
	}

	logger = httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		pool  *db.Pool
		store connectivity.Store
		meta  connectivity.Metadata
	)
	if cfg.DatabaseURL != "" {
		p, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		if dir := envOr("OSP_MIGRATIONS", ""); dir != "" {
			if err := p.Migrate(ctx, dir); err != nil {
				logger.Fatal().Err(err).Str("dir", dir).Msg("failed to apply migrations")
			}
		}
		pool = p
		q := p.Queries()
		store, meta = q, q
	} else {
		mem := inventory.New()
		if cfg.SeedPath != "" {
			seed, err := inventory.LoadSeed(cfg.SeedPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to load seed")
			}
			if err := mem.Apply(ctx, seed); err != nil {
				logger.Fatal().Err(err).Msg("failed to apply seed")
			}
		}
		logger.Warn().Str("seed", cfg.SeedPath).Msg("DATABASE_URL not set; using in-memory inventory")
		store, meta = mem, mem
	}

	m := metrics.New()
	sessions := midspan.NewRegistry(midspan.Deps{
		Store:    store,
		Metadata: meta,
		Log:      logger,
		Metrics:  m,
		Layout:   cfg.Layout.Options(),
	}, cfg.Sessions.IdleTimeout.Duration())
	go sessions.Run(ctx, cfg.Sessions.SweepInterval.Duration())

	var ports *portsync.Syncer
	if cfg.PortSync.Enabled {
		ports = &portsync.Syncer{
			Store:    store,
			Metadata: meta,
			Walker: portsync.NewClient(portsync.Config{
				Community: cfg.PortSync.Community,
				Version:   cfg.PortSync.Version,
				Port:      cfg.PortSync.Port,
				Timeout:   cfg.PortSync.Timeout.Duration(),
				Retries:   cfg.PortSync.Retries,
			}),
			Log:     logger,
			Metrics: m,
		}
	}

	h := httpapi.NewHandler(logger, httpapi.Deps{
		Pool:     pool,
		Store:    store,
		Metadata: meta,
		Metrics:  m,
		Layout:   cfg.Layout.Options(),
		Sessions: sessions,
		PortSync: ports,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("osp-core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
