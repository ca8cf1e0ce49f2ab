package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tallyboard.io/internal/config"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/obs"
	"tallyboard.io/internal/store/pg"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	logger := obs.InitLogger(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: "worker"})
	obs.Init()
	obs.InitBuildInfo("worker", version)

	if cfg.Database.DSN == "" {
		logger.Fatal().Msg("database dsn is required (TALLYBOARD_PG_DSN)")
	}
	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	sched := jobs.NewScheduler(logger, cfg.Jobs.RunTimeout)
	overdue := jobs.NewOverdueSweep(store, logger)
	numbering := jobs.NewInvoiceNumbering(store, cfg.Jobs.InvoicePrefix, logger)
	if err := sched.Add("overdue_tasks", cfg.Jobs.OverdueSchedule, overdue); err != nil {
		logger.Fatal().Err(err).Msg("schedule overdue sweep")
	}
	if err := sched.Add("invoice_numbers", cfg.Jobs.InvoiceSchedule, numbering); err != nil {
		logger.Fatal().Err(err).Msg("schedule invoice numbering")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catch up once at startup so a fresh deploy does not wait for the first tick.
	_, _ = sched.RunNow(ctx, "overdue_tasks", overdue)

	metricsSrv := &http.Server{Addr: metricsAddr(), Handler: obs.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	sched.Start()
	logger.Info().Int("jobs", sched.Entries()).Str("version", version).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("stopping scheduler")
	<-sched.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("stopped")
}

func metricsAddr() string {
	if addr := os.Getenv("TALLYBOARD_WORKER_METRICS_ADDR"); addr != "" {
		return addr
	}
	return ":9102"
}
