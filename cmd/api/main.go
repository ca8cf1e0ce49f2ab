package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/config"
	"tallyboard.io/internal/httpapi"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/obs"
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/store/pg"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	logger := obs.InitLogger(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: "api"})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	obs.Init()
	obs.InitBuildInfo("api", version)

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

	sessions, err := auth.NewSessions(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		logger.Fatal().Err(err).Msg("init sessions")
	}

	authority := roles.NewAuthority(store)
	var resolver roles.Resolver = authority.FromContext()
	if cfg.Roles.ResolverURL != "" {
		resolver = roles.NewClient(cfg.Roles.ResolverURL,
			roles.WithTokenSource(roles.ContextToken),
			roles.WithHTTPClient(&http.Client{Timeout: cfg.Roles.Timeout}),
		)
		logger.Info().Str("url", cfg.Roles.ResolverURL).Msg("using remote role authority")
	}

	engine := access.New(access.WithCatalog(plans.NewCatalog(plans.WithStrict(cfg.Access.StrictCatalog))))

	var payments *jobs.PaymentVerifier
	if cfg.Billing.PaymentSecret != "" {
		payments, err = jobs.NewPaymentVerifier(cfg.Billing.PaymentSecret, store)
		if err != nil {
			logger.Fatal().Err(err).Msg("init payments")
		}
	} else {
		logger.Warn().Msg("payment secret not set; payment verification disabled")
	}

	api := httpapi.New(httpapi.Deps{
		Sessions:      sessions,
		Credentials:   store,
		Roles:         resolver,
		Subscriptions: store,
		Ownership:     store,
		Deleter:       jobs.NewBulkDeleter(store, engine),
		Payments:      payments,
		Access:        engine,
		Ready:         store,
		Audit:         audit.New(logger),
		Logger:        logger,
		Version:       version,
	},
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpapi.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// The gRPC authority always answers from the local directory.
	grpcSrv := httpapi.NewGRPCServer(sessions, authority.FromContext(), store, logger.With().Str("transport", "grpc").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.Server.GRPCAddr != "" {
		go func() {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				errCh <- err
				return
			}
			logger.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		go watchReadiness(ctx, grpcSrv, logger)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	grpcSrv.Shutdown()
	logger.Info().Msg("stopped")
}

func watchReadiness(ctx context.Context, srv *httpapi.GRPCServer, logger zerolog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := srv.CheckReadiness(pingCtx); err != nil {
				logger.Warn().Err(err).Msg("readiness check failed")
			}
			cancel()
		}
	}
}
