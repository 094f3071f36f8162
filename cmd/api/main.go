package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/refurbhq/testbench-backend/api/middleware"
	"github.com/refurbhq/testbench-backend/api/routes"
	"github.com/refurbhq/testbench-backend/internal/authorize"
	"github.com/refurbhq/testbench-backend/internal/catalog"
	"github.com/refurbhq/testbench-backend/internal/ledger"
	"github.com/refurbhq/testbench-backend/internal/reports"
	"github.com/refurbhq/testbench-backend/internal/requests"
	"github.com/refurbhq/testbench-backend/internal/retest"
	"github.com/refurbhq/testbench-backend/internal/tenants"
	"github.com/refurbhq/testbench-backend/pkg/config"
	"github.com/refurbhq/testbench-backend/pkg/db"
	"github.com/refurbhq/testbench-backend/pkg/logger"
	"github.com/refurbhq/testbench-backend/pkg/metrics"
	"github.com/refurbhq/testbench-backend/pkg/migrate"
	"github.com/refurbhq/testbench-backend/pkg/outbox"
	"github.com/refurbhq/testbench-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	catalogRepo := catalog.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	retestRepo := retest.NewRepository(dbClient.DB())
	tenantsRepo := tenants.NewRepository(dbClient.DB())
	requestsRepo := requests.NewRepository(dbClient.DB())
	reportsRepo := reports.NewRepository(dbClient.DB())

	licensingMetrics := metrics.NewLicensingMetrics(prometheus.DefaultRegisterer)
	httpMetrics := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(dbClient, ledgerRepo, catalogRepo, events, licensingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	requestsService, err := requests.NewService(dbClient, requestsRepo, catalogRepo, ledgerRepo, events, licensingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create license request service", err)
		os.Exit(1)
	}

	authorizeService, err := authorize.NewService(
		dbClient,
		tenantsRepo,
		catalogService,
		ledgerRepo,
		retestRepo,
		events,
		licensingMetrics,
		cfg.Licensing.RetestWindow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create authorization service", err)
		os.Exit(1)
	}

	reportsService, err := reports.NewService(reportsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			httpMetrics,
			dbClient,
			redisClient,
			authorizeService,
			ledgerService,
			catalogService,
			requestsService,
			reportsService,
			retestRepo,
			tenantsRepo,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		runErr = multierr.Append(runErr, server.Shutdown(drainCtx))
		if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = multierr.Append(runErr, err)
		}
	}

	if runErr != nil {
		logg.Error(ctx, "api server stopped unexpectedly", runErr)
		os.Exit(1)
	}
}
