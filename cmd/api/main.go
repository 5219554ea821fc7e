package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lastline-erp/lastline-backend/api/routes"
	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/internal/locks"
	"github.com/lastline-erp/lastline-backend/internal/productioncards"
	"github.com/lastline-erp/lastline-backend/internal/projects"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/config"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
	"github.com/lastline-erp/lastline-backend/pkg/migrate"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if sqlDB, err := dbClient.SQL(); err == nil {
		registry.MustRegister(collectors.NewDBStatsCollector(sqlDB, "lastline"))
	}
	prod := metrics.NewProductionMetrics(registry)

	var (
		redisClient      *redis.Client
		idempotencyStore redis.IdempotencyStore
		locker           locks.Locker
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		idempotencyStore = redisClient

		redisLocker, err := locks.NewRedisLocker(redisClient, cfg.Production.SubmissionLockTTL, prod, logg)
		if err != nil {
			logg.Error(ctx, "failed to create submission locker", err)
			os.Exit(1)
		}
		locker = redisLocker
	} else {
		logg.Warn(ctx, "redis disabled; submission locks are process-local and idempotency keys are ignored")
		locker = locks.NewMemoryLocker(prod)
	}

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	projectRepo := projects.NewRepository(conn)
	cardRepo := productioncards.NewRepository(conn)
	costRepo := consumption.NewRepository(conn)

	resolver, err := consumption.NewResolver(costRepo)
	if err != nil {
		logg.Error(ctx, "failed to create consumption resolver", err)
		os.Exit(1)
	}

	ledger, err := allocation.NewLedger(projectRepo, cardRepo)
	if err != nil {
		logg.Error(ctx, "failed to create allocation ledger", err)
		os.Exit(1)
	}

	requisitionService, err := requisitions.NewService(requisitions.ServiceParams{
		Repo:    requisitions.NewRepository(conn),
		Tx:      dbClient,
		Outbox:  emitter,
		Locker:  locker,
		Cards:   cardRepo,
		Sheets:  resolver,
		Metrics: prod,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create requisition service", err)
		os.Exit(1)
	}

	cardService, err := productioncards.NewService(productioncards.ServiceParams{
		Repo:         cardRepo,
		Projects:     projectRepo,
		Requisitions: requisitionService,
		Sheets:       resolver,
		Ledger:       ledger,
		Tx:           dbClient,
		Outbox:       emitter,
		Locker:       locker,
		Metrics:      prod,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create production card service", err)
		os.Exit(1)
	}

	projectService, err := projects.NewService(projects.ServiceParams{
		Repo:      projectRepo,
		CostLines: costRepo,
		Resolver:  resolver,
		Ledger:    ledger,
		Tx:        dbClient,
		Outbox:    emitter,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create project service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"redis": redisClient != nil,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			idempotencyStore,
			registry,
			projectService,
			cardService,
			requisitionService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(serverCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(serverCtx, "api server stopped")
}
