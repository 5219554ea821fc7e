package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/pkg/config"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
	"github.com/lastline-erp/lastline-backend/pkg/migrate"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/outbox/registry"
	"github.com/lastline-erp/lastline-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	replay := flag.String("replay", "", "comma separated dead-lettered event ids to hand back to the publisher, then exit")
	listDLQ := flag.String("dlq", "", "print dead-lettered events with this reason (or \"all\") as JSON lines, then exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})

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

	if *listDLQ != "" {
		if err := printDeadLetters(ctx, outbox.NewDLQRepository(dbClient.DB()), *listDLQ); err != nil {
			logg.Error(ctx, "dead-letter listing failed", err)
			os.Exit(1)
		}
		return
	}

	if *replay != "" {
		if err := replayDeadLetters(ctx, logg, dbClient, outbox.NewDLQRepository(dbClient.DB()), *replay); err != nil {
			logg.Error(ctx, "dead-letter replay failed", err)
			os.Exit(1)
		}
		return
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(promRegistry),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	srv := newOpsServer(cfg.App.Port, promRegistry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logg.Error(context.Background(), "ops server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// newOpsServer exposes liveness and metrics for the publisher process.
func newOpsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler(gatherer))
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// replayDeadLetters moves each listed event out of the dead-letter table in
// its own transaction so one bad id does not block the rest.
func replayDeadLetters(ctx context.Context, logg *logger.Logger, dbClient *db.Client, dlq *outbox.DLQRepository, raw string) error {
	var failed []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eventCtx := logg.WithField(ctx, "event_id", part)
		id, err := uuid.Parse(part)
		if err != nil {
			logg.Warn(eventCtx, "skipping malformed event id")
			failed = append(failed, part)
			continue
		}
		err = dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := dlq.ReplayTx(ctx, tx, id)
			return err
		})
		if err != nil {
			logg.Error(eventCtx, "replay failed", err)
			failed = append(failed, part)
			continue
		}
		logg.Info(eventCtx, "dead-lettered event requeued")
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d event(s) not replayed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func printDeadLetters(ctx context.Context, dlq *outbox.DLQRepository, rawReason string) error {
	filter := outbox.DLQFilter{Limit: 500}
	if !strings.EqualFold(rawReason, "all") {
		reason, err := enums.ParseOutboxDLQErrorReason(rawReason)
		if err != nil {
			return err
		}
		filter.Reason = reason
	}
	rows, err := dlq.List(ctx, filter)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		line := map[string]any{
			"event_id":     row.EventID,
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID,
			"reason":       row.ErrorReason,
			"transient":    row.ErrorReason.Transient(),
			"attempts":     row.AttemptCount,
			"failed_at":    row.FailedAt,
		}
		if row.ErrorMessage != nil {
			line["error"] = *row.ErrorMessage
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
