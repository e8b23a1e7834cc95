// Command outbox-publisher relays committed outbox rows to Pub/Sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/migrate"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/pubsub"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "outbox-publisher: config:", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox.publisher_failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox.publisher_stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	router := outbox.NewRouter(cfg.PubSub)
	ps, err := pubsub.NewClient(ctx, cfg.GCP, router.Topics(), logg)
	if err != nil {
		return err
	}
	defer ps.Close()

	relay, err := NewRelay(RelayParams{
		Logger:  logg,
		DB:      dbClient,
		Store:   outbox.NewStore(dbClient.DB()),
		Sender:  ps,
		Router:  router,
		Outbox:  cfg.Outbox,
		Metrics: metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "topics", router.Topics()), "outbox.publisher_started")
	return relay.Run(ctx)
}
