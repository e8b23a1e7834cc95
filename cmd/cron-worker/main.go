// Command cron-worker runs retention housekeeping. Several replicas may run;
// a redis lease lets one of them work each cycle.
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

	"github.com/angelmondragon/dormship-backend/internal/cron"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/migrate"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/redis"
)

const leaseName = "cron-worker"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cron-worker: config:", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron.worker_failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron.worker_stopped")
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	outboxJob, err := cron.NewOutboxRetentionJob(outbox.NewStore(dbClient.DB()), cfg.Outbox.Retention, logg)
	if err != nil {
		return err
	}
	inboxJob, err := cron.NewNotificationRetentionJob(notifications.NewRepository(dbClient.DB()), cfg.Notifications.Retention, logg)
	if err != nil {
		return err
	}
	schedule, err := cron.NewSchedule(
		cron.Entry{Job: outboxJob, Every: cfg.Cron.OutboxRetentionEvery},
		cron.Entry{Job: inboxJob, Every: cfg.Cron.NotificationRetentionEvery},
	)
	if err != nil {
		return err
	}

	lease, err := cron.NewRedisLease(redisClient, leaseName, cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lease:    lease,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		MaxTick:  cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}
	return service.Run(ctx)
}
