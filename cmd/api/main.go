// Command api serves the dormship HTTP API and the PayOS webhook.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/migrate"
	"github.com/angelmondragon/dormship-backend/pkg/redis"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "api: config:", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api.failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api.stopped")
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

	a, err := wire(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}
	a.dispatcher.Start()

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler:           a.handler,
	}
	return serve(logg.WithField(ctx, "addr", addr), logg, server, a)
}

// serve runs server until ctx ends, then drains in-flight requests and
// queued notifications within shutdownTimeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server, a *app) error {
	failed := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api.listening")
		failed <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-failed:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api.shutdown_failed", err)
	}
	if err := a.dispatcher.Close(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api.dispatcher_not_drained", err)
	}
	return runErr
}
