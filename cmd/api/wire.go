package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dormship-backend/api/routes"
	"github.com/angelmondragon/dormship-backend/internal/bans"
	"github.com/angelmondragon/dormship-backend/internal/deliveries"
	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/payments"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/auth"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/grouping"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/redis"
)

const webhookGuardScope = "payos-webhook"

type app struct {
	handler    http.Handler
	dispatcher *notifications.Dispatcher
}

// wire builds every service and the router on top of open connections.
func wire(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*app, error) {
	reg := prometheus.DefaultRegisterer
	gormDB := dbClient.DB()
	emitter := outbox.NewWriter(logg)
	usersRepo := users.NewRepository(gormDB)
	statusLedger := ledger.NewRepository(gormDB)
	transitions := metrics.NewTransitionMetrics(reg)

	tokens, err := auth.NewSigner(cfg.JWT)
	if err != nil {
		return nil, err
	}

	inbox := notifications.NewRepository(gormDB)
	store, err := notifications.NewStore(dbClient, inbox, emitter)
	if err != nil {
		return nil, err
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Sender:      store,
		Logger:      logg,
		Metrics:     metrics.NewNotificationMetrics(reg),
		MaxAttempts: cfg.Notifications.MaxAttempts,
		BaseDelay:   cfg.Notifications.BaseDelay,
		QueueSize:   cfg.Notifications.QueueSize,
		Workers:     cfg.Notifications.Workers,
	})
	if err != nil {
		return nil, err
	}
	notificationsService, err := notifications.NewService(inbox)
	if err != nil {
		return nil, err
	}

	bansRepo := bans.NewRepository(gormDB)
	bansService, err := bans.NewService(bans.ServiceParams{
		Repo:             bansRepo,
		Users:            usersRepo,
		Tx:               dbClient,
		DefaultThreshold: cfg.Bans.DefaultThreshold,
		Logger:           logg,
	})
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(gormDB)
	deliveriesRepo := deliveries.NewRepository(gormDB)
	settler, err := deliveries.NewSettler(deliveries.SettlerParams{
		Repo:   deliveriesRepo,
		Ledger: statusLedger,
		Users:  usersRepo,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Ledger:   statusLedger,
		Tx:       dbClient,
		Outbox:   emitter,
		Faults:   bansService,
		Students: bansRepo,
		Slots:    bansService,
		Users:    usersRepo,
		Notifier: dispatcher,
		Hook:     settler,
		Fees:     cfg.Fees,
		Metrics:  transitions,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	grouper, err := grouping.NewClient(cfg.Grouping.BaseURL,
		grouping.WithAPIKey(cfg.Grouping.APIKey),
		grouping.WithTimeout(cfg.Grouping.Timeout),
	)
	if err != nil {
		return nil, err
	}
	deliveriesService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:      deliveriesRepo,
		Orders:    ordersService,
		OrderRepo: ordersRepo,
		Ledger:    statusLedger,
		Users:     usersRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Notifier:  dispatcher,
		Grouper:   grouper,
		Metrics:   transitions,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	guard, err := payments.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookGuardScope)
	if err != nil {
		return nil, err
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:     payments.NewRepository(gormDB),
		Orders:   ordersRepo,
		Users:    usersRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Notifier: dispatcher,
		Guard:    guard,
		PayOS:    cfg.PayOS,
		Metrics:  metrics.NewReconcilerMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		dispatcher: dispatcher,
		handler: routes.NewRouter(
			cfg,
			logg,
			tokens,
			dbClient,
			redisClient,
			redisClient,
			ordersService,
			deliveriesService,
			paymentsService,
			notificationsService,
			bansService,
		),
	}, nil
}
