package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dormship-backend/api/controllers"
	deliverycontrollers "github.com/angelmondragon/dormship-backend/api/controllers/deliveries"
	ordercontrollers "github.com/angelmondragon/dormship-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/dormship-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/dormship-backend/api/controllers/webhooks"
	"github.com/angelmondragon/dormship-backend/api/handlers"
	"github.com/angelmondragon/dormship-backend/api/middleware"
	"github.com/angelmondragon/dormship-backend/internal/deliveries"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/payments"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

// RateLimiter is the fixed-window counter behind mutation throttling.
type RateLimiter = middleware.WindowCounter

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	tokens middleware.TokenVerifier,
	dbP handlers.Pinger,
	redisP handlers.Pinger,
	limiter RateLimiter,
	ordersSvc orders.Service,
	deliveriesSvc deliveries.Service,
	paymentsSvc payments.Service,
	notificationsSvc notifications.Service,
	banAdmin controllers.BanAdmin,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	mutationPolicy := middleware.RateLimitPolicy{
		Name:   "mutations",
		Window: cfg.RateLimit.Window,
		Limit:  cfg.RateLimit.Limit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", handlers.Live(cfg))
		r.Get("/ready", handlers.Ready(cfg, logg, map[string]handlers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payos", webhookcontrollers.PayOS(paymentsSvc, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(tokens, logg))
		r.Use(middleware.RateLimit(mutationPolicy, limiter, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Post("/delay", ordercontrollers.Delay(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Get("/{orderId}/history", ordercontrollers.History(ordersSvc, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.Get("/{orderId}/payments", paymentcontrollers.List(paymentsSvc, logg))
			r.Post("/{orderId}/payments", paymentcontrollers.Create(paymentsSvc, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsSvc, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsSvc, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsSvc, logg))
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStaff, enums.UserRoleAdmin))
			r.Post("/", deliverycontrollers.Create(deliveriesSvc, logg))
			r.Get("/suggestions", deliverycontrollers.Suggest(deliveriesSvc, logg))
			r.Get("/{deliveryId}", deliverycontrollers.Detail(deliveriesSvc, logg))
			r.Patch("/{deliveryId}", deliverycontrollers.Update(deliveriesSvc, logg))
			r.Delete("/{deliveryId}", deliverycontrollers.Delete(deliveriesSvc, logg))
			r.Get("/{deliveryId}/history", deliverycontrollers.History(deliveriesSvc, logg))
			r.Post("/{deliveryId}/accept", deliverycontrollers.Accept(deliveriesSvc, logg))
			r.Post("/{deliveryId}/finish", deliverycontrollers.Finish(deliveriesSvc, logg))
			r.Post("/{deliveryId}/cancel", deliverycontrollers.Cancel(deliveriesSvc, logg))
			r.Post("/{deliveryId}/route", deliverycontrollers.Route(deliveriesSvc, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Post("/students/{studentId}/unban", controllers.AdminUnbanStudent(banAdmin, logg))
			r.Get("/regulations/{dormitory}", controllers.AdminGetRegulation(banAdmin, logg))
			r.Put("/regulations/{dormitory}", controllers.AdminPutRegulation(banAdmin, logg))
		})
	})

	return r
}
