package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmcandela/wholestock-backend/api/controllers"
	"github.com/rmcandela/wholestock-backend/api/middleware"
	"github.com/rmcandela/wholestock-backend/internal/balance"
	"github.com/rmcandela/wholestock-backend/internal/orders"
	"github.com/rmcandela/wholestock-backend/internal/wallet"
	"github.com/rmcandela/wholestock-backend/pkg/config"
	"github.com/rmcandela/wholestock-backend/pkg/db"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/idempotency"
	"github.com/rmcandela/wholestock-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersSvc orders.Service,
	balanceSvc balance.Service,
	walletSvc wallet.Service,
	webhookGuard *idempotency.Manager,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		webhookLimit := middleware.NewRateLimitPolicy("webhooks", cfg.Engine.WebhookRateWindow, cfg.Engine.WebhookRateLimit)
		r.Use(middleware.RateLimit(webhookLimit, redisClient, logg))
		r.Post("/payments", controllers.PaymentsWebhook(ordersSvc, balanceSvc, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Engine, logg))

		r.Post("/checkout", controllers.Checkout(ordersSvc, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(ordersSvc, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(ordersSvc, logg))
				r.Post("/cancel", controllers.CancelOrder(ordersSvc, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(enums.ActorRoleSeller.String(), logg))
					r.Post("/balance/request", controllers.RequestBalance(ordersSvc, logg))
					r.Post("/balance/resend", controllers.ResendBalance(balanceSvc, logg))
					r.Post("/production", controllers.StartProduction(ordersSvc, logg))
					r.Post("/fulfill", controllers.FulfillOrder(ordersSvc, logg))
				})
			})
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/credits", controllers.WalletCredit(walletSvc, logg))
			r.Get("/balance", controllers.WalletBalance(walletSvc, logg))
			r.Get("/entries", controllers.WalletEntries(walletSvc, logg))
		})
	})

	return r
}
