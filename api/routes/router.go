package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeuslykraios/alauda-api/api/controllers"
	webhookcontrollers "github.com/zeuslykraios/alauda-api/api/controllers/webhooks"
	"github.com/zeuslykraios/alauda-api/api/middleware"
	"github.com/zeuslykraios/alauda-api/internal/content"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/db"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Registry *prometheus.Registry

	Gate     middleware.Admitter
	KeyAuth  middleware.KeyAuthenticator
	Keys     controllers.KeyService
	Usage    controllers.UsageService
	Payments controllers.PaymentService
	Fetcher  content.Fetcher

	MpesaParser  webhookcontrollers.MobileParser
	EmolaParser  webhookcontrollers.MobileParser
	StripeParser webhookcontrollers.StripeParser
	StripeGuard  webhookcontrollers.ReplayGuard
	Reconciler   webhookcontrollers.NotificationApplier
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MobileWebhook(deps.MpesaParser, deps.Reconciler, logg))
		r.Post("/emola", webhookcontrollers.MobileWebhook(deps.EmolaParser, deps.Reconciler, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeParser, deps.Reconciler, deps.StripeGuard, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.KeyAuth(cfg.Gate, deps.KeyAuth, logg))
		r.Post("/", controllers.PaymentInitiate(deps.Payments, logg))
		r.Get("/", controllers.PaymentList(deps.Payments, logg))
		r.Get("/{paymentId}", controllers.PaymentDetail(deps.Payments, logg))
		r.Post("/{paymentId}/cancel", controllers.PaymentCancel(deps.Payments, logg))
	})

	// The metered surface. Every route under the gate charges credits on
	// success and counts against the daily quota.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Gate(cfg.Gate, deps.Gate, logg))
		r.Get("/api/v1/fetch/*", controllers.Fetch(deps.Fetcher, logg))
		r.Get("/api/v1/lookup/*", controllers.Fetch(deps.Fetcher, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Post("/auth/login", controllers.AdminLogin(cfg, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.JWT, logg))

			r.Route("/keys", func(r chi.Router) {
				r.Post("/", controllers.KeyIssue(deps.Keys, logg))
				r.Get("/", controllers.KeyList(deps.Keys, logg))
				r.Get("/{keyId}", controllers.KeyDetail(deps.Keys, logg))
				r.Post("/{keyId}/revoke", controllers.KeyRevoke(deps.Keys, logg))
				r.Post("/{keyId}/reactivate", controllers.KeyReactivate(deps.Keys, logg))
				r.Post("/{keyId}/credits", controllers.KeyGrantCredits(deps.Keys, logg))
				r.Post("/{keyId}/plan", controllers.KeyUpgradePlan(deps.Keys, logg))
				r.Get("/{keyId}/usage", controllers.KeyUsage(deps.Usage, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", controllers.AdminPaymentList(deps.Payments, logg))
				r.Get("/{paymentId}", controllers.AdminPaymentDetail(deps.Payments, logg))
			})
		})
	})

	return r
}
