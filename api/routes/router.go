package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/refurbhq/testbench-backend/api/controllers"
	"github.com/refurbhq/testbench-backend/api/middleware"
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
	"github.com/refurbhq/testbench-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	httpMetrics *middleware.HTTPMetrics,
	dbP db.Pinger,
	redisClient *redis.Client,
	authorizeService authorize.Service,
	ledgerService ledger.Service,
	catalogService catalog.Service,
	requestsService requests.Service,
	reportsService reports.Service,
	retestRepo retest.Repository,
	tenantsRepo tenants.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Use(middleware.TenantContext(logg))

		r.Post("/authorizations/test", controllers.AuthorizeTest(authorizeService, logg))

		r.Route("/licenses", func(r chi.Router) {
			r.Get("/balances", controllers.LicenseBalances(ledgerService, logg))
			r.Get("/ledger", controllers.LicenseLedger(ledgerService, logg))
		})

		r.Post("/license-requests", controllers.LicenseRequestCreate(requestsService, logg))
		r.Get("/license-requests", controllers.LicenseRequestList(requestsService, logg))

		r.Get("/devices/{deviceIdentifier}/licenses", controllers.DeviceLicenseHistory(retestRepo, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.AdminPing())

		r.Route("/v1", func(r chi.Router) {
			r.Post("/license-types", controllers.AdminLicenseTypeCreate(catalogService, logg))
			r.Get("/license-types", controllers.AdminLicenseTypeList(catalogService, logg))
			r.Patch("/license-types/{licenseTypeId}", controllers.AdminLicenseTypeUpdate(catalogService, logg))
			r.Patch("/license-types/{licenseTypeId}/active", controllers.AdminLicenseTypeSetActive(catalogService, logg))

			r.Post("/licenses/adjustments", controllers.AdminManualAdjustment(ledgerService, logg))
			r.Post("/licenses/quick-grant", controllers.AdminQuickGrant(ledgerService, logg))

			r.Get("/license-requests", controllers.AdminLicenseRequestList(requestsService, logg))
			r.Post("/license-requests/{requestId}/review", controllers.AdminLicenseRequestReview(requestsService, logg))

			r.Get("/reports/usage", controllers.AdminUsageReport(reportsService, logg))
			r.Get("/tenants", controllers.AdminTenantList(tenantsRepo, logg))
		})
	})

	return r
}
