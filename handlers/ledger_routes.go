package handlers

import (
	"time"

	"referral-ledger/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewApp builds the fiber app. Immutable copies every string fiber hands out: ids from headers
// and params end up as store keys and must outlive the request buffer.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		Immutable:    true,
		BodyLimit:    10 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
}

// SetupSystemRoutes registers health and metrics endpoints. Register them before the gateway
// middleware so probes and scrapers do not need the gateway token.
func SetupSystemRoutes(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/healthz", Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// SetupLedgerRoutes mounts the user API under /s and the admin API under /s/admin.
func SetupLedgerRoutes(app *fiber.App, h *LedgerHandler, log *zap.Logger) {
	secured := app.Group("/s", middleware.UserContextMiddleware(log))

	secured.Get("/account", h.GetAccount)
	secured.Get("/products", h.ListActiveProducts)

	secured.Get("/investments", h.ListInvestments)
	secured.Post("/investments", h.CreateInvestment)
	secured.Post("/investments/:id/withdraw", h.WithdrawPrincipal)

	secured.Get("/withdrawals", h.ListWithdrawals)
	secured.Post("/withdrawals", h.RequestWithdrawal)

	secured.Get("/deposits", h.ListDeposits)
	secured.Post("/deposits", h.RequestDeposit)

	secured.Get("/earnings", h.ListEarnings)
	secured.Get("/earnings/summary", h.EarningsSummary)
	secured.Get("/earnings/by-type", h.EarningsByType)

	admin := secured.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.Get("/withdrawals", h.ReviewQueueWithdrawals)
	admin.Patch("/withdrawals/:id", h.ReviewWithdrawal)
	admin.Get("/deposits", h.ReviewQueueDeposits)
	admin.Patch("/deposits/:id", h.ReviewDeposit)

	admin.Get("/products", h.ListAllProducts)
	admin.Post("/products", h.CreateProduct)
	admin.Patch("/products/:id", h.UpdateProduct)
	admin.Get("/investments", h.ListAllInvestments)
	admin.Post("/investments/:id/commission/retry", h.RetryCommission)
	admin.Post("/returns/run", h.RunReturns)

	admin.Post("/earnings", h.CreditEarning)
	admin.Post("/referrals", h.RegisterReferral)
}
