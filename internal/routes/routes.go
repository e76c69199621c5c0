// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"promos/internal/handlers"
	"promos/internal/metrics"
	"promos/internal/middleware"
	"promos/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Deps carries everything the routes need. Metrics may be nil.
type Deps struct {
	JWTSecret string
	Log       logrus.FieldLogger
	Wallets   *handlers.WalletHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
	Metrics   *metrics.Collector
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, deps Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to the promotions ledger API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})
	app.Get("/health", deps.Health.HealthCheck)
	if deps.Metrics != nil {
		app.Get("/metrics", deps.Metrics.Handler())
	}

	protected := middleware.Protected(deps.JWTSecret, deps.Log)

	api := app.Group("/api", protected)
	setupWalletRoutes(api, deps.Wallets)

	admin := app.Group("/admin", protected)
	setupAdminRoutes(admin, deps.Admin)
}

func setupWalletRoutes(router fiber.Router, h *handlers.WalletHandler) {
	wallets := router.Group("/wallets/:currency")
	wallets.Get("/", middleware.HasPermission(models.PermissionWalletRead), h.GetBalance)
	wallets.Post("/earn", middleware.HasPermission(models.PermissionWalletWrite), h.Earn)
	wallets.Post("/spend", middleware.HasPermission(models.PermissionWalletWrite), h.Spend)
	wallets.Get("/transactions", middleware.HasPermission(models.PermissionWalletRead), h.GetTransactions)
	wallets.Get("/lots", middleware.HasPermission(models.PermissionWalletRead), h.GetLots)
}

func setupAdminRoutes(router fiber.Router, h *handlers.AdminHandler) {
	router.Post("/sweeps", middleware.HasPermission(models.PermissionSweepWrite), h.TriggerSweep)
	router.Get("/queue", middleware.HasPermission(models.PermissionSweepWrite), h.QueueStats)
	router.Get("/cache-stats", middleware.AdminOnly, h.CacheStats)
	router.Get("/wallets/:user/:currency/audit", middleware.HasPermission(models.PermissionAuditRead), h.AuditWallet)
}
