package handlers

import (
	"coupon-cashback-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRedirectRoutes(app *fiber.App, redirectService *services.RedirectService) {
	// Public — these are the links embedded in the storefront, no auth.
	app.Get("/health", redirectService.Health)
	app.Get("/out/*", redirectService.HandleRedirect)
}
