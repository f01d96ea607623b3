package handlers

import (
	"coupon-cashback-system/middleware"
	"coupon-cashback-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService) {
	// 🔐 Wallet routes require the gateway token plus a user context.
	secured := app.Group("/wallet", middleware.GatewayAuthMiddleware(), middleware.UserContextMiddleware())

	secured.Get("/", walletService.GetWalletSummary)
	secured.Get("/transactions", walletService.ListWalletTransactions)
	secured.Post("/withdrawals", walletService.RequestWithdrawal)
	secured.Post("/missing-cashback", walletService.SubmitMissingCashbackClaim)
}
