package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coupon-cashback-system/handlers"
	"coupon-cashback-system/models"
	"coupon-cashback-system/services"
	"coupon-cashback-system/utils"
	"coupon-cashback-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		ProxyHeader: fiber.HeaderXForwardedFor, // real client IP for click logging
	})

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOriginsList, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, User-Agent, X-User-ID",
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Merchant{},
		&models.Offer{},
		&models.OfferClick{},
		&models.CashbackEvent{},
		&models.WalletTransaction{},
		&models.NotificationJob{},
		&models.Withdrawal{},
		&models.MissingCashbackClaim{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// R2 is optional: claims are accepted without screenshots when unset.
	if os.Getenv("R2_ACCESS_KEY_ID") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	} else {
		log.Println("⚠️  R2 not configured — claim screenshots disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clickLogger := services.NewClickLogger(db, 1024)
	go clickLogger.Run(ctx)

	redirectService := services.NewRedirectService(db, clickLogger)
	settlementService := services.NewSettlementService(db)
	walletService := services.NewWalletService(db)

	syncWorker := workers.NewCashbackSyncWorker(db, workers.NewAffiliateClient(), settlementService)
	if err := syncWorker.Start(ctx); err != nil {
		log.Fatal("failed to start cashback sync worker:", err)
	}

	notificationWorker := workers.NewNotificationWorker(db, workers.NewMailClient())
	go notificationWorker.Run(ctx)

	handlers.SetupRedirectRoutes(app, redirectService)
	handlers.SetupWalletRoutes(app, walletService)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("🚀 Redirector service running on http://localhost:%s", port)
	log.Println("✅ Cashback sync worker running")
	log.Println("✅ Notification worker running")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
