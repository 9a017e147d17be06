package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"token-pool-system/handlers"
	"token-pool-system/models"
	"token-pool-system/services"
	"token-pool-system/utils"
	"token-pool-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// CORS for the admin dashboard; the app itself talks header-auth only
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, User-Agent, X-User-ID, X-Firebase-Token, X-Token-Source",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.IntegrityToken{},
		&models.Usage{},
		&models.Trip{},
		&models.ErrorReport{},
		&models.BikeRating{},
		&models.Config{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := services.NewAppCheckVerifier(ctx)
	if err != nil {
		log.Fatal("failed to initialize token verifier:", err)
	}

	poolService := services.NewTokenPoolService(db)
	historyService := services.NewTokenHistoryService(db)
	sourceService := services.NewTokenSourceService(db)
	telemetryService := services.NewTelemetryService(db)
	messageService := services.NewMessageService(db)

	if err := messageService.EnsureDefault(); err != nil {
		log.Fatal("failed to seed config row:", err)
	}

	reclaimer := workers.NewTokenReclaimer(db,
		utils.GetenvDuration("RECLAIM_INTERVAL", workers.DefaultReclaimInterval),
		utils.GetenvDuration("RECLAIM_GRACE", workers.DefaultReclaimGrace),
	)
	reclaimer.Start()

	handlers.SetupTokenRoutes(app, poolService, historyService, sourceService, verifier)
	handlers.SetupStatisticsRoutes(app, telemetryService)
	handlers.SetupMessageRoutes(app, messageService)

	addr := ":" + utils.Getenv("PORT", "5200")
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost%s", addr)
	log.Println("✅ Token reclaimer running")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
