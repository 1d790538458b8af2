package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/database"
	"backoffice/internal/handler"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// @title           Back-Office Approvals API
// @version         1.0
// @description     Approval workflow engine for the multi-module back office.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dsn := "postgres://" + getenv("DB_USER", "postgres") + ":" + getenv("DB_PASSWORD", "postgres") +
		"@" + getenv("DB_HOST", "localhost") + ":" + getenv("DB_PORT", "5432") +
		"/" + getenv("DB_NAME", "postgres") + "?sslmode=" + getenv("DB_SSLMODE", "disable")

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	approvalRepo := repository.NewApprovalRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	txManager := repository.NewTransactionManager(db)

	baseCurrency := getenv("BASE_CURRENCY", "TRY")
	approvalService := service.NewApprovalService(approvalRepo, auditRepo, txManager, baseCurrency)
	statsService := service.NewStatsService(approvalRepo)
	authService := service.NewAuthService(userRepo)

	// Poll for new pending approvals and push a refresh signal to viewers.
	// Best effort only: a viewer that is offline misses the event.
	notifier := service.NewApprovalNotifier(approvalRepo)
	interval := service.DefaultPollInterval
	if raw := os.Getenv("NOTIFY_INTERVAL_SECONDS"); raw != "" {
		if parsed, parseErr := time.ParseDuration(raw + "s"); parseErr == nil && parsed > 0 {
			interval = parsed
		}
	}
	for _, raw := range strings.Split(os.Getenv("NOTIFY_FACILITIES"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		facilityID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			log.Printf("Skipping invalid facility id in NOTIFY_FACILITIES: %q", raw)
			continue
		}
		notifier.Subscribe(context.Background(), facilityID, interval, func(requests []model.ApprovalRequest) {
			wsHub.BroadcastEvent(websocket.Event{
				Type:       "approvals.new",
				FacilityID: facilityID.String(),
				Count:      len(requests),
			})
		})
	}

	// Initialize Handlers
	approvalHandler := handler.NewApprovalHandler(approvalService, statsService)
	auditHandler := handler.NewAuditHandler(auditRepo)
	authHandler := handler.NewAuthHandler(authService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(getenv("CORS_ORIGINS", "http://localhost:5173"), ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	approvalHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	authHandler.RegisterRoutes(router.Group(""))

	port := getenv("PORT", "8080")
	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
