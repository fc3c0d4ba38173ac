package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mega/chat-service/config"
	"mega/chat-service/db"
	"mega/chat-service/handlers"
	"mega/chat-service/middleware"
	"mega/chat-service/services"
	"mega/chat-service/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Connect to redis for the presence mirror
	redisClient, err := services.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	if redisClient == nil {
		logger.Warn("Presence mirror disabled, no Redis URL configured")
	} else {
		defer redisClient.Close()
	}

	// Initialize chat components
	store := services.NewGormStore(database)
	hub := services.NewHub(logger)
	presence := services.NewPresenceTracker(store, hub, redisClient, cfg, logger)
	router := services.NewMessageRouter(store, hub, logger)
	typing := services.NewTypingRelay(hub)
	receipts := services.NewReadReceiptCoordinator(store, hub, logger)

	// Initialize handlers
	socketHandler := handlers.NewSocketHandler(hub, presence, router, typing, receipts, logger)
	presenceHandler := handlers.NewPresenceHandler(presence, logger)

	// Start the presence sweep
	presence.Start()

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(logger))
	engine.Use(middleware.CORS())

	// Health check endpoint
	engine.GET("/health", handlers.HealthCheck)

	// WebSocket endpoint with JWT authentication
	engine.GET("/ws", middleware.Auth(cfg.JWTSecret), socketHandler.Serve)

	// Presence snapshot API
	v1 := engine.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret))
	{
		presenceRoutes := v1.Group("/presence")
		{
			presenceRoutes.GET("/status", presenceHandler.GetStatus)
			presenceRoutes.GET("/online", presenceHandler.GetOnlineUsers)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Chat Service", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the presence sweep
	presence.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
