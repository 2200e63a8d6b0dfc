package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/Turbo-Partners/UGCHUB-sub009/handler"
	"github.com/Turbo-Partners/UGCHUB-sub009/middleware"
	"github.com/Turbo-Partners/UGCHUB-sub009/pkg/logger"
	"github.com/Turbo-Partners/UGCHUB-sub009/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	archiveSvc, err := service.NewArchiveService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize archive service", "error", err)
		os.Exit(1)
	}

	if err := archiveSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure archive bucket", "error", err)
		os.Exit(1)
	}

	// Missing provider credentials must stop the server here, not fail the
	// first envelope.
	providerClient, err := service.NewProviderClient(&cfg.Provider)
	if err != nil {
		slog.Error("failed to initialize signing provider client", "error", err)
		os.Exit(1)
	}

	envelopeSvc := service.NewEnvelopeService(providerClient, &cfg.Provider)

	service.InitEnvelopeStore(&cfg.Store)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	envelopeHandler := handler.NewEnvelopeHandler(envelopeSvc, archiveSvc)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(100, time.Minute))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/envelopes", envelopeHandler.Create)
		protected.GET("/envelopes", envelopeHandler.List)
		protected.GET("/envelopes/:id", envelopeHandler.Get)
		protected.GET("/envelopes/:id/status", envelopeHandler.GetStatus)
		protected.GET("/envelopes/:id/downloads", envelopeHandler.GetDownloads)
		protected.DELETE("/envelopes/:id", envelopeHandler.Cancel)
	}

	// Create server. Write timeout must cover a full readiness poll.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers for the React front end
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
