package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turnover_backend/config"
	"turnover_backend/routes"
	"turnover_backend/scheduler"
	"turnover_backend/services"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("==============================================")
	log.Println("  Register Turnover Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}
	log.Printf("Environment: %s, store: %s", cfg.Environment, cfg.StorePath())

	// Set Gin mode based on environment
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize the shared store. The pipeline and the HTTP layer both go
	// through this store; it resolves the file from the environment.
	store := services.NewTurnoverStore(cfg)
	if err := store.Init(); err != nil {
		log.Fatalf("Store initialization failed: %v", err)
	}

	// Initialize the Mongo mirror (no-op when MONGODB_URI is unset)
	if err := services.InitMongoMirror(cfg.MongoURI); err != nil {
		log.Printf("Mongo mirror not available: %v", err)
	}

	// Wire the ingestion pipeline
	scannerSvc := services.NewScannerService(cfg)
	marketSvc := services.NewMarketDataService(cfg)
	cutoffCalc := services.NewCutoffCalculator(cfg)
	pipeline := services.NewTurnoverPipeline(cfg, store, scannerSvc, marketSvc, cutoffCalc)

	// Start the daily triggers
	jobScheduler, err := scheduler.NewScheduler(cfg, pipeline, store, services.GlobalMongoMirror)
	if err != nil {
		log.Fatalf("Scheduler setup failed: %v", err)
	}
	if err := jobScheduler.Start(); err != nil {
		log.Fatalf("Scheduler start failed: %v", err)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup all API routes
	routes.SetupRoutes(router, store, marketSvc, jobScheduler, services.GlobalMongoMirror)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(server, jobScheduler)
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop the trigger loop, then cancel any run still waiting for cutoff
	jobScheduler.Stop()
	jobScheduler.CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Drop the mirror connection last
	if services.GlobalMongoMirror != nil {
		if err := services.GlobalMongoMirror.Close(); err != nil {
			log.Printf("Mirror close failed: %v", err)
		}
	}

	log.Println("Server shutdown completed")
}
