package routes

import (
	"net/http"

	"turnover_backend/controllers"
	"turnover_backend/middleware"
	"turnover_backend/scheduler"
	"turnover_backend/services"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, store *services.TurnoverStore, market *services.MarketDataService, sched *scheduler.Scheduler, mirror *services.MongoMirror) {
	// Initialize controllers
	turnoverController := controllers.NewTurnoverController(store, market)
	pipelineController := controllers.NewPipelineController(sched, store, mirror)

	// API v1 group; mutating endpoints are rate limited per IP
	api := router.Group("/api/v1")
	api.Use(middleware.WriteRateLimitMiddleware())
	{
		// Turnover tracking routes
		turnover := api.Group("/turnover")
		{
			turnover.GET("", turnoverController.GetTurnover)
			turnover.GET("/:ticker/series", turnoverController.GetTurnoverSeries)
			turnover.POST("", turnoverController.AddTicker)
			turnover.DELETE("/:id", turnoverController.DeleteTurnover)
		}

		// SOI audit trail
		api.GET("/soi", turnoverController.GetSOI)

		// Chart data (OHLCV + VWAP + cumulative turnover)
		api.GET("/charts/:ticker", turnoverController.GetChartData)

		// Run administration
		runs := api.Group("/runs")
		{
			runs.GET("", pipelineController.GetRuns)
			runs.POST("", pipelineController.SubmitRun)
		}
		api.GET("/scheduler/jobs", pipelineController.GetJobs)

		// Mongo mirror
		syncRoutes := api.Group("/sync")
		{
			syncRoutes.POST("/mongo", pipelineController.SyncMongo)
			syncRoutes.GET("/mongo/status", pipelineController.GetMongoStatus)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		count, err := store.CountTurnover()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"records": count,
		})
	})

	// Root redirect to the tracking table
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/api/v1/turnover")
	})
}
