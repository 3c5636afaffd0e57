package api

import (
	"github.com/gin-gonic/gin"
	"github.com/karimnasr/stockroom/internal/api/handler"
	"github.com/karimnasr/stockroom/internal/api/middleware"
	"github.com/karimnasr/stockroom/internal/logger"
	"github.com/karimnasr/stockroom/internal/service"
)

// RouterConfig holds the router's tuning knobs.
type RouterConfig struct {
	Mode        string
	MaxUploadMB int
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	importService *service.ImportService,
	log *logger.Logger,
	cfg RouterConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	importHandler := handler.NewImportHandler(importService, cfg.MaxUploadMB)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			// Queue a new import (products, stock, or sales)
			imports.POST("/:type", importHandler.QueueImport)

			// Job status polling
			imports.GET("/jobs", importHandler.ListJobs)
			imports.GET("/jobs/:id", importHandler.GetJob)

			// Aggregate admission and delete-guard view
			imports.GET("/status", importHandler.GetStatus)

			// Administrative stale job sweep
			imports.POST("/cleanup", importHandler.CleanupStale)
		}
	}

	return r
}
