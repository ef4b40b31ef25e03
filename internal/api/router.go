package api

import (
	"github.com/andika/product-import/internal/api/handler"
	"github.com/andika/product-import/internal/api/middleware"
	"github.com/andika/product-import/internal/config"
	"github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/service"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	importService *service.ImportService,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	importHandler := handler.NewImportHandler(importService, cfg.Import.MaxUploadMB)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/products/import", importHandler.Import)
		v1.GET("/products/import/:id/status", importHandler.Status)
	}

	return r
}
