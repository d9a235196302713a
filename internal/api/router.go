package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/timmy/councilgen/internal/api/handler"
	"github.com/timmy/councilgen/internal/api/middleware"
	"github.com/timmy/councilgen/internal/config"
	"github.com/timmy/councilgen/internal/repository"
	"github.com/timmy/councilgen/internal/service"
	"gorm.io/gorm"
)

// Dependencies are the components the routes are served from.
type Dependencies struct {
	DB       *gorm.DB
	Pipeline *service.Pipeline
	Content  *repository.ContentRepository
	Media    *repository.MediaRepository
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps Dependencies, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger("/health"))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/health"})))

	healthHandler := handler.NewHealthHandler(deps.DB)
	generationHandler := handler.NewGenerationHandler(deps.Pipeline)
	contentHandler := handler.NewContentHandler(deps.Content, deps.Media)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		gen := v1.Group("/generation")
		gen.GET("/status", generationHandler.Status)
		gen.GET("/plan", generationHandler.Plan)
		gen.POST("/start", generationHandler.Start)
		gen.POST("/resume", generationHandler.Resume)
		gen.POST("/retry", generationHandler.Retry)
		gen.POST("/images", generationHandler.Images)
		gen.POST("/pause", generationHandler.Pause)
		gen.POST("/cancel", generationHandler.Cancel)

		v1.GET("/content", contentHandler.ListContent)
		v1.GET("/content/:id", contentHandler.GetContent)
		v1.GET("/media/:id", contentHandler.GetMedia)
	}

	return r
}
