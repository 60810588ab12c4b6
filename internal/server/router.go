package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/draftforge/draftforge-backend/internal/handlers"
)

type RouterConfig struct {
	PipelineHandler *handlers.PipelineHandler
	EmailHandler    *handlers.EmailHandler
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", handlers.Metrics)

	api := router.Group("/api")
	{
		pipeline := api.Group("/pipeline")
		{
			pipeline.GET("/:sessionID", cfg.PipelineHandler.GetState)
			pipeline.POST("/:sessionID/steps/:kind", cfg.PipelineHandler.RunStep)
			pipeline.POST("/:sessionID/selection/:node", cfg.PipelineHandler.ChangeSelection)
			pipeline.POST("/:sessionID/regenerate/:node", cfg.PipelineHandler.Regenerate)
		}
		api.POST("/email/generate", cfg.EmailHandler.Generate)
	}

	return router
}
