package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tradeclash/contest-engine/internal/api/handlers"
)

// SetupRoutes mounts the engine's HTTP surface on the router.
func SetupRoutes(router *gin.Engine, health *handlers.HealthHandler, contests *handlers.ContestHandler) {
	router.Use(otelgin.Middleware("contest-engine"))

	router.GET("/health", health.Check)

	v1 := router.Group("/api/v1")
	{
		group := v1.Group("/contests")
		{
			group.GET("", contests.List)
			group.GET("/:id", contests.Get)
			group.GET("/:id/phase", contests.Phase)
			group.GET("/:id/settlement", contests.Settlement)
			group.POST("/:id/enter", contests.Enter)
		}
	}
}
