package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledger-core/internal/api/handlers"
	"ledger-core/internal/api/middleware"
	"ledger-core/internal/config"
)

// RegisterRoutes registers every route with the container dependencies
// using closure-based handler wiring.
func RegisterRoutes(router *gin.Engine, container handlers.HandlerDependencies, cfg *config.Config) {
	router.Use(middleware.RequestContext()) // request-scoped ID and logging (first!)
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimit(cfg))
	router.Use(middleware.PrometheusMiddleware())

	router.POST("/commands", handlers.MakeCreateCommandHandler(container))
	router.POST("/commands/process", handlers.MakeProcessCommandHandler(container))
	router.GET("/commands/dead-letter", handlers.MakeListDeadLetterHandler(container))

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
