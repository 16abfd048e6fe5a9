package main

import (
	"net/http"
	"time"

	"codeberg.org/docforge/server/api/rest/artifacts"
	"codeberg.org/docforge/server/api/rest/health"
	"codeberg.org/docforge/server/api/rest/operations"
	"codeberg.org/docforge/server/api/rest/usage"
	"codeberg.org/docforge/server/api/websocket"
	"codeberg.org/docforge/server/docs"
	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/metrics"
	"codeberg.org/docforge/server/internal/progress"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server.config.AllowedOrigins))
	router.GET("/health", health.Handler(healthChecks(server)))
	router.GET("/metrics", metrics.Handler())
	router.GET("/api/v1/openapi.json", OpenAPIHandler)

	v1 := router.Group("/api/v1")
	v1.Use(auth.IdentityMiddleware())

	{
		v1.GET("/ping", health.PingHandler)

		operations.RegisterRoutes(v1, server.catalog, server.policies, server.orchestrator, server.hub)
		usage.RegisterRoutes(v1, server.ledger, server.policies)
		artifacts.RegisterRoutes(router, v1, server.artifacts, server.downloads)
		websocket.RegisterRoutes(v1, server.hub, progress.OriginChecker(
			server.config.IsProduction(),
			progress.ParseOrigins(server.config.AllowedOrigins),
		))
	}
}

// allows every origin when ALLOWED_ORIGINS is empty
func CORSMiddleware(allowedOrigins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", auth.ClientIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if origins := progress.ParseOrigins(allowedOrigins); len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
	}

	return cors.New(cfg)
}

// serves the generated swagger document
func OpenAPIHandler(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(docs.SwaggerInfo.ReadDoc()))
}

func healthChecks(server *Server) map[string]health.Pinger {
	checks := map[string]health.Pinger{}

	if server.redis != nil {
		checks["redis"] = server.counter
	}

	if server.db != nil {
		checks["postgres"] = server.db
	}

	return checks
}

