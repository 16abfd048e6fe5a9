package operations

import (
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/progress"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(rg *gin.RouterGroup, catalog *invoker.Catalog, policies *config.Policies, runner Runner, hub *progress.Hub) {
	ops := rg.Group("/operations")

	ops.GET("", ListOperations(catalog, policies))
	ops.POST("/:name", RunOperation(catalog, policies, runner, hub))
}
