package usage

import (
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/ledger"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(rg *gin.RouterGroup, l *ledger.Ledger, policies *config.Policies) {
	usage := rg.Group("/usage")

	usage.GET("", GetUsage(l, policies))
	usage.GET("/history", GetHistory(l))
}
