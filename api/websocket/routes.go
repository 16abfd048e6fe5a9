package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/docforge/server/internal/progress"
)

func RegisterRoutes(router *gin.RouterGroup, hub *progress.Hub, checkOrigin func(r *http.Request) bool) {
	router.GET("/progress/:id", ProgressHandler(hub, checkOrigin))
}
