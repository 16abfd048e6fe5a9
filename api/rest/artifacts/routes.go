package artifacts

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
)

// the short link sits at the root, the versioned one under the api group
func RegisterRoutes(root gin.IRouter, api *gin.RouterGroup, store Opener, l *limiter.Limiter) {
	throttle := Throttle(l)

	root.GET("/artifact/:id", throttle, Download(store))
	api.GET("/artifacts/:id", throttle, Download(store))
}
