package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Handler godoc
// @Summary Health check
// @Description Reports service health. Unreachable stores make the service degraded, not down, because admission fails open
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func Handler(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := Response{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
		}

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))

			ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
			defer cancel()

			for name, p := range checks {
				if err := p.Ping(ctx); err != nil {
					resp.Checks[name] = "unavailable"
					resp.Status = "degraded"
					continue
				}

				resp.Checks[name] = "ok"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// PingHandler godoc
// @Summary Ping
// @Tags health
// @Produce json
// @Success 200 {object} PingResponse
// @Router /api/v1/ping [get]
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}
