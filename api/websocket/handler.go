package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/progress"
)

func newUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// ProgressHandler godoc
// @Summary Watch an operation
// @Description Upgrades to a websocket that receives output lines and a final done event for the run started with the same progress_id
// @Tags progress
// @Param id path string true "Progress ID (UUID)"
// @Param token query string false "JWT, for clients that cannot send headers"
// @Success 101
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Router /api/v1/progress/{id} [get]
func ProgressHandler(hub *progress.Hub, checkOrigin func(r *http.Request) bool) gin.HandlerFunc {
	upgrader := newUpgrader(checkOrigin)

	return func(c *gin.Context) {
		progressID, ok := errors.ValidatePathUUID(c, "id")
		if !ok {
			errors.BadRequest(c, "invalid progress id", nil)
			return
		}

		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		callerID := auth.CallerID(c)

		if params.Token != "" {
			claims, err := auth.ValidateJWT(params.Token)
			if err != nil {
				errors.Unauthorized(c, "invalid or expired token")
				return
			}

			callerID = claims.UserID
		}

		if err := hub.Admit(callerID, progressID); err != nil {
			errors.TooManyRequests(c, "too many progress connections")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader has already written the http error
			logger.WarnErr(err, "websocket upgrade failed", "progress_id", progressID)
			return
		}

		client := progress.NewClient(callerID, progressID, conn, hub)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
