package artifacts

import (
	stderrors "errors"
	"mime"
	"net/http"

	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/logger"
	"github.com/gin-gonic/gin"
)

// Download godoc
// @Summary Download an artifact
// @Description Streams a packaged result. Each artifact can be downloaded once; it is deleted when the transfer ends, complete or not
// @Tags artifacts
// @Produce application/zip
// @Param id path string true "Artifact ID"
// @Success 200 {file} binary
// @Failure 404 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Router /api/v1/artifacts/{id} [get]
func Download(store Opener) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := errors.ValidatePathUUID(c, "id")
		if !ok {
			errors.ArtifactNotFound(c)
			return
		}

		dl, err := store.Open(c.Request.Context(), id)
		if err != nil {
			if stderrors.Is(err, artifact.ErrNotFound) {
				errors.ArtifactNotFound(c)
				return
			}

			errors.InternalError(c, "failed to open artifact", err)
			return
		}

		defer func() {
			if err := dl.Close(); err != nil {
				logger.WarnErr(err, "failed to destroy artifact", "artifact_id", id)
			}
		}()

		c.DataFromReader(http.StatusOK, dl.Size, "application/zip", dl, map[string]string{
			"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": dl.DownloadName}),
			"Cache-Control":       "no-store",
		})
	}
}
