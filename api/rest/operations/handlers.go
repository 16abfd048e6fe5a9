package operations

import (
	stderrors "errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/pipeline"
	"codeberg.org/docforge/server/internal/progress"
	"github.com/gin-gonic/gin"
)

const (
	progressField = "progress_id"
	fileField     = "file"

	// multipart framing on top of the largest allowed input
	uploadSlack = 1 << 20
)

// ListOperations godoc
// @Summary List operations
// @Description Returns the operation catalog with availability for the caller's tier
// @Tags operations
// @Produce json
// @Success 200 {object} ListResponse
// @Router /api/v1/operations [get]
func ListOperations(catalog *invoker.Catalog, policies *config.Policies) gin.HandlerFunc {
	return func(c *gin.Context) {
		tier := auth.CallerTier(c)
		policy := policies.For(tier)

		ops := catalog.List()
		infos := make([]OperationInfo, 0, len(ops))

		for _, op := range ops {
			params := make([]ParamInfo, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, ParamInfo{
					Name:     p.Name,
					Required: p.Required,
					Default:  p.Default,
					Allowed:  p.Allowed,
				})
			}

			infos = append(infos, OperationInfo{
				Name:        op.Name,
				Description: op.Description,
				Feature:     op.Feature,
				Available:   policy.HasFeature(op.Feature),
				Mode:        string(op.Mode),
				Delivery:    string(op.Delivery),
				Extensions:  op.Extensions,
				Params:      params,
			})
		}

		c.JSON(http.StatusOK, ListResponse{Tier: string(tier), Operations: infos})
	}
}

// RunOperation godoc
// @Summary Run an operation
// @Description Uploads one file and runs the named operation on it. Single-output operations return the file; the rest return an artifact id for a one-time download
// @Tags operations
// @Accept multipart/form-data
// @Produce json,application/octet-stream
// @Param name path string true "Operation name"
// @Param file formData file true "Input file"
// @Param progress_id formData string false "UUID to subscribe to on /api/v1/progress/{id}"
// @Success 200 {object} StagedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.LimitResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 429 {object} errors.LimitResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/v1/operations/{name} [post]
// @Security BearerAuth
func RunOperation(catalog *invoker.Catalog, policies *config.Policies, runner Runner, hub *progress.Hub) gin.HandlerFunc {
	maxUpload := largestInput(policies) + uploadSlack

	return func(c *gin.Context) {
		name := c.Param("name")
		op, ok := catalog.Get(name)
		if !ok {
			errors.NotFound(c, "operation")
			return
		}

		callerID := auth.CallerID(c)
		tier := auth.CallerTier(c)

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)

		header, err := c.FormFile(fileField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				errors.PayloadTooLarge(c, policies.For(tier).MaxInputBytes, string(tier))
				return
			}

			errors.InvalidInput(c, "file is required")
			return
		}

		progressID := c.PostForm(progressField)
		if progressID != "" && !errors.IsValidUUID(progressID) {
			errors.InvalidInput(c, "progress_id must be a UUID")
			return
		}

		file, err := header.Open()
		if err != nil {
			errors.BadRequest(c, "failed to read upload", err)
			return
		}
		defer file.Close() //nolint:errcheck,gosec // multipart temp file

		result, err := runner.Run(c.Request.Context(), pipeline.Request{
			CallerID:      callerID,
			Tier:          tier,
			Operation:     name,
			Filename:      header.Filename,
			Size:          header.Size,
			Body:          file,
			Params:        formParams(c),
			SourceAddress: c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			OnLine:        hub.LineSink(callerID, progressID),
		})

		if err != nil {
			if progressID != "" {
				hub.PublishDone(callerID, progressID, progress.DonePayload{Code: errorCode(err)})
			}

			respondError(c, op, err)
			return
		}

		setRateHeaders(c, result.Decision)

		if result.Artifact != nil {
			if progressID != "" {
				hub.PublishDone(callerID, progressID, progress.DonePayload{Success: true, ArtifactID: result.Artifact.ID})
			}

			c.JSON(http.StatusOK, StagedResponse{
				ArtifactID:   result.Artifact.ID,
				DownloadURL:  "/artifact/" + result.Artifact.ID,
				DownloadName: result.Artifact.DownloadName,
				FileCount:    result.Artifact.FileCount,
				Size:         result.Artifact.Size,
				ExpiresAt:    result.Artifact.ExpiresAt,
			})

			return
		}

		if progressID != "" {
			hub.PublishDone(callerID, progressID, progress.DonePayload{Success: true})
		}

		serveDirect(c, op, result.File)
	}
}

// streams the single output and removes its workspace afterwards
func serveDirect(c *gin.Context, op invoker.Operation, out *pipeline.DirectFile) {
	defer func() {
		if err := out.Close(); err != nil {
			logger.WarnErr(err, "failed to remove workspace", "operation", op.Name)
		}
	}()

	f, err := out.Open()
	if err != nil {
		errors.TransformationFailed(c, op.Name, err)
		return
	}
	defer f.Close() //nolint:errcheck,gosec // read-only

	c.DataFromReader(http.StatusOK, out.Size, contentType(out.DownloadName), f, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": out.DownloadName}),
	})
}

func respondError(c *gin.Context, op invoker.Operation, err error) {
	var pe *pipeline.Error
	if !stderrors.As(err, &pe) {
		errors.InternalError(c, "failed to run operation", err)
		return
	}

	var d admission.Decision
	if pe.Decision != nil {
		d = *pe.Decision
		setRateHeaders(c, d)
	}

	switch pe.Code {
	case pipeline.CodeUnknownOperation:
		errors.NotFound(c, "operation")
	case pipeline.CodeInvalidInput:
		errors.InvalidInput(c, pe.Message)
	case string(admission.ReasonRateLimited):
		errors.RateLimited(c, d.RetryAfterSeconds(), d.Limit, int(d.Window.Seconds()), string(d.Tier))
	case string(admission.ReasonQuotaExceeded):
		errors.QuotaExceeded(c, d.Used, d.MaxValue, string(d.Tier))
	case string(admission.ReasonPayloadTooLarge):
		errors.PayloadTooLarge(c, d.MaxValue, string(d.Tier))
	case string(admission.ReasonFeatureNotAvailable):
		errors.FeatureNotAvailable(c, op.Feature, string(d.Tier))
	case pipeline.CodeTransformationFailed:
		errors.TransformationFailed(c, op.Name, pe.Err)
	default:
		errors.InternalError(c, "failed to run operation", err)
	}
}

func errorCode(err error) string {
	var pe *pipeline.Error
	if stderrors.As(err, &pe) {
		return pe.Code
	}

	return "SERVER_ERROR"
}

// only set when the counter store answered
func setRateHeaders(c *gin.Context, d admission.Decision) {
	if d.ResetAt.IsZero() || d.Limit <= 0 {
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// every form field except the file and progress id is an operation parameter
func formParams(c *gin.Context) map[string]string {
	params := make(map[string]string)

	if c.Request.MultipartForm == nil {
		return params
	}

	for key, values := range c.Request.MultipartForm.Value {
		if key == progressField || len(values) == 0 {
			continue
		}

		params[key] = values[0]
	}

	return params
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}

func largestInput(policies *config.Policies) int64 {
	var largest int64

	for _, tier := range policies.Tiers() {
		largest = max(largest, policies.For(tier).MaxInputBytes)
	}

	return largest
}
