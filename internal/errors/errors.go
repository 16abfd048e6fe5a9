package errors

import (
	"net/http"
	"strconv"

	"codeberg.org/docforge/server/internal/logger"
	"github.com/gin-gonic/gin"
)

// Error Handling Guidelines:
//
// For HTTP REST handlers:
//   - Use errors.InternalError(), errors.BadRequest(), etc. for terminal errors.
//     These helpers write the response (and log where the error is ours).
//   - Use logger.ErrorErr() only for non-critical errors where processing continues.
//   - Never call both logger.ErrorErr() and errors.InternalError() for the same error.
//
// For internal packages (admission, ledger, invoker, artifact, pipeline):
//   - Return wrapped errors with context using fmt.Errorf("context: %w", err).
//   - Let the handler decide how to log and respond.
//   - Exceptions are the "log and swallow" paths: ledger writes, fail-open admission,
//     artifact sweeps. Those log where they happen because nobody upstream sees the error.

// standard error codes
const (
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeValidationError      = "validation_error"
	CodeServerError          = "server_error"
	CodeBadRequest           = "bad_request"
	CodeRateLimited          = "rate_limited"
	CodeQuotaExceeded        = "quota_exceeded"
	CodePayloadTooLarge      = "payload_too_large"
	CodeInvalidInput         = "invalid_input"
	CodeFeatureNotAvailable  = "feature_not_available"
	CodeTransformationFailed = "transformation_failed"
	CodeArtifactNotFound     = "artifact_not_found"
)

const upgradeURL = "/pricing"

// returns a 401 unauthorized error
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}

	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// returns a 403 forbidden error
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "permission denied"
	}

	c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   CodeForbidden,
		Message: message,
	})
}

// returns a 404 not found error
func NotFound(c *gin.Context, resource string) {
	message := "resource not found"

	if resource != "" {
		message = resource + " not found"
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// returns a 400 bad request error
func BadRequest(c *gin.Context, message string, err error) {
	if message == "" {
		message = "invalid request"
	}

	response := ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
	}

	if err != nil {
		response.Details = sanitizeError(err)
	}

	c.JSON(http.StatusBadRequest, response)
}

// returns a 400 for request validation failures
func ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: "request validation failed",
		Details: sanitizeError(err),
	})
}

// returns a 400 for missing or malformed operation input
func InvalidInput(c *gin.Context, message string) {
	if message == "" {
		message = "invalid input"
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeInvalidInput,
		Message: message,
	})
}

// returns a 500 internal server error
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	logger.ErrorErr(err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"caller_id", c.GetString("caller_id"),
	)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeServerError,
		Message: message,
		Details: sanitizeError(err),
	})
}

// returns a 429 and sets Retry-After
func RateLimited(c *gin.Context, retryAfterSeconds int, limit int64, windowSeconds int, tier string) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))

	c.JSON(http.StatusTooManyRequests, LimitResponse{
		ErrorResponse: ErrorResponse{
			Error:   CodeRateLimited,
			Message: "rate limit exceeded",
		},
		RetryAfterSeconds: retryAfterSeconds,
		Limit:             limit,
		WindowSeconds:     windowSeconds,
		Tier:              tier,
	})
}

// returns a 429 for generic throttling (download endpoint)
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "too many requests"
	}

	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:   CodeRateLimited,
		Message: message,
	})
}

// returns a 403 when the daily operation quota is used up
func QuotaExceeded(c *gin.Context, used, limit int64, tier string) {
	c.JSON(http.StatusForbidden, LimitResponse{
		ErrorResponse: ErrorResponse{
			Error:   CodeQuotaExceeded,
			Message: "daily operation limit reached",
		},
		Limit:      limit,
		Used:       used,
		Tier:       tier,
		UpgradeURL: upgradeURL,
	})
}

// returns a 400 when the upload exceeds the tier's input size
func PayloadTooLarge(c *gin.Context, maxBytes int64, tier string) {
	c.JSON(http.StatusBadRequest, LimitResponse{
		ErrorResponse: ErrorResponse{
			Error:   CodePayloadTooLarge,
			Message: "file size exceeds the limit for your tier",
		},
		Limit:      maxBytes,
		Tier:       tier,
		UpgradeURL: upgradeURL,
	})
}

// returns a 403 when the tier does not include the operation's feature
func FeatureNotAvailable(c *gin.Context, feature, tier string) {
	c.JSON(http.StatusForbidden, LimitResponse{
		ErrorResponse: ErrorResponse{
			Error:   CodeFeatureNotAvailable,
			Message: "feature '" + feature + "' is not included in your tier",
		},
		Tier:       tier,
		UpgradeURL: upgradeURL,
	})
}

// returns a generic 500 for transformation and packaging failures.
// the cause is logged with context but never returned to the client
func TransformationFailed(c *gin.Context, operation string, err error) {
	logger.ErrorErr(err, "transformation failed",
		"path", c.Request.URL.Path,
		"operation", operation,
		"caller_id", c.GetString("caller_id"),
	)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeTransformationFailed,
		Message: "the operation could not be completed",
	})
}

// returns a 404 for unknown, expired or already downloaded artifacts
func ArtifactNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeArtifactNotFound,
		Message: "file not found or expired",
	})
}
