package usage

import (
	"net/http"

	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/ledger"
	"github.com/gin-gonic/gin"
)

// GetUsage godoc
// @Summary Get caller usage
// @Description Returns the caller's daily and monthly operation counts, tier limits and rate window
// @Tags usage
// @Produce json
// @Success 200 {object} UsageResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/v1/usage [get]
// @Security BearerAuth
func GetUsage(l *ledger.Ledger, policies *config.Policies) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := auth.CallerID(c)
		tier := auth.CallerTier(c)
		policy := policies.For(tier)

		snapshot, err := l.QuotaSnapshot(c.Request.Context(), callerID, tier, policy)
		if err != nil {
			errors.InternalError(c, "failed to fetch usage data", err)
			return
		}

		remaining := int64(-1)
		if policy.HasDailyLimit() {
			remaining = max(policy.DailyOperationLimit-snapshot.Daily.Used, 0)
		}

		c.JSON(http.StatusOK, UsageResponse{
			Snapshot:       *snapshot,
			DailyRemaining: remaining,
			RateLimit: RateLimitInfo{
				Limit:         policy.RequestsPerWindow,
				WindowSeconds: policy.WindowSeconds,
			},
			MaxInputBytes: policy.MaxInputBytes,
			Features:      policy.Features,
		})
	}
}

// GetHistory godoc
// @Summary Get caller usage history
// @Description Returns per-day operation counts for the last N days (default 30, max 90)
// @Tags usage
// @Produce json
// @Param days query int false "Number of days"
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/v1/usage/history [get]
// @Security BearerAuth
func GetHistory(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query HistoryQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			errors.ValidationError(c, err)
			return
		}

		days := query.Days
		if days == 0 {
			days = defaultHistoryDays
		}

		history, err := l.History(c.Request.Context(), auth.CallerID(c), days)
		if err != nil {
			errors.InternalError(c, "failed to fetch usage history", err)
			return
		}

		if history == nil {
			history = []ledger.DailyUsage{}
		}

		c.JSON(http.StatusOK, HistoryResponse{Days: days, History: history})
	}
}
