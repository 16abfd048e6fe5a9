package usage

import (
	"codeberg.org/docforge/server/internal/ledger"
)

const (
	defaultHistoryDays = 30
)

type RateLimitInfo struct {
	Limit         int64 `json:"limit"`
	WindowSeconds int   `json:"window_seconds"`
}

type UsageResponse struct {
	ledger.Snapshot
	// -1 when the tier has no daily limit
	DailyRemaining int64         `json:"daily_remaining"`
	RateLimit      RateLimitInfo `json:"rate_limit"`
	MaxInputBytes  int64         `json:"max_input_bytes"`
	Features       []string      `json:"features"`
}

type HistoryQuery struct {
	Days int `form:"days" binding:"omitempty,min=1,max=90"`
}

type HistoryResponse struct {
	Days    int                 `json:"days"`
	History []ledger.DailyUsage `json:"history"`
}
