package errors

// standardized error body returned by every handler
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable code (e.g. "rate_limited")
	Message string `json:"message"`           // user-facing message
	Details string `json:"details,omitempty"` // sanitized in production
}

// error body for admission denials, carries the numbers the client needs to back off
type LimitResponse struct {
	ErrorResponse
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Limit             int64  `json:"limit,omitempty"`
	Used              int64  `json:"used,omitempty"`
	WindowSeconds     int    `json:"window_seconds,omitempty"`
	Tier              string `json:"tier,omitempty"`
	UpgradeURL        string `json:"upgrade_url,omitempty"`
}

type ErrorInfo struct {
	category  string
	sanitized string
}
