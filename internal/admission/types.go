package admission

import (
	"context"
	"math"
	"slices"
	"time"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/ledger"
)

type Reason string

const (
	ReasonRateLimited         Reason = "RATE_LIMITED"
	ReasonQuotaExceeded       Reason = "QUOTA_EXCEEDED"
	ReasonPayloadTooLarge     Reason = "PAYLOAD_TOO_LARGE"
	ReasonFeatureNotAvailable Reason = "FEATURE_NOT_AVAILABLE"
)

// names of the stores admission can skip when they are unreachable
const (
	StoreCounter = "counter"
	StoreQuota   = "quota"
)

// outcome of one admission check
type Decision struct {
	Allowed bool
	Reason  Reason
	Tier    config.Tier

	// rate window state, filled whenever the counter store answered
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Window    time.Duration

	// set on RATE_LIMITED
	RetryAfter time.Duration

	// set on QUOTA_EXCEEDED and PAYLOAD_TOO_LARGE
	Used     int64
	MaxValue int64

	// stores that were unreachable and skipped
	Degraded []string
}

func (d *Decision) markDegraded(store string) {
	if !slices.Contains(d.Degraded, store) {
		d.Degraded = append(d.Degraded, store)
	}
}

// whole seconds until the caller may retry, never below one
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}

	return secs
}

// reads the caller's quota record with rollover applied
type QuotaReader interface {
	Quota(ctx context.Context, callerID string) (ledger.Quota, error)
}
