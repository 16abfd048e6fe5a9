package admission

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/counter"
	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/metrics"
)

const (
	rateKeyPrefix = "rate:"

	// at most one fail-open warning per interval per store
	degradedLogInterval = 10 * time.Second
)

// decides whether a caller may run an operation right now.
// checks run in order: rate window, daily quota, input size, feature
type Controller struct {
	counter  counter.Store
	quotas   QuotaReader
	policies *config.Policies
	warnings map[string]*rate.Limiter
	now      func() time.Time
}

func NewController(store counter.Store, quotas QuotaReader, policies *config.Policies) *Controller {
	return &Controller{
		counter:  store,
		quotas:   quotas,
		policies: policies,
		warnings: map[string]*rate.Limiter{
			StoreCounter: rate.NewLimiter(rate.Every(degradedLogInterval), 1),
			StoreQuota:   rate.NewLimiter(rate.Every(degradedLogInterval), 1),
		},
		now: time.Now,
	}
}

// returns the policy applied to a tier (unknown tiers resolve to free)
func (c *Controller) Policy(tier config.Tier) config.TierPolicy {
	return c.policies.For(tier)
}

func RateKey(callerID string) string {
	return rateKeyPrefix + callerID
}

// runs every admission check for one request. the rate counter is
// incremented even when a later check denies. store failures never deny
func (c *Controller) Admit(ctx context.Context, callerID string, tier config.Tier, inputBytes int64, feature string) Decision {
	tier = config.ParseTier(string(tier))
	policy := c.policies.For(tier)

	d := Decision{
		Allowed: true,
		Tier:    tier,
		Limit:   policy.RequestsPerWindow,
		Window:  policy.Window(),
	}

	if denied := c.checkRate(ctx, callerID, policy, &d); denied {
		return c.finish(d, callerID)
	}

	if denied := c.checkQuota(ctx, callerID, policy, &d); denied {
		return c.finish(d, callerID)
	}

	if inputBytes > policy.MaxInputBytes {
		d.Allowed = false
		d.Reason = ReasonPayloadTooLarge
		d.Used = inputBytes
		d.MaxValue = policy.MaxInputBytes
		return c.finish(d, callerID)
	}

	if !policy.HasFeature(feature) {
		d.Allowed = false
		d.Reason = ReasonFeatureNotAvailable
		return c.finish(d, callerID)
	}

	return c.finish(d, callerID)
}

func (c *Controller) checkRate(ctx context.Context, callerID string, policy config.TierPolicy, d *Decision) bool {
	key := RateKey(callerID)
	window := policy.Window()

	count, err := c.counter.Incr(ctx, key)
	if err != nil {
		c.degraded(StoreCounter, err, callerID)
		d.markDegraded(StoreCounter)
		return false
	}

	if count == 1 {
		if err := c.counter.Expire(ctx, key, window); err != nil {
			c.degraded(StoreCounter, err, callerID)
			d.markDegraded(StoreCounter)
		}
	}

	ttl, err := c.counter.TTL(ctx, key)
	if err != nil {
		c.degraded(StoreCounter, err, callerID)
		d.markDegraded(StoreCounter)
		ttl = window
	}

	// a counter without expiry would never reset; arm it again
	if ttl <= 0 {
		if err := c.counter.Expire(ctx, key, window); err != nil {
			c.degraded(StoreCounter, err, callerID)
		}

		ttl = window
	}

	d.ResetAt = c.now().Add(ttl)
	d.Remaining = max(policy.RequestsPerWindow-count, 0)

	if count > policy.RequestsPerWindow {
		d.Allowed = false
		d.Reason = ReasonRateLimited
		d.RetryAfter = ttl
		return true
	}

	return false
}

func (c *Controller) checkQuota(ctx context.Context, callerID string, policy config.TierPolicy, d *Decision) bool {
	if !policy.HasDailyLimit() || c.quotas == nil {
		return false
	}

	q, err := c.quotas.Quota(ctx, callerID)
	if err != nil {
		c.degraded(StoreQuota, err, callerID)
		d.markDegraded(StoreQuota)
		return false
	}

	if q.DailyOperations >= policy.DailyOperationLimit {
		d.Allowed = false
		d.Reason = ReasonQuotaExceeded
		d.Used = q.DailyOperations
		d.MaxValue = policy.DailyOperationLimit
		return true
	}

	return false
}

// counts every fail-open event and logs a throttled warning for operators
func (c *Controller) degraded(store string, err error, callerID string) {
	metrics.StoreDegraded.WithLabelValues(store).Inc()

	if lim, ok := c.warnings[store]; ok && !lim.Allow() {
		return
	}

	logger.WarnErr(err, "store unavailable, admitting without check",
		"store", store,
		"caller_id", callerID,
	)
}

func (c *Controller) finish(d Decision, callerID string) Decision {
	outcome := "allowed"
	if !d.Allowed {
		outcome = string(d.Reason)

		logger.Debug("request denied",
			"caller_id", callerID,
			"tier", d.Tier,
			"reason", d.Reason,
		)
	}

	metrics.AdmissionDecisions.WithLabelValues(string(d.Tier), outcome).Inc()

	return d
}
