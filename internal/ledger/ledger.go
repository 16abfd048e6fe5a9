package ledger

import (
	"context"
	"time"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/metrics"
)

const recordTimeout = 5 * time.Second

// records attempted operations and answers live usage questions.
// nothing here is cached; every read goes to the store
type Ledger struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// appends the usage entry and counts it against the caller's quota.
// failures are logged and dropped so they never change the response
func (l *Ledger) Record(ctx context.Context, entry Entry) {
	if entry.CallerID == "" {
		logger.Warn("usage entry without caller id dropped", "operation", entry.OperationType)
		return
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}

	// the request may already be cancelled (client went away); the write still has to happen
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	log := logger.FromContext(ctx).With("operation", entry.OperationType)

	if err := l.store.Append(ctx, entry); err != nil {
		metrics.LedgerWriteFailures.Inc()
		log.Error("failed to log usage", "error", err)
	}

	if _, err := l.store.Increment(ctx, entry.CallerID, entry.CreatedAt); err != nil {
		metrics.LedgerWriteFailures.Inc()
		log.Error("failed to increment quota", "error", err)
	}
}

// reads (creating if needed) the caller's quota record with rollover applied
func (l *Ledger) Quota(ctx context.Context, callerID string) (Quota, error) {
	return l.store.GetOrCreate(ctx, callerID, l.now())
}

// successful operations since the start of today (UTC)
func (l *Ledger) DailyCount(ctx context.Context, callerID string) (int64, error) {
	return l.store.CountSuccessful(ctx, callerID, Day(l.now()))
}

// successful operations since the start of the month (UTC)
func (l *Ledger) MonthlyCount(ctx context.Context, callerID string) (int64, error) {
	return l.store.CountSuccessful(ctx, callerID, monthStart(l.now()))
}

// per-day attempt counts covering the last n days including today
func (l *Ledger) History(ctx context.Context, callerID string, days int) ([]DailyUsage, error) {
	if days <= 0 {
		days = 30
	}

	since := Day(l.now()).AddDate(0, 0, -(days - 1))

	return l.store.History(ctx, callerID, since)
}

// assembles the usage view for a caller on the given tier
func (l *Ledger) QuotaSnapshot(ctx context.Context, callerID string, tier config.Tier, policy config.TierPolicy) (*Snapshot, error) {
	q, err := l.Quota(ctx, callerID)
	if err != nil {
		return nil, err
	}

	today, err := l.DailyCount(ctx, callerID)
	if err != nil {
		return nil, err
	}

	month, err := l.MonthlyCount(ctx, callerID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Tier:               string(tier),
		Daily:              UsageCount{Used: q.DailyOperations, Limit: policy.DailyOperationLimit},
		Monthly:            UsageCount{Used: q.MonthlyOperations, Limit: policy.MonthlyOperationLimit},
		SucceededToday:     today,
		SucceededThisMonth: month,
		ResetDate:          q.ResetDate,
	}, nil
}
