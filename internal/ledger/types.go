package ledger

import (
	"context"
	"time"
)

// one attempted operation. append-only
type Entry struct {
	CallerID      string    `json:"caller_id"`
	OperationType string    `json:"operation_type"`
	InputBytes    int64     `json:"input_bytes"`
	Success       bool      `json:"success"`
	SourceAddress string    `json:"source_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// per-caller operation counters.
// ResetDate is the last UTC calendar day that was counted (never before the creation day)
type Quota struct {
	CallerID          string    `json:"caller_id"`
	DailyOperations   int64     `json:"daily_operations"`
	MonthlyOperations int64     `json:"monthly_operations"`
	ResetDate         time.Time `json:"reset_date"`
}

type DailyUsage struct {
	Date  string `json:"date"` // Format: "2006-01-02"
	Count int64  `json:"count"`
}

type UsageCount struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"` // 0 means unlimited
}

// live view of a caller's usage for the quota endpoint
type Snapshot struct {
	Tier    string     `json:"tier"`
	Daily   UsageCount `json:"daily"`
	Monthly UsageCount `json:"monthly"`
	// successful operations from the usage log
	SucceededToday     int64     `json:"succeeded_today"`
	SucceededThisMonth int64     `json:"succeeded_this_month"`
	ResetDate          time.Time `json:"reset_date"`
}

// persistence for usage logs and quota records
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// applies rollover for today and counts one operation
	Increment(ctx context.Context, callerID string, today time.Time) (Quota, error)
	// returns the quota record, creating it and applying rollover for today
	GetOrCreate(ctx context.Context, callerID string, today time.Time) (Quota, error)
	// counts successful log entries at or after since
	CountSuccessful(ctx context.Context, callerID string, since time.Time) (int64, error)
	// per-day entry counts at or after since, newest first
	History(ctx context.Context, callerID string, since time.Time) ([]DailyUsage, error)
}
