package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type QuotaMode string

const (
	// single upsert statement; concurrent increments never lose updates
	QuotaModeAtomic QuotaMode = "atomic"
	// read-modify-write inside a transaction without a row lock.
	// concurrent increments for one caller can be lost
	QuotaModeFallback QuotaMode = "fallback"
)

const (
	createSchemaSQL = `
		CREATE TABLE IF NOT EXISTS usage_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			operation_type TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_usage_logs_user_created ON usage_logs(user_id, created_at);

		CREATE TABLE IF NOT EXISTS user_quotas (
			user_id TEXT PRIMARY KEY,
			daily_operations BIGINT NOT NULL DEFAULT 0,
			monthly_operations BIGINT NOT NULL DEFAULT 0,
			reset_date DATE NOT NULL DEFAULT CURRENT_DATE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
	`

	insertUsageSQL = `
		INSERT INTO usage_logs (user_id, operation_type, file_size, success, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`

	// $2 is today. rollover and increment happen in one statement
	incrementQuotaSQL = `
		INSERT INTO user_quotas (user_id, daily_operations, monthly_operations, reset_date)
		VALUES ($1, 1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_operations = CASE
				WHEN user_quotas.reset_date < EXCLUDED.reset_date THEN 1
				ELSE user_quotas.daily_operations + 1
			END,
			monthly_operations = CASE
				WHEN date_trunc('month', user_quotas.reset_date) < date_trunc('month', EXCLUDED.reset_date) THEN 1
				ELSE user_quotas.monthly_operations + 1
			END,
			reset_date = GREATEST(user_quotas.reset_date, EXCLUDED.reset_date),
			updated_at = NOW()
		RETURNING user_id, daily_operations, monthly_operations, reset_date
	`

	getOrCreateQuotaSQL = `
		INSERT INTO user_quotas (user_id, daily_operations, monthly_operations, reset_date)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_operations = CASE
				WHEN user_quotas.reset_date < EXCLUDED.reset_date THEN 0
				ELSE user_quotas.daily_operations
			END,
			monthly_operations = CASE
				WHEN date_trunc('month', user_quotas.reset_date) < date_trunc('month', EXCLUDED.reset_date) THEN 0
				ELSE user_quotas.monthly_operations
			END,
			reset_date = GREATEST(user_quotas.reset_date, EXCLUDED.reset_date)
		RETURNING user_id, daily_operations, monthly_operations, reset_date
	`

	selectQuotaSQL = `
		SELECT user_id, daily_operations, monthly_operations, reset_date
		FROM user_quotas
		WHERE user_id = $1
	`

	insertQuotaSQL = `
		INSERT INTO user_quotas (user_id, daily_operations, monthly_operations, reset_date)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`

	updateQuotaSQL = `
		UPDATE user_quotas
		SET daily_operations = $2, monthly_operations = $3, reset_date = $4, updated_at = NOW()
		WHERE user_id = $1
	`

	countSuccessfulSQL = `
		SELECT COUNT(*)
		FROM usage_logs
		WHERE user_id = $1 AND success = true AND created_at >= $2
	`

	historySQL = `
		SELECT to_char(DATE(created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM usage_logs
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY DATE(created_at AT TIME ZONE 'UTC')
		ORDER BY date DESC
	`
)

// implements Store using PostgreSQL
type PostgresStore struct {
	db   *pgxpool.Pool
	mode QuotaMode
}

// creates a new PostgreSQL ledger store
func NewPostgresStore(db *pgxpool.Pool, mode QuotaMode) *PostgresStore {
	if mode != QuotaModeFallback {
		mode = QuotaModeAtomic
	}

	return &PostgresStore{db: db, mode: mode}
}

// connects to the database and checks the connection
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

// creates the required tables if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return nil
}

func (s *PostgresStore) Mode() QuotaMode {
	return s.mode
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, insertUsageSQL,
		entry.CallerID,
		entry.OperationType,
		entry.InputBytes,
		entry.Success,
		entry.SourceAddress,
		entry.UserAgent,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}

	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, callerID string, today time.Time) (Quota, error) {
	if s.mode == QuotaModeFallback {
		return s.incrementReadModifyWrite(ctx, callerID, today)
	}

	q, err := scanQuota(s.db.QueryRow(ctx, incrementQuotaSQL, callerID, Day(today)))
	if err != nil {
		return Quota{}, fmt.Errorf("failed to increment quota: %w", err)
	}

	return q, nil
}

// the weaker path for databases where the upsert is not available
func (s *PostgresStore) incrementReadModifyWrite(ctx context.Context, callerID string, today time.Time) (Quota, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Quota{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, insertQuotaSQL, callerID, Day(today)); err != nil {
		return Quota{}, fmt.Errorf("failed to create quota: %w", err)
	}

	q, err := scanQuota(tx.QueryRow(ctx, selectQuotaSQL, callerID))
	if err != nil {
		return Quota{}, fmt.Errorf("failed to read quota: %w", err)
	}

	q = Rollover(q, today)
	q.DailyOperations++
	q.MonthlyOperations++

	if _, err := tx.Exec(ctx, updateQuotaSQL, callerID, q.DailyOperations, q.MonthlyOperations, q.ResetDate); err != nil {
		return Quota{}, fmt.Errorf("failed to update quota: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Quota{}, fmt.Errorf("failed to commit quota: %w", err)
	}

	return q, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, callerID string, today time.Time) (Quota, error) {
	q, err := scanQuota(s.db.QueryRow(ctx, getOrCreateQuotaSQL, callerID, Day(today)))
	if err != nil {
		return Quota{}, fmt.Errorf("failed to load quota: %w", err)
	}

	return q, nil
}

func (s *PostgresStore) CountSuccessful(ctx context.Context, callerID string, since time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countSuccessfulSQL, callerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}

	return n, nil
}

func (s *PostgresStore) History(ctx context.Context, callerID string, since time.Time) ([]DailyUsage, error) {
	rows, err := s.db.Query(ctx, historySQL, callerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage history: %w", err)
	}

	defer rows.Close()

	history := []DailyUsage{}

	for rows.Next() {
		var du DailyUsage
		if err := rows.Scan(&du.Date, &du.Count); err != nil {
			return nil, fmt.Errorf("failed to scan usage history: %w", err)
		}

		history = append(history, du)
	}

	return history, rows.Err()
}

func scanQuota(row pgx.Row) (Quota, error) {
	var q Quota

	if err := row.Scan(&q.CallerID, &q.DailyOperations, &q.MonthlyOperations, &q.ResetDate); err != nil {
		return Quota{}, err
	}

	q.ResetDate = Day(q.ResetDate)

	return q, nil
}
