package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
)

// PostgresDB is the single source of truth for entitlements and payments.
// Every exported method executes exactly one statement, so per-row writes
// are atomic; there is no cross-call compare-and-swap.
type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitSchema creates the users and payments tables when missing.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			chat_id BIGINT PRIMARY KEY,
			paid_plan TEXT NOT NULL DEFAULT '',
			plan_expires BIGINT NOT NULL DEFAULT 0,
			signals_daily INTEGER NOT NULL DEFAULT 0,
			signals_used_today INTEGER NOT NULL DEFAULT 0,
			last_reset BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			plan TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			crypto TEXT NOT NULL,
			payment_code TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			screenshot_url TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// GetUser loads one entitlement row. Returns models.ErrNotFound when the
// user has never been granted anything.
func (db *PostgresDB) GetUser(ctx context.Context, chatID int64) (*models.Entitlement, error) {
	query := `
        SELECT chat_id, paid_plan, plan_expires, signals_daily, signals_used_today, last_reset
        FROM users
        WHERE chat_id = $1
    `

	var ent models.Entitlement
	err := db.pool.QueryRow(ctx, query, chatID).Scan(
		&ent.ChatID, &ent.Plan, &ent.PlanExpires,
		&ent.SignalsDaily, &ent.SignalsUsedToday, &ent.LastReset,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", chatID, err)
	}

	return &ent, nil
}

// SetPlan upserts the entitlement row, overwriting plan, expiry and daily
// allotment and zeroing today's consumption. This is a replace, not a merge.
func (db *PostgresDB) SetPlan(ctx context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error {
	query := `
        INSERT INTO users (chat_id, paid_plan, plan_expires, signals_daily, signals_used_today, last_reset)
        VALUES ($1, $2, $3, $4, 0, $5)
        ON CONFLICT (chat_id) DO UPDATE
        SET paid_plan = $2, plan_expires = $3, signals_daily = $4, signals_used_today = 0, last_reset = $5
    `

	_, err := db.pool.Exec(ctx, query, chatID, plan, expires, signalsDaily, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set plan for %d: %w", chatID, err)
	}
	return nil
}

// AddSignalsUsed increments today's consumption counter unconditionally and
// returns the new value. The daily ceiling is the caller's concern.
func (db *PostgresDB) AddSignalsUsed(ctx context.Context, chatID int64, amount int) (int, error) {
	query := `
        UPDATE users
        SET signals_used_today = signals_used_today + $2
        WHERE chat_id = $1
        RETURNING signals_used_today
    `

	var used int
	err := db.pool.QueryRow(ctx, query, chatID, amount).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume signal for %d: %w", chatID, err)
	}
	return used, nil
}

// ResetDailySignals zeroes consumption for every user with a positive daily
// allotment. Idempotent.
func (db *PostgresDB) ResetDailySignals(ctx context.Context) error {
	query := `UPDATE users SET signals_used_today = 0, last_reset = $1 WHERE signals_daily > 0`

	_, err := db.pool.Exec(ctx, query, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to reset daily signals: %w", err)
	}
	return nil
}

// CreatePayment inserts a new payment record and fills in its surrogate id.
// A payment_code collision returns models.ErrDuplicateCode.
func (db *PostgresDB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
        INSERT INTO payments (chat_id, plan, amount, crypto, payment_code, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `

	err := db.pool.QueryRow(ctx, query,
		payment.ChatID, payment.Plan, payment.Amount, payment.Method,
		payment.PaymentCode, payment.Status, payment.CreatedAt,
	).Scan(&payment.ID)
	if isUniqueViolation(err) {
		return models.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to create payment %s: %w", payment.PaymentCode, err)
	}
	return nil
}

// GetPayment loads one payment record by its code.
func (db *PostgresDB) GetPayment(ctx context.Context, code string) (*models.Payment, error) {
	query := `
        SELECT id, chat_id, plan, amount, crypto, payment_code, status, created_at, screenshot_url, location
        FROM payments
        WHERE payment_code = $1
    `

	var p models.Payment
	err := db.pool.QueryRow(ctx, query, code).Scan(
		&p.ID, &p.ChatID, &p.Plan, &p.Amount, &p.Method,
		&p.PaymentCode, &p.Status, &p.CreatedAt, &p.ScreenshotURL, &p.Location,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", code, err)
	}

	return &p, nil
}

// UpdatePaymentStatus flips the workflow state without touching the
// submitted evidence.
func (db *PostgresDB) UpdatePaymentStatus(ctx context.Context, code string, status models.PaymentStatus) error {
	query := `UPDATE payments SET status = $2 WHERE payment_code = $1`

	tag, err := db.pool.Exec(ctx, query, code, status)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AttachScreenshot records submitted evidence and keeps the record in
// pending_screenshot.
func (db *PostgresDB) AttachScreenshot(ctx context.Context, code, screenshotRef, location string) error {
	query := `
        UPDATE payments
        SET status = $2, screenshot_url = $3, location = $4
        WHERE payment_code = $1
    `

	tag, err := db.pool.Exec(ctx, query, code, models.PaymentPendingScreenshot, screenshotRef, location)
	if err != nil {
		return fmt.Errorf("failed to attach screenshot to %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PendingPayments lists records awaiting operator adjudication.
func (db *PostgresDB) PendingPayments(ctx context.Context) ([]*models.Payment, error) {
	query := `
        SELECT id, chat_id, plan, amount, crypto, payment_code, status, created_at, screenshot_url, location
        FROM payments
        WHERE status = $1
        ORDER BY created_at
    `

	rows, err := db.pool.Query(ctx, query, models.PaymentPendingScreenshot)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(
			&p.ID, &p.ChatID, &p.Plan, &p.Amount, &p.Method,
			&p.PaymentCode, &p.Status, &p.CreatedAt, &p.ScreenshotURL, &p.Location,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending payment: %w", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
