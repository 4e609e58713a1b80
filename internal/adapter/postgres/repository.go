// Package postgres implements the usage store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL PRIMARY KEY,
    telegram_id   BIGINT NOT NULL UNIQUE,
    username      TEXT,
    first_name    TEXT,
    last_name     TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active     BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS download_requests (
    id              BIGSERIAL PRIMARY KEY,
    telegram_id     BIGINT NOT NULL,
    tiktok_url      TEXT NOT NULL,
    request_type    TEXT,
    service_used    TEXT,
    success         BOOLEAN NOT NULL,
    file_size       BIGINT,
    files_count     INTEGER NOT NULL DEFAULT 0,
    error_message   TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processing_time DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_requests_telegram_id ON download_requests(telegram_id);
`

// Repository implements domain.UsageRepository using a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// New connects to databaseURL and creates the schema if needed.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// UpsertUser creates the user or refreshes its profile and last activity.
func (r *Repository) UpsertUser(ctx context.Context, u domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username      = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			first_name    = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
			last_name     = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
			last_activity = NOW()
		RETURNING telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
		          created_at, last_activity, is_active`

	return scanUser(r.pool.QueryRow(ctx, query, u.TelegramID, u.Username, u.FirstName, u.LastName))
}

// Record implements domain.UsageRecorder.
func (r *Repository) Record(ctx context.Context, ev domain.UsageEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `
		INSERT INTO download_requests
			(telegram_id, tiktok_url, request_type, service_used, success, file_size, files_count,
			 error_message, created_at, processing_time)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		ev.UserID, ev.URL, ev.Kind, ev.Provider, ev.Success, ev.FileSize, ev.ItemCount,
		ev.ErrorMessage, ts, ev.ProcessingTime.Seconds(),
	)
	return err
}

// UserStats returns one user's profile with request counts.
func (r *Repository) UserStats(ctx context.Context, telegramID int64) (*domain.UserStats, error) {
	query := `
		SELECT u.telegram_id, COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		       u.created_at, u.last_activity, u.is_active,
		       COUNT(d.id), COUNT(d.id) FILTER (WHERE d.success)
		FROM users u
		LEFT JOIN download_requests d ON d.telegram_id = u.telegram_id
		WHERE u.telegram_id = $1
		GROUP BY u.id`

	stats := &domain.UserStats{}
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(
		&stats.TelegramID, &stats.Username, &stats.FirstName, &stats.LastName,
		&stats.CreatedAt, &stats.LastActivity, &stats.IsActive,
		&stats.TotalRequests, &stats.SuccessfulRequests,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	stats.SuccessRate = domain.SuccessRate(stats.SuccessfulRequests, stats.TotalRequests)
	return stats, nil
}

// ServiceStats returns counts across all users.
func (r *Repository) ServiceStats(ctx context.Context) (*domain.ServiceStats, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM users),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE success)
		FROM download_requests`

	stats := &domain.ServiceStats{}
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalUsers, &stats.TotalRequests, &stats.SuccessfulRequests); err != nil {
		return nil, err
	}
	stats.SuccessRate = domain.SuccessRate(stats.SuccessfulRequests, stats.TotalRequests)
	return stats, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.LastActivity, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
