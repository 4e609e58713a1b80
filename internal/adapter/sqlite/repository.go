package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/tokbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    telegram_id   INTEGER NOT NULL UNIQUE,
    username      TEXT,
    first_name    TEXT,
    last_name     TEXT,
    created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
    is_active     BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS download_requests (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    telegram_id     INTEGER NOT NULL,
    tiktok_url      TEXT NOT NULL,
    request_type    TEXT,
    service_used    TEXT,
    success         BOOLEAN NOT NULL,
    file_size       INTEGER,
    files_count     INTEGER NOT NULL DEFAULT 0,
    error_message   TEXT,
    created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
    processing_time REAL
);
CREATE INDEX IF NOT EXISTS idx_requests_telegram_id ON download_requests(telegram_id);
`

// Repository implements domain.UsageRepository using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Requests record concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertUser creates the user or refreshes its profile and last activity.
// Empty profile fields never overwrite stored ones.
func (r *Repository) UpsertUser(ctx context.Context, u domain.User) (*domain.User, error) {
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, created_at, last_activity, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(telegram_id) DO UPDATE SET
		     username      = COALESCE(NULLIF(excluded.username, ''), users.username),
		     first_name    = COALESCE(NULLIF(excluded.first_name, ''), users.first_name),
		     last_name     = COALESCE(NULLIF(excluded.last_name, ''), users.last_name),
		     last_activity = excluded.last_activity`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, now, now,
	)
	if err != nil {
		return nil, err
	}
	return r.getUser(ctx, u.TelegramID)
}

func (r *Repository) getUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
		        created_at, last_activity, is_active
		 FROM users WHERE telegram_id = ?`, telegramID,
	)
	return scanUser(row)
}

// Record implements domain.UsageRecorder.
func (r *Repository) Record(ctx context.Context, ev domain.UsageEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO download_requests
		     (telegram_id, tiktok_url, request_type, service_used, success, file_size, files_count,
		      error_message, created_at, processing_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.UserID, ev.URL, nullString(ev.Kind), nullString(ev.Provider), ev.Success, ev.FileSize,
		ev.ItemCount, nullString(ev.ErrorMessage), ts.UTC(), ev.ProcessingTime.Seconds(),
	)
	return err
}

// UserStats returns one user's profile with request counts.
func (r *Repository) UserStats(ctx context.Context, telegramID int64) (*domain.UserStats, error) {
	user, err := r.getUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	stats := &domain.UserStats{User: *user}
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0)
		 FROM download_requests WHERE telegram_id = ?`, telegramID,
	).Scan(&stats.TotalRequests, &stats.SuccessfulRequests)
	if err != nil {
		return nil, err
	}
	stats.SuccessRate = domain.SuccessRate(stats.SuccessfulRequests, stats.TotalRequests)
	return stats, nil
}

// ServiceStats returns counts across all users.
func (r *Repository) ServiceStats(ctx context.Context) (*domain.ServiceStats, error) {
	stats := &domain.ServiceStats{}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) FROM download_requests`,
	).Scan(&stats.TotalRequests, &stats.SuccessfulRequests)
	if err != nil {
		return nil, err
	}
	stats.SuccessRate = domain.SuccessRate(stats.SuccessfulRequests, stats.TotalRequests)
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.LastActivity, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
