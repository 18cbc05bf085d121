// Package store provides storage backends for PingPal.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BubblyOak/PingPal/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) EnsureConversation(chatID string, kind models.ChatKind) (*models.Conversation, error) {
	_, err := s.db.Exec(
		`INSERT INTO conversations (chat_id, chat_type, summary, daily_count) VALUES ($1, $2, '', 0)
		 ON CONFLICT (chat_id) DO UPDATE SET chat_type = EXCLUDED.chat_type`,
		chatID, kind,
	)
	if err != nil {
		slog.Error("PostgresStore EnsureConversation upsert failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to ensure conversation %s: %w", chatID, err)
	}
	return s.GetConversation(chatID)
}

func (s *PostgresStore) GetConversation(chatID string) (*models.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT chat_id, chat_type, summary, last_user_at, last_bot_at, daily_count, daily_date
		 FROM conversations WHERE chat_id = $1`, chatID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", chatID, err)
	}
	return conv, nil
}

func (s *PostgresStore) UpdateSummary(chatID, summary string) error {
	_, err := s.db.Exec(`UPDATE conversations SET summary = $1 WHERE chat_id = $2`, summary, chatID)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateLastUserAt(chatID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_user_at = $1 WHERE chat_id = $2`, at, chatID)
	if err != nil {
		return fmt.Errorf("failed to update last user instant for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateLastBotAt(chatID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_bot_at = $1 WHERE chat_id = $2`, at, chatID)
	if err != nil {
		return fmt.Errorf("failed to update last bot instant for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateDailyCounter(chatID string, count int, date string) error {
	_, err := s.db.Exec(`UPDATE conversations SET daily_count = $1, daily_date = $2 WHERE chat_id = $3`, count, date, chatID)
	if err != nil {
		return fmt.Errorf("failed to update daily counter for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (chat_id, sender_id, role, sent_at, content, kind) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ChatID, msg.SenderID, msg.Role, msg.SentAt, msg.Content, msg.Kind,
	)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "chatID", msg.ChatID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.ChatID, err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(chatID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT chat_id, sender_id, role, sent_at, content, kind FROM messages
		 WHERE chat_id = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) queryPlans(query string, args ...interface{}) ([]models.Plan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("plan query failed: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("plan rows iteration failed: %w", err)
	}
	return plans, nil
}

func (s *PostgresStore) GetPendingPlans(chatID string) ([]models.Plan, error) {
	return s.queryPlans(
		`SELECT `+planColumns+` FROM plans
		 WHERE chat_id = $1 AND status = 'pending' ORDER BY send_at ASC, id ASC`,
		chatID,
	)
}

func (s *PostgresStore) CountPendingPlans(chatID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM plans WHERE chat_id = $1 AND status = 'pending'`, chatID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending plans for %s: %w", chatID, err)
	}
	return n, nil
}

func (s *PostgresStore) GetDuePlans(now time.Time, limit int) ([]models.Plan, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	return s.queryPlans(
		`SELECT `+planColumns+` FROM plans
		 WHERE status = 'pending' AND send_at <= $1 ORDER BY send_at ASC, id ASC LIMIT $2`,
		now, limit,
	)
}

func (s *PostgresStore) AddPlan(chatID string, sendAt time.Time, text, gifTag, reason string, confidence float64, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO plans (chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8)`,
		chatID, sendAt, text, nilIfEmpty(gifTag), reason, confidence, now, now,
	)
	if err != nil {
		slog.Error("PostgresStore AddPlan failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to insert plan for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) ReplacePlans(chatID string, items []PlanInsert, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = $1 WHERE chat_id = $2 AND status = 'pending'`,
		now, chatID,
	); err != nil {
		return fmt.Errorf("failed to cancel pending plans for %s: %w", chatID, err)
	}
	for _, item := range items {
		if _, err := tx.Exec(
			`INSERT INTO plans (chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8)`,
			chatID, item.SendAt, item.Text, nilIfEmpty(item.GifTag), item.Reason, item.Confidence, now, now,
		); err != nil {
			return fmt.Errorf("failed to insert replacement plan for %s: %w", chatID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendPlans(chatID string, items []PlanInsert, now time.Time) error {
	for _, item := range items {
		if err := s.AddPlan(chatID, item.SendAt, item.Text, item.GifTag, item.Reason, item.Confidence, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CancelAllPlans(chatID string, now time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = $1 WHERE chat_id = $2 AND status = 'pending'`,
		now, chatID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel plans for %s: %w", chatID, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) MarkPlanSent(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = 'sent', updated_at = $1 WHERE id = $2 AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark plan %d sent: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) MarkPlanCanceled(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = $1 WHERE id = $2 AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark plan %d canceled: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ReschedulePlan(id int64, sendAt, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET send_at = $1, updated_at = $2 WHERE id = $3 AND status = 'pending'`,
		sendAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule plan %d: %w", id, err)
	}
	return nil
}
