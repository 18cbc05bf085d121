// Package store provides storage backends for PingPal.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BubblyOak/PingPal/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// SQLite allows only one writer; a single connection serializes all
	// access between the request path and the scheduler tick.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) EnsureConversation(chatID string, kind models.ChatKind) (*models.Conversation, error) {
	_, err := s.db.Exec(
		`INSERT INTO conversations (chat_id, chat_type, summary, daily_count) VALUES (?, ?, '', 0)
		 ON CONFLICT(chat_id) DO UPDATE SET chat_type = excluded.chat_type`,
		chatID, kind,
	)
	if err != nil {
		slog.Error("SQLiteStore EnsureConversation upsert failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to ensure conversation %s: %w", chatID, err)
	}
	return s.GetConversation(chatID)
}

func (s *SQLiteStore) GetConversation(chatID string) (*models.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT chat_id, chat_type, summary, last_user_at, last_bot_at, daily_count, daily_date
		 FROM conversations WHERE chat_id = ?`, chatID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", chatID, err)
	}
	return conv, nil
}

func (s *SQLiteStore) UpdateSummary(chatID, summary string) error {
	_, err := s.db.Exec(`UPDATE conversations SET summary = ? WHERE chat_id = ?`, summary, chatID)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateLastUserAt(chatID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_user_at = ? WHERE chat_id = ?`, at, chatID)
	if err != nil {
		return fmt.Errorf("failed to update last user instant for %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateLastBotAt(chatID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_bot_at = ? WHERE chat_id = ?`, at, chatID)
	if err != nil {
		return fmt.Errorf("failed to update last bot instant for %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateDailyCounter(chatID string, count int, date string) error {
	_, err := s.db.Exec(`UPDATE conversations SET daily_count = ?, daily_date = ? WHERE chat_id = ?`, count, date, chatID)
	if err != nil {
		return fmt.Errorf("failed to update daily counter for %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (chat_id, sender_id, role, sent_at, content, kind) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.SenderID, msg.Role, msg.SentAt, msg.Content, msg.Kind,
	)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "chatID", msg.ChatID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.ChatID, err)
	}
	return nil
}

func (s *SQLiteStore) RecentMessages(chatID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT chat_id, sender_id, role, sent_at, content, kind FROM messages
		 WHERE chat_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?`,
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
	// Reverse to oldest-first for prompt building.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

const planColumns = `id, chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at`

func (s *SQLiteStore) queryPlans(query string, args ...interface{}) ([]models.Plan, error) {
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

func (s *SQLiteStore) GetPendingPlans(chatID string) ([]models.Plan, error) {
	return s.queryPlans(
		`SELECT `+planColumns+` FROM plans
		 WHERE chat_id = ? AND status = 'pending' ORDER BY send_at ASC, id ASC`,
		chatID,
	)
}

func (s *SQLiteStore) CountPendingPlans(chatID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM plans WHERE chat_id = ? AND status = 'pending'`, chatID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending plans for %s: %w", chatID, err)
	}
	return n, nil
}

func (s *SQLiteStore) GetDuePlans(now time.Time, limit int) ([]models.Plan, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	return s.queryPlans(
		`SELECT `+planColumns+` FROM plans
		 WHERE status = 'pending' AND send_at <= ? ORDER BY send_at ASC, id ASC LIMIT ?`,
		now, limit,
	)
}

func (s *SQLiteStore) AddPlan(chatID string, sendAt time.Time, text, gifTag, reason string, confidence float64, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO plans (chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?)`,
		chatID, sendAt, text, nilIfEmpty(gifTag), reason, confidence, now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore AddPlan failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to insert plan for %s: %w", chatID, err)
	}
	slog.Debug("SQLiteStore AddPlan succeeded", "chatID", chatID, "sendAt", sendAt)
	return nil
}

func (s *SQLiteStore) ReplacePlans(chatID string, items []PlanInsert, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = ? WHERE chat_id = ? AND status = 'pending'`,
		now, chatID,
	); err != nil {
		return fmt.Errorf("failed to cancel pending plans for %s: %w", chatID, err)
	}
	for _, item := range items {
		if _, err := tx.Exec(
			`INSERT INTO plans (chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?)`,
			chatID, item.SendAt, item.Text, nilIfEmpty(item.GifTag), item.Reason, item.Confidence, now, now,
		); err != nil {
			return fmt.Errorf("failed to insert replacement plan for %s: %w", chatID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace transaction: %w", err)
	}
	slog.Debug("SQLiteStore ReplacePlans succeeded", "chatID", chatID, "count", len(items))
	return nil
}

func (s *SQLiteStore) AppendPlans(chatID string, items []PlanInsert, now time.Time) error {
	for _, item := range items {
		if err := s.AddPlan(chatID, item.SendAt, item.Text, item.GifTag, item.Reason, item.Confidence, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CancelAllPlans(chatID string, now time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = ? WHERE chat_id = ? AND status = 'pending'`,
		now, chatID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel plans for %s: %w", chatID, err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("SQLiteStore CancelAllPlans", "chatID", chatID, "canceled", n)
	return int(n), nil
}

// Terminal transitions guard on status = 'pending' so a plan already sent or
// canceled by a concurrent writer is left untouched.

func (s *SQLiteStore) MarkPlanSent(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = 'sent', updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark plan %d sent: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) MarkPlanCanceled(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = 'canceled', updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark plan %d canceled: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ReschedulePlan(id int64, sendAt, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE plans SET send_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		sendAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule plan %d: %w", id, err)
	}
	return nil
}
