package store

import (
	"database/sql"
	"fmt"

	"github.com/BubblyOak/PingPal/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanConversation scans a conversation row in column order
// chat_id, chat_type, summary, last_user_at, last_bot_at, daily_count, daily_date.
func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var lastUserAt, lastBotAt sql.NullTime
	var dailyDate sql.NullString
	err := row.Scan(&c.ChatID, &c.ChatKind, &c.Summary, &lastUserAt, &lastBotAt, &c.DailyCount, &dailyDate)
	if err != nil {
		return nil, err
	}
	if lastUserAt.Valid {
		t := lastUserAt.Time
		c.LastUserAt = &t
	}
	if lastBotAt.Valid {
		t := lastBotAt.Time
		c.LastBotAt = &t
	}
	c.DailyDate = dailyDate.String
	return &c, nil
}

// scanPlan scans a plan row in column order
// id, chat_id, send_at, text, gif_tag, status, reason, confidence, created_at, updated_at.
func scanPlan(row rowScanner) (models.Plan, error) {
	var p models.Plan
	var gifTag, reason sql.NullString
	err := row.Scan(&p.ID, &p.ChatID, &p.SendAt, &p.Text, &gifTag, &p.Status, &reason, &p.Confidence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("scan plan failed: %w", err)
	}
	p.GifTag = gifTag.String
	p.Reason = reason.String
	return p, nil
}

// scanMessage scans a message row in column order
// chat_id, sender_id, role, sent_at, content, kind.
func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ChatID, &m.SenderID, &m.Role, &m.SentAt, &m.Content, &m.Kind)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	return m, nil
}
