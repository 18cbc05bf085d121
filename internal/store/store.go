// Package store provides storage backends for PingPal.
//
// It persists conversations, chat history, and scheduled plans, with SQLite
// (default), PostgreSQL, and in-memory implementations.
package store

import (
	"strings"
	"time"

	"github.com/BubblyOak/PingPal/internal/models"
)

// DefaultDueLimit bounds how many due plans one scheduler tick will fetch.
const DefaultDueLimit = 50

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style connection strings
// and "sqlite" for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the durable-state contract the rest of the system relies on.
// Implementations must serialize reads and writes so that concurrent
// mutations of the same plan never both apply: the later writer observes the
// row already terminal and becomes a no-op.
type Store interface {
	// EnsureConversation creates the conversation row if absent and returns
	// it. An existing row has its chat kind updated if it changed.
	EnsureConversation(chatID string, kind models.ChatKind) (*models.Conversation, error)

	// GetConversation returns the conversation or ErrConversationNotFound.
	// Callers must have called EnsureConversation first.
	GetConversation(chatID string) (*models.Conversation, error)

	UpdateSummary(chatID, summary string) error
	UpdateLastUserAt(chatID string, at time.Time) error
	UpdateLastBotAt(chatID string, at time.Time) error

	// UpdateDailyCounter sets the proactive-send counter and the local
	// calendar date it applies to.
	UpdateDailyCounter(chatID string, count int, date string) error

	AddMessage(msg models.Message) error

	// RecentMessages returns up to limit messages for the chat, oldest first.
	RecentMessages(chatID string, limit int) ([]models.Message, error)

	// GetPendingPlans returns the chat's pending plans ordered by ascending
	// send time.
	GetPendingPlans(chatID string) ([]models.Plan, error)

	CountPendingPlans(chatID string) (int, error)

	// GetDuePlans returns up to limit pending plans across all chats whose
	// send time is at or before now, ordered by ascending send time.
	GetDuePlans(now time.Time, limit int) ([]models.Plan, error)

	AddPlan(chatID string, sendAt time.Time, text, gifTag, reason string, confidence float64, now time.Time) error

	// ReplacePlans atomically cancels every pending plan for the chat and
	// inserts the given items as pending.
	ReplacePlans(chatID string, items []PlanInsert, now time.Time) error

	// AppendPlans inserts items without touching existing pending plans.
	// The caller enforces the per-chat pending cap.
	AppendPlans(chatID string, items []PlanInsert, now time.Time) error

	// CancelAllPlans cancels every pending plan for the chat and returns how
	// many were affected.
	CancelAllPlans(chatID string, now time.Time) (int, error)

	// MarkPlanSent, MarkPlanCanceled, and ReschedulePlan are no-ops (not
	// errors) when the plan is already in a terminal state.
	MarkPlanSent(id int64, now time.Time) error
	MarkPlanCanceled(id int64, now time.Time) error
	ReschedulePlan(id int64, sendAt, now time.Time) error

	Close() error
}

// PlanInsert is the tuple of fields needed to insert one pending plan.
type PlanInsert struct {
	SendAt     time.Time
	Text       string
	GifTag     string
	Reason     string
	Confidence float64
}
