// Package models defines the core data structures for PingPal.
//
// It includes inbound chat events, conversation state, scheduled plans, and
// the planning directive produced by the assistant, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// ChatKind distinguishes one-on-one chats from group chats.
type ChatKind string

const (
	// ChatKindDirect is a one-on-one conversation.
	ChatKindDirect ChatKind = "direct"
	// ChatKindGroup is a group conversation.
	ChatKindGroup ChatKind = "group"
)

// IsValidChatKind checks if the given chat kind is supported.
func IsValidChatKind(k ChatKind) bool {
	return k == ChatKindDirect || k == ChatKindGroup
}

// Error variables for better error handling and testability
var (
	ErrEmptyChatID          = errors.New("chat id cannot be empty")
	ErrInvalidChatKind      = errors.New("invalid chat kind")
	ErrEmptySenderID        = errors.New("sender id cannot be empty")
	ErrMissingTimestamp     = errors.New("timestamp is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// InboundEvent is one inbound chat message delivered by the gateway.
type InboundEvent struct {
	ChatID    string   `json:"chat_id"`
	ChatKind  ChatKind `json:"chat_type"`
	SenderID  string   `json:"sender_id"`
	Timestamp int64    `json:"timestamp"` // Unix seconds, UTC
	Text      string   `json:"text"`
	IsMention bool     `json:"is_mention"`
}

// Validate performs validation on an inbound event before processing.
func (e *InboundEvent) Validate() error {
	if e.ChatID == "" {
		return ErrEmptyChatID
	}
	if !IsValidChatKind(e.ChatKind) {
		return ErrInvalidChatKind
	}
	if e.SenderID == "" {
		return ErrEmptySenderID
	}
	if e.Timestamp == 0 {
		return ErrMissingTimestamp
	}
	return nil
}

// Conversation holds per-chat state: running summary, last activity instants,
// and the daily proactive-send counter. The counter is only meaningful for
// DailyDate; a read on any other local date must treat it as zero.
type Conversation struct {
	ChatID     string     `json:"chat_id"`
	ChatKind   ChatKind   `json:"chat_type"`
	Summary    string     `json:"summary"`
	LastUserAt *time.Time `json:"last_user_at,omitempty"`
	LastBotAt  *time.Time `json:"last_bot_at,omitempty"`
	DailyCount int        `json:"daily_count"`
	DailyDate  string     `json:"daily_date,omitempty"` // local calendar date, YYYY-MM-DD
}

// PlanStatus is the lifecycle state of a scheduled plan.
// Only pending plans are eligible for execution or rescheduling;
// sent and canceled are terminal.
type PlanStatus string

const (
	PlanStatusPending  PlanStatus = "pending"
	PlanStatusSent     PlanStatus = "sent"
	PlanStatusCanceled PlanStatus = "canceled"
)

// Plan is one persisted scheduled proactive message.
type Plan struct {
	ID         int64      `json:"id"`
	ChatID     string     `json:"chat_id"`
	SendAt     time.Time  `json:"send_at"` // UTC
	Text       string     `json:"text"`
	GifTag     string     `json:"gif_tag,omitempty"`
	Status     PlanStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PlanningAction tells the planner how to mutate the chat's pending plans.
type PlanningAction string

const (
	PlanningActionNone       PlanningAction = "none"
	PlanningActionCancelAll  PlanningAction = "cancel_all"
	PlanningActionReplaceAll PlanningAction = "replace_all"
	PlanningActionAppend     PlanningAction = "append"
)

// PlanItem is one candidate scheduled message proposed by the assistant.
// SendAt is an ISO-8601 instant, possibly without an offset (then interpreted
// as wall-clock time in the configured timezone).
type PlanItem struct {
	SendAt     string  `json:"send_at"`
	Text       string  `json:"text"`
	GifTag     string  `json:"gif_tag,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Planning is the directive produced once per conversational turn. It is never
// persisted; it is consumed immediately to produce plan mutations.
type Planning struct {
	Action PlanningAction `json:"action"`
	Items  []PlanItem     `json:"items"`
}

// Reply is the immediate conversational reply produced by the assistant.
type Reply struct {
	Text    string `json:"text"`
	SendGif bool   `json:"send_gif"`
	GifTag  string `json:"gif_tag,omitempty"`
}

// AssistantOutput is the full structured output of one assistant turn.
type AssistantOutput struct {
	Reply    Reply    `json:"reply"`
	Planning Planning `json:"planning"`
}

// MessageKind distinguishes stored message payload types.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	MessageKindGif  MessageKind = "gif"
)

// Message is one stored chat history entry.
type Message struct {
	ChatID   string      `json:"chat_id"`
	SenderID string      `json:"sender_id"`
	Role     string      `json:"role"` // "user" or "bot"
	SentAt   time.Time   `json:"sent_at"`
	Content  string      `json:"content"`
	Kind     MessageKind `json:"kind"`
}
