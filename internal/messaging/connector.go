// Package messaging defines the outbound delivery abstraction and its
// implementations: a logging stub, Twilio, and WhatsApp.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BubblyOak/PingPal/internal/whatsapp"
)

// Connector delivers outbound messages for one chat transport. Implementations
// are selected once at startup and injected as values.
type Connector interface {
	// SendText delivers a plain text message to the chat.
	SendText(ctx context.Context, chatID string, text string) error

	// SendGif delivers the gif asset at path to the chat.
	SendGif(ctx context.Context, chatID string, path string) error
}

// FromConfig builds the connector named in the runtime configuration.
// Twilio credentials come from the environment; the WhatsApp connector runs
// the whatsmeow login flow on first start.
func FromConfig(name string) (Connector, error) {
	switch name {
	case "stub":
		return NewStubConnector(), nil
	case "twilio":
		return NewTwilioConnector()
	case "whatsapp":
		client, err := whatsapp.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		return NewWhatsAppConnector(client), nil
	default:
		return nil, fmt.Errorf("unknown connector %q", name)
	}
}

// SentRecord is one delivery captured by the stub connector.
type SentRecord struct {
	ChatID string
	Text   string
	Path   string
	Gif    bool
}

// StubConnector logs deliveries instead of sending them. It records every
// call so tests can assert on dispatched messages.
type StubConnector struct {
	mu   sync.Mutex
	sent []SentRecord
}

var _ Connector = (*StubConnector)(nil)

// NewStubConnector creates a connector that only logs and records.
func NewStubConnector() *StubConnector {
	return &StubConnector{}
}

func (s *StubConnector) SendText(ctx context.Context, chatID string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentRecord{ChatID: chatID, Text: text})
	slog.Info("Stub connector text", "chatID", chatID, "text", text)
	return nil
}

func (s *StubConnector) SendGif(ctx context.Context, chatID string, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentRecord{ChatID: chatID, Path: path, Gif: true})
	slog.Info("Stub connector gif", "chatID", chatID, "path", path)
	return nil
}

// Sent returns a copy of everything dispatched so far.
func (s *StubConnector) Sent() []SentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentRecord, len(s.sent))
	copy(out, s.sent)
	return out
}
