package messaging

import (
	"context"
	"log/slog"

	"github.com/BubblyOak/PingPal/internal/whatsapp"
)

// WhatsAppConnector adapts the whatsmeow-based client to the Connector
// interface.
type WhatsAppConnector struct {
	client whatsapp.Sender
}

var _ Connector = (*WhatsAppConnector)(nil)

// NewWhatsAppConnector wraps the given WhatsApp sender.
func NewWhatsAppConnector(client whatsapp.Sender) *WhatsAppConnector {
	return &WhatsAppConnector{client: client}
}

func (c *WhatsAppConnector) SendText(ctx context.Context, chatID string, text string) error {
	slog.Debug("WhatsApp connector SendText", "chatID", chatID, "text_length", len(text))
	return c.client.SendMessage(ctx, chatID, text)
}

func (c *WhatsAppConnector) SendGif(ctx context.Context, chatID string, path string) error {
	slog.Debug("WhatsApp connector SendGif", "chatID", chatID, "path", path)
	return c.client.SendGif(ctx, chatID, path)
}
