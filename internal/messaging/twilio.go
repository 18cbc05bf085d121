package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio connector.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Option defines a configuration option for the Twilio connector.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sender number, e.g. "whatsapp:+1234567890".
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// TwilioConnector delivers messages through the Twilio REST API. Gif assets
// must be publicly reachable URLs; Twilio fetches media itself.
type TwilioConnector struct {
	client *twilio.RestClient
	from   string
}

var _ Connector = (*TwilioConnector)(nil)

// NewTwilioConnector creates a Twilio connector based on provided options.
func NewTwilioConnector(opts ...Option) (*TwilioConnector, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio connector config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioConnector{client: client, from: cfg.From}, nil
}

func (c *TwilioConnector) SendText(ctx context.Context, chatID string, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(chatID)
	params.SetFrom(c.from)
	params.SetBody(text)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendText failed", "chatID", chatID, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", chatID, err)
	}

	slog.Debug("Twilio text sent", "chatID", chatID)
	return nil
}

func (c *TwilioConnector) SendGif(ctx context.Context, chatID string, path string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(chatID)
	params.SetFrom(c.from)
	params.SetMediaUrl([]string{path})

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendGif failed", "chatID", chatID, "error", err)
		return fmt.Errorf("failed to send gif to %s: %w", chatID, err)
	}

	slog.Debug("Twilio gif sent", "chatID", chatID)
	return nil
}
