// Package genai produces assistant turns using the OpenAI chat completion
// API. A client without credentials degrades to a deterministic echo response
// so the rest of the system stays exercisable offline.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/models"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

const responseTemperature = 0.4

const systemPrompt = `You are a chat assistant. Respond ONLY with valid JSON that matches the schema provided.
Rules:
- Keep replies short and natural.
- Do not schedule unless proactive is enabled and it improves UX.
- Do not schedule generic spam.
- Prefer replace_all when rescheduling.
- Never schedule inside quiet hours; if needed, schedule at the next allowed time.
- At most one scheduled item.
- If no schedule, set planning.action to "none" and planning.items to [].`

// schemaHint shows the model the exact output shape by example.
var schemaHint = map[string]any{
	"reply": map[string]any{"text": "string", "send_gif": true, "gif_tag": "string|null"},
	"planning": map[string]any{
		"action": "none|cancel_all|replace_all|append",
		"items": []map[string]any{
			{
				"send_at":    "2026-01-18T21:30:00-05:00",
				"text":       "string",
				"gif_tag":    "string|null",
				"reason":     "string",
				"confidence": 0.0,
			},
		},
	},
}

// ContextMessage is one recent history entry shown to the model.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	SentAt  string `json:"sent_at"`
	Kind    string `json:"kind"`
}

// ContextPlan is one pending plan shown to the model, send time rendered in
// the configured zone.
type ContextPlan struct {
	SendAt     string  `json:"send_at"`
	Text       string  `json:"text"`
	GifTag     string  `json:"gif_tag,omitempty"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ContextSettings is the policy subset the model is allowed to see.
type ContextSettings struct {
	Tone       string                   `json:"tone"`
	GifRate    string                   `json:"gif_rate"`
	Proactive  config.Proactive         `json:"proactive"`
	QuietHours []config.QuietHoursBlock `json:"quiet_hours"`
	Groups     config.Groups            `json:"groups"`
}

// ContextCounters exposes the conversation's policy counters to the model.
type ContextCounters struct {
	LastBotAt  string `json:"last_bot_at,omitempty"`
	DailyCount int    `json:"daily_count"`
	DailyDate  string `json:"daily_date,omitempty"`
}

// Context is the full per-turn snapshot handed to the assistant.
type Context struct {
	IncomingText   string           `json:"incoming_text"`
	LocalTime      string           `json:"local_time"`
	Timezone       string           `json:"timezone"`
	Settings       ContextSettings  `json:"settings"`
	Summary        string           `json:"summary"`
	RecentMessages []ContextMessage `json:"recent_messages"`
	PendingPlans   []ContextPlan    `json:"pending_plans"`
	Counters       ContextCounters  `json:"policy_counters"`
}

// ClientInterface defines the assistant operations used by the rest of the
// system, allowing mocking in tests.
type ClientInterface interface {
	GenerateResponse(ctx context.Context, c Context) (*models.AssistantOutput, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint, for OpenAI-compatible providers.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client calls the chat completion API and parses structured assistant
// output. When no API key is configured every call returns the echo fallback.
type Client struct {
	api        openai.Client
	model      string
	configured bool
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a GenAI client based on provided options.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		slog.Warn("GenAI API key not set, responses will use the echo fallback")
		return &Client{model: cfg.Model}
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Debug("GenAI client configured", "model", cfg.Model, "baseURL_set", cfg.BaseURL != "")
	return &Client{api: openai.NewClient(reqOpts...), model: cfg.Model, configured: true}
}

// GenerateResponse produces one assistant turn for the given context. API and
// parse failures degrade to the echo fallback rather than failing the turn.
func (c *Client) GenerateResponse(ctx context.Context, gc Context) (*models.AssistantOutput, error) {
	if !c.configured {
		return dummyResponse(gc), nil
	}

	userPrompt, err := buildUserPrompt(gc)
	if err != nil {
		return nil, fmt.Errorf("failed to build user prompt: %w", err)
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(responseTemperature),
	})
	if err != nil {
		slog.Warn("GenAI call failed, falling back to echo response", "error", err)
		return dummyResponse(gc), nil
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI returned no choices, falling back to echo response")
		return dummyResponse(gc), nil
	}

	out, ok := parseOutput(resp.Choices[0].Message.Content)
	if !ok {
		slog.Warn("GenAI output was not valid JSON, falling back to echo response")
		return dummyResponse(gc), nil
	}
	return out, nil
}

func buildUserPrompt(gc Context) (string, error) {
	payload := map[string]any{
		"schema":  schemaHint,
		"context": gc,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseOutput extracts the outermost JSON object from the completion text and
// decodes it. Models sometimes wrap the object in prose or code fences.
func parseOutput(content string) (*models.AssistantOutput, bool) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return nil, false
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	var out models.AssistantOutput
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, false
	}
	return &out, true
}

func dummyResponse(gc Context) *models.AssistantOutput {
	text := strings.TrimSpace(gc.IncomingText)
	if text == "" {
		text = "Got it."
	}
	return &models.AssistantOutput{
		Reply:    models.Reply{Text: "(dummy) " + text},
		Planning: models.Planning{Action: models.PlanningActionNone},
	}
}
