// Package config loads and validates PingPal settings.
//
// Behavioral settings live in a YAML file; credentials come from the
// environment (optionally via a .env file).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GifRate controls how often the assistant attaches a gif to a message.
type GifRate string

const (
	GifRateOff    GifRate = "off"
	GifRateLow    GifRate = "low"
	GifRateMedium GifRate = "medium"
	GifRateHigh   GifRate = "high"
)

// QuietHoursBlock is a local time-of-day range during which no proactive
// message may be sent. Start after End means the block wraps past midnight.
type QuietHoursBlock struct {
	Start string `yaml:"start" json:"start" validate:"required"`
	End   string `yaml:"end" json:"end" validate:"required"`
}

// Proactive holds the proactive-messaging policy knobs.
type Proactive struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	MaxPerDay         int     `yaml:"max_per_day" json:"max_per_day" validate:"min=0"`
	CooldownHours     int     `yaml:"cooldown_hours" json:"cooldown_hours" validate:"min=0"`
	MinConfidence     float64 `yaml:"min_confidence" json:"min_confidence" validate:"min=0,max=1"`
	MaxPendingPerChat int     `yaml:"max_pending_per_chat" json:"max_pending_per_chat" validate:"min=0"`
}

// Groups holds group-chat policy knobs.
type Groups struct {
	AllowProactive         bool `yaml:"allow_proactive" json:"allow_proactive"`
	ReplyOnlyWhenMentioned bool `yaml:"reply_only_when_mentioned" json:"reply_only_when_mentioned"`
}

// Security holds the shared secret required on inbound events.
type Security struct {
	SharedSecret string `yaml:"shared_secret" validate:"required"`
}

// Runtime holds server and scheduler runtime settings.
type Runtime struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port" validate:"min=1,max=65535"`
	SchedulerIntervalSeconds int    `yaml:"scheduler_interval_seconds" validate:"min=1"`
	DBPath                   string `yaml:"db_path"`
	Connector                string `yaml:"connector" validate:"oneof=stub twilio whatsapp"`
}

// Memory holds conversation-history settings.
type Memory struct {
	RecentMessages  int `yaml:"recent_messages" validate:"min=1"`
	SummaryMaxChars int `yaml:"summary_max_chars" validate:"min=100"`
}

// Settings is the full YAML configuration.
type Settings struct {
	Timezone   string            `yaml:"timezone" validate:"required"`
	Tone       string            `yaml:"tone"`
	GifRate    GifRate           `yaml:"gif_rate" validate:"oneof=off low medium high"`
	GifFolder  string            `yaml:"gif_folder"`
	Proactive  Proactive         `yaml:"proactive"`
	QuietHours []QuietHoursBlock `yaml:"quiet_hours"`
	Groups     Groups            `yaml:"groups"`
	Security   Security          `yaml:"security"`
	Runtime    Runtime           `yaml:"runtime"`
	Memory     Memory            `yaml:"memory"`

	loc *time.Location
}

// Location returns the parsed timezone of the settings, resolving it from the
// Timezone field on first use. An unset or invalid timezone yields UTC; Load
// rejects invalid names up front, so this only matters for hand-built values.
func (s *Settings) Location() *time.Location {
	if s.loc == nil {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return time.UTC
		}
		s.loc = loc
	}
	return s.loc
}

// Env holds credentials read from the environment. All fields are optional;
// with no LLM configured the assistant falls back to a deterministic echo.
type Env struct {
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

func applyDefaults(s *Settings) {
	if s.GifRate == "" {
		s.GifRate = GifRateMedium
	}
	if s.GifFolder == "" {
		s.GifFolder = "assets/gifs"
	}
	if s.Proactive.MaxPerDay == 0 {
		s.Proactive.MaxPerDay = 1
	}
	if s.Proactive.CooldownHours == 0 {
		s.Proactive.CooldownHours = 6
	}
	if s.Proactive.MinConfidence == 0 {
		s.Proactive.MinConfidence = 0.6
	}
	if s.Proactive.MaxPendingPerChat == 0 {
		s.Proactive.MaxPendingPerChat = 2
	}
	if s.Runtime.Host == "" {
		s.Runtime.Host = "0.0.0.0"
	}
	if s.Runtime.Port == 0 {
		s.Runtime.Port = 8000
	}
	if s.Runtime.SchedulerIntervalSeconds == 0 {
		s.Runtime.SchedulerIntervalSeconds = 20
	}
	if s.Runtime.DBPath == "" {
		s.Runtime.DBPath = "data/pingpal.db"
	}
	if s.Runtime.Connector == "" {
		s.Runtime.Connector = "stub"
	}
	if s.Memory.RecentMessages == 0 {
		s.Memory.RecentMessages = 30
	}
	if s.Memory.SummaryMaxChars == 0 {
		s.Memory.SummaryMaxChars = 1200
	}
}

// Load reads, defaults, and validates the YAML settings file at path.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&settings)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&settings); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", settings.Timezone, err)
	}
	settings.loc = loc

	return &settings, nil
}

// LoadEnv loads optional credentials from the environment, reading a .env
// file first when one is present.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return Env{
		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   os.Getenv("LLM_MODEL"),
	}
}
