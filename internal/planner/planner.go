// Package planner turns assistant planning directives into plan-store
// mutations and maintains per-conversation memory (rolling summary, daily
// proactive counter).
package planner

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/genai"
	"github.com/BubblyOak/PingPal/internal/models"
	"github.com/BubblyOak/PingPal/internal/policy"
	"github.com/BubblyOak/PingPal/internal/store"
	"github.com/BubblyOak/PingPal/internal/util"
)

// summaryTailMessages is how many trailing messages feed the rolling summary.
const summaryTailMessages = 6

// summaryLineMaxChars caps one message line inside the summary.
const summaryLineMaxChars = 160

// Planner applies planning directives against the plan store under the
// configured policy.
type Planner struct {
	store    store.Store
	settings *config.Settings
	blocks   []policy.QuietBlock
	now      func() time.Time
}

// New creates a Planner. blocks must come from policy.BuildQuietBlocks on the
// same settings.
func New(st store.Store, settings *config.Settings, blocks []policy.QuietBlock) *Planner {
	return &Planner{
		store:    st,
		settings: settings,
		blocks:   blocks,
		now:      util.UTCNow,
	}
}

// RefreshDailyCounter rolls the conversation's proactive counter over to zero
// when the local calendar date has changed, persisting the reset. It returns
// the count and date the caller should use for policy decisions.
func (p *Planner) RefreshDailyCounter(conv *models.Conversation) (int, string, error) {
	localDate := util.LocalDate(p.now().In(p.settings.Location()))
	if conv.DailyDate != localDate {
		if err := p.store.UpdateDailyCounter(conv.ChatID, 0, localDate); err != nil {
			return 0, "", fmt.Errorf("failed to roll over daily counter for %s: %w", conv.ChatID, err)
		}
		return 0, localDate, nil
	}
	if conv.DailyDate == "" {
		return conv.DailyCount, localDate, nil
	}
	return conv.DailyCount, conv.DailyDate, nil
}

// Apply consumes one planning directive for a chat. Directives that violate
// policy are dropped silently; only store failures surface as errors.
func (p *Planner) Apply(chatID string, kind models.ChatKind, planning models.Planning, pendingCount int, conv *models.Conversation) error {
	now := p.now()

	if planning.Action == models.PlanningActionCancelAll {
		n, err := p.store.CancelAllPlans(chatID, now)
		if err != nil {
			return fmt.Errorf("failed to cancel plans for %s: %w", chatID, err)
		}
		slog.Info("Canceled pending plans on directive", "chatID", chatID, "count", n)
		return nil
	}

	if len(planning.Items) == 0 {
		// A replace with nothing to replace clears the schedule.
		if planning.Action == models.PlanningActionReplaceAll {
			n, err := p.store.CancelAllPlans(chatID, now)
			if err != nil {
				return fmt.Errorf("failed to cancel plans for %s: %w", chatID, err)
			}
			slog.Info("Replace with no items cleared schedule", "chatID", chatID, "count", n)
		}
		return nil
	}
	item := planning.Items[0]

	if !policy.ShouldScheduleProactive(p.settings, kind) {
		slog.Info("Dropping directive, proactive not allowed for chat", "chatID", chatID, "chatKind", kind)
		return nil
	}
	if !policy.CanUsePlan(item, p.settings) {
		slog.Info("Dropping directive below confidence floor", "chatID", chatID, "confidence", item.Confidence)
		return nil
	}
	if conv.DailyCount >= p.settings.Proactive.MaxPerDay {
		slog.Info("Dropping directive, daily cap reached", "chatID", chatID, "dailyCount", conv.DailyCount)
		return nil
	}

	loc := p.settings.Location()
	sendAtLocal, ok := policy.ParseSendAt(item.SendAt, loc)
	if !ok {
		slog.Info("Dropping directive with unparsable send time", "chatID", chatID, "sendAt", item.SendAt)
		return nil
	}

	if conv.LastBotAt != nil {
		cooldownUntil := conv.LastBotAt.Add(time.Duration(p.settings.Proactive.CooldownHours) * time.Hour).In(loc)
		if sendAtLocal.Before(cooldownUntil) {
			sendAtLocal = cooldownUntil
		}
	}
	sendAtLocal = policy.SanitizeScheduleTime(sendAtLocal, p.now().In(loc), p.blocks)

	text := strings.TrimSpace(item.Text)
	if text == "" {
		text = "(empty)"
	}
	insert := store.PlanInsert{
		SendAt:     sendAtLocal.UTC(),
		Text:       text,
		GifTag:     item.GifTag,
		Reason:     item.Reason,
		Confidence: item.Confidence,
	}

	switch planning.Action {
	case models.PlanningActionReplaceAll:
		if err := p.store.ReplacePlans(chatID, []store.PlanInsert{insert}, now); err != nil {
			return fmt.Errorf("failed to replace plans for %s: %w", chatID, err)
		}
		slog.Info("Replaced pending plans", "chatID", chatID, "sendAt", insert.SendAt)
	case models.PlanningActionAppend:
		if pendingCount >= p.settings.Proactive.MaxPendingPerChat {
			slog.Info("Dropping append, pending cap reached", "chatID", chatID, "pending", pendingCount)
			return nil
		}
		if err := p.store.AppendPlans(chatID, []store.PlanInsert{insert}, now); err != nil {
			return fmt.Errorf("failed to append plan for %s: %w", chatID, err)
		}
		slog.Info("Appended pending plan", "chatID", chatID, "sendAt", insert.SendAt)
	}
	return nil
}

// BuildContext assembles the snapshot handed to the assistant for one turn.
func (p *Planner) BuildContext(conv *models.Conversation, incomingText string, recent []models.Message, pending []models.Plan) genai.Context {
	loc := p.settings.Location()
	localNow := p.now().In(loc)

	msgs := make([]genai.ContextMessage, 0, len(recent))
	for _, m := range recent {
		msgs = append(msgs, genai.ContextMessage{
			Role:    m.Role,
			Content: m.Content,
			SentAt:  m.SentAt.UTC().Format(time.RFC3339),
			Kind:    string(m.Kind),
		})
	}

	plans := make([]genai.ContextPlan, 0, len(pending))
	for _, pl := range pending {
		plans = append(plans, genai.ContextPlan{
			SendAt:     pl.SendAt.In(loc).Format(time.RFC3339),
			Text:       pl.Text,
			GifTag:     pl.GifTag,
			Status:     string(pl.Status),
			Reason:     pl.Reason,
			Confidence: pl.Confidence,
		})
	}

	var lastBotAt string
	if conv.LastBotAt != nil {
		lastBotAt = conv.LastBotAt.UTC().Format(time.RFC3339)
	}

	return genai.Context{
		IncomingText: incomingText,
		LocalTime:    localNow.Format(time.RFC3339),
		Timezone:     p.settings.Timezone,
		Settings: genai.ContextSettings{
			Tone:       p.settings.Tone,
			GifRate:    string(p.settings.GifRate),
			Proactive:  p.settings.Proactive,
			QuietHours: p.settings.QuietHours,
			Groups:     p.settings.Groups,
		},
		Summary:        conv.Summary,
		RecentMessages: msgs,
		PendingPlans:   plans,
		Counters: genai.ContextCounters{
			LastBotAt:  lastBotAt,
			DailyCount: conv.DailyCount,
			DailyDate:  conv.DailyDate,
		},
	}
}

// UpdateSummary folds the latest messages into a rolling conversation
// summary, clamped to maxChars.
func UpdateSummary(previous string, recent []models.Message, maxChars int) string {
	tail := recent
	if len(tail) > summaryTailMessages {
		tail = tail[len(tail)-summaryTailMessages:]
	}
	lines := make([]string, 0, len(tail))
	for _, msg := range tail {
		role := "B"
		if msg.Role == "user" {
			role = "U"
		}
		content := util.ClampText(strings.ReplaceAll(msg.Content, "\n", " "), summaryLineMaxChars)
		lines = append(lines, role+": "+content)
	}

	base := strings.TrimSpace(previous)
	var combined string
	if base != "" {
		base = util.ClampText(base, maxChars/2)
		combined = base + "\nRecent:\n" + strings.Join(lines, "\n")
	} else {
		combined = "Recent:\n" + strings.Join(lines, "\n")
	}
	return util.ClampText(combined, maxChars)
}
