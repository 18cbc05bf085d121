package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/models"
	"github.com/BubblyOak/PingPal/internal/store"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Timezone: "UTC",
		GifRate:  config.GifRateMedium,
		Proactive: config.Proactive{
			Enabled:           true,
			MaxPerDay:         1,
			CooldownHours:     6,
			MinConfidence:     0.6,
			MaxPendingPerChat: 2,
		},
		Groups: config.Groups{ReplyOnlyWhenMentioned: true},
	}
}

func testPlanner(t *testing.T, settings *config.Settings, now time.Time) (*Planner, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	p := New(st, settings, nil)
	p.now = func() time.Time { return now }
	return p, st
}

func pendingCount(t *testing.T, st store.Store, chatID string) int {
	t.Helper()
	n, err := st.CountPendingPlans(chatID)
	if err != nil {
		t.Fatalf("CountPendingPlans failed: %v", err)
	}
	return n
}

func TestApplyCancelAll(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	_ = st.AddPlan("chat-1", now.Add(time.Hour), "msg", "", "", 0.9, now)

	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect}
	err := p.Apply("chat-1", models.ChatKindDirect, models.Planning{Action: models.PlanningActionCancelAll}, 1, conv)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if n := pendingCount(t, st, "chat-1"); n != 0 {
		t.Errorf("expected 0 pending plans after cancel_all, got %d", n)
	}
}

func TestApplyReplaceWithNoItemsClearsSchedule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	_ = st.AddPlan("chat-1", now.Add(time.Hour), "msg", "", "", 0.9, now)

	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect}
	err := p.Apply("chat-1", models.ChatKindDirect, models.Planning{Action: models.PlanningActionReplaceAll}, 1, conv)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if n := pendingCount(t, st, "chat-1"); n != 0 {
		t.Errorf("expected empty replace to clear schedule, got %d pending", n)
	}
}

func TestApplyDirectiveDrops(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	goodItem := models.PlanItem{SendAt: "2026-03-10T18:00:00Z", Text: "ping", Confidence: 0.9}

	cases := []struct {
		name     string
		settings func(*config.Settings)
		kind     models.ChatKind
		item     models.PlanItem
		conv     models.Conversation
	}{
		{
			name:     "proactive disabled",
			settings: func(s *config.Settings) { s.Proactive.Enabled = false },
			kind:     models.ChatKindDirect,
			item:     goodItem,
		},
		{
			name:     "group without group proactive",
			settings: func(s *config.Settings) {},
			kind:     models.ChatKindGroup,
			item:     goodItem,
		},
		{
			name:     "below confidence floor",
			settings: func(s *config.Settings) {},
			kind:     models.ChatKindDirect,
			item:     models.PlanItem{SendAt: "2026-03-10T18:00:00Z", Text: "ping", Confidence: 0.3},
		},
		{
			name:     "daily cap reached",
			settings: func(s *config.Settings) {},
			kind:     models.ChatKindDirect,
			item:     goodItem,
			conv:     models.Conversation{DailyCount: 1, DailyDate: "2026-03-10"},
		},
		{
			name:     "unparsable send time",
			settings: func(s *config.Settings) {},
			kind:     models.ChatKindDirect,
			item:     models.PlanItem{SendAt: "tomorrow evening", Text: "ping", Confidence: 0.9},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			settings := testSettings()
			c.settings(settings)
			p, st := testPlanner(t, settings, now)

			conv := c.conv
			conv.ChatID = "chat-1"
			conv.ChatKind = c.kind
			planning := models.Planning{Action: models.PlanningActionAppend, Items: []models.PlanItem{c.item}}
			if err := p.Apply("chat-1", c.kind, planning, 0, &conv); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if n := pendingCount(t, st, "chat-1"); n != 0 {
				t.Errorf("dropped directive must not create plans, got %d pending", n)
			}
		})
	}
}

func TestApplyAppendAndCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect, DailyDate: "2026-03-10"}
	item := models.PlanItem{SendAt: "2026-03-10T18:00:00Z", Text: "ping", Confidence: 0.9}
	planning := models.Planning{Action: models.PlanningActionAppend, Items: []models.PlanItem{item}}

	if err := p.Apply("chat-1", models.ChatKindDirect, planning, 0, conv); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if n := pendingCount(t, st, "chat-1"); n != 1 {
		t.Fatalf("expected 1 pending plan after append, got %d", n)
	}

	// At the pending cap, append is a no-op.
	if err := p.Apply("chat-1", models.ChatKindDirect, planning, 2, conv); err != nil {
		t.Fatalf("Apply at cap failed: %v", err)
	}
	if n := pendingCount(t, st, "chat-1"); n != 1 {
		t.Errorf("append at cap must not add plans, got %d pending", n)
	}
}

func TestApplyReplaceTwiceLeavesOnePending(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect, DailyDate: "2026-03-10"}

	for _, sendAt := range []string{"2026-03-10T18:00:00Z", "2026-03-10T20:00:00Z"} {
		planning := models.Planning{
			Action: models.PlanningActionReplaceAll,
			Items:  []models.PlanItem{{SendAt: sendAt, Text: "ping", Confidence: 0.9}},
		}
		if err := p.Apply("chat-1", models.ChatKindDirect, planning, 0, conv); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	pending, err := st.GetPendingPlans("chat-1")
	if err != nil {
		t.Fatalf("GetPendingPlans failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly 1 pending plan after double replace, got %d", len(pending))
	}
	want := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	if !pending[0].SendAt.Equal(want) {
		t.Errorf("surviving plan at %v, want %v", pending[0].SendAt, want)
	}
}

func TestApplyCooldownClamp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)

	lastBot := now
	conv := &models.Conversation{
		ChatID:    "chat-1",
		ChatKind:  models.ChatKindDirect,
		LastBotAt: &lastBot,
		DailyDate: "2026-03-10",
	}
	// Desired one hour after the last bot send, cooldown is six hours.
	planning := models.Planning{
		Action: models.PlanningActionAppend,
		Items:  []models.PlanItem{{SendAt: "2026-03-10T13:00:00Z", Text: "ping", Confidence: 0.9}},
	}
	if err := p.Apply("chat-1", models.ChatKindDirect, planning, 0, conv); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pending, _ := st.GetPendingPlans("chat-1")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending plan, got %d", len(pending))
	}
	want := lastBot.Add(6 * time.Hour)
	if !pending[0].SendAt.Equal(want) {
		t.Errorf("plan scheduled at %v, want cooldown boundary %v", pending[0].SendAt, want)
	}
}

func TestApplyEnforcesMinimumDelay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect, DailyDate: "2026-03-10"}

	// Desired time is in the past; it gets bumped to now plus the delay.
	planning := models.Planning{
		Action: models.PlanningActionAppend,
		Items:  []models.PlanItem{{SendAt: "2026-03-10T11:00:00Z", Text: "ping", Confidence: 0.9}},
	}
	if err := p.Apply("chat-1", models.ChatKindDirect, planning, 0, conv); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pending, _ := st.GetPendingPlans("chat-1")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending plan, got %d", len(pending))
	}
	if pending[0].SendAt.Before(now.Add(time.Minute)) {
		t.Errorf("plan at %v violates minimum delay from %v", pending[0].SendAt, now)
	}
}

func TestApplyBlankTextPlaceholder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	conv := &models.Conversation{ChatID: "chat-1", ChatKind: models.ChatKindDirect, DailyDate: "2026-03-10"}

	planning := models.Planning{
		Action: models.PlanningActionAppend,
		Items:  []models.PlanItem{{SendAt: "2026-03-10T18:00:00Z", Text: "   ", Confidence: 0.9}},
	}
	if err := p.Apply("chat-1", models.ChatKindDirect, planning, 0, conv); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	pending, _ := st.GetPendingPlans("chat-1")
	if len(pending) != 1 || pending[0].Text != "(empty)" {
		t.Errorf("blank text should persist as placeholder, got %+v", pending)
	}
}

func TestRefreshDailyCounterRollover(t *testing.T) {
	now := time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC)
	p, st := testPlanner(t, testSettings(), now)
	if _, err := st.EnsureConversation("chat-1", models.ChatKindDirect); err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	conv := &models.Conversation{ChatID: "chat-1", DailyCount: 3, DailyDate: "2026-03-10"}
	count, date, err := p.RefreshDailyCounter(conv)
	if err != nil {
		t.Fatalf("RefreshDailyCounter failed: %v", err)
	}
	if count != 0 || date != "2026-03-11" {
		t.Errorf("expected rollover to (0, 2026-03-11), got (%d, %s)", count, date)
	}
	stored, _ := st.GetConversation("chat-1")
	if stored.DailyCount != 0 || stored.DailyDate != "2026-03-11" {
		t.Errorf("rollover not persisted: %+v", stored)
	}

	// Same local date keeps the stored count.
	conv = &models.Conversation{ChatID: "chat-1", DailyCount: 2, DailyDate: "2026-03-11"}
	count, date, err = p.RefreshDailyCounter(conv)
	if err != nil {
		t.Fatalf("RefreshDailyCounter failed: %v", err)
	}
	if count != 2 || date != "2026-03-11" {
		t.Errorf("expected (2, 2026-03-11), got (%d, %s)", count, date)
	}
}

func TestUpdateSummary(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var msgs []models.Message
	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "bot"
		}
		msgs = append(msgs, models.Message{
			Role:    role,
			SentAt:  base.Add(time.Duration(i) * time.Minute),
			Content: "message number " + string(rune('0'+i)),
		})
	}

	summary := UpdateSummary("", msgs, 1200)
	if !strings.HasPrefix(summary, "Recent:\n") {
		t.Errorf("fresh summary should start with Recent block: %q", summary)
	}
	if strings.Contains(summary, "message number 0") || strings.Contains(summary, "message number 1") {
		t.Error("summary should only keep the trailing messages")
	}
	if !strings.Contains(summary, "U: message number 6") || !strings.Contains(summary, "B: message number 7") {
		t.Errorf("summary missing trailing lines: %q", summary)
	}

	second := UpdateSummary(summary, msgs, 1200)
	if !strings.Contains(second, "Recent:\n") {
		t.Errorf("rolled summary should keep Recent block: %q", second)
	}
	if got := len([]rune(UpdateSummary(summary, msgs, 200))); got > 200 {
		t.Errorf("summary exceeds cap: %d chars", got)
	}
}

func TestUpdateSummaryFlattensNewlines(t *testing.T) {
	msgs := []models.Message{{Role: "user", Content: "line one\nline two"}}
	summary := UpdateSummary("", msgs, 1200)
	if strings.Contains(summary, "one\nline") {
		t.Errorf("message newlines must be flattened: %q", summary)
	}
	if !strings.Contains(summary, "line one line two") {
		t.Errorf("flattened content missing: %q", summary)
	}
}

func TestBuildContextSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, _ := testPlanner(t, testSettings(), now)

	lastBot := now.Add(-time.Hour)
	conv := &models.Conversation{
		ChatID:     "chat-1",
		ChatKind:   models.ChatKindDirect,
		Summary:    "likes evening reminders",
		LastBotAt:  &lastBot,
		DailyCount: 1,
		DailyDate:  "2026-03-10",
	}
	recent := []models.Message{{Role: "user", Content: "hey", SentAt: now.Add(-2 * time.Minute), Kind: models.MessageKindText}}
	pending := []models.Plan{{SendAt: now.Add(5 * time.Hour), Text: "ping", Status: models.PlanStatusPending, Confidence: 0.8}}

	gc := p.BuildContext(conv, "remind me later", recent, pending)
	if gc.IncomingText != "remind me later" || gc.Timezone != "UTC" {
		t.Errorf("unexpected context header: %+v", gc)
	}
	if gc.Summary != "likes evening reminders" {
		t.Errorf("summary not carried: %q", gc.Summary)
	}
	if len(gc.RecentMessages) != 1 || gc.RecentMessages[0].Content != "hey" {
		t.Errorf("recent messages not carried: %+v", gc.RecentMessages)
	}
	if len(gc.PendingPlans) != 1 || gc.PendingPlans[0].Text != "ping" {
		t.Errorf("pending plans not carried: %+v", gc.PendingPlans)
	}
	if gc.Counters.DailyCount != 1 || gc.Counters.LastBotAt == "" {
		t.Errorf("counters not carried: %+v", gc.Counters)
	}
	if _, err := time.Parse(time.RFC3339, gc.LocalTime); err != nil {
		t.Errorf("local time not RFC3339: %q", gc.LocalTime)
	}
}
