package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/messaging"
	"github.com/BubblyOak/PingPal/internal/models"
	"github.com/BubblyOak/PingPal/internal/policy"
	"github.com/BubblyOak/PingPal/internal/store"
	"github.com/BubblyOak/PingPal/internal/util"
)

// GifPicker resolves a gif tag to an asset path. *giflib.Library satisfies it.
type GifPicker interface {
	Pick(tag string) string
}

// Executor processes due plans on each scheduler tick. Every policy condition
// is re-checked from scratch at dispatch time, so a plan left pending past its
// due time is safe to pick up again on the next tick.
type Executor struct {
	store     store.Store
	settings  *config.Settings
	connector messaging.Connector
	gifs      GifPicker
	blocks    []policy.QuietBlock
	rng       policy.RandSource
	now       func() time.Time
}

// NewExecutor creates an Executor. blocks must come from
// policy.BuildQuietBlocks on the same settings.
func NewExecutor(st store.Store, settings *config.Settings, connector messaging.Connector, gifs GifPicker, blocks []policy.QuietBlock, rng policy.RandSource) *Executor {
	return &Executor{
		store:     st,
		settings:  settings,
		connector: connector,
		gifs:      gifs,
		blocks:    blocks,
		rng:       rng,
		now:       util.UTCNow,
	}
}

// ProcessDuePlans runs one tick of the execution loop. A failure in one plan
// is logged and does not stop the rest of the batch.
func (e *Executor) ProcessDuePlans(ctx context.Context) {
	now := e.now()
	due, err := e.store.GetDuePlans(now, store.DefaultDueLimit)
	if err != nil {
		slog.Error("Failed to fetch due plans", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	slog.Debug("Processing due plans", "count", len(due))

	for _, plan := range due {
		if err := e.handlePlan(ctx, plan, now); err != nil {
			slog.Error("Failed processing plan", "planID", plan.ID, "chatID", plan.ChatID, "error", err)
		}
	}
}

func (e *Executor) handlePlan(ctx context.Context, plan models.Plan, now time.Time) error {
	conv, err := e.store.GetConversation(plan.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	if !policy.ShouldScheduleProactive(e.settings, conv.ChatKind) {
		if err := e.store.MarkPlanCanceled(plan.ID, now); err != nil {
			return err
		}
		slog.Info("Canceled plan, proactive not allowed", "planID", plan.ID, "chatID", plan.ChatID)
		return nil
	}

	loc := e.settings.Location()
	localNow := now.In(loc)
	currentDate := util.LocalDate(localNow)

	dailyCount := conv.DailyCount
	if conv.DailyDate != currentDate {
		if err := e.store.UpdateDailyCounter(plan.ChatID, 0, currentDate); err != nil {
			return err
		}
		dailyCount = 0
	}
	if dailyCount >= e.settings.Proactive.MaxPerDay {
		if err := e.store.MarkPlanCanceled(plan.ID, now); err != nil {
			return err
		}
		slog.Info("Canceled plan, daily cap reached", "planID", plan.ID, "chatID", plan.ChatID, "dailyCount", dailyCount)
		return nil
	}

	if policy.IsWithinQuietHours(localNow, e.blocks) {
		next := policy.NextAllowedTime(localNow, e.blocks)
		if err := e.store.ReschedulePlan(plan.ID, next.UTC(), now); err != nil {
			return err
		}
		slog.Info("Rescheduled plan past quiet hours", "planID", plan.ID, "chatID", plan.ChatID, "sendAt", next.UTC())
		return nil
	}

	if conv.LastBotAt != nil {
		cooldownUntil := conv.LastBotAt.Add(time.Duration(e.settings.Proactive.CooldownHours) * time.Hour)
		if now.Before(cooldownUntil) {
			if err := e.store.ReschedulePlan(plan.ID, cooldownUntil.UTC(), now); err != nil {
				return err
			}
			slog.Info("Rescheduled plan to cooldown boundary", "planID", plan.ID, "chatID", plan.ChatID, "sendAt", cooldownUntil.UTC())
			return nil
		}
	}

	// A connector failure leaves the plan pending for the next tick.
	if err := e.connector.SendText(ctx, plan.ChatID, plan.Text); err != nil {
		return fmt.Errorf("failed to dispatch plan text: %w", err)
	}
	if err := e.store.AddMessage(models.Message{
		ChatID:   plan.ChatID,
		SenderID: "bot",
		Role:     "bot",
		SentAt:   now,
		Content:  plan.Text,
		Kind:     models.MessageKindText,
	}); err != nil {
		return err
	}

	if plan.GifTag != "" && policy.AllowGif(e.settings.GifRate, e.rng) {
		if path := e.gifs.Pick(plan.GifTag); path != "" {
			if err := e.connector.SendGif(ctx, plan.ChatID, path); err != nil {
				slog.Warn("Failed to dispatch plan gif", "planID", plan.ID, "chatID", plan.ChatID, "error", err)
			} else if err := e.store.AddMessage(models.Message{
				ChatID:   plan.ChatID,
				SenderID: "bot",
				Role:     "bot",
				SentAt:   now,
				Content:  path,
				Kind:     models.MessageKindGif,
			}); err != nil {
				return err
			}
		}
	}

	if err := e.store.MarkPlanSent(plan.ID, now); err != nil {
		return err
	}
	if err := e.store.UpdateLastBotAt(plan.ChatID, now); err != nil {
		return err
	}
	if err := e.store.UpdateDailyCounter(plan.ChatID, dailyCount+1, currentDate); err != nil {
		return err
	}
	slog.Info("Plan dispatched", "planID", plan.ID, "chatID", plan.ChatID)
	return nil
}
