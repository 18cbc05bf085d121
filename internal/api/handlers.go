package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BubblyOak/PingPal/internal/models"
	"github.com/BubblyOak/PingPal/internal/planner"
	"github.com/BubblyOak/PingPal/internal/policy"
)

// healthHandler reports service liveness (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"version": Version}))
}

// eventHandler processes one inbound chat event (POST /event). It records the
// turn, produces the assistant reply, applies the planning directive, and
// refreshes the conversation summary.
func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.eventHandler: processing event", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.eventHandler: method not allowed", "method", r.Method)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	if r.Header.Get(secretHeader) != s.settings.Security.SharedSecret {
		slog.Warn("Server.eventHandler: unauthorized request")
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("unauthorized"))
		return
	}

	var event models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.eventHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := event.Validate(); err != nil {
		slog.Warn("Server.eventHandler: invalid event", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	conv, err := s.store.EnsureConversation(event.ChatID, event.ChatKind)
	if err != nil {
		slog.Error("Server.eventHandler: failed to ensure conversation", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}

	eventAt := time.Unix(event.Timestamp, 0).UTC()
	if err := s.store.AddMessage(models.Message{
		ChatID:   event.ChatID,
		SenderID: event.SenderID,
		Role:     "user",
		SentAt:   eventAt,
		Content:  event.Text,
		Kind:     models.MessageKindText,
	}); err != nil {
		slog.Error("Server.eventHandler: failed to record message", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}
	if err := s.store.UpdateLastUserAt(event.ChatID, eventAt); err != nil {
		slog.Error("Server.eventHandler: failed to update last user instant", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}

	dailyCount, dailyDate, err := s.planner.RefreshDailyCounter(conv)
	if err != nil {
		slog.Error("Server.eventHandler: failed to refresh daily counter", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}
	conv.DailyCount = dailyCount
	conv.DailyDate = dailyDate

	if event.ChatKind == models.ChatKindGroup && !policy.ShouldReplyInGroup(event.IsMention, s.settings.Groups) {
		s.refreshSummary(conv)
		slog.Debug("Server.eventHandler: group message without mention, reply skipped", "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("group_not_mentioned", nil))
		return
	}

	recent, err := s.store.RecentMessages(event.ChatID, s.settings.Memory.RecentMessages)
	if err != nil {
		slog.Error("Server.eventHandler: failed to load recent messages", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}
	pending, err := s.store.GetPendingPlans(event.ChatID)
	if err != nil {
		slog.Error("Server.eventHandler: failed to load pending plans", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("storage failure"))
		return
	}

	gc := s.planner.BuildContext(conv, event.Text, recent, pending)
	out, err := s.genai.GenerateResponse(r.Context(), gc)
	if err != nil {
		slog.Error("Server.eventHandler: assistant turn failed", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("assistant failure"))
		return
	}

	replyText := strings.TrimSpace(out.Reply.Text)
	if replyText == "" {
		replyText = "Got it."
	}
	if err := s.connector.SendText(r.Context(), event.ChatID, replyText); err != nil {
		slog.Error("Server.eventHandler: failed to deliver reply", "error", err, "chatID", event.ChatID)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("delivery failure"))
		return
	}

	now := s.now()
	if err := s.store.AddMessage(models.Message{
		ChatID:   event.ChatID,
		SenderID: "bot",
		Role:     "bot",
		SentAt:   now,
		Content:  replyText,
		Kind:     models.MessageKindText,
	}); err != nil {
		slog.Error("Server.eventHandler: failed to record reply", "error", err, "chatID", event.ChatID)
	}
	if err := s.store.UpdateLastBotAt(event.ChatID, now); err != nil {
		slog.Error("Server.eventHandler: failed to update last bot instant", "error", err, "chatID", event.ChatID)
	}
	lastBot := now
	conv.LastBotAt = &lastBot

	if out.Reply.SendGif && policy.AllowGif(s.settings.GifRate, s.rng) {
		if path := s.gifs.Pick(out.Reply.GifTag); path != "" {
			if err := s.connector.SendGif(r.Context(), event.ChatID, path); err != nil {
				slog.Warn("Server.eventHandler: failed to deliver gif", "error", err, "chatID", event.ChatID)
			} else if err := s.store.AddMessage(models.Message{
				ChatID:   event.ChatID,
				SenderID: "bot",
				Role:     "bot",
				SentAt:   now,
				Content:  path,
				Kind:     models.MessageKindGif,
			}); err != nil {
				slog.Error("Server.eventHandler: failed to record gif", "error", err, "chatID", event.ChatID)
			}
		}
	}

	if err := s.planner.Apply(event.ChatID, event.ChatKind, out.Planning, len(pending), conv); err != nil {
		slog.Error("Server.eventHandler: failed to apply planning directive", "error", err, "chatID", event.ChatID)
	}

	s.refreshSummary(conv)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"reply": replyText}))
}

// refreshSummary folds the latest history into the conversation summary.
// Summary staleness is tolerable, so failures only log.
func (s *Server) refreshSummary(conv *models.Conversation) {
	recent, err := s.store.RecentMessages(conv.ChatID, s.settings.Memory.RecentMessages)
	if err != nil {
		slog.Error("Server.refreshSummary: failed to load recent messages", "error", err, "chatID", conv.ChatID)
		return
	}
	summary := planner.UpdateSummary(conv.Summary, recent, s.settings.Memory.SummaryMaxChars)
	if err := s.store.UpdateSummary(conv.ChatID, summary); err != nil {
		slog.Error("Server.refreshSummary: failed to persist summary", "error", err, "chatID", conv.ChatID)
	}
}
