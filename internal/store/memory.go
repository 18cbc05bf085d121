package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BubblyOak/PingPal/internal/models"
)

// InMemoryStore implements Store with mutex-protected maps. It is used in
// tests and as a throwaway backend when no DSN is configured.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	plans         map[int64]*models.Plan
	nextPlanID    int64
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		plans:         make(map[int64]*models.Plan),
		nextPlanID:    1,
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) EnsureConversation(chatID string, kind models.ChatKind) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[chatID]
	if !ok {
		conv = &models.Conversation{ChatID: chatID, ChatKind: kind}
		s.conversations[chatID] = conv
	} else {
		conv.ChatKind = kind
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryStore) GetConversation(chatID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[chatID]
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryStore) UpdateSummary(chatID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[chatID]; ok {
		conv.Summary = summary
	}
	return nil
}

func (s *InMemoryStore) UpdateLastUserAt(chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[chatID]; ok {
		t := at
		conv.LastUserAt = &t
	}
	return nil
}

func (s *InMemoryStore) UpdateLastBotAt(chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[chatID]; ok {
		t := at
		conv.LastBotAt = &t
	}
	return nil
}

func (s *InMemoryStore) UpdateDailyCounter(chatID string, count int, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[chatID]; ok {
		conv.DailyCount = count
		conv.DailyDate = date
	}
	return nil
}

func (s *InMemoryStore) AddMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return nil
}

func (s *InMemoryStore) RecentMessages(chatID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[chatID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) pendingPlansLocked(chatID string) []*models.Plan {
	var out []*models.Plan
	for _, p := range s.plans {
		if p.ChatID == chatID && p.Status == models.PlanStatusPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SendAt.Before(out[j].SendAt)
	})
	return out
}

func (s *InMemoryStore) GetPendingPlans(chatID string) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Plan
	for _, p := range s.pendingPlansLocked(chatID) {
		out = append(out, *p)
	}
	return out, nil
}

func (s *InMemoryStore) CountPendingPlans(chatID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingPlansLocked(chatID)), nil
}

func (s *InMemoryStore) GetDuePlans(now time.Time, limit int) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	var due []*models.Plan
	for _, p := range s.plans {
		if p.Status == models.PlanStatusPending && !p.SendAt.After(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].SendAt.Equal(due[j].SendAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].SendAt.Before(due[j].SendAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]models.Plan, 0, len(due))
	for _, p := range due {
		out = append(out, *p)
	}
	return out, nil
}

func (s *InMemoryStore) addPlanLocked(chatID string, item PlanInsert, now time.Time) {
	p := &models.Plan{
		ID:         s.nextPlanID,
		ChatID:     chatID,
		SendAt:     item.SendAt,
		Text:       item.Text,
		GifTag:     item.GifTag,
		Status:     models.PlanStatusPending,
		Reason:     item.Reason,
		Confidence: item.Confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nextPlanID++
	s.plans[p.ID] = p
}

func (s *InMemoryStore) AddPlan(chatID string, sendAt time.Time, text, gifTag, reason string, confidence float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addPlanLocked(chatID, PlanInsert{SendAt: sendAt, Text: text, GifTag: gifTag, Reason: reason, Confidence: confidence}, now)
	return nil
}

func (s *InMemoryStore) ReplacePlans(chatID string, items []PlanInsert, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pendingPlansLocked(chatID) {
		p.Status = models.PlanStatusCanceled
		p.UpdatedAt = now
	}
	for _, item := range items {
		s.addPlanLocked(chatID, item, now)
	}
	return nil
}

func (s *InMemoryStore) AppendPlans(chatID string, items []PlanInsert, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.addPlanLocked(chatID, item, now)
	}
	return nil
}

func (s *InMemoryStore) CancelAllPlans(chatID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingPlansLocked(chatID)
	for _, p := range pending {
		p.Status = models.PlanStatusCanceled
		p.UpdatedAt = now
	}
	return len(pending), nil
}

func (s *InMemoryStore) MarkPlanSent(id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[id]; ok && p.Status == models.PlanStatusPending {
		p.Status = models.PlanStatusSent
		p.UpdatedAt = now
	}
	return nil
}

func (s *InMemoryStore) MarkPlanCanceled(id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[id]; ok && p.Status == models.PlanStatusPending {
		p.Status = models.PlanStatusCanceled
		p.UpdatedAt = now
	}
	return nil
}

func (s *InMemoryStore) ReschedulePlan(id int64, sendAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[id]; ok && p.Status == models.PlanStatusPending {
		p.SendAt = sendAt
		p.UpdatedAt = now
	}
	return nil
}
