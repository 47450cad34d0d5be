package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"holdem-rooms/internal/store"
)

const (
	defaultRecentLimit = 200
	defaultSavedLimit  = 50
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSavedLimitReach = errors.New("saved hand limit reached")
)

// Service records finished hands and serves each player's history.
type Service interface {
	Close() error
	RecordHand(ctx context.Context, rec HandRecord) error
	ListRecent(ctx context.Context, user string, limit int) ([]HistoryItem, error)
	GetHandEvents(ctx context.Context, user, handID string) ([]EventItem, error)
	SetSaved(ctx context.Context, user, handID string, saved bool) error
}

// HandRecord is everything kept about one finished hand.
type HandRecord struct {
	HandID    string
	SessionID string
	HandNo    int
	PlayedAt  time.Time
	// Deltas is each participant's net chip change for the hand.
	Deltas  map[string]int64
	Summary map[string]any
	Events  []EventItem
}

type HistoryItem struct {
	HandID    string         `json:"hand_id"`
	SessionID string         `json:"session_id"`
	HandNo    int            `json:"hand_no"`
	PlayedAt  time.Time      `json:"played_at"`
	Delta     int64          `json:"delta"`
	IsSaved   bool           `json:"is_saved"`
	SavedAt   *time.Time     `json:"saved_at,omitempty"`
	Summary   map[string]any `json:"summary"`
}

type EventItem struct {
	Seq         uint64 `json:"seq"`
	EventType   string `json:"event_type"`
	EnvelopeB64 string `json:"envelope_b64"`
	ServerTsMs  *int64 `json:"server_ts_ms,omitempty"`
}

// NewService picks the ledger backend for a store mode.
func NewService(ctx context.Context, mode string, db *store.DB) (Service, string, error) {
	mode, err := store.NormalizeMode(mode)
	if err != nil {
		return nil, "", err
	}
	if mode == store.ModeMemory {
		return NewMemoryService(), "memory", nil
	}
	if db == nil {
		return nil, "", fmt.Errorf("ledger: %s mode needs a database", mode)
	}
	svc, err := NewSQLService(ctx, db)
	if err != nil {
		return nil, "", err
	}
	return svc, mode, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

type memoryHand struct {
	rec   HandRecord
	saved map[string]time.Time
}

// MemoryService keeps the most recent hands in process memory. Nothing
// survives a restart.
type MemoryService struct {
	mu          sync.Mutex
	recentLimit int
	savedLimit  int
	hands       map[string]*memoryHand
	byUser      map[string][]string // user -> hand ids, oldest first
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		recentLimit: defaultRecentLimit,
		savedLimit:  defaultSavedLimit,
		hands:       make(map[string]*memoryHand),
		byUser:      make(map[string][]string),
	}
}

func (m *MemoryService) Close() error { return nil }

func (m *MemoryService) RecordHand(_ context.Context, rec HandRecord) error {
	if strings.TrimSpace(rec.HandID) == "" {
		return fmt.Errorf("empty hand id")
	}
	if rec.PlayedAt.IsZero() {
		rec.PlayedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.hands[rec.HandID]; exists {
		return nil
	}
	m.hands[rec.HandID] = &memoryHand{rec: rec, saved: make(map[string]time.Time)}
	for user := range rec.Deltas {
		user = normalizeUser(user)
		m.byUser[user] = append(m.byUser[user], rec.HandID)
		m.trimLocked(user)
	}
	return nil
}

func (m *MemoryService) trimLocked(user string) {
	ids := m.byUser[user]
	unsaved := 0
	for _, id := range ids {
		if _, ok := m.hands[id].saved[user]; !ok {
			unsaved++
		}
	}
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := m.hands[id].saved[user]; !ok && unsaved > m.recentLimit {
			unsaved--
			continue
		}
		kept = append(kept, id)
	}
	m.byUser[user] = kept
}

func (m *MemoryService) ListRecent(_ context.Context, user string, limit int) ([]HistoryItem, error) {
	user = normalizeUser(user)
	limit = clampLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byUser[user]
	items := make([]HistoryItem, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(items) < limit; i-- {
		h := m.hands[ids[i]]
		item := HistoryItem{
			HandID:    h.rec.HandID,
			SessionID: h.rec.SessionID,
			HandNo:    h.rec.HandNo,
			PlayedAt:  h.rec.PlayedAt,
			Delta:     deltaFor(h.rec.Deltas, user),
			Summary:   h.rec.Summary,
		}
		if at, ok := h.saved[user]; ok {
			item.IsSaved = true
			item.SavedAt = &at
		}
		if item.Summary == nil {
			item.Summary = map[string]any{}
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PlayedAt.After(items[j].PlayedAt) })
	return items, nil
}

func (m *MemoryService) GetHandEvents(_ context.Context, user, handID string) ([]EventItem, error) {
	user = normalizeUser(user)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ownsLocked(user, handID) {
		return nil, ErrNotFound
	}
	events := m.hands[handID].rec.Events
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return append([]EventItem(nil), events...), nil
}

func (m *MemoryService) SetSaved(_ context.Context, user, handID string, saved bool) error {
	user = normalizeUser(user)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ownsLocked(user, handID) {
		return ErrNotFound
	}
	h := m.hands[handID]
	if _, current := h.saved[user]; current == saved {
		return nil
	}
	if !saved {
		delete(h.saved, user)
		m.trimLocked(user)
		return nil
	}

	count := 0
	for _, id := range m.byUser[user] {
		if _, ok := m.hands[id].saved[user]; ok {
			count++
		}
	}
	if count >= m.savedLimit {
		return ErrSavedLimitReach
	}
	h.saved[user] = time.Now().UTC()
	return nil
}

func (m *MemoryService) ownsLocked(user, handID string) bool {
	for _, id := range m.byUser[user] {
		if id == handID {
			return true
		}
	}
	return false
}

func deltaFor(deltas map[string]int64, user string) int64 {
	for name, d := range deltas {
		if normalizeUser(name) == user {
			return d
		}
	}
	return 0
}
