package bankroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"holdem-rooms/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("you don't have enough chips")
	ErrInvalidAmount     = errors.New("invalid chip amount")
)

// Service holds each user's chips while they are away from a table.
type Service interface {
	Balance(ctx context.Context, user string) (int64, error)
	// Withdraw debits amount for a buy-in and returns the new balance.
	Withdraw(ctx context.Context, user string, amount int64) (int64, error)
	// Deposit credits amount on cash-out and returns the new balance.
	Deposit(ctx context.Context, user string, amount int64) (int64, error)
	Close() error
}

// NewService builds the bankroll for a store mode. db must be non-nil for
// the sqlite and postgres modes.
func NewService(ctx context.Context, mode string, db *store.DB, starting int64) (Service, error) {
	mode, err := store.NormalizeMode(mode)
	if err != nil {
		return nil, err
	}
	if mode == store.ModeMemory {
		return NewMemoryService(starting), nil
	}
	if db == nil {
		return nil, fmt.Errorf("bankroll: %s mode needs a database", mode)
	}
	return NewSQLService(ctx, db, starting)
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

// MemoryService keeps balances in a map. New users start with the
// configured starting bankroll.
type MemoryService struct {
	mu       sync.Mutex
	starting int64
	balances map[string]int64
}

func NewMemoryService(starting int64) *MemoryService {
	return &MemoryService{
		starting: starting,
		balances: make(map[string]int64),
	}
}

func (m *MemoryService) balanceLocked(user string) int64 {
	bal, ok := m.balances[user]
	if !ok {
		bal = m.starting
		m.balances[user] = bal
	}
	return bal
}

func (m *MemoryService) Balance(_ context.Context, user string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(normalizeUser(user)), nil
}

func (m *MemoryService) Withdraw(_ context.Context, user string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	user = normalizeUser(user)

	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balanceLocked(user)
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	bal -= amount
	m.balances[user] = bal
	return bal, nil
}

func (m *MemoryService) Deposit(_ context.Context, user string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	user = normalizeUser(user)

	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balanceLocked(user) + amount
	m.balances[user] = bal
	return bal, nil
}

func (m *MemoryService) Close() error { return nil }
