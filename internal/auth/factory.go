package auth

import (
	"context"
	"fmt"

	"holdem-rooms/internal/store"
)

// Service resolves who is talking to the server. The gateway and the HTTP
// routes only ever see usernames.
type Service interface {
	Register(username, password string) (accountID uint64, sessionToken string, err error)
	Login(username, password string) (accountID uint64, sessionToken string, err error)
	ResolveSession(token string) (accountID uint64, username string, ok bool)
	Logout(token string)
	Close() error
}

// NewService builds the auth manager for a store mode. Accounts live in the
// shared database for sqlite and postgres, and in memory otherwise.
func NewService(ctx context.Context, mode string, db *store.DB, secret string) (Service, error) {
	mode, err := store.NormalizeMode(mode)
	if err != nil {
		return nil, err
	}
	if mode == store.ModeMemory {
		return NewManager(secret), nil
	}
	if db == nil {
		return nil, fmt.Errorf("auth: %s mode needs a database", mode)
	}
	accounts, err := newSQLAccounts(ctx, db)
	if err != nil {
		return nil, err
	}
	return newManager(secret, accounts), nil
}
