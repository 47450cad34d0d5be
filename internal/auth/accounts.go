package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"holdem-rooms/internal/store"
)

type accountRecord struct {
	AccountID    uint64
	Username     string
	PasswordHash []byte
}

// accountStore persists accounts. Usernames arrive already normalized.
type accountStore interface {
	create(ctx context.Context, username string, passwordHash []byte) (uint64, error)
	byUsername(ctx context.Context, username string) (accountRecord, bool, error)
	touchLogin(ctx context.Context, accountID uint64) error
	close() error
}

type memoryAccounts struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[string]accountRecord
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		nextID: 100000, // start from a readable non-trivial range
		byKey:  make(map[string]accountRecord),
	}
}

func (m *memoryAccounts) create(_ context.Context, username string, passwordHash []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[username]; exists {
		return 0, ErrUsernameTaken
	}
	m.nextID++
	m.byKey[username] = accountRecord{
		AccountID:    m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
	}
	return m.nextID, nil
}

func (m *memoryAccounts) byUsername(_ context.Context, username string) (accountRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byKey[username]
	return rec, ok, nil
}

func (m *memoryAccounts) touchLogin(context.Context, uint64) error { return nil }

func (m *memoryAccounts) close() error { return nil }

// sqlAccounts keeps accounts in the shared sqlite/postgres database.
type sqlAccounts struct {
	db *store.DB
}

func newSQLAccounts(ctx context.Context, db *store.DB) (*sqlAccounts, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, []string{
		`
CREATE TABLE IF NOT EXISTS accounts (
    id ` + db.AutoIncrement() + `,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at_ms BIGINT NOT NULL,
    last_login_at_ms BIGINT
)`,
	}); err != nil {
		return nil, err
	}
	return &sqlAccounts{db: db}, nil
}

func (s *sqlAccounts) create(ctx context.Context, username string, passwordHash []byte) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM accounts WHERE username = ?`), username).Scan(&existing)
	if err == nil {
		return 0, ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	nowMs := time.Now().UTC().UnixMilli()
	var id int64
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`
INSERT INTO accounts (username, password_hash, created_at_ms, last_login_at_ms)
VALUES (?, ?, ?, ?)
RETURNING id
`), username, string(passwordHash), nowMs, nowMs).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *sqlAccounts) byUsername(ctx context.Context, username string) (accountRecord, bool, error) {
	var rec accountRecord
	var id int64
	var hash string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
SELECT id, username, password_hash FROM accounts WHERE username = ?
`), username).Scan(&id, &rec.Username, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return accountRecord{}, false, nil
	}
	if err != nil {
		return accountRecord{}, false, err
	}
	rec.AccountID = uint64(id)
	rec.PasswordHash = []byte(hash)
	return rec, true, nil
}

func (s *sqlAccounts) touchLogin(ctx context.Context, accountID uint64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE accounts SET last_login_at_ms = ? WHERE id = ?`),
		time.Now().UTC().UnixMilli(), int64(accountID))
	return err
}

// The database is shared and closed by its owner.
func (s *sqlAccounts) close() error { return nil }

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
