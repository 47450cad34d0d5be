package bankroll

import (
	"context"
	"database/sql"
	"log"
	"time"

	"holdem-rooms/internal/store"
)

// SQLService stores balances in the bankroll table of a sqlite or postgres
// database.
type SQLService struct {
	db       *store.DB
	starting int64
}

func NewSQLService(ctx context.Context, db *store.DB, starting int64) (*SQLService, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, []string{`
CREATE TABLE IF NOT EXISTS bankroll (
    username TEXT PRIMARY KEY,
    chips BIGINT NOT NULL CHECK (chips >= 0),
    updated_at_ms BIGINT NOT NULL
)`}); err != nil {
		return nil, err
	}
	log.Printf("[Bankroll] %s store ready", db.Dialect)
	return &SQLService{db: db, starting: starting}, nil
}

func (s *SQLService) ensureRow(ctx context.Context, tx *sql.Tx, user string) error {
	_, err := tx.ExecContext(ctx, s.db.Rebind(`
INSERT INTO bankroll (username, chips, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT (username) DO NOTHING
`), user, s.starting, time.Now().UnixMilli())
	return err
}

func (s *SQLService) balanceTx(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	var chips int64
	err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT chips FROM bankroll WHERE username = ?`), user).Scan(&chips)
	return chips, err
}

func (s *SQLService) inTx(ctx context.Context, user string, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureRow(ctx, tx, user); err != nil {
		return 0, err
	}
	bal, err := fn(tx)
	if err != nil {
		return bal, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bal, nil
}

func (s *SQLService) Balance(ctx context.Context, user string) (int64, error) {
	user = normalizeUser(user)
	return s.inTx(ctx, user, func(tx *sql.Tx) (int64, error) {
		return s.balanceTx(ctx, tx, user)
	})
}

func (s *SQLService) Withdraw(ctx context.Context, user string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	user = normalizeUser(user)
	return s.inTx(ctx, user, func(tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, s.db.Rebind(`
UPDATE bankroll SET chips = chips - ?, updated_at_ms = ?
WHERE username = ? AND chips >= ?
`), amount, time.Now().UnixMilli(), user, amount)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return 0, err
		} else if n == 0 {
			bal, _ := s.balanceTx(ctx, tx, user)
			return bal, ErrInsufficientFunds
		}
		return s.balanceTx(ctx, tx, user)
	})
}

func (s *SQLService) Deposit(ctx context.Context, user string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	user = normalizeUser(user)
	bal, err := s.inTx(ctx, user, func(tx *sql.Tx) (int64, error) {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
UPDATE bankroll SET chips = chips + ?, updated_at_ms = ? WHERE username = ?
`), amount, time.Now().UnixMilli(), user); err != nil {
			return 0, err
		}
		return s.balanceTx(ctx, tx, user)
	})
	if err != nil {
		log.Printf("[Bankroll] deposit failed: user=%s amount=%d err=%v", user, amount, err)
	}
	return bal, err
}

// Close leaves the shared database open.
func (s *SQLService) Close() error { return nil }
