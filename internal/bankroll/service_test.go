package bankroll

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"holdem-rooms/internal/store"
)

func exercise(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()

	bal, err := svc.Balance(ctx, "Alice")
	require.NoError(t, err)
	require.EqualValues(t, 1000, bal)

	bal, err = svc.Withdraw(ctx, "alice", 400)
	require.NoError(t, err)
	require.EqualValues(t, 600, bal)

	bal, err = svc.Withdraw(ctx, "alice", 601)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.EqualValues(t, 600, bal)

	bal, err = svc.Deposit(ctx, "alice", 250)
	require.NoError(t, err)
	require.EqualValues(t, 850, bal)

	_, err = svc.Withdraw(ctx, "alice", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	bal, err = svc.Balance(ctx, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1000, bal)
}

func TestMemoryService(t *testing.T) {
	exercise(t, NewMemoryService(1000))
}

func TestSQLServiceOnSQLite(t *testing.T) {
	db, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	svc, err := NewService(context.Background(), "sqlite", db, 1000)
	require.NoError(t, err)
	defer svc.Close()

	exercise(t, svc)
}

func TestNewServiceNeedsDB(t *testing.T) {
	_, err := NewService(context.Background(), "postgres", nil, 1000)
	require.Error(t, err)

	svc, err := NewService(context.Background(), "memory", nil, 5)
	require.NoError(t, err)
	require.IsType(t, &MemoryService{}, svc)
}
