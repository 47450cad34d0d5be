package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"holdem-rooms/internal/store"
)

func sampleRecord(t *testing.T, handID string, at time.Time) HandRecord {
	t.Helper()
	var tape Tape
	require.NoError(t, tape.Append(1, "game_started", map[string]any{"hand": 1}))
	require.NoError(t, tape.Append(2, "round_over", []map[string]any{
		{"winners": []string{"alice"}, "amount": 40, "share": 40, "hand_rank": "By Default"},
	}))
	require.Equal(t, 2, tape.Len())
	return HandRecord{
		HandID:    handID,
		SessionID: "s-1",
		HandNo:    1,
		PlayedAt:  at,
		Deltas:    map[string]int64{"Alice": 20, "bob": -20},
		Summary:   map[string]any{"board": []string{}},
		Events:    tape.Items(),
	}
}

func TestTapeRoundTrip(t *testing.T) {
	item, err := EncodeEvent(7, "hand_revealed", struct {
		Username string   `json:"username"`
		Hand     []string `json:"hand"`
	}{"bob", []string{"As", "Kd"}})
	require.NoError(t, err)
	require.EqualValues(t, 7, item.Seq)
	require.Equal(t, "hand_revealed", item.EventType)
	require.NotNil(t, item.ServerTsMs)

	name, data, err := DecodeEvent(item)
	require.NoError(t, err)
	require.Equal(t, "hand_revealed", name)
	require.Equal(t, map[string]any{
		"username": "bob",
		"hand":     []any{"As", "Kd"},
	}, data)
}

func TestTapeItemsResets(t *testing.T) {
	var tape Tape
	require.NoError(t, tape.Append(1, "x", nil))
	require.Len(t, tape.Items(), 1)
	require.Zero(t, tape.Len())
}

func exerciseLedger(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, svc.RecordHand(ctx, sampleRecord(t, "h-1", base)))
	require.NoError(t, svc.RecordHand(ctx, sampleRecord(t, "h-2", base.Add(time.Second))))

	items, err := svc.ListRecent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "h-2", items[0].HandID)
	require.EqualValues(t, 20, items[0].Delta)

	items, err = svc.ListRecent(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, -20, items[1].Delta)

	events, err := svc.GetHandEvents(ctx, "alice", "h-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	name, _, err := DecodeEvent(events[1])
	require.NoError(t, err)
	require.Equal(t, "round_over", name)

	_, err = svc.GetHandEvents(ctx, "carol", "h-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.SetSaved(ctx, "alice", "h-1", true))
	items, err = svc.ListRecent(ctx, "alice", 10)
	require.NoError(t, err)
	require.True(t, items[1].IsSaved)
	require.NotNil(t, items[1].SavedAt)

	require.ErrorIs(t, svc.SetSaved(ctx, "alice", "missing", true), ErrNotFound)
}

func TestMemoryService(t *testing.T) {
	exerciseLedger(t, NewMemoryService())
}

func TestSQLServiceOnSQLite(t *testing.T) {
	db, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()
	svc, mode, err := NewService(context.Background(), "sqlite", db)
	require.NoError(t, err)
	require.Equal(t, "sqlite", mode)
	defer svc.Close()

	exerciseLedger(t, svc)
}

func TestMemoryServiceTrimsUnsaved(t *testing.T) {
	svc := NewMemoryService()
	svc.recentLimit = 3
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, svc.RecordHand(ctx, sampleRecord(t, "h-0", base)))
	require.NoError(t, svc.SetSaved(ctx, "alice", "h-0", true))
	for i := 1; i <= 5; i++ {
		require.NoError(t, svc.RecordHand(ctx, sampleRecord(t, fmt.Sprintf("h-%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	items, err := svc.ListRecent(ctx, "alice", 20)
	require.NoError(t, err)
	require.Len(t, items, 4)
	require.Equal(t, "h-5", items[0].HandID)
	require.Equal(t, "h-0", items[3].HandID)
	require.True(t, items[3].IsSaved)
}
