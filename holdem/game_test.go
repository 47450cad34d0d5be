package holdem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestGame(t *testing.T, stacks map[string]int64, order ...string) *Game {
	t.Helper()
	g, err := NewGame(Config{MaxPlayers: 8, SmallBlind: 10, BigBlind: 20, Seed: 1})
	require.NoError(t, err)
	for _, name := range order {
		require.NoError(t, g.Seat(name, stacks[name]))
	}
	return g
}

func findItem(items []ActionItem, a Action) *ActionItem {
	for i := range items {
		if items[i].Action == a {
			return &items[i]
		}
	}
	return nil
}

func TestHeadsUp_BigBlindOptionChecksOrRaisesToForty(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000}, "ann", "bob")
	res, err := g.StartHand()
	require.NoError(t, err)
	require.Nil(t, res)

	snap := g.Snapshot()
	require.Equal(t, "ann", snap.Dealer)
	require.Equal(t, "ann", snap.SmallBlind)
	require.Equal(t, "bob", snap.BigBlind)
	require.Equal(t, "ann", g.ToAct())

	items := g.LegalActions("ann")
	call := findItem(items, ActionCall)
	require.NotNil(t, call)
	require.Equal(t, int64(10), *call.Min)
	require.NotNil(t, findItem(items, ActionFold))

	_, err = g.Act("ann", ActionCall, 0)
	require.NoError(t, err)
	require.Equal(t, "bob", g.ToAct())

	items = g.LegalActions("bob")
	check := findItem(items, ActionCheck)
	require.NotNil(t, check)
	require.Nil(t, check.Min)
	raise := findItem(items, ActionRaise)
	require.NotNil(t, raise)
	require.Equal(t, int64(40), *raise.Min)
	require.False(t, raise.AllIn)
	require.Nil(t, findItem(items, ActionFold))

	_, err = g.Act("bob", ActionCheck, 0)
	require.NoError(t, err)
	snap = g.Snapshot()
	require.Equal(t, StreetFlop, snap.Street)
	require.Len(t, snap.Board, 3)
	require.Equal(t, "bob", snap.ToAct)
	require.Equal(t, int64(40), PotsTotal(snap.Pots))

	bet := findItem(g.LegalActions("bob"), ActionBet)
	require.NotNil(t, bet)
	require.Equal(t, int64(20), *bet.Min)
}

func TestCheckDownConservesChips(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000}, "ann", "bob")
	res, err := g.StartHand()
	require.NoError(t, err)
	require.Nil(t, res)

	_, err = g.Act("ann", ActionCall, 0)
	require.NoError(t, err)
	for res == nil {
		name := g.ToAct()
		require.NotEmpty(t, name)
		res, err = g.Act(name, ActionCheck, 0)
		require.NoError(t, err)
	}
	require.True(t, res.Showdown)
	require.Len(t, res.Board, 5)
	require.Equal(t, int64(40), PotsTotal(res.Pots))

	annStack, _ := g.Stack("ann")
	bobStack, _ := g.Stack("bob")
	require.Equal(t, int64(2000), annStack+bobStack+res.Absorbed)
	require.Equal(t, int64(2000)-res.Absorbed, g.ChipsOnTable())
	require.False(t, g.Running())
	require.Empty(t, g.ToAct())
}

func TestUncalledRaiseIsReturnedOnFoldOut(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000}, "ann", "bob")
	_, err := g.StartHand()
	require.NoError(t, err)

	_, err = g.Act("ann", ActionRaise, 100)
	require.NoError(t, err)
	res, err := g.Act("bob", ActionFold, 0)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.False(t, res.Showdown)
	require.Empty(t, res.MustShow)
	require.Len(t, res.Awards, 1)
	require.Equal(t, DefaultRank, res.Awards[0].HandRank)
	require.Equal(t, int64(40), res.Awards[0].Amount)

	annStack, _ := g.Stack("ann")
	bobStack, _ := g.Stack("bob")
	require.Equal(t, int64(1020), annStack)
	require.Equal(t, int64(980), bobStack)
}

func TestShortAllInBuildsSidePot(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 300, "cat": 1000}, "ann", "bob", "cat")
	_, err := g.StartHand()
	require.NoError(t, err)
	require.Equal(t, "ann", g.ToAct())

	_, err = g.Act("ann", ActionRaise, 1000)
	require.NoError(t, err)
	call := findItem(g.LegalActions("bob"), ActionCall)
	require.NotNil(t, call)
	require.True(t, call.AllIn)
	require.Equal(t, int64(290), *call.Min)

	_, err = g.Act("bob", ActionCall, 0)
	require.NoError(t, err)
	res, err := g.Act("cat", ActionCall, 0)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.Showdown)
	require.Len(t, res.Pots, 2)
	require.Equal(t, int64(900), res.Pots[0].Amount)
	require.Equal(t, []string{"ann", "bob", "cat"}, res.Pots[0].Eligible)
	require.Equal(t, int64(1400), res.Pots[1].Amount)
	require.Equal(t, []string{"ann", "cat"}, res.Pots[1].Eligible)
	require.NotEmpty(t, res.MustShow)

	var total int64
	for _, name := range []string{"ann", "bob", "cat"} {
		s, _ := g.Stack(name)
		require.GreaterOrEqual(t, s, int64(0))
		total += s
	}
	require.Equal(t, int64(2300), total+res.Absorbed)
}

func TestRejectedActionsLeaveStateAlone(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000}, "ann", "bob")
	_, err := g.StartHand()
	require.NoError(t, err)
	before := g.Snapshot()

	_, err = g.Act("bob", ActionCheck, 0)
	require.ErrorIs(t, err, ErrNotYourTurn)
	_, err = g.Act("ann", ActionCheck, 0)
	require.ErrorIs(t, err, ErrInvalidAction)
	_, err = g.Act("ann", ActionRaise, 30)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = g.Act("ann", ActionRaise, -5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Equal(t, before, g.Snapshot())
}

func TestFoldedPlayerMayLeaveMidHand(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000, "cat": 1000}, "ann", "bob", "cat")
	_, err := g.StartHand()
	require.NoError(t, err)

	_, err = g.Unseat("ann")
	require.True(t, errors.Is(err, ErrHandInProgress))

	_, err = g.Act("ann", ActionFold, 0)
	require.NoError(t, err)
	stack, err := g.Unseat("ann")
	require.NoError(t, err)
	require.Equal(t, int64(1000), stack)
	require.False(t, g.Seated("ann"))
	require.Equal(t, int64(2000), g.ChipsOnTable())

	// bob (small blind) completes, cat checks its option
	_, err = g.Act("bob", ActionCall, 0)
	require.NoError(t, err)
	_, err = g.Act("cat", ActionCheck, 0)
	require.NoError(t, err)
	require.Equal(t, StreetFlop, g.Snapshot().Street)
}

func TestButtonMovesBetweenHands(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000, "cat": 1000}, "ann", "bob", "cat")
	_, err := g.StartHand()
	require.NoError(t, err)
	require.Equal(t, "ann", g.Snapshot().Dealer)

	_, err = g.Act("ann", ActionFold, 0)
	require.NoError(t, err)
	res, err := g.Act("bob", ActionFold, 0)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, map[string]int64{"cat": 20}, res.Payouts)

	_, err = g.StartHand()
	require.NoError(t, err)
	snap := g.Snapshot()
	require.Equal(t, "bob", snap.Dealer)
	require.Equal(t, "cat", snap.SmallBlind)
	require.Equal(t, "ann", snap.BigBlind)
	require.Equal(t, "bob", snap.ToAct)
}

func TestAbortRefundsContributions(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 1000}, "ann", "bob")
	_, err := g.StartHand()
	require.NoError(t, err)
	_, err = g.Act("ann", ActionRaise, 60)
	require.NoError(t, err)

	refunds := g.Abort()
	require.Len(t, refunds, 2)
	annStack, _ := g.Stack("ann")
	bobStack, _ := g.Stack("bob")
	require.Equal(t, int64(1000), annStack)
	require.Equal(t, int64(1000), bobStack)
	require.False(t, g.Running())
}

func TestStartHandNeedsTwoFundedPlayers(t *testing.T) {
	g := newTestGame(t, map[string]int64{"ann": 1000, "bob": 0}, "ann", "bob")
	_, err := g.StartHand()
	require.ErrorIs(t, err, ErrNotEnoughPlayers)
}
