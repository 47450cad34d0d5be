package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"holdem-rooms/holdem"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/codec"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePresence struct {
	mu      sync.Mutex
	offline map[string]bool
}

func (p *fakePresence) Online(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.offline[user]
}

func (p *fakePresence) Unbind(string, string) {}

func (p *fakePresence) drop(user string) {
	p.mu.Lock()
	p.offline[user] = true
	p.mu.Unlock()
}

type inbox struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (b *inbox) Deliver(f fanout.Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, f.Events...)
	return true
}

func (b *inbox) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (b *inbox) last(name string) (fanout.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Name == name {
			return b.events[i], true
		}
	}
	return fanout.Event{}, false
}

type table struct {
	t      *testing.T
	s      *Session
	hub    *fanout.Hub
	bank   *bankroll.MemoryService
	led    *ledger.MemoryService
	clk    *fakeClock
	pres   *fakePresence
	boxes  map[string]*inbox
	closed chan string
}

func newTable(t *testing.T, seats int, opts Options, users ...string) *table {
	t.Helper()

	tb := &table{
		t:      t,
		hub:    fanout.NewHub(),
		bank:   bankroll.NewMemoryService(5000),
		led:    ledger.NewMemoryService(),
		clk:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
		pres:   &fakePresence{offline: map[string]bool{}},
		boxes:  map[string]*inbox{},
		closed: make(chan string, 1),
	}
	opts.Now = tb.clk.Now
	opts.Seed = 1

	s, err := New("g1", users[0], Config{
		Name:       "test",
		SmallBlind: 10,
		BigBlind:   20,
		BuyIn:      1000,
		MaxSeats:   seats,
	}, opts, Deps{
		Publisher: tb.hub,
		Bankroll:  tb.bank,
		Ledger:    tb.led,
		Presence:  tb.pres,
		OnClose:   func(id string) { tb.closed <- id },
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	tb.s = s

	for _, u := range users {
		tb.box(u)
		_, err := s.Join(u)
		require.NoError(t, err)
	}
	return tb
}

func (tb *table) box(user string) *inbox {
	if b, ok := tb.boxes[user]; ok {
		return b
	}
	b := &inbox{}
	tb.boxes[user] = b
	tb.hub.Attach(user, b)
	return b
}

func (tb *table) tick(d time.Duration) {
	tb.t.Helper()
	tb.clk.Add(d)
	require.NoError(tb.t, tb.s.Tick())
}

func (tb *table) balance(user string) int64 {
	tb.t.Helper()
	bal, err := tb.bank.Balance(context.Background(), user)
	require.NoError(tb.t, err)
	return bal
}

func (tb *table) view(user string) *codec.TableView {
	tb.t.Helper()
	v, err := tb.s.State(user)
	require.NoError(tb.t, err)
	return v
}

func findAction(items []codec.ActionView, action holdem.Action) *codec.ActionView {
	for i := range items {
		if items[i].Action == string(action) {
			return &items[i]
		}
	}
	return nil
}

func findPlayer(v *codec.TableView, name string) *codec.PlayerView {
	for i := range v.Players {
		if v.Players[i].Username == name {
			return &v.Players[i]
		}
	}
	return nil
}

func TestJoinSeatsUntilFullThenQueues(t *testing.T) {
	tb := newTable(t, 2, Options{}, "ann", "bob")
	cat := tb.box("cat")

	queued, err := tb.s.Join("cat")
	require.NoError(t, err)
	require.True(t, queued)

	sum := tb.s.Summary()
	require.Equal(t, []string{"ann", "bob"}, sum.Players)
	require.Equal(t, []string{"cat"}, sum.Queue)
	require.Equal(t, PhaseWaiting, sum.Phase)
	require.Equal(t, int64(4000), tb.balance("ann"))
	require.Equal(t, int64(5000), tb.balance("cat"))
	require.Equal(t, 1, cat.count(EvPlayerQueued))
	require.Equal(t, []string{"cat"}, tb.view("cat").JoinerQueue)

	_, err = tb.s.Join("ann")
	require.ErrorIs(t, err, ErrAlreadySeated)
	_, err = tb.s.Join("cat")
	require.ErrorIs(t, err, ErrAlreadyQueued)
	require.Equal(t, KindState, KindOf(err))
}

func TestStartNeedsHostAndTwoPlayers(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann")

	require.ErrorIs(t, tb.s.Start("ann"), ErrNotEnoughPlayers)

	tb.box("bob")
	_, err := tb.s.Join("bob")
	require.NoError(t, err)
	require.ErrorIs(t, tb.s.Start("bob"), ErrNotHost)
	require.NoError(t, tb.s.Start("ann"))
	require.ErrorIs(t, tb.s.Start("ann"), ErrAlreadyStarted)

	sum := tb.s.Summary()
	require.Equal(t, PhaseInProgress, sum.Phase)
	require.Equal(t, 1, sum.Hand)
}

func TestOpeningActionsHeadsUp(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))

	v := tb.view("ann")
	require.Equal(t, "ann", v.PlayerToAct)
	require.Len(t, v.MyCards, 2)
	require.NotNil(t, findAction(v.AvailableActions, holdem.ActionFold))
	call := findAction(v.AvailableActions, holdem.ActionCall)
	require.NotNil(t, call)
	require.Equal(t, int64(10), *call.Min)
	raise := findAction(v.AvailableActions, holdem.ActionRaise)
	require.NotNil(t, raise)
	require.Equal(t, int64(40), *raise.Min)
	require.False(t, raise.AllIn)

	// bob sees his own cards but not ann's
	bv := tb.view("bob")
	require.Len(t, bv.MyCards, 2)
	require.Nil(t, findPlayer(bv, "ann").Cards)

	ev, ok := tb.boxes["bob"].last(EvPlayerTurn)
	require.True(t, ok)
	require.Equal(t, "ann", ev.Data.(PlayerTurn).PlayerToAct)

	err := tb.s.Act("bob", holdem.ActionCall, 0)
	require.ErrorIs(t, err, ErrNotYourTurn)
	require.Equal(t, KindConcurrency, KindOf(err))
	require.Equal(t, "ann", tb.view("ann").PlayerToAct)
}

func TestLeaveMidHandFoldsOnTurnAndFreesSeatAfterHand(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob", "cat")
	require.NoError(t, tb.s.Start("ann"))
	require.Equal(t, "ann", tb.view("ann").PlayerToAct)

	pending, err := tb.s.Leave("bob")
	require.NoError(t, err)
	require.True(t, pending)
	require.True(t, findPlayer(tb.view("ann"), "bob").Leaving)
	require.Contains(t, tb.s.Summary().Players, "bob")

	require.NoError(t, tb.s.Act("ann", holdem.ActionCall, 0))
	v := tb.view("cat")
	require.Equal(t, "cat", v.PlayerToAct)
	require.True(t, findPlayer(v, "bob").Folded)

	require.NoError(t, tb.s.Act("cat", holdem.ActionFold, 0))
	sum := tb.s.Summary()
	require.Equal(t, PhaseBetweenHands, sum.Phase)
	require.Equal(t, []string{"ann", "cat"}, sum.Players)
	require.Equal(t, int64(4990), tb.balance("bob"))
	require.Equal(t, 1, tb.boxes["bob"].count(EvPlayerRemoved))
	require.Equal(t, int64(1030), tb.view("ann").MyChips)
}

func TestLeaveWhileToActFoldsAtOnce(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))

	pending, err := tb.s.Leave("ann")
	require.NoError(t, err)
	require.False(t, pending)

	sum := tb.s.Summary()
	require.Equal(t, []string{"bob"}, sum.Players)
	require.Equal(t, "bob", sum.Host)
	require.Equal(t, PhaseBetweenHands, sum.Phase)
	require.Equal(t, int64(4990), tb.balance("ann"))

	// a single player never gets dealt to
	tb.tick(15 * time.Second)
	sum = tb.s.Summary()
	require.Equal(t, PhaseBetweenHands, sum.Phase)
	require.Equal(t, 1, sum.Hand)
}

func TestTurnTimeoutFoldsOnceAndStaleTimerIsIgnored(t *testing.T) {
	tb := newTable(t, 4, Options{TurnTimeout: 30 * time.Second}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))
	stale := tb.s.turnTimer
	require.Equal(t, "ann", stale.Owner)

	tb.tick(10 * time.Second)
	ev, ok := tb.boxes["ann"].last(EvKickCountdown)
	require.True(t, ok)
	require.Equal(t, Countdown{Username: "ann", Seconds: 20}, ev.Data)

	tb.tick(21 * time.Second)
	require.Equal(t, PhaseBetweenHands, tb.s.Summary().Phase)
	require.Equal(t, int64(1010), tb.view("bob").MyChips)

	r := tb.s.SubmitEvent(Event{Type: EventExpire, Timer: stale})
	require.NoError(t, r.Err)
	require.Equal(t, int64(1010), tb.view("bob").MyChips)
	require.Equal(t, int64(990), tb.view("ann").MyChips)
	require.Equal(t, []string{"ann", "bob"}, tb.s.Summary().Players)
}

func TestTimeoutKicksOfflinePlayer(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob", "cat")
	require.NoError(t, tb.s.Start("ann"))
	tb.pres.drop("ann")

	tb.tick(31 * time.Second)

	require.Equal(t, 1, tb.boxes["ann"].count(EvPlayerKicked))
	require.Equal(t, 1, tb.boxes["ann"].count(EvPlayerRemoved))
	require.Equal(t, 1, tb.boxes["bob"].count(EvPlayerLeft))
	// Once unseated, ann hears nothing more from the room.
	require.Zero(t, tb.boxes["ann"].count(EvPlayerLeft))
	ev, _ := tb.boxes["ann"].last(EvKickCountdown)
	require.Equal(t, "ann", ev.Data.(Countdown).Username)
	sum := tb.s.Summary()
	require.Equal(t, []string{"bob", "cat"}, sum.Players)
	require.Equal(t, PhaseInProgress, sum.Phase)
	require.Equal(t, "bob", tb.view("bob").PlayerToAct)
	require.Equal(t, int64(5000), tb.balance("ann"))
}

func TestRoundCountdownDealsNextHand(t *testing.T) {
	tb := newTable(t, 4, Options{RoundDelay: 10 * time.Second}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))
	require.NoError(t, tb.s.Act("ann", holdem.ActionFold, 0))

	ev, ok := tb.boxes["ann"].last(EvRoundCountdown)
	require.True(t, ok)
	require.Equal(t, 10, ev.Data.(Countdown).Seconds)

	tb.tick(5 * time.Second)
	ev, _ = tb.boxes["bob"].last(EvRoundCountdown)
	require.Equal(t, 5, ev.Data.(Countdown).Seconds)
	require.Equal(t, PhaseBetweenHands, tb.s.Summary().Phase)

	tb.tick(6 * time.Second)
	sum := tb.s.Summary()
	require.Equal(t, PhaseInProgress, sum.Phase)
	require.Equal(t, 2, sum.Hand)
	require.Equal(t, "bob", tb.view("ann").Dealer)
}

func TestRevealOnlyBetweenHandsAndOnce(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))
	require.ErrorIs(t, tb.s.Reveal("bob"), ErrRevealWindow)

	require.NoError(t, tb.s.Act("ann", holdem.ActionFold, 0))
	require.NoError(t, tb.s.Reveal("bob"))
	require.Len(t, tb.view("ann").Revealed["bob"], 2)
	require.Equal(t, 1, tb.boxes["ann"].count(EvHandRevealed))

	require.NoError(t, tb.s.Reveal("bob"))
	require.Equal(t, 1, tb.boxes["ann"].count(EvHandRevealed))

	require.ErrorIs(t, tb.s.Reveal("cat"), ErrNotSeated)
}

func TestDeleteRefundsLiveHand(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob", "cat")
	require.NoError(t, tb.s.Start("ann"))
	require.NoError(t, tb.s.Act("ann", holdem.ActionCall, 0))

	require.ErrorIs(t, tb.s.Delete("bob", ""), ErrNotHost)
	require.NoError(t, tb.s.Delete("ann", ""))

	for _, u := range []string{"ann", "bob", "cat"} {
		require.Equal(t, int64(5000), tb.balance(u), u)
		require.Equal(t, 1, tb.boxes[u].count(EvGameDeleted), u)
	}
	select {
	case id := <-tb.closed:
		require.Equal(t, "g1", id)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
	_, err := tb.s.Join("dan")
	require.ErrorIs(t, err, ErrClosed)
}

func TestChipMismatchEndsGameAndRefunds(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob")
	lobby := tb.box("zed")
	tb.hub.Subscribe(fanout.LobbyTopic, "zed")
	require.NoError(t, tb.s.Start("ann"))
	require.NoError(t, tb.s.Act("ann", holdem.ActionCall, 0))

	// Chips appear from nowhere; the next mutation must notice.
	tb.s.chipsIn += 7
	require.ErrorIs(t, tb.s.Tick(), ErrIntegrity)

	select {
	case id := <-tb.closed:
		require.Equal(t, "g1", id)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
	for _, u := range []string{"ann", "bob"} {
		require.Equal(t, int64(5000), tb.balance(u), u)
		require.Equal(t, 1, tb.boxes[u].count(EvGameDeleted), u)
		ev, _ := tb.boxes[u].last(EvGameDeleted)
		require.Equal(t, "integrity", ev.Data.(GameDeleted).Reason)
	}
	ev, ok := lobby.last(EvGameDeleted)
	require.True(t, ok)
	require.Equal(t, "integrity", ev.Data.(LobbyEvent).Reason)

	require.ErrorIs(t, tb.s.Act("bob", holdem.ActionCheck, 0), ErrClosed)
}

func TestReconnectKeepsStackAndWithdrawsLeave(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob", "cat")
	require.NoError(t, tb.s.Start("ann"))

	pending, err := tb.s.Leave("cat")
	require.NoError(t, err)
	require.True(t, pending)

	v, err := tb.s.Reconnect("cat")
	require.NoError(t, err)
	require.Equal(t, int64(980), v.MyChips)
	require.Len(t, v.MyCards, 2)
	require.False(t, findPlayer(v, "cat").Leaving)

	require.NoError(t, tb.s.Act("ann", holdem.ActionCall, 0))
	require.NoError(t, tb.s.Act("bob", holdem.ActionCall, 0))
	require.Equal(t, "cat", tb.view("cat").PlayerToAct)

	_, err = tb.s.Reconnect("dan")
	require.ErrorIs(t, err, ErrNotSeated)
}

func TestQueuedJoinerTakesSeatBetweenHands(t *testing.T) {
	tb := newTable(t, 2, Options{}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))

	cat := tb.box("cat")
	queued, err := tb.s.Join("cat")
	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, []string{"cat"}, tb.view("cat").JoinerQueue)

	_, err = tb.s.Leave("ann")
	require.NoError(t, err)

	sum := tb.s.Summary()
	require.Equal(t, []string{"bob", "cat"}, sum.Players)
	require.Empty(t, sum.Queue)
	require.Equal(t, 1, cat.count(EvPlayerDequeued))
	require.Equal(t, int64(4000), tb.balance("cat"))

	tb.tick(11 * time.Second)
	sum = tb.s.Summary()
	require.Equal(t, PhaseInProgress, sum.Phase)
	require.Equal(t, 2, sum.Hand)
}

func TestEmptyTableEndsOnlyWhenConfigured(t *testing.T) {
	keep := newTable(t, 4, Options{}, "ann")
	_, err := keep.s.Leave("ann")
	require.NoError(t, err)
	require.Empty(t, keep.s.Summary().Players)
	require.Equal(t, PhaseWaiting, keep.s.Summary().Phase)

	drop := newTable(t, 4, Options{DeleteWhenEmpty: true}, "ann")
	_, err = drop.s.Leave("ann")
	require.NoError(t, err)
	require.Equal(t, "g1", <-drop.closed)
	require.Equal(t, PhaseTerminated, drop.s.Summary().Phase)
	require.Equal(t, int64(5000), drop.balance("ann"))
}

func TestFinishedHandIsRecorded(t *testing.T) {
	tb := newTable(t, 4, Options{}, "ann", "bob")
	require.NoError(t, tb.s.Start("ann"))
	require.NoError(t, tb.s.Act("ann", holdem.ActionFold, 0))

	ctx := context.Background()
	var items []ledger.HistoryItem
	require.Eventually(t, func() bool {
		items, _ = tb.led.ListRecent(ctx, "bob", 10)
		return len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(10), items[0].Delta)
	require.Equal(t, "g1", items[0].SessionID)

	events, err := tb.led.GetHandEvents(ctx, "bob", items[0].HandID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	name, _, err := ledger.DecodeEvent(events[0])
	require.NoError(t, err)
	require.Equal(t, EvGameStarted, name)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New("g", "ann", Config{SmallBlind: 20, BigBlind: 10, BuyIn: 100, MaxSeats: 4}, Options{}, Deps{})
	require.Error(t, err)
	require.Equal(t, KindValidation, KindOf(err))
}
