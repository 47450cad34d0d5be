package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"holdem-rooms/card"
	"holdem-rooms/holdem"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/clock"
	"holdem-rooms/internal/codec"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/ledger"
)

type Phase string

const (
	PhaseWaiting      Phase = "waiting_to_start"
	PhaseInProgress   Phase = "in_progress"
	PhaseBetweenHands Phase = "between_hands"
	PhaseTerminated   Phase = "terminated"
)

// Config is chosen by the host when the game is created.
type Config struct {
	Name       string `json:"name"`
	SmallBlind int64  `json:"small_blind"`
	BigBlind   int64  `json:"big_blind"`
	BuyIn      int64  `json:"buy_in"`
	MaxSeats   int    `json:"max_seats"`
}

func (c Config) Validate() error {
	switch {
	case c.SmallBlind <= 0 || c.BigBlind <= 0:
		return newError(KindValidation, "blinds must be positive")
	case c.SmallBlind > c.BigBlind:
		return newError(KindValidation, "the small blind cannot exceed the big blind")
	case c.BuyIn < c.BigBlind:
		return newError(KindValidation, "the buy-in must cover at least one big blind")
	case c.MaxSeats < 2:
		return newError(KindValidation, "a game needs at least 2 seats")
	}
	return nil
}

// Options are server-wide session settings.
type Options struct {
	TurnTimeout     time.Duration
	RoundDelay      time.Duration
	DeleteWhenEmpty bool
	// TickInterval drives the countdowns; zero leaves them to Tick calls.
	TickInterval time.Duration
	Seed         int64
	Now          func() time.Time
}

// Presence is the view a session has of connected users.
type Presence interface {
	Online(user string) bool
	// Unbind releases the user's one-game binding.
	Unbind(user, sessionID string)
}

type Deps struct {
	Publisher fanout.Publisher
	Bankroll  bankroll.Service
	Ledger    ledger.Service
	Presence  Presence
	// OnClose runs on the session goroutine once the session has ended. It
	// must not call back into the session.
	OnClose func(id string)
}

// Summary is the lobby listing of a session.
type Summary struct {
	ID         string   `json:"game_id"`
	Name       string   `json:"name"`
	Host       string   `json:"host"`
	Phase      Phase    `json:"phase"`
	SmallBlind int64    `json:"small_blind"`
	BigBlind   int64    `json:"big_blind"`
	BuyIn      int64    `json:"buy_in"`
	MaxSeats   int      `json:"max_seats"`
	Players    []string `json:"players"`
	Queue      []string `json:"queue"`
	Hand       int      `json:"hand"`
}

// Session owns one table. Every mutation runs on its actor goroutine, in the
// order the events were received.
type Session struct {
	ID     string
	Config Config

	opts Options
	deps Deps

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once

	events chan Event
	done   chan struct{}

	summary atomic.Pointer[Summary]

	// Everything below belongs to the actor goroutine.
	game       *holdem.Game
	clock      *clock.Clock
	turnTimer  clock.Timer
	roundTimer clock.Timer
	phase      Phase
	host       string
	joiners    []string
	leavers    []string

	holes    map[string][]card.Card
	revealed map[string][]card.Card
	forced   map[string]bool

	handID  string
	tape    ledger.Tape
	tapeSeq uint64

	// chipsIn is every buy-in minus every cash-out and absorbed remainder;
	// it always equals the chips on the table.
	chipsIn int64
}

// New creates an empty session in waiting_to_start. The host still has to
// Join to take the first seat.
func New(id, host string, cfg Config, opts Options, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	game, err := holdem.NewGame(holdem.Config{
		MaxPlayers: cfg.MaxSeats,
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
		Seed:       opts.Seed,
	})
	if err != nil {
		return nil, newError(KindValidation, "%v", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 30 * time.Second
	}
	if opts.RoundDelay <= 0 {
		opts.RoundDelay = 10 * time.Second
	}

	s := &Session{
		ID:     id,
		Config: cfg,
		opts:   opts,
		deps:   deps,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		game:   game,
		clock:  clock.New(),
		phase:  PhaseWaiting,
		host:   host,
	}
	s.publishSummary()

	go s.run()

	log.Printf("[Session %s] Created by %s (blinds=%d/%d, buy-in=%d, seats=%d)",
		id, host, cfg.SmallBlind, cfg.BigBlind, cfg.BuyIn, cfg.MaxSeats)
	return s, nil
}

// Topic is the fanout topic of the session.
func (s *Session) Topic() string { return "game:" + s.ID }

func (s *Session) run() {
	var tickC <-chan time.Time
	if s.opts.TickInterval > 0 {
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case event := <-s.events:
			reply := s.handleEvent(event)
			if event.Response != nil {
				event.Response <- reply
			}
		case <-tickC:
			s.handleEvent(Event{Type: EventTick})
		case <-s.done:
			log.Printf("[Session %s] Actor stopped", s.ID)
			return
		}
		if s.isClosed() {
			s.stop()
		}
	}
}

func (s *Session) handleEvent(e Event) Reply {
	if s.phase == PhaseTerminated {
		return Reply{Err: ErrClosed}
	}

	var reply Reply
	switch e.Type {
	case EventJoin:
		reply = s.handleJoin(e.User)
	case EventLeave:
		reply = s.handleLeave(e.User)
	case EventStart:
		reply.Err = s.handleStart(e.User)
	case EventAction:
		reply.Err = s.handleAction(e.User, e.Action, e.Amount)
	case EventReveal:
		reply.Err = s.handleReveal(e.User)
	case EventReconnect:
		reply = s.handleReconnect(e.User)
	case EventState:
		reply = s.handleState(e.User)
	case EventDelete:
		reply.Err = s.handleDelete(e.User, e.Reason)
	case EventTick:
		reply.Err = s.advance()
	case EventExpire:
		reply.Err = s.expire(e.Timer)
	default:
		reply.Err = newError(KindValidation, "unknown request")
	}

	if s.phase != PhaseTerminated {
		if KindOf(reply.Err) == KindIntegrity {
			s.failIntegrity(reply.Err)
			reply = Reply{Err: ErrIntegrity}
		} else if err := s.checkIntegrity(); err != nil {
			s.failIntegrity(err)
			if reply.Err == nil {
				reply = Reply{Err: ErrIntegrity}
			}
		}
	}
	s.publishSummary()
	return reply
}

// SubmitEvent hands e to the actor and waits for its reply.
func (s *Session) SubmitEvent(e Event) Reply {
	if e.Response == nil {
		e.Response = make(chan Reply, 1)
	}
	if s.isClosed() {
		return Reply{Err: ErrClosed}
	}

	select {
	case s.events <- e:
	case <-s.done:
		return Reply{Err: ErrClosed}
	}

	select {
	case r := <-e.Response:
		return r
	case <-s.done:
		// The reply is written before done closes.
		select {
		case r := <-e.Response:
			return r
		default:
			return Reply{Err: ErrClosed}
		}
	}
}

func (s *Session) Join(user string) (queued bool, err error) {
	r := s.SubmitEvent(Event{Type: EventJoin, User: user})
	return r.Queued, r.Err
}

// Leave reports pending when the user holds live cards and will be removed
// once the hand allows it.
func (s *Session) Leave(user string) (pending bool, err error) {
	r := s.SubmitEvent(Event{Type: EventLeave, User: user})
	return r.Queued, r.Err
}

func (s *Session) Start(user string) error {
	return s.SubmitEvent(Event{Type: EventStart, User: user}).Err
}

func (s *Session) Act(user string, action holdem.Action, amount int64) error {
	return s.SubmitEvent(Event{Type: EventAction, User: user, Action: action, Amount: amount}).Err
}

func (s *Session) Reveal(user string) error {
	return s.SubmitEvent(Event{Type: EventReveal, User: user}).Err
}

func (s *Session) Reconnect(user string) (*codec.TableView, error) {
	r := s.SubmitEvent(Event{Type: EventReconnect, User: user})
	return r.View, r.Err
}

func (s *Session) State(user string) (*codec.TableView, error) {
	r := s.SubmitEvent(Event{Type: EventState, User: user})
	return r.View, r.Err
}

// Delete ends the session. An empty user skips the host check.
func (s *Session) Delete(user, reason string) error {
	return s.SubmitEvent(Event{Type: EventDelete, User: user, Reason: reason}).Err
}

// Tick advances the countdowns to Options.Now.
func (s *Session) Tick() error {
	return s.SubmitEvent(Event{Type: EventTick}).Err
}

// Summary never blocks on the actor.
func (s *Session) Summary() Summary {
	if p := s.summary.Load(); p != nil {
		return *p
	}
	return Summary{ID: s.ID}
}

func (s *Session) Host() string {
	return s.Summary().Host
}

func (s *Session) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) now() time.Time {
	return s.opts.Now()
}

func (s *Session) buildSummary() Summary {
	return Summary{
		ID:         s.ID,
		Name:       s.Config.Name,
		Host:       s.host,
		Phase:      s.phase,
		SmallBlind: s.Config.SmallBlind,
		BigBlind:   s.Config.BigBlind,
		BuyIn:      s.Config.BuyIn,
		MaxSeats:   s.Config.MaxSeats,
		Players:    s.game.Names(),
		Queue:      append([]string{}, s.joiners...),
		Hand:       s.game.Snapshot().Hand,
	}
}

func (s *Session) publishSummary() {
	sum := s.buildSummary()
	s.summary.Store(&sum)
}

func (s *Session) queueIndex(user string) int {
	return indexOf(s.joiners, user)
}

func (s *Session) isLeaving(user string) bool {
	return indexOf(s.leavers, user) >= 0
}

func (s *Session) online(user string) bool {
	return s.deps.Presence == nil || s.deps.Presence.Online(user)
}

// audience is everyone who gets the table state: seats first, then the queue.
func (s *Session) audience() []string {
	return append(s.game.Names(), s.joiners...)
}

func (s *Session) meta(snap holdem.Snapshot) codec.Meta {
	leaving := make(map[string]bool, len(s.leavers))
	for _, name := range s.leavers {
		leaving[name] = true
	}
	m := codec.Meta{
		GameID:     s.ID,
		Host:       s.host,
		Phase:      string(s.phase),
		SmallBlind: s.Config.SmallBlind,
		BigBlind:   s.Config.BigBlind,
		BuyIn:      s.Config.BuyIn,
		Joiners:    s.joiners,
		Leaving:    leaving,
		Revealed:   s.revealed,
	}
	if snap.ToAct != "" {
		m.Actions = s.game.LegalActions(snap.ToAct)
	}
	return m
}

func (s *Session) viewFor(user string) *codec.TableView {
	snap := s.game.Snapshot()
	v := codec.TableViewFor(snap, s.meta(snap), user)
	return &v
}

// cashOut credits chips back to the bankroll and returns the new balance.
func (s *Session) cashOut(user string, amount int64) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var (
		bal int64
		err error
	)
	if amount > 0 {
		bal, err = s.deps.Bankroll.Deposit(ctx, user, amount)
	} else {
		bal, err = s.deps.Bankroll.Balance(ctx, user)
	}
	if err != nil {
		log.Printf("[Session %s] cash-out of %d for %s failed: %v", s.ID, amount, user, err)
	}
	return bal
}

// checkIntegrity verifies the invariants every mutation must keep.
func (s *Session) checkIntegrity() error {
	if on := s.game.ChipsOnTable(); on != s.chipsIn {
		return newError(KindIntegrity, "chips on table %d, expected %d", on, s.chipsIn)
	}
	if running := s.game.Running(); running != (s.phase == PhaseInProgress) {
		return newError(KindIntegrity, "engine running=%v while %s", running, s.phase)
	}
	toAct := s.game.ToAct()
	if s.phase == PhaseInProgress && toAct == "" {
		return newError(KindIntegrity, "hand in progress with nobody to act")
	}
	if s.phase != PhaseInProgress && toAct != "" {
		return newError(KindIntegrity, "%s to act while %s", toAct, s.phase)
	}
	for _, name := range s.joiners {
		if s.game.Seated(name) {
			return newError(KindIntegrity, "%s is both seated and queued", name)
		}
	}
	return nil
}

func (s *Session) failIntegrity(err error) {
	log.Printf("[Session %s] integrity failure, terminating: %v", s.ID, err)
	f := newFrame()
	s.terminate(f, "integrity")
}

func (s *Session) recordHand(res *holdem.HandResult) {
	if s.deps.Ledger == nil || s.handID == "" {
		return
	}
	deltas := make(map[string]int64, len(res.Contributions))
	for _, c := range res.Contributions {
		deltas[c.Player] = res.Payouts[c.Player] - c.Amount
	}
	rec := ledger.HandRecord{
		HandID:    s.handID,
		SessionID: s.ID,
		HandNo:    res.Hand,
		PlayedAt:  s.now().UTC(),
		Deltas:    deltas,
		Summary: map[string]any{
			"board":    card.Strings(res.Board),
			"awards":   codec.PotAwards(res),
			"showdown": res.Showdown,
			"absorbed": res.Absorbed,
		},
		Events: s.tape.Items(),
	}
	s.handID = ""
	s.tapeSeq = 0

	svc := s.deps.Ledger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.RecordHand(ctx, rec); err != nil {
			log.Printf("[Session %s] record hand %s failed: %v", rec.SessionID, rec.HandID, err)
		}
	}()
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

func without(list []string, v string) []string {
	if i := indexOf(list, v); i >= 0 {
		return append(list[:i:i], list[i+1:]...)
	}
	return list
}

var errUnknownTimer = errors.New("unknown timer kind")
