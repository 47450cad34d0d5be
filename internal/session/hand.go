package session

import (
	"errors"
	"log"

	"github.com/google/uuid"

	"holdem-rooms/card"
	"holdem-rooms/holdem"
	"holdem-rooms/internal/clock"
	"holdem-rooms/internal/codec"
	"holdem-rooms/internal/fanout"
)

func (s *Session) handleStart(user string) error {
	if user != s.host {
		return ErrNotHost
	}
	if s.phase == PhaseInProgress {
		return ErrAlreadyStarted
	}
	// From between_hands this deals early instead of waiting out the countdown.
	return s.startHand(newFrame())
}

func (s *Session) startHand(f *frame) error {
	if s.game.SeatCount() < 2 {
		return ErrNotEnoughPlayers
	}
	res, err := s.game.StartHand()
	if err != nil {
		return fromEngine(err)
	}
	s.clock.Cancel(clock.Round)
	s.roundTimer = clock.Timer{}

	s.holes = nil
	s.revealed = nil
	s.forced = nil
	s.handID = uuid.NewString()
	s.tape.Items()
	s.tapeSeq = 0
	s.phase = PhaseInProgress

	snap := s.game.Snapshot()
	f.add(EvGameStarted, GameStarted{
		GameID:     s.ID,
		Hand:       snap.Hand,
		HandID:     s.handID,
		Dealer:     snap.Dealer,
		SmallBlind: snap.SmallBlind,
		BigBlind:   snap.BigBlind,
	})
	f.notifyLobby(EvGameStarted, "", "")
	log.Printf("[Session %s] Hand #%d started (%s), dealer %s", s.ID, snap.Hand, s.handID, snap.Dealer)

	return s.afterAction(f, res)
}

func (s *Session) handleAction(user string, action holdem.Action, amount int64) error {
	if s.phase != PhaseInProgress {
		return ErrNoHand
	}
	if !s.game.Seated(user) {
		return ErrNotSeated
	}
	if s.game.ToAct() != user {
		return ErrNotYourTurn
	}
	res, err := s.game.Act(user, action, amount)
	if err != nil {
		return fromEngine(err)
	}
	s.clock.Cancel(clock.Turn)
	s.turnTimer = clock.Timer{}
	return s.afterAction(newFrame(), res)
}

// afterAction moves the hand on after a mutation: pending leavers fold when
// their turn comes, a finished hand is settled, and otherwise the next seat's
// clock starts. f is flushed in every case.
func (s *Session) afterAction(f *frame, res *holdem.HandResult) error {
	if res == nil {
		var err error
		if res, err = s.settleTurn(); err != nil {
			return err
		}
	}
	if res != nil {
		return s.finishHand(f, res)
	}
	s.armTurn(f)
	s.flush(f, true)
	return nil
}

// settleTurn folds for every leaver the turn reaches.
func (s *Session) settleTurn() (*holdem.HandResult, error) {
	for {
		toAct := s.game.ToAct()
		if toAct == "" || !s.isLeaving(toAct) {
			return nil, nil
		}
		res, err := s.game.Act(toAct, holdem.ActionFold, 0)
		if err != nil {
			return nil, newError(KindIntegrity, "auto-fold of %s failed: %v", toAct, err)
		}
		log.Printf("[Session %s] %s auto-folded (leaving)", s.ID, toAct)
		if res != nil {
			return res, nil
		}
	}
}

func (s *Session) armTurn(f *frame) {
	toAct := s.game.ToAct()
	if toAct == "" {
		return
	}
	t, tick := s.clock.Arm(clock.Turn, toAct, s.opts.TurnTimeout, s.now())
	s.turnTimer = t
	f.add(EvKickCountdown, Countdown{Username: toAct, Seconds: tick.Seconds})
}

func (s *Session) finishHand(f *frame, res *holdem.HandResult) error {
	s.clock.Cancel(clock.Turn)
	s.turnTimer = clock.Timer{}
	s.phase = PhaseBetweenHands
	s.chipsIn -= res.Absorbed

	s.holes = make(map[string][]card.Card)
	for _, p := range s.game.Snapshot().Players {
		if p.Dealt && len(p.HoleCards) > 0 {
			s.holes[p.Name] = p.HoleCards
		}
	}
	s.revealed = make(map[string][]card.Card, len(res.MustShow))
	s.forced = make(map[string]bool, len(res.MustShow))
	for _, name := range res.MustShow {
		s.revealed[name] = res.Hands[name]
		s.forced[name] = true
	}

	f.add(EvRoundOver, codec.PotAwards(res))
	for _, name := range res.MustShow {
		f.add(EvHandRevealed, codec.Revealed(name, res.Hands[name]))
	}
	s.flush(f, true)
	s.recordHand(res)
	log.Printf("[Session %s] Hand #%d over (showdown=%v, pots=%d)", s.ID, res.Hand, res.Showdown, len(res.Awards))

	m := newFrame()
	if err := s.roundMaintenance(m); err != nil {
		return err
	}
	if s.phase == PhaseTerminated {
		return nil
	}
	s.flush(m, true)
	return nil
}

// roundMaintenance clears the seats of leavers and busted players, seats the
// queue and arms the next deal.
func (s *Session) roundMaintenance(f *frame) error {
	type exit struct{ name, reason string }
	var exits []exit
	for _, name := range s.leavers {
		exits = append(exits, exit{name, "left"})
	}
	for _, p := range s.game.Snapshot().Players {
		if p.Stack <= s.Config.SmallBlind && !s.isLeaving(p.Name) {
			exits = append(exits, exit{p.Name, "busted"})
		}
	}
	for _, e := range exits {
		if err := s.removeSeat(f, e.name, e.reason); err != nil {
			return err
		}
	}
	s.leavers = nil
	s.afterSeatsChanged(f)
	return nil
}

// resumeIfFrozen arms the countdown of a between-hands table that has enough
// players again.
func (s *Session) resumeIfFrozen(f *frame) {
	if s.phase != PhaseBetweenHands || s.game.SeatCount() < 2 {
		return
	}
	if s.clock.Current(s.roundTimer) {
		return
	}
	t, tick := s.clock.Arm(clock.Round, "", s.opts.RoundDelay, s.now())
	s.roundTimer = t
	f.add(EvRoundCountdown, Countdown{Seconds: tick.Seconds})
}

func (s *Session) handleReveal(user string) error {
	if s.phase != PhaseBetweenHands || s.game.LastResult() == nil {
		return ErrRevealWindow
	}
	if !s.game.Seated(user) {
		return ErrNotSeated
	}
	cards, ok := s.holes[user]
	if !ok {
		return ErrNotInLastHand
	}
	if s.forced[user] {
		return ErrAlreadyShown
	}
	if _, done := s.revealed[user]; done {
		return nil
	}
	s.revealed[user] = cards

	f := newFrame()
	f.add(EvHandRevealed, codec.Revealed(user, cards))
	s.flush(f, true)
	return nil
}

// advance runs the countdowns up to now. Countdown ticks are not part of the
// hand history.
func (s *Session) advance() error {
	ticks, expired := s.clock.Advance(s.now())

	var events []fanout.Event
	for _, tk := range ticks {
		switch tk.Kind {
		case clock.Turn:
			events = append(events, fanout.Event{Name: EvKickCountdown, Data: Countdown{Username: tk.Owner, Seconds: tk.Seconds}})
		case clock.Round:
			events = append(events, fanout.Event{Name: EvRoundCountdown, Data: Countdown{Seconds: tk.Seconds}})
		}
	}
	if len(events) > 0 && s.deps.Publisher != nil {
		s.deps.Publisher.Publish(s.Topic(), events, nil)
	}

	for _, t := range expired {
		if err := s.expire(t); err != nil {
			return err
		}
		if s.phase == PhaseTerminated {
			return nil
		}
	}
	return nil
}

// expire handles a fired timer. Timers that no longer match the table are
// ignored.
func (s *Session) expire(t clock.Timer) error {
	switch t.Kind {
	case clock.Turn:
		return s.turnExpired(t)
	case clock.Round:
		return s.roundExpired(t)
	}
	return errUnknownTimer
}

func (s *Session) turnExpired(t clock.Timer) error {
	if t.Gen == 0 || t.Gen != s.turnTimer.Gen || s.phase != PhaseInProgress || s.game.ToAct() != t.Owner {
		return nil
	}
	s.clock.Cancel(clock.Turn)
	s.turnTimer = clock.Timer{}

	res, err := s.game.Act(t.Owner, holdem.ActionFold, 0)
	if err != nil {
		return newError(KindIntegrity, "timeout fold of %s failed: %v", t.Owner, err)
	}
	log.Printf("[Session %s] %s timed out, folded", s.ID, t.Owner)

	// A seat nobody is playing from is given up.
	f := newFrame()
	if s.isLeaving(t.Owner) || !s.online(t.Owner) {
		f.addTo(t.Owner, EvPlayerKicked, PlayerEvent{GameID: s.ID, Username: t.Owner, Reason: "timeout"})
		if err := s.removeSeat(f, t.Owner, "kicked"); err != nil {
			return err
		}
	}
	return s.afterAction(f, res)
}

func (s *Session) roundExpired(t clock.Timer) error {
	if t.Gen == 0 || t.Gen != s.roundTimer.Gen || s.phase != PhaseBetweenHands {
		return nil
	}
	s.clock.Cancel(clock.Round)
	s.roundTimer = clock.Timer{}

	if err := s.startHand(newFrame()); err != nil {
		if errors.Is(err, ErrNotEnoughPlayers) {
			log.Printf("[Session %s] countdown ended with %d player(s), waiting", s.ID, s.game.SeatCount())
			return nil
		}
		return err
	}
	return nil
}
