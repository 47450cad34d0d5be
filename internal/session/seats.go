package session

import (
	"context"
	"errors"
	"log"
	"time"

	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/clock"
	"holdem-rooms/internal/fanout"
)

func (s *Session) handleJoin(user string) Reply {
	if user == "" {
		return Reply{Err: newError(KindValidation, "missing username")}
	}
	if s.game.Seated(user) {
		return Reply{Err: ErrAlreadySeated}
	}
	if s.queueIndex(user) >= 0 {
		return Reply{Err: ErrAlreadyQueued}
	}

	f := newFrame()
	if s.phase == PhaseInProgress || s.game.SeatCount() >= s.Config.MaxSeats {
		s.joiners = append(s.joiners, user)
		s.subscribe(user)
		f.add(EvPlayerQueued, PlayerEvent{GameID: s.ID, Username: user})
		f.notifyLobby(EvPlayerQueued, user, "")
		s.flush(f, true)
		log.Printf("[Session %s] %s queued (position %d)", s.ID, user, len(s.joiners))
		return Reply{Queued: true}
	}

	if err := s.seat(f, user); err != nil {
		return Reply{Err: err}
	}
	f.add(EvPlayerJoined, PlayerEvent{GameID: s.ID, Username: user})
	f.notifyLobby(EvPlayerJoined, user, "")
	s.resumeIfFrozen(f)
	s.flush(f, true)
	return Reply{}
}

// seat takes the buy-in from the user's bankroll and gives them a seat.
func (s *Session) seat(f *frame, user string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	bal, err := s.deps.Bankroll.Withdraw(ctx, user, s.Config.BuyIn)
	if err != nil {
		if errors.Is(err, bankroll.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		log.Printf("[Session %s] buy-in for %s failed: %v", s.ID, user, err)
		return newError(KindState, "could not take your buy-in, try again")
	}
	if err := s.game.Seat(user, s.Config.BuyIn); err != nil {
		s.cashOut(user, s.Config.BuyIn)
		return newError(KindState, "could not seat you: %v", err)
	}
	s.chipsIn += s.Config.BuyIn
	if s.host == "" {
		s.host = user
	}
	s.subscribe(user)
	f.addTo(user, EvChipsUpdated, ChipsUpdated{Chips: bal})
	log.Printf("[Session %s] %s seated with %d", s.ID, user, s.Config.BuyIn)
	return nil
}

// removeSeat unseats user, cashes their stack out and releases their binding.
func (s *Session) removeSeat(f *frame, user, reason string) error {
	stack, err := s.game.Unseat(user)
	if err != nil {
		return fromEngine(err)
	}
	s.chipsIn -= stack
	s.leavers = without(s.leavers, user)
	bal := s.cashOut(user, stack)

	ev := PlayerEvent{GameID: s.ID, Username: user, Reason: reason}
	f.add(EvPlayerLeft, ev)
	f.addTo(user, EvPlayerRemoved, ev)
	f.addTo(user, EvChipsUpdated, ChipsUpdated{Chips: bal})
	f.notifyLobby(EvPlayerLeft, user, reason)
	s.release(user)

	if s.host == user {
		s.host = ""
		if names := s.game.Names(); len(names) > 0 {
			s.host = names[0]
		}
		log.Printf("[Session %s] host %s left, new host %q", s.ID, user, s.host)
	}
	log.Printf("[Session %s] %s removed (%s), cashed out %d", s.ID, user, reason, stack)
	return nil
}

func (s *Session) subscribe(user string) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Subscribe(s.Topic(), user)
	}
}

// release drops the user's subscription and their one-game binding.
func (s *Session) release(user string) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Unsubscribe(s.Topic(), user)
	}
	if s.deps.Presence != nil {
		s.deps.Presence.Unbind(user, s.ID)
	}
}

func (s *Session) handleLeave(user string) Reply {
	f := newFrame()

	if s.queueIndex(user) >= 0 {
		s.joiners = without(s.joiners, user)
		ev := PlayerEvent{GameID: s.ID, Username: user, Reason: "left_queue"}
		f.add(EvPlayerLeft, ev)
		f.addTo(user, EvPlayerRemoved, ev)
		f.notifyLobby(EvPlayerLeft, user, "left_queue")
		s.release(user)
		s.flush(f, true)
		log.Printf("[Session %s] %s left the queue", s.ID, user)
		return Reply{}
	}
	if !s.game.Seated(user) {
		return Reply{Err: ErrNotPresent}
	}

	if s.phase == PhaseInProgress && s.game.InHand(user) {
		if !s.isLeaving(user) {
			s.leavers = append(s.leavers, user)
			log.Printf("[Session %s] %s will leave after folding", s.ID, user)
		}
		if s.game.ToAct() == user {
			s.clock.Cancel(clock.Turn)
			s.turnTimer = clock.Timer{}
			if err := s.afterAction(f, nil); err != nil {
				return Reply{Err: err}
			}
			// The fold may have ended the hand and cleared the seat already.
			return Reply{Queued: s.game.Seated(user)}
		}
		s.flush(f, true)
		return Reply{Queued: true}
	}

	if err := s.removeSeat(f, user, "left"); err != nil {
		return Reply{Err: err}
	}
	s.afterSeatsChanged(f)
	if s.phase == PhaseTerminated {
		return Reply{}
	}
	s.flush(f, true)
	return Reply{}
}

// afterSeatsChanged refills seats from the queue and ends an empty table when
// so configured. Between hands it freezes or resumes the countdown.
func (s *Session) afterSeatsChanged(f *frame) {
	if s.phase != PhaseInProgress {
		s.admitJoiners(f)
	}
	n := s.game.SeatCount()
	if n == 0 && len(s.joiners) == 0 && s.opts.DeleteWhenEmpty {
		s.terminate(f, "empty")
		return
	}
	if s.phase == PhaseBetweenHands && n < 2 {
		if _, armed := s.clock.Armed(clock.Round); armed {
			s.clock.Cancel(clock.Round)
			s.roundTimer = clock.Timer{}
		}
		log.Printf("[Session %s] frozen with %d player(s)", s.ID, n)
		return
	}
	s.resumeIfFrozen(f)
}

// admitJoiners seats queued users in order while seats remain.
func (s *Session) admitJoiners(f *frame) {
	for len(s.joiners) > 0 && s.game.SeatCount() < s.Config.MaxSeats {
		user := s.joiners[0]
		s.joiners = s.joiners[1:]
		if err := s.seat(f, user); err != nil {
			f.addTo(user, EvError, ErrorMessage{Message: err.Error()})
			f.addTo(user, EvPlayerRemoved, PlayerEvent{GameID: s.ID, Username: user, Reason: "buy_in_failed"})
			f.notifyLobby(EvPlayerLeft, user, "buy_in_failed")
			s.release(user)
			continue
		}
		f.add(EvPlayerDequeued, PlayerEvent{GameID: s.ID, Username: user})
		f.add(EvPlayerJoined, PlayerEvent{GameID: s.ID, Username: user})
		f.notifyLobby(EvPlayerJoined, user, "")
	}
}

func (s *Session) handleReconnect(user string) Reply {
	if !s.game.Seated(user) {
		return Reply{Err: ErrNotSeated}
	}
	if s.phase != PhaseInProgress && s.phase != PhaseBetweenHands {
		return Reply{Err: newError(KindState, "the game has not started yet")}
	}

	s.subscribe(user)
	if s.isLeaving(user) {
		s.leavers = without(s.leavers, user)
		log.Printf("[Session %s] %s reconnected, leave withdrawn", s.ID, user)
		s.flush(newFrame(), true)
	} else {
		// Only the returning user needs the replay.
		view := s.viewFor(user)
		evs := []fanout.Event{{Name: EvUpdateState, Data: *view}}
		if view.PlayerToAct != "" {
			evs = append(evs, fanout.Event{Name: EvPlayerTurn, Data: PlayerTurn{
				PlayerToAct:      view.PlayerToAct,
				AvailableActions: view.AvailableActions,
			}})
		}
		if s.deps.Publisher != nil {
			s.deps.Publisher.Publish(s.Topic(), nil, map[string][]fanout.Event{user: evs})
		}
	}
	log.Printf("[Session %s] %s reconnected", s.ID, user)
	return Reply{View: s.viewFor(user)}
}

func (s *Session) handleState(user string) Reply {
	if !s.game.Seated(user) && s.queueIndex(user) < 0 {
		return Reply{Err: newError(KindAuthorization, "you are not part of this game")}
	}
	return Reply{View: s.viewFor(user)}
}

func (s *Session) handleDelete(user, reason string) error {
	if user != "" && user != s.host {
		return ErrNotHost
	}
	if reason == "" {
		reason = "deleted"
	}
	s.terminate(newFrame(), reason)
	return nil
}

// terminate refunds the live hand, cashes every seat out and tells the room
// and the lobby that the game is gone.
func (s *Session) terminate(f *frame, reason string) {
	s.clock.CancelAll()
	s.turnTimer = clock.Timer{}

	audience := s.audience()
	for _, r := range s.game.Abort() {
		if !r.Seated {
			s.chipsIn -= r.Amount
			bal := s.cashOut(r.Player, r.Amount)
			f.addTo(r.Player, EvChipsUpdated, ChipsUpdated{Chips: bal})
		}
	}
	for _, name := range s.game.Names() {
		stack, err := s.game.Unseat(name)
		if err != nil {
			log.Printf("[Session %s] unseat %s on close failed: %v", s.ID, name, err)
			continue
		}
		s.chipsIn -= stack
		bal := s.cashOut(name, stack)
		f.addTo(name, EvChipsUpdated, ChipsUpdated{Chips: bal})
	}

	s.phase = PhaseTerminated
	s.joiners = nil
	s.leavers = nil
	s.handID = ""
	f.add(EvGameDeleted, GameDeleted{GameID: s.ID, Reason: reason})
	f.notifyLobby(EvGameDeleted, "", reason)
	s.flush(f, false)
	for _, user := range audience {
		s.release(user)
	}

	s.markClosed()
	log.Printf("[Session %s] Terminated (%s)", s.ID, reason)
	if s.deps.OnClose != nil {
		s.deps.OnClose(s.ID)
	}
}
