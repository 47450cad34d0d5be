package session

import (
	"errors"
	"fmt"

	"holdem-rooms/holdem"
	"holdem-rooms/internal/bankroll"
)

// Kind classifies a rejected request.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindConcurrency   Kind = "concurrency"
	KindIntegrity     Kind = "integrity"
)

// Error is a rejection reported to the requesting client only. Msg is the
// user-facing text.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches another *Error of the same kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == e.Msg
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrClosed            = &Error{KindState, "game not found"}
	ErrNotHost           = &Error{KindAuthorization, "only the host can do that"}
	ErrNotSeated         = &Error{KindAuthorization, "you are not seated in this game"}
	ErrNotPresent        = &Error{KindState, "you are not in this game"}
	ErrAlreadySeated     = &Error{KindState, "you are already seated in this game"}
	ErrAlreadyQueued     = &Error{KindState, "you are already queued for this game"}
	ErrNotYourTurn       = &Error{KindConcurrency, "it is not your turn"}
	ErrNoHand            = &Error{KindState, "no hand is in progress"}
	ErrAlreadyStarted    = &Error{KindState, "the game has already started"}
	ErrNotEnoughPlayers  = &Error{KindState, "at least 2 players are needed to deal"}
	ErrRevealWindow      = &Error{KindState, "hands can only be revealed between hands"}
	ErrNotInLastHand     = &Error{KindAuthorization, "you were not dealt into the last hand"}
	ErrAlreadyShown      = &Error{KindState, "your hand has already been shown"}
	ErrInsufficientFunds = &Error{KindState, "you don't have enough chips to join this game"}
	ErrIntegrity         = &Error{KindIntegrity, "the game was closed after an internal error"}
)

// KindOf classifies any error returned by this package or the engine below it.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, holdem.ErrNotYourTurn):
		return KindConcurrency
	case errors.Is(err, holdem.ErrInvalidAction),
		errors.Is(err, holdem.ErrInvalidAmount),
		errors.Is(err, bankroll.ErrInvalidAmount):
		return KindValidation
	case errors.As(err, new(holdem.InvalidStateError)):
		return KindIntegrity
	}
	return KindState
}

// fromEngine maps engine errors onto session errors, keeping the engine's
// detail in the message for validation failures.
func fromEngine(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, holdem.ErrNotYourTurn):
		return ErrNotYourTurn
	case errors.Is(err, holdem.ErrHandNotRunning):
		return ErrNoHand
	case errors.Is(err, holdem.ErrInvalidAction), errors.Is(err, holdem.ErrInvalidAmount):
		return newError(KindValidation, "%v", err)
	case errors.Is(err, holdem.ErrNotEnoughPlayers):
		return ErrNotEnoughPlayers
	case errors.Is(err, holdem.ErrPlayerNotFound):
		return ErrNotSeated
	}
	return err
}
