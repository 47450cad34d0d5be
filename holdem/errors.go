package holdem

import "errors"

var (
	ErrHandNotRunning   = errors.New("no hand in progress")
	ErrHandInProgress   = errors.New("hand in progress")
	ErrNotYourTurn      = errors.New("it is not your turn")
	ErrInvalidAction    = errors.New("invalid action")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrPlayerExists     = errors.New("player already seated")
	ErrTableFull        = errors.New("table is full")
	ErrNotEnoughPlayers = errors.New("not enough players")
)

type InvalidStateError string

func (e InvalidStateError) Error() string { return "invalid state: " + string(e) }

func ErrInvalidState(msg string) error { return InvalidStateError(msg) }
