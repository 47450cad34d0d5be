package holdem

import "fmt"

// Street is the betting round of a hand.
type Street byte

const (
	StreetIdle Street = iota
	StreetPreflop
	StreetFlop
	StreetTurn
	StreetRiver
	StreetShowdown
)

var streetNames = map[Street]string{
	StreetIdle:     "idle",
	StreetPreflop:  "preflop",
	StreetFlop:     "flop",
	StreetTurn:     "turn",
	StreetRiver:    "river",
	StreetShowdown: "showdown",
}

func (s Street) String() string {
	if n, ok := streetNames[s]; ok {
		return n
	}
	return fmt.Sprintf("street(%d)", s)
}

type Action string

const (
	ActionFold  Action = "fold"
	ActionCheck Action = "check"
	ActionCall  Action = "call"
	ActionBet   Action = "bet"
	ActionRaise Action = "raise"
)

// ParseAction accepts the wire names; "reraise" is an alias of raise.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return ActionFold, nil
	case "check":
		return ActionCheck, nil
	case "call":
		return ActionCall, nil
	case "bet":
		return ActionBet, nil
	case "raise", "reraise":
		return ActionRaise, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// ActionItem is one legal option for the player to act. Min is the total
// street bet the option requires and is nil for check and fold.
type ActionItem struct {
	Action Action
	Min    *int64
	AllIn  bool
}

// DefaultRank is the rank description of a pot nobody had to show down for.
const DefaultRank = "By Default"
