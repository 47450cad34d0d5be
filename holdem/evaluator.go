package holdem

import (
	"fmt"

	"github.com/paulhankin/poker"

	"holdem-rooms/card"
)

// HandValue is an orderable seven-card hand strength; larger scores win.
type HandValue struct {
	Score       int16
	Description string
}

// paulhankin/poker numbers suits club, diamond, heart, spade.
var evalSuits = map[card.Suit]int{
	card.Club:    0,
	card.Diamond: 1,
	card.Heart:   2,
	card.Spade:   3,
}

func toEvalCard(c card.Card) (poker.Card, error) {
	var zero poker.Card
	s, ok := evalSuits[c.Suit()]
	if !ok || !c.Valid() {
		return zero, fmt.Errorf("cannot evaluate card %v", byte(c))
	}
	return poker.MakeCard(poker.Suit(s), poker.Rank(c.Rank()))
}

// Evaluate scores the best five-card hand from two hole cards and a full board.
func Evaluate(hole, board []card.Card) (HandValue, error) {
	if len(hole)+len(board) != 7 {
		return HandValue{}, ErrInvalidState(fmt.Sprintf("need 7 cards to evaluate, got %d", len(hole)+len(board)))
	}
	var seven [7]poker.Card
	for i, c := range append(append([]card.Card{}, hole...), board...) {
		pc, err := toEvalCard(c)
		if err != nil {
			return HandValue{}, err
		}
		seven[i] = pc
	}
	desc, err := poker.Describe(seven[:])
	if err != nil {
		return HandValue{}, err
	}
	return HandValue{Score: poker.Eval7(&seven), Description: desc}, nil
}
