package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Card packs a suit into the high nibble and a rank (A=1 .. K=13) into the low nibble.
type Card byte

const Invalid Card = 0

const rankLetters = "A23456789TJQK"

// New builds a card from a suit and a rank in 1..13.
func New(s Suit, rank int) (Card, error) {
	if s > Diamond {
		return Invalid, fmt.Errorf("invalid suit: %d", s)
	}
	if rank < 1 || rank > 13 {
		return Invalid, fmt.Errorf("invalid rank: %d", rank)
	}
	return Card(byte(s)<<4 | byte(rank)), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads two-character codes such as "As", "Td" or "10h".
func Parse(s string) (Card, error) {
	if len(s) < 2 {
		return Invalid, fmt.Errorf("invalid card string: %q", s)
	}
	suit, ok := suitFromLetter(s[len(s)-1])
	if !ok {
		return Invalid, fmt.Errorf("invalid suit in %q", s)
	}
	rankStr := strings.ToUpper(s[:len(s)-1])
	if rankStr == "10" {
		rankStr = "T"
	}
	if len(rankStr) != 1 {
		return Invalid, fmt.Errorf("invalid rank in %q", s)
	}
	idx := strings.IndexByte(rankLetters, rankStr[0])
	if idx < 0 {
		return Invalid, fmt.Errorf("invalid rank in %q", s)
	}
	return New(suit, idx+1)
}

func (c Card) Rank() int {
	return int(c & 0x0F)
}

func (c Card) Suit() Suit {
	return Suit(c >> 4)
}

func (c Card) Valid() bool {
	r := c.Rank()
	return r >= 1 && r <= 13 && c.Suit() <= Diamond
}

// String returns the two-character code, e.g. "Kh".
func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string([]byte{rankLetters[c.Rank()-1], c.Suit().Letter()})
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Strings renders a card slice as codes.
func Strings(cards []Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.String())
	}
	return out
}
