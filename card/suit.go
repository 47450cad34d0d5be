package card

type Suit byte

const (
	Spade Suit = iota
	Heart
	Club
	Diamond
)

func (s Suit) Letter() byte {
	switch s {
	case Spade:
		return 's'
	case Heart:
		return 'h'
	case Club:
		return 'c'
	case Diamond:
		return 'd'
	}
	return '?'
}

func (s Suit) String() string {
	switch s {
	case Spade:
		return "spades"
	case Heart:
		return "hearts"
	case Club:
		return "clubs"
	case Diamond:
		return "diamonds"
	}
	return "?"
}

func suitFromLetter(b byte) (Suit, bool) {
	switch b {
	case 's', 'S':
		return Spade, true
	case 'h', 'H':
		return Heart, true
	case 'c', 'C':
		return Club, true
	case 'd', 'D':
		return Diamond, true
	}
	return 0, false
}
