package card

import "math/rand"

// Deck is a draw pile. Cards are dealt from the front.
type Deck []Card

// NewDeck returns the 52 cards shuffled with rng.
func NewDeck(rng *rand.Rand) Deck {
	d := make(Deck, 0, 52)
	for s := Spade; s <= Diamond; s++ {
		for r := 1; r <= 13; r++ {
			d = append(d, Card(byte(s)<<4|byte(r)))
		}
	}
	rng.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
	return d
}

func (d Deck) Count() int {
	return len(d)
}

// Draw removes size cards from the top of the deck.
func (d *Deck) Draw(size int) ([]Card, bool) {
	if size > len(*d) {
		return nil, false
	}
	cards := make([]Card, size)
	copy(cards, (*d)[:size])
	*d = (*d)[size:]
	return cards, true
}
