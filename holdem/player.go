package holdem

import "holdem-rooms/card"

type Player struct {
	Name string

	stack     int64
	bet       int64 // current street
	committed int64 // whole hand, including bet

	dealt      bool
	folded     bool
	allIn      bool
	acted      bool
	lastAction Action

	hole []card.Card
}

func (p *Player) Stack() int64           { return p.stack }
func (p *Player) Bet() int64             { return p.bet }
func (p *Player) Committed() int64       { return p.committed }
func (p *Player) Dealt() bool            { return p.dealt }
func (p *Player) Folded() bool           { return p.folded }
func (p *Player) AllIn() bool            { return p.allIn }
func (p *Player) LastAction() Action     { return p.lastAction }
func (p *Player) HoleCards() []card.Card { return append([]card.Card(nil), p.hole...) }

func (p *Player) resetForHand() {
	p.bet = 0
	p.committed = 0
	p.dealt = false
	p.folded = false
	p.allIn = false
	p.acted = false
	p.lastAction = ""
	p.hole = make([]card.Card, 0, 2)
}

// canAct reports whether the player still has decisions to make this hand.
func (p *Player) canAct() bool {
	return p.dealt && !p.folded && !p.allIn
}

// placeBet moves up to amount from the stack into the street bet.
func (p *Player) placeBet(amount int64) {
	if amount <= 0 {
		return
	}
	if amount >= p.stack {
		amount = p.stack
		p.allIn = true
	}
	p.stack -= amount
	p.bet += amount
	p.committed += amount
}

func (p *Player) refund(amount int64) {
	p.stack += amount
	p.bet -= amount
	p.committed -= amount
	p.allIn = p.stack == 0
}
