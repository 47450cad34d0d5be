package holdem

import "holdem-rooms/card"

type PlayerSnapshot struct {
	Name       string
	Stack      int64
	Bet        int64
	Committed  int64
	Dealt      bool
	Folded     bool
	AllIn      bool
	LastAction Action
	HoleCards  []card.Card
}

type Snapshot struct {
	Hand    int
	Street  Street
	Running bool

	Dealer     string
	SmallBlind string
	BigBlind   string
	ToAct      string

	CurBet    int64
	LastRaise int64

	Board []card.Card
	// Pots holds the chips gathered from finished streets of the running hand.
	Pots    []Pot
	Players []PlayerSnapshot
}

// Snapshot copies the table state. Hole cards are included for every player;
// callers decide who may see them.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Hand:      g.hand,
		Street:    g.street,
		Running:   g.running,
		CurBet:    g.curBet,
		LastRaise: g.lastRaise,
		Board:     append([]card.Card(nil), g.board...),
	}
	if len(g.dealt) > 0 && g.hand > 0 {
		s.Dealer = g.dealt[g.dealer].Name
		s.SmallBlind = g.dealt[g.sb].Name
		s.BigBlind = g.dealt[g.bb].Name
	}
	if g.running {
		if g.cur >= 0 {
			s.ToAct = g.dealt[g.cur].Name
		}
		contribs := make([]Contribution, 0, len(g.dealt))
		for _, p := range g.dealt {
			contribs = append(contribs, Contribution{Player: p.Name, Amount: p.committed - p.bet, Folded: p.folded})
		}
		s.Pots = BuildPots(contribs)
	}
	for _, p := range g.seats {
		s.Players = append(s.Players, PlayerSnapshot{
			Name:       p.Name,
			Stack:      p.stack,
			Bet:        p.bet,
			Committed:  p.committed,
			Dealt:      p.dealt,
			Folded:     p.folded,
			AllIn:      p.allIn,
			LastAction: p.lastAction,
			HoleCards:  append([]card.Card(nil), p.hole...),
		})
	}
	return s
}
