package holdem

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"holdem-rooms/card"
)

// Game is the betting engine of one table. Seats are ordered by arrival and
// keyed by player name; players seated during a hand are dealt in next hand.
type Game struct {
	cfg Config
	rng *rand.Rand

	mu sync.Mutex

	seats []*Player

	// hand state
	hand    int
	street  Street
	running bool
	deck    card.Deck
	board   []card.Card

	dealt      []*Player
	buttonName string
	buttonSeat int
	dealer     int
	sb         int
	bb         int
	cur        int

	curBet    int64
	lastRaise int64

	last *HandResult
}

// HandResult describes a finished hand.
type HandResult struct {
	Hand          int
	Showdown      bool
	Board         []card.Card
	Contributions []Contribution
	Pots          []Pot
	Awards        []PotAward
	Payouts       map[string]int64
	Absorbed      int64
	// MustShow lists the players forced to reveal to claim a pot.
	MustShow []string
	// Hands holds the hole cards of every player still live at the end.
	Hands map[string][]card.Card
}

// Refund is a contribution returned when a hand is abandoned.
type Refund struct {
	Player string
	Amount int64
	Seated bool
}

func NewGame(cfg Config) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		cur: -1,
	}, nil
}

func (g *Game) Config() Config { return g.cfg }

// Seat adds a player with an initial stack at the end of the seating order.
func (g *Game) Seat(name string, stack int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if stack < 0 {
		return fmt.Errorf("%w: stack must be >= 0", ErrInvalidAmount)
	}
	if g.seatIndexLocked(name) >= 0 {
		return ErrPlayerExists
	}
	if len(g.seats) >= g.cfg.MaxPlayers {
		return ErrTableFull
	}
	p := &Player{Name: name, stack: stack}
	p.resetForHand()
	g.seats = append(g.seats, p)
	return nil
}

// Unseat removes a player and returns the stack they leave with. A player who
// still holds live cards cannot leave until the hand is over; a folded player
// can, and their chips already in the pot stay there.
func (g *Game) Unseat(name string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.seatIndexLocked(name)
	if idx < 0 {
		return 0, ErrPlayerNotFound
	}
	p := g.seats[idx]
	if g.running && p.dealt && !p.folded {
		return 0, ErrHandInProgress
	}
	stack := p.stack
	p.stack = 0
	g.seats = append(g.seats[:idx], g.seats[idx+1:]...)
	return stack, nil
}

// Seated reports whether name holds a seat.
func (g *Game) Seated(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seatIndexLocked(name) >= 0
}

func (g *Game) SeatCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seats)
}

// Names returns the seated players in seating order.
func (g *Game) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.seats))
	for _, p := range g.seats {
		out = append(out, p.Name)
	}
	return out
}

func (g *Game) Stack(name string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := g.seatIndexLocked(name); i >= 0 {
		return g.seats[i].stack, true
	}
	return 0, false
}

func (g *Game) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// ToAct is the player whose decision the hand is waiting on, or "".
func (g *Game) ToAct() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running || g.cur < 0 {
		return ""
	}
	return g.dealt[g.cur].Name
}

// InHand reports whether name was dealt into the running hand and has not folded.
func (g *Game) InHand(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return false
	}
	for _, p := range g.dealt {
		if p.Name == name {
			return !p.folded
		}
	}
	return false
}

// LastResult is the outcome of the most recent finished hand.
func (g *Game) LastResult() *HandResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// ChipsOnTable sums every stack plus the chips committed to a running hand,
// including those of players who left after folding.
func (g *Game) ChipsOnTable() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, p := range g.seats {
		total += p.stack
	}
	if g.running {
		for _, p := range g.dealt {
			total += p.committed
		}
	}
	return total
}

// StartHand deals a new hand to every seated player with chips. A non-nil
// result means the blinds alone put everyone all-in and the hand is over.
func (g *Game) StartHand() (*HandResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, ErrHandInProgress
	}
	for _, p := range g.seats {
		p.resetForHand()
	}
	dealt := make([]*Player, 0, len(g.seats))
	for _, p := range g.seats {
		if p.stack > 0 {
			dealt = append(dealt, p)
		}
	}
	if len(dealt) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	g.hand++
	g.dealt = dealt
	g.board = nil
	g.last = nil
	g.deck = card.NewDeck(g.rng)
	for _, p := range dealt {
		p.dealt = true
	}

	n := len(dealt)
	g.dealer = g.nextButtonLocked()
	g.buttonName = dealt[g.dealer].Name
	if n == 2 {
		g.sb = g.dealer
		g.bb = (g.dealer + 1) % n
	} else {
		g.sb = (g.dealer + 1) % n
		g.bb = (g.dealer + 2) % n
	}

	for round := 0; round < 2; round++ {
		for k := 1; k <= n; k++ {
			cards, ok := g.deck.Draw(1)
			if !ok {
				return nil, ErrInvalidState("deck underflow")
			}
			p := dealt[(g.dealer+k)%n]
			p.hole = append(p.hole, cards...)
		}
	}

	g.running = true
	g.street = StreetPreflop
	dealt[g.sb].placeBet(g.cfg.SmallBlind)
	dealt[g.bb].placeBet(g.cfg.BigBlind)
	g.curBet = max(dealt[g.sb].bet, dealt[g.bb].bet)
	g.lastRaise = g.cfg.BigBlind

	return g.advanceLocked((g.bb + 1) % n)
}

// Act applies an action for the player to act. amount is the player's total
// bet for the street and only matters for bet and raise. Fold is accepted at
// any turn so that leaving and timeouts can always resolve.
func (g *Game) Act(name string, action Action, amount int64) (*HandResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil, ErrHandNotRunning
	}
	if g.cur < 0 || g.dealt[g.cur].Name != name {
		return nil, ErrNotYourTurn
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	p := g.dealt[g.cur]

	switch action {
	case ActionFold:
		p.folded = true
	case ActionCheck:
		if p.bet < g.curBet {
			return nil, fmt.Errorf("%w: %d to call", ErrInvalidAction, g.curBet-p.bet)
		}
	case ActionCall:
		if p.bet >= g.curBet {
			return nil, fmt.Errorf("%w: nothing to call", ErrInvalidAction)
		}
		p.placeBet(g.curBet - p.bet)
	case ActionBet, ActionRaise:
		opt := g.raiseOptionLocked(p)
		if opt == nil {
			return nil, fmt.Errorf("%w: cannot raise", ErrInvalidAction)
		}
		total := amount
		available := p.stack + p.bet
		if total >= available {
			total = available
		} else if total < *opt.Min {
			return nil, fmt.Errorf("%w: minimum is %d", ErrInvalidAmount, *opt.Min)
		}
		if increase := total - g.curBet; increase >= g.lastRaise {
			g.lastRaise = increase
			for _, q := range g.dealt {
				if q != p {
					q.acted = false
				}
			}
		}
		p.placeBet(total - p.bet)
		g.curBet = total
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	p.acted = true
	p.lastAction = action
	return g.advanceLocked(g.cur + 1)
}

// Abort abandons a running hand and hands every contribution back.
func (g *Game) Abort() []Refund {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	var out []Refund
	for _, p := range g.dealt {
		if p.committed == 0 {
			continue
		}
		out = append(out, Refund{Player: p.Name, Amount: p.committed, Seated: g.seatIndexLocked(p.Name) >= 0})
		p.stack += p.committed
		p.committed = 0
		p.bet = 0
	}
	g.running = false
	g.cur = -1
	g.street = StreetIdle
	return out
}

func (g *Game) seatIndexLocked(name string) int {
	for i, p := range g.seats {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// nextButtonLocked moves the button to the next dealt player after the
// previous button, or to the first seat on the first hand.
func (g *Game) nextButtonLocked() int {
	if len(g.seats) == 0 {
		return 0
	}
	start := 0
	if g.buttonName != "" {
		if i := g.seatIndexLocked(g.buttonName); i >= 0 {
			start = i + 1
		} else {
			start = g.buttonSeat
		}
	}
	for k := 0; k < len(g.seats); k++ {
		seat := (start + k) % len(g.seats)
		for i, p := range g.dealt {
			if p == g.seats[seat] {
				g.buttonSeat = seat
				return i
			}
		}
	}
	return 0
}

func (g *Game) contendersLocked() int {
	n := 0
	for _, p := range g.dealt {
		if !p.folded {
			n++
		}
	}
	return n
}

func (g *Game) actorsLocked() int {
	n := 0
	for _, p := range g.dealt {
		if p.canAct() {
			n++
		}
	}
	return n
}

// advanceLocked points the turn at the first player from index from who still
// owes a decision, closing the street when there is none.
func (g *Game) advanceLocked(from int) (*HandResult, error) {
	if g.contendersLocked() <= 1 {
		return g.finishLocked()
	}
	n := len(g.dealt)
	for k := 0; k < n; k++ {
		i := (from + k) % n
		p := g.dealt[i]
		if !p.canAct() || (p.acted && p.bet >= g.curBet) {
			continue
		}
		if g.actorsLocked() == 1 && p.bet >= g.curBet {
			break
		}
		g.cur = i
		return nil, nil
	}
	return g.endStreetLocked()
}

func (g *Game) endStreetLocked() (*HandResult, error) {
	g.returnUncalledLocked()
	for _, p := range g.dealt {
		p.bet = 0
		p.acted = false
	}
	g.curBet = 0
	g.lastRaise = g.cfg.BigBlind
	g.cur = -1

	if g.street >= StreetRiver || g.actorsLocked() <= 1 {
		return g.finishLocked()
	}
	g.street++
	count := 1
	if g.street == StreetFlop {
		count = 3
	}
	if err := g.dealBoardLocked(count); err != nil {
		return nil, err
	}
	return g.advanceLocked(g.dealer + 1)
}

func (g *Game) dealBoardLocked(count int) error {
	cards, ok := g.deck.Draw(count)
	if !ok {
		return ErrInvalidState("deck underflow")
	}
	g.board = append(g.board, cards...)
	return nil
}

// returnUncalledLocked gives the top street bet back down to the next highest.
func (g *Game) returnUncalledLocked() {
	var top *Player
	var second int64
	for _, p := range g.dealt {
		switch {
		case top == nil || p.bet > top.bet:
			if top != nil {
				second = top.bet
			}
			top = p
		case p.bet > second:
			second = p.bet
		}
	}
	if top != nil && top.bet > second {
		top.refund(top.bet - second)
	}
}

func (g *Game) finishLocked() (*HandResult, error) {
	g.returnUncalledLocked()

	res := &HandResult{
		Hand:    g.hand,
		Payouts: make(map[string]int64),
		Hands:   make(map[string][]card.Card),
	}
	var live []*Player
	for _, p := range g.dealt {
		res.Contributions = append(res.Contributions, Contribution{Player: p.Name, Amount: p.committed, Folded: p.folded})
		if !p.folded {
			live = append(live, p)
			res.Hands[p.Name] = append([]card.Card(nil), p.hole...)
		}
	}
	res.Pots = BuildPots(res.Contributions)

	var values map[string]HandValue
	if len(live) > 1 {
		if len(g.board) < 5 {
			if err := g.dealBoardLocked(5 - len(g.board)); err != nil {
				return nil, err
			}
		}
		values = make(map[string]HandValue, len(live))
		for _, p := range live {
			hv, err := Evaluate(p.hole, g.board)
			if err != nil {
				return nil, err
			}
			values[p.Name] = hv
		}
		res.Showdown = true
	}

	res.Awards = AwardPots(res.Pots, values)
	for _, a := range res.Awards {
		for _, w := range a.Winners {
			res.Payouts[w] += a.Share
		}
		res.Absorbed += a.Remainder
	}
	if res.Showdown {
		res.MustShow = MustShow(res.Pots, res.Awards)
	}
	for _, p := range g.dealt {
		p.stack += res.Payouts[p.Name]
		p.committed = 0
		p.bet = 0
	}
	res.Board = append([]card.Card(nil), g.board...)

	g.running = false
	g.cur = -1
	g.street = StreetShowdown
	g.last = res
	return res, nil
}
