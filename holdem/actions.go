package holdem

// LegalActions lists what name may do right now; empty unless it is their turn.
func (g *Game) LegalActions(name string) []ActionItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running || g.cur < 0 || g.dealt[g.cur].Name != name {
		return nil
	}
	p := g.dealt[g.cur]

	items := make([]ActionItem, 0, 3)
	toCall := g.curBet - p.bet
	if toCall <= 0 {
		items = append(items, ActionItem{Action: ActionCheck})
	} else {
		call := min(toCall, p.stack)
		items = append(items, ActionItem{Action: ActionCall, Min: &call, AllIn: p.stack <= toCall})
	}
	if opt := g.raiseOptionLocked(p); opt != nil {
		items = append(items, *opt)
	}
	if toCall > 0 {
		items = append(items, ActionItem{Action: ActionFold})
	}
	return items
}

// raiseOptionLocked returns the bet or raise p may make, or nil when p cannot
// put in more than the current bet or nobody is left to answer a raise.
func (g *Game) raiseOptionLocked(p *Player) *ActionItem {
	available := p.stack + p.bet
	if available <= g.curBet {
		return nil
	}
	others := 0
	for _, q := range g.dealt {
		if q != p && q.canAct() {
			others++
		}
	}
	if others == 0 {
		return nil
	}

	opt := &ActionItem{Action: ActionRaise}
	minTotal := g.curBet + g.lastRaise
	if g.curBet == 0 {
		opt.Action = ActionBet
		minTotal = g.cfg.BigBlind
	}
	if available <= minTotal {
		minTotal = available
		opt.AllIn = true
	}
	opt.Min = &minTotal
	return opt
}
