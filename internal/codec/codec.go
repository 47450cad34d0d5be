// Package codec turns engine snapshots into the JSON views sent to clients.
// Hole cards only ever reach their owner unless they were revealed.
package codec

import (
	"holdem-rooms/card"
	"holdem-rooms/holdem"
)

type Blinds struct {
	Small int64 `json:"small"`
	Big   int64 `json:"big"`
}

type ActionView struct {
	Action string `json:"action"`
	Min    *int64 `json:"min"`
	AllIn  bool   `json:"allin"`
}

type PlayerView struct {
	Username   string   `json:"username"`
	Chips      int64    `json:"chips"`
	Folded     bool     `json:"folded"`
	AllIn      bool     `json:"all_in"`
	CurrentBet int64    `json:"current_bet"`
	Leaving    bool     `json:"leaving"`
	LastAction string   `json:"last_action,omitempty"`
	Cards      []string `json:"cards,omitempty"`
}

type PotView struct {
	Amount  int64    `json:"amount"`
	Players []string `json:"players"`
}

// TableView is the full table state as one viewer may see it.
type TableView struct {
	GameID           string              `json:"game_id"`
	Host             string              `json:"host"`
	Phase            string              `json:"phase"`
	Street           string              `json:"street"`
	Hand             int                 `json:"hand"`
	Blinds           Blinds              `json:"blinds"`
	BuyIn            int64               `json:"buy_in"`
	MyCards          []string            `json:"my_cards"`
	Board            []string            `json:"board"`
	Players          []PlayerView        `json:"players"`
	Pots             []PotView           `json:"pots"`
	Dealer           string              `json:"dealer"`
	SmallBlindPlayer string              `json:"small_blind_player"`
	BigBlindPlayer   string              `json:"big_blind_player"`
	PlayerToAct      string              `json:"player_to_act"`
	AvailableActions []ActionView        `json:"available_actions"`
	MyBet            int64               `json:"my_bet"`
	TableBet         int64               `json:"table_bet"`
	MyChips          int64               `json:"my_chips"`
	JoinerQueue      []string            `json:"joiner_queue"`
	Revealed         map[string][]string `json:"revealed"`
}

// Meta is the session state that lives outside the engine.
type Meta struct {
	GameID     string
	Host       string
	Phase      string
	SmallBlind int64
	BigBlind   int64
	BuyIn      int64
	Joiners    []string
	Leaving    map[string]bool
	// Revealed holds hands shown this round, forced or voluntary.
	Revealed map[string][]card.Card
	// Actions are the legal options of the player to act.
	Actions []holdem.ActionItem
}

func TableViewFor(snap holdem.Snapshot, meta Meta, viewer string) TableView {
	v := TableView{
		GameID:           meta.GameID,
		Host:             meta.Host,
		Phase:            meta.Phase,
		Street:           snap.Street.String(),
		Hand:             snap.Hand,
		Blinds:           Blinds{Small: meta.SmallBlind, Big: meta.BigBlind},
		BuyIn:            meta.BuyIn,
		MyCards:          []string{},
		Board:            card.Strings(snap.Board),
		Players:          make([]PlayerView, 0, len(snap.Players)),
		Pots:             PotViews(snap.Pots),
		Dealer:           snap.Dealer,
		SmallBlindPlayer: snap.SmallBlind,
		BigBlindPlayer:   snap.BigBlind,
		PlayerToAct:      snap.ToAct,
		AvailableActions: []ActionView{},
		TableBet:         snap.CurBet,
		JoinerQueue:      append([]string{}, meta.Joiners...),
		Revealed:         make(map[string][]string, len(meta.Revealed)),
	}
	for name, cards := range meta.Revealed {
		v.Revealed[name] = card.Strings(cards)
	}
	if snap.ToAct != "" {
		v.AvailableActions = ActionViews(meta.Actions)
	}

	for _, p := range snap.Players {
		pv := PlayerView{
			Username:   p.Name,
			Chips:      p.Stack,
			Folded:     p.Folded,
			AllIn:      p.AllIn,
			CurrentBet: p.Bet,
			Leaving:    meta.Leaving[p.Name],
			LastAction: string(p.LastAction),
		}
		if shown, ok := v.Revealed[p.Name]; ok {
			pv.Cards = shown
		}
		if p.Name == viewer {
			if p.Dealt {
				v.MyCards = card.Strings(p.HoleCards)
			}
			v.MyBet = p.Bet
			v.MyChips = p.Stack
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// PublicView is the view of someone holding no seat. It is what the hand
// history records.
func PublicView(snap holdem.Snapshot, meta Meta) TableView {
	return TableViewFor(snap, meta, "")
}

func PotViews(pots []holdem.Pot) []PotView {
	out := make([]PotView, 0, len(pots))
	for _, p := range pots {
		out = append(out, PotView{Amount: p.Amount, Players: append([]string{}, p.Eligible...)})
	}
	return out
}

func ActionViews(items []holdem.ActionItem) []ActionView {
	out := make([]ActionView, 0, len(items))
	for _, it := range items {
		av := ActionView{Action: string(it.Action), AllIn: it.AllIn}
		if it.Min != nil {
			v := *it.Min
			av.Min = &v
		}
		out = append(out, av)
	}
	return out
}

// PotAwardItem is one pot of a finished hand.
type PotAwardItem struct {
	Winners   []string            `json:"winners"`
	Hands     map[string][]string `json:"hands,omitempty"`
	Amount    int64               `json:"amount"`
	Share     int64               `json:"share"`
	Remainder int64               `json:"remainder"`
	HandRank  string              `json:"hand_rank"`
}

// PotAwards lists every pot of res. A winner's hand is attached only when
// they had to show it.
func PotAwards(res *holdem.HandResult) []PotAwardItem {
	if res == nil {
		return []PotAwardItem{}
	}
	shown := make(map[string]bool, len(res.MustShow))
	for _, name := range res.MustShow {
		shown[name] = true
	}
	out := make([]PotAwardItem, 0, len(res.Awards))
	for _, a := range res.Awards {
		item := PotAwardItem{
			Winners:   append([]string{}, a.Winners...),
			Amount:    a.Amount,
			Share:     a.Share,
			Remainder: a.Remainder,
			HandRank:  a.HandRank,
		}
		for _, w := range a.Winners {
			if !shown[w] {
				continue
			}
			if item.Hands == nil {
				item.Hands = make(map[string][]string)
			}
			item.Hands[w] = card.Strings(res.Hands[w])
		}
		out = append(out, item)
	}
	return out
}

// HandRevealed is the payload of a hand_revealed event.
type HandRevealed struct {
	Username string   `json:"username"`
	Hand     []string `json:"hand"`
}

func Revealed(name string, cards []card.Card) HandRevealed {
	return HandRevealed{Username: name, Hand: card.Strings(cards)}
}
