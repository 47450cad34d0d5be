package session

import (
	"log"

	"holdem-rooms/holdem"
	"holdem-rooms/internal/clock"
	"holdem-rooms/internal/codec"
	"holdem-rooms/internal/fanout"
)

// EventType is a message kind of the session actor queue.
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventStart
	EventAction
	EventReveal
	EventReconnect
	EventState
	EventDelete
	EventTick
	EventExpire
)

// Event is a message to the session actor.
type Event struct {
	Type     EventType
	User     string
	Action   holdem.Action
	Amount   int64
	Reason   string
	Timer    clock.Timer
	Response chan Reply
}

// Reply is what the actor answers to one Event.
type Reply struct {
	Err error
	// Queued is set when a join was queued or a leave is pending.
	Queued bool
	View   *codec.TableView
}

// Server to client event names.
const (
	EvGameCreated    = "game_created"
	EvGameDeleted    = "game_deleted"
	EvGameStarted    = "game_started"
	EvPlayerJoined   = "player_joined"
	EvPlayerLeft     = "player_left"
	EvPlayerQueued   = "player_queued"
	EvPlayerDequeued = "player_dequeued"
	EvPlayerRemoved  = "player_removed"
	EvPlayerKicked   = "player_kicked"
	EvPlayerTurn     = "player_turn"
	EvUpdateState    = "update_game_state"
	EvRoundOver      = "round_over"
	EvRoundCountdown = "round_countdown"
	EvKickCountdown  = "kick_countdown"
	EvHandRevealed   = "hand_revealed"
	EvChipsUpdated   = "chips_updated"
	EvError          = "error"
)

type PlayerEvent struct {
	GameID   string `json:"game_id"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}

type LobbyEvent struct {
	GameID   string   `json:"game_id"`
	Username string   `json:"username,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Game     *Summary `json:"game,omitempty"`
}

type GameStarted struct {
	GameID     string `json:"game_id"`
	Hand       int    `json:"hand"`
	HandID     string `json:"hand_id"`
	Dealer     string `json:"dealer"`
	SmallBlind string `json:"small_blind_player"`
	BigBlind   string `json:"big_blind_player"`
}

type GameDeleted struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
}

type PlayerTurn struct {
	PlayerToAct      string             `json:"player_to_act"`
	AvailableActions []codec.ActionView `json:"available_actions"`
}

type Countdown struct {
	Username string `json:"username,omitempty"`
	Seconds  int    `json:"seconds"`
}

type ChipsUpdated struct {
	Chips int64 `json:"chips"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type lobbyNote struct {
	name   string
	user   string
	reason string
}

// frame gathers the events of one mutation so they go out together.
type frame struct {
	common  []fanout.Event
	private map[string][]fanout.Event
	lobby   []lobbyNote
}

func newFrame() *frame {
	return &frame{private: make(map[string][]fanout.Event)}
}

func (f *frame) add(name string, data any) {
	f.common = append(f.common, fanout.Event{Name: name, Data: data})
}

func (f *frame) addTo(user, name string, data any) {
	f.private[user] = append(f.private[user], fanout.Event{Name: name, Data: data})
}

func (f *frame) notifyLobby(name, user, reason string) {
	f.lobby = append(f.lobby, lobbyNote{name: name, user: user, reason: reason})
}

func (f *frame) empty() bool {
	return len(f.common) == 0 && len(f.private) == 0 && len(f.lobby) == 0
}

// flush publishes f. With state, every member of the audience also gets
// their own update_game_state followed by player_turn, in the same frame.
func (s *Session) flush(f *frame, withState bool) {
	if f.empty() && !withState {
		return
	}
	private := f.private
	var public []fanout.Event
	if withState {
		snap := s.game.Snapshot()
		meta := s.meta(snap)
		var turn *fanout.Event
		if snap.ToAct != "" {
			turn = &fanout.Event{Name: EvPlayerTurn, Data: PlayerTurn{
				PlayerToAct:      snap.ToAct,
				AvailableActions: codec.ActionViews(meta.Actions),
			}}
		}
		for _, user := range s.audience() {
			evs := private[user]
			evs = append(evs, fanout.Event{Name: EvUpdateState, Data: codec.TableViewFor(snap, meta, user)})
			if turn != nil {
				evs = append(evs, *turn)
			}
			private[user] = evs
		}
		public = append(public, fanout.Event{Name: EvUpdateState, Data: codec.PublicView(snap, meta)})
		if turn != nil {
			public = append(public, *turn)
		}
	}

	if s.handID != "" {
		s.record(f.common)
		s.record(public)
	}
	if s.deps.Publisher == nil {
		return
	}
	if len(f.common) > 0 || len(private) > 0 {
		s.deps.Publisher.Publish(s.Topic(), f.common, private)
	}
	if len(f.lobby) > 0 {
		sum := s.buildSummary()
		events := make([]fanout.Event, 0, len(f.lobby))
		for _, n := range f.lobby {
			ev := LobbyEvent{GameID: s.ID, Username: n.user, Reason: n.reason}
			if n.name != EvGameDeleted {
				ev.Game = &sum
			}
			events = append(events, fanout.Event{Name: n.name, Data: ev})
		}
		s.deps.Publisher.Publish(fanout.LobbyTopic, events, nil)
	}
}

func (s *Session) record(events []fanout.Event) {
	for _, ev := range events {
		s.tapeSeq++
		if err := s.tape.Append(s.tapeSeq, ev.Name, ev.Data); err != nil {
			log.Printf("[Session %s] tape append %s failed: %v", s.ID, ev.Name, err)
		}
	}
}
