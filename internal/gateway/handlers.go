package gateway

import (
	"context"
	"encoding/json"
	"log"

	"holdem-rooms/holdem"
	"holdem-rooms/internal/session"
)

// Request is one client message. ID is echoed back in the Ack.
type Request struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Ack answers exactly one Request. A rejected request also produces an
// error event on the same connection.
type Ack struct {
	Ack   string `json:"ack"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

type gameRef struct {
	GameID string `json:"game_id"`
}

type createGameRequest struct {
	Name       string `json:"name"`
	SmallBlind int64  `json:"small_blind"`
	BigBlind   int64  `json:"big_blind"`
	BuyIn      int64  `json:"buy_in"`
	MaxSeats   int    `json:"max_seats"`
}

type actionRequest struct {
	Player string `json:"player"`
	Action string `json:"action"`
	Amount int64  `json:"amount"`
}

var errBadRequest = &session.Error{Kind: session.KindValidation, Msg: "malformed request"}

func (c *Connection) handleMessage(raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Type == "" {
		log.Printf("[Gateway] Failed to decode message from %s: %v", c.Username, err)
		c.sendError(req, errBadRequest)
		return
	}

	data, err := c.dispatch(req)
	if err != nil {
		c.sendError(req, err)
		return
	}
	c.sendJSON(Ack{Ack: req.ID, OK: true, Data: data})
}

func (c *Connection) dispatch(req Request) (any, error) {
	g := c.Gateway
	user := c.Username

	switch req.Type {
	case "get_games":
		return g.lobby.List(), nil

	case "create_game":
		var p createGameRequest
		if err := decode(req.Data, &p); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestWait)
		defer cancel()
		sum, err := g.lobby.Create(ctx, user, session.Config{
			Name:       p.Name,
			SmallBlind: p.SmallBlind,
			BigBlind:   p.BigBlind,
			BuyIn:      p.BuyIn,
			MaxSeats:   p.MaxSeats,
		})
		if err != nil {
			return nil, err
		}
		return sum, nil

	case "join_game":
		id, err := c.gameID(req.Data)
		if err != nil {
			return nil, err
		}
		queued, err := g.lobby.Join(user, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"game_id": id, "queued": queued}, nil

	case "leave_game":
		id, err := c.gameID(req.Data)
		if err != nil {
			return nil, err
		}
		pending, err := g.lobby.Leave(user, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"game_id": id, "pending": pending}, nil

	case "start_game":
		id, err := c.gameID(req.Data)
		if err != nil {
			return nil, err
		}
		return nil, g.lobby.Start(user, id)

	case "delete_game":
		id, err := c.gameID(req.Data)
		if err != nil {
			return nil, err
		}
		return nil, g.lobby.Delete(user, id)

	case "player_action":
		var p actionRequest
		if err := decode(req.Data, &p); err != nil {
			return nil, err
		}
		if p.Player != "" && p.Player != user {
			return nil, &session.Error{Kind: session.KindAuthorization, Msg: "you can only act for yourself"}
		}
		action, err := holdem.ParseAction(p.Action)
		if err != nil {
			return nil, &session.Error{Kind: session.KindValidation, Msg: err.Error()}
		}
		s, err := g.lobby.SessionOf(user)
		if err != nil {
			return nil, err
		}
		return nil, s.Act(user, action, p.Amount)

	case "reveal_hand":
		s, err := g.lobby.SessionOf(user)
		if err != nil {
			return nil, err
		}
		return nil, s.Reveal(user)

	case "reconnect_to_game":
		id, err := c.gameID(req.Data)
		if err != nil {
			return false, err
		}
		if _, err := g.lobby.Reconnect(user, id); err != nil {
			return false, err
		}
		return true, nil

	case "get_state":
		id, err := c.gameID(req.Data)
		if err != nil {
			return nil, err
		}
		return g.lobby.State(user, id)

	case "get_bankroll":
		ctx, cancel := context.WithTimeout(context.Background(), requestWait)
		defer cancel()
		bal, err := g.bankroll.Balance(ctx, user)
		if err != nil {
			return nil, err
		}
		return session.ChipsUpdated{Chips: bal}, nil
	}
	return nil, &session.Error{Kind: session.KindValidation, Msg: "unknown request type " + req.Type}
}

// gameID reads game_id from data, falling back to the user's current game.
func (c *Connection) gameID(data json.RawMessage) (string, error) {
	var ref gameRef
	if err := decode(data, &ref); err != nil {
		return "", err
	}
	if ref.GameID != "" {
		return ref.GameID, nil
	}
	if id, ok := c.Gateway.presence.SessionOf(c.Username); ok {
		return id, nil
	}
	return "", &session.Error{Kind: session.KindValidation, Msg: "game_id is required"}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadRequest
	}
	return nil
}
