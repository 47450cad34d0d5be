package lobby

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/codec"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/ledger"
	"holdem-rooms/internal/presence"
	"holdem-rooms/internal/session"
)

var (
	ErrNotFound    = session.ErrClosed
	ErrInOtherGame = &session.Error{Kind: session.KindState, Msg: "you are already in another game"}
	ErrNoGame      = &session.Error{Kind: session.KindState, Msg: "you are not in a game"}
)

// Lobby manages all sessions. Its lock only guards the directory; sessions
// are never called while it is held.
type Lobby struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	hub      *fanout.Hub
	presence *presence.Manager
	bankroll bankroll.Service
	ledger   ledger.Service

	opts         session.Options
	defaultSeats int
}

func New(hub *fanout.Hub, pres *presence.Manager, bank bankroll.Service, led ledger.Service, opts session.Options, defaultSeats int) *Lobby {
	if defaultSeats < 2 {
		defaultSeats = 8
	}
	return &Lobby{
		sessions:     make(map[string]*session.Session),
		hub:          hub,
		presence:     pres,
		bankroll:     bank,
		ledger:       led,
		opts:         opts,
		defaultSeats: defaultSeats,
	}
}

// Get returns a session by ID
func (l *Lobby) Get(id string) (*session.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	return s, ok
}

func (l *Lobby) get(id string) (*session.Session, error) {
	s, ok := l.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the summaries of every open session, oldest name first.
func (l *Lobby) List() []session.Summary {
	l.mu.RLock()
	all := make([]*session.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		all = append(all, s)
	}
	l.mu.RUnlock()

	out := make([]session.Summary, 0, len(all))
	for _, s := range all {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Create opens a session and seats host in it.
func (l *Lobby) Create(ctx context.Context, host string, cfg session.Config) (session.Summary, error) {
	if cfg.MaxSeats == 0 {
		cfg.MaxSeats = l.defaultSeats
	}
	if cfg.Name == "" {
		cfg.Name = host + "'s table"
	}
	if err := cfg.Validate(); err != nil {
		return session.Summary{}, err
	}

	bal, err := l.bankroll.Balance(ctx, host)
	if err != nil {
		return session.Summary{}, err
	}
	if bal < cfg.BuyIn {
		return session.Summary{}, session.ErrInsufficientFunds
	}

	id := uuid.NewString()
	if err := l.presence.Bind(host, id); err != nil {
		if errors.Is(err, presence.ErrBoundElsewhere) {
			return session.Summary{}, ErrInOtherGame
		}
		return session.Summary{}, err
	}

	s, err := session.New(id, host, cfg, l.opts, session.Deps{
		Publisher: l.hub,
		Bankroll:  l.bankroll,
		Ledger:    l.ledger,
		Presence:  l.presence,
		OnClose:   l.forget,
	})
	if err != nil {
		l.presence.Unbind(host, id)
		return session.Summary{}, err
	}

	l.mu.Lock()
	l.sessions[id] = s
	l.mu.Unlock()

	sum := s.Summary()
	l.hub.Publish(fanout.LobbyTopic, []fanout.Event{{
		Name: session.EvGameCreated,
		Data: session.LobbyEvent{GameID: id, Username: host, Game: &sum},
	}}, nil)

	if _, err := s.Join(host); err != nil {
		log.Printf("[Lobby] host %s could not take a seat in %s: %v", host, id, err)
		_ = s.Delete("", "create_failed")
		return session.Summary{}, err
	}
	log.Printf("[Lobby] %s created session %s", host, id)
	return s.Summary(), nil
}

// Join seats or queues user. A user belongs to at most one session.
func (l *Lobby) Join(user, id string) (queued bool, err error) {
	s, err := l.get(id)
	if err != nil {
		return false, err
	}
	_, wasBound := l.presence.SessionOf(user)
	if err := l.presence.Bind(user, id); err != nil {
		if errors.Is(err, presence.ErrBoundElsewhere) {
			return false, ErrInOtherGame
		}
		return false, err
	}
	queued, err = s.Join(user)
	if err != nil && !wasBound {
		l.presence.Unbind(user, id)
	}
	return queued, err
}

func (l *Lobby) Leave(user, id string) (pending bool, err error) {
	s, err := l.get(id)
	if err != nil {
		return false, err
	}
	return s.Leave(user)
}

func (l *Lobby) Start(user, id string) error {
	s, err := l.get(id)
	if err != nil {
		return err
	}
	return s.Start(user)
}

// Delete ends a session on behalf of its host.
func (l *Lobby) Delete(user, id string) error {
	s, err := l.get(id)
	if err != nil {
		return err
	}
	return s.Delete(user, "deleted")
}

// Reconnect brings a seated user back into a running session.
func (l *Lobby) Reconnect(user, id string) (*codec.TableView, error) {
	s, err := l.get(id)
	if err != nil {
		return nil, err
	}
	view, err := s.Reconnect(user)
	if err != nil {
		return nil, err
	}
	if err := l.presence.Bind(user, id); err != nil {
		log.Printf("[Lobby] rebind %s to %s: %v", user, id, err)
	}
	return view, nil
}

func (l *Lobby) State(user, id string) (*codec.TableView, error) {
	s, err := l.get(id)
	if err != nil {
		return nil, err
	}
	return s.State(user)
}

// SessionOf returns the session user is bound to.
func (l *Lobby) SessionOf(user string) (*session.Session, error) {
	id, ok := l.presence.SessionOf(user)
	if !ok {
		return nil, ErrNoGame
	}
	return l.get(id)
}

// Host reports the host of a session.
func (l *Lobby) Host(id string) (string, error) {
	s, err := l.get(id)
	if err != nil {
		return "", err
	}
	return s.Host(), nil
}

// forget drops a closed session. It runs on the session goroutine.
func (l *Lobby) forget(id string) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()

	evicted := l.presence.Evict(id)
	l.hub.CloseTopic("game:" + id)
	log.Printf("[Lobby] session %s closed (%d binding(s) evicted)", id, len(evicted))
}

// Shutdown ends every session, cashing all seats out.
func (l *Lobby) Shutdown() {
	l.mu.RLock()
	all := make([]*session.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		all = append(all, s)
	}
	l.mu.RUnlock()

	for _, s := range all {
		if err := s.Delete("", "server_shutdown"); err != nil {
			log.Printf("[Lobby] shutdown of %s: %v", s.ID, err)
		}
	}
}
