package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"holdem-rooms/internal/auth"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/lobby"
	"holdem-rooms/internal/presence"
	"holdem-rooms/internal/session"
)

const (
	sendBuffer   = 256
	readLimit    = 65536
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	requestWait  = 5 * time.Second
)

// Connection represents a WebSocket client connection
type Connection struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Gateway  *Gateway

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	lobby    *lobby.Lobby
	hub      *fanout.Hub
	presence *presence.Manager
	auth     auth.Service
	bankroll bankroll.Service
	upgrader websocket.Upgrader
}

func New(lby *lobby.Lobby, hub *fanout.Hub, pres *presence.Manager, authService auth.Service, bank bankroll.Service, allowedOrigins []string) *Gateway {
	g := &Gateway{
		connections: make(map[string]*Connection),
		lobby:       lby,
		hub:         hub,
		presence:    pres,
		auth:        authService,
		bankroll:    bank,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return g
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// HandleWebSocket authenticates the request and upgrades it. The session
// token comes from the token query parameter or a Bearer header.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	_, username, ok := g.auth.ResolveSession(token)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	c := &Connection{
		ID:       uuid.NewString(),
		Username: username,
		Conn:     conn,
		Gateway:  g,
		send:     make(chan []byte, sendBuffer),
	}
	g.mu.Lock()
	g.connections[c.ID] = c
	total := len(g.connections)
	g.mu.Unlock()

	if prev, ok := g.hub.Attach(username, c).(*Connection); ok && prev != nil {
		log.Printf("[Gateway] %s reconnected, closing %s", username, prev.ID)
		prev.shutdown()
	}
	g.presence.Connect(username, c.ID)
	g.hub.Subscribe(fanout.LobbyTopic, username)

	log.Printf("[Gateway] Client connected: %s (user=%s), total: %d", c.ID, username, total)

	c.greet()
	go c.writePump()
	go c.readPump()
}

// greet tells a fresh connection its balance and, when it has one, its game.
func (c *Connection) greet() {
	ctx, cancel := context.WithTimeout(context.Background(), requestWait)
	defer cancel()

	hello := map[string]any{"username": c.Username}
	if bal, err := c.Gateway.bankroll.Balance(ctx, c.Username); err == nil {
		hello["chips"] = bal
	}
	if id, ok := c.Gateway.presence.SessionOf(c.Username); ok {
		hello["game_id"] = id
	}
	c.sendEvent("connected", hello)
}

// Deliver implements fanout.Sink. A connection that cannot keep up is closed.
func (c *Connection) Deliver(f fanout.Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("[Gateway] marshal frame %s#%d: %v", f.Topic, f.Seq, err)
		return false
	}
	return c.enqueue(data)
}

func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("[Gateway] send buffer full for %s, closing %s", c.Username, c.ID)
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}
		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeConnection lapses presence. It never touches the user's session.
func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.ID)
	total := len(g.connections)
	g.mu.Unlock()

	c.shutdown()
	if g.hub.Detach(c.Username, c) {
		g.presence.Disconnect(c.Username, c.ID)
		g.hub.Unsubscribe(fanout.LobbyTopic, c.Username)
	}
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, total)
}

// Connections reports the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Close closes every connection.
func (g *Gateway) Close() {
	g.mu.RLock()
	all := make([]*Connection, 0, len(g.connections))
	for _, c := range g.connections {
		all = append(all, c)
	}
	g.mu.RUnlock()
	for _, c := range all {
		c.shutdown()
	}
}

func (c *Connection) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Gateway] marshal %T: %v", v, err)
		return
	}
	c.enqueue(data)
}

func (c *Connection) sendEvent(name string, data any) {
	c.sendJSON(fanout.Frame{
		Topic:  "direct",
		Events: []fanout.Event{{Name: name, Data: data}},
	})
}

func (c *Connection) sendError(req Request, err error) {
	var se *session.Error
	if !errors.As(err, &se) {
		log.Printf("[Gateway] %s from %s failed: %v", req.Type, c.Username, err)
	}
	kind := session.KindOf(err)
	msg := err.Error()
	c.sendEvent(session.EvError, session.ErrorMessage{Message: msg})
	c.sendJSON(Ack{Ack: req.ID, OK: false, Error: msg, Kind: string(kind)})
}
