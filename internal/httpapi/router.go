// Package httpapi mounts the REST routes and the websocket endpoint on one
// gin engine.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"holdem-rooms/internal/auth"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/ledger"
	"holdem-rooms/internal/lobby"
	"holdem-rooms/internal/session"
)

type Deps struct {
	Auth     auth.Service
	Bankroll bankroll.Service
	Ledger   ledger.Service
	Lobby    *lobby.Lobby
	// WebSocket serves /ws when set.
	WebSocket http.HandlerFunc
}

type handler struct {
	deps Deps
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	h := &handler{deps: deps}
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/games", h.handleGames)
	r.GET("/api/game/host", h.handleHost)

	user := r.Group("/api", auth.RequireUser(deps.Auth))
	user.GET("/game/state", h.handleState)
	user.GET("/bankroll/me", h.handleBankroll)

	auth.NewHTTPHandler(deps.Auth).RegisterRoutes(r)
	if deps.Ledger != nil {
		ledger.NewHTTPHandler(deps.Auth, deps.Ledger).RegisterRoutes(r)
	}
	if deps.WebSocket != nil {
		r.GET("/ws", gin.WrapF(deps.WebSocket))
	}
	return r
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		log.Printf("[HTTP] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

func (h *handler) handleGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": h.deps.Lobby.List()})
}

func (h *handler) handleHost(c *gin.Context) {
	id := strings.TrimSpace(c.Query("game_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game_id is required"})
		return
	}
	host, err := h.deps.Lobby.Host(id)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id, "host": host})
}

func (h *handler) handleState(c *gin.Context) {
	id := strings.TrimSpace(c.Query("game_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game_id is required"})
		return
	}
	view, err := h.deps.Lobby.State(auth.CurrentUser(c), id)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) handleBankroll(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	bal, err := h.deps.Bankroll.Balance(ctx, auth.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query bankroll failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": auth.CurrentUser(c), "chips": bal})
}

func writeSessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		status = http.StatusNotFound
	case session.KindOf(err) == session.KindValidation:
		status = http.StatusBadRequest
	case session.KindOf(err) == session.KindAuthorization:
		status = http.StatusForbidden
	case session.KindOf(err) == session.KindState, session.KindOf(err) == session.KindConcurrency:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
