package ledger

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"holdem-rooms/internal/auth"
)

type HTTPHandler struct {
	auth   auth.Service
	ledger Service
}

func NewHTTPHandler(authService auth.Service, ledgerService Service) *HTTPHandler {
	return &HTTPHandler{
		auth:   authService,
		ledger: ledgerService,
	}
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/history", auth.RequireUser(h.auth))
	g.GET("/recent", h.handleRecent)
	g.GET("/hands/:hand_id", h.handleGetHand)
	g.POST("/hands/:hand_id/save", h.handleSetSaved(true))
	g.DELETE("/hands/:hand_id/save", h.handleSetSaved(false))
}

func (h *HTTPHandler) handleRecent(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	items, err := h.ledger.ListRecent(ctx, auth.CurrentUser(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query recent hands failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// handleGetHand returns the raw tape plus the decoded events.
func (h *HTTPHandler) handleGetHand(c *gin.Context) {
	handID := strings.TrimSpace(c.Param("hand_id"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	events, err := h.ledger.GetHandEvents(ctx, auth.CurrentUser(c), handID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "hand not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query hand events failed"})
		return
	}

	decoded := make([]gin.H, 0, len(events))
	for _, e := range events {
		name, data, err := DecodeEvent(e)
		if err != nil {
			continue
		}
		decoded = append(decoded, gin.H{"seq": e.Seq, "event": name, "data": data})
	}
	c.JSON(http.StatusOK, gin.H{
		"hand_id": handID,
		"events":  events,
		"decoded": decoded,
	})
}

func (h *HTTPHandler) handleSetSaved(saved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		handID := strings.TrimSpace(c.Param("hand_id"))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		err := h.ledger.SetSaved(ctx, auth.CurrentUser(c), handID, saved)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "hand not found"})
			case errors.Is(err, ErrSavedLimitReach):
				c.JSON(http.StatusConflict, gin.H{"error": "saved hand limit reached"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "update save state failed"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"hand_id":  handID,
			"is_saved": saved,
		})
	}
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 20
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}
