package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxAccountID = "accountID"
	ctxUsername  = "username"
)

type HTTPHandler struct {
	manager Service
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID       uint64 `json:"user_id"`
	Username     string `json:"username"`
	SessionToken string `json:"session_token"`
}

type meResponse struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
}

func NewHTTPHandler(manager Service) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/auth")
	g.POST("/register", h.handleRegister)
	g.POST("/login", h.handleLogin)
	g.POST("/logout", h.handleLogout)
	g.GET("/me", RequireUser(h.manager), h.handleMe)
}

func (h *HTTPHandler) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, sessionToken, err := h.manager.Register(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidPassword):
			writeError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUsernameTaken):
			writeError(c, http.StatusConflict, err.Error())
		default:
			writeError(c, http.StatusInternalServerError, "register failed")
		}
		return
	}

	c.JSON(http.StatusOK, authResponse{
		UserID:       userID,
		Username:     normalizeUsername(req.Username),
		SessionToken: sessionToken,
	})
}

func (h *HTTPHandler) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, sessionToken, err := h.manager.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, "invalid username or password")
			return
		}
		writeError(c, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, authResponse{
		UserID:       userID,
		Username:     normalizeUsername(req.Username),
		SessionToken: sessionToken,
	})
}

func (h *HTTPHandler) handleLogout(c *gin.Context) {
	token := BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeError(c, http.StatusUnauthorized, "missing session token")
		return
	}
	h.manager.Logout(token)
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, meResponse{
		UserID:   c.GetUint64(ctxAccountID),
		Username: c.GetString(ctxUsername),
	})
}

// RequireUser rejects requests without a valid bearer token and stores the
// resolved identity on the gin context.
func RequireUser(manager Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeError(c, http.StatusUnauthorized, "missing session token")
			c.Abort()
			return
		}
		accountID, username, ok := manager.ResolveSession(token)
		if !ok {
			writeError(c, http.StatusUnauthorized, "invalid session token")
			c.Abort()
			return
		}
		c.Set(ctxAccountID, accountID)
		c.Set(ctxUsername, username)
		c.Next()
	}
}

// CurrentUser returns the username stored by RequireUser.
func CurrentUser(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

func BearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
