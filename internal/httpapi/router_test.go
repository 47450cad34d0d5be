package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"holdem-rooms/internal/auth"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/ledger"
	"holdem-rooms/internal/lobby"
	"holdem-rooms/internal/presence"
	"holdem-rooms/internal/session"
)

type fixture struct {
	router *gin.Engine
	lobby  *lobby.Lobby
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authManager := auth.NewManager("router-test-secret")
	bank := bankroll.NewMemoryService(5000)
	led := ledger.NewMemoryService()
	lby := lobby.New(fanout.NewHub(), presence.New(), bank, led, session.Options{}, 6)
	t.Cleanup(lby.Shutdown)

	_, token, err := authManager.Register("ann", "password1")
	require.NoError(t, err)

	return &fixture{
		router: NewRouter(Deps{Auth: authManager, Bankroll: bank, Ledger: led, Lobby: lby}),
		lobby:  lby,
		token:  token,
	}
}

func (f *fixture) get(t *testing.T, path string, authed bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.get(t, "/health", false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestGamesAndHost(t *testing.T) {
	f := newFixture(t)
	sum, err := f.lobby.Create(context.Background(), "ann", session.Config{Name: "t", SmallBlind: 5, BigBlind: 10, BuyIn: 500})
	require.NoError(t, err)

	rec, body := f.get(t, "/api/games", false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["games"], 1)

	rec, body = f.get(t, "/api/game/host?game_id="+sum.ID, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ann", body["host"])

	rec, _ = f.get(t, "/api/game/host?game_id=missing", false)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.get(t, "/api/game/host", false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateAndBankrollNeedToken(t *testing.T) {
	f := newFixture(t)
	sum, err := f.lobby.Create(context.Background(), "ann", session.Config{Name: "t", SmallBlind: 5, BigBlind: 10, BuyIn: 500})
	require.NoError(t, err)

	rec, _ := f.get(t, "/api/game/state?game_id="+sum.ID, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := f.get(t, "/api/game/state?game_id="+sum.ID, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "waiting_to_start", body["phase"])
	require.Equal(t, float64(500), body["my_chips"])

	rec, body = f.get(t, "/api/bankroll/me", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(4500), body["chips"])
}
