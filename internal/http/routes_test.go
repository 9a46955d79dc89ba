package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wizard_client/internal/logger"
	"wizard_client/internal/metrics"
	"wizard_client/internal/reconciler"
	"wizard_client/internal/session"
	"wizard_client/internal/transport/transporttest"
)

type testApp struct {
	router *gin.Engine
	dialer *transporttest.Dialer
	client *session.Client
	game   *reconciler.Reconciler
}

func newTestApp(t *testing.T, rateLimit int) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := &transporttest.Dialer{}
	client := session.New(d, session.WithLogger(logger.Nop()), session.WithJoinGrace(0), session.WithMetrics(m))
	game := reconciler.New(client, reconciler.WithLogger(logger.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
	})
	go func() { _ = game.Run(ctx, game.Inbox()) }()

	r := gin.New()
	RegisterRoutes(r, Deps{
		Base:       ctx,
		Game:       game,
		Session:    client,
		Metrics:    m,
		Gatherer:   reg,
		RateLimit:  rateLimit,
		RateWindow: time.Minute,
		Version:    "test",
		Log:        logger.Nop(),
	})
	return &testApp{router: r, dialer: d, client: client, game: game}
}

func (a *testApp) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t, 0)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "").Code)

	w := a.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "disconnected", checks["session"])
	assert.Equal(t, "memory", checks["rate_limiter"])

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", "").Code)
}

func TestReadinessReportsSessionError(t *testing.T) {
	a := newTestApp(t, 0)
	a.dialer.Err = errors.New("connection refused")
	require.Equal(t, http.StatusBadGateway, a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`).Code)

	w := a.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "failed", checks["session"])
	assert.Contains(t, checks["session_error"], "connection refused")
}

func TestJoinAndCommands(t *testing.T) {
	a := newTestApp(t, 0)

	w := a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "p1", decode(t, w)["playerId"])

	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/start", "").Code)
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/predict", `{"prediction":0}`).Code)
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/play", `{"card":"RED_7"}`).Code)
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/proceed", "").Code)
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/force-end", "").Code)
	assert.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/v1/return-to-lobby", "").Code)

	var dests []string
	for _, s := range a.dialer.Last().Sent() {
		dests = append(dests, s.Destination)
	}
	assert.Equal(t, []string{
		"/app/game/join", "/app/game/start", "/app/game/predict", "/app/game/play",
		"/app/game/proceedToNextRound", "/app/game/forceEnd", "/app/game/returnToLobby",
	}, dests)
	assert.True(t, a.game.View().HasSubmittedPrediction)
}

func TestJoinGeneratesPlayerID(t *testing.T) {
	a := newTestApp(t, 0)

	w := a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerName":"Elias"}`)
	require.Equal(t, http.StatusOK, w.Code)
	id, _ := decode(t, w)["playerId"].(string)
	assert.Len(t, id, 36)
	assert.Equal(t, id, a.game.View().PlayerID)
}

func TestBadRequests(t *testing.T) {
	a := newTestApp(t, 0)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/join", `{"playerName":"Elias"}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/join", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/predict", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/predict", `{"prediction":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/play", `{"card":"PURPLE"}`).Code)
}

func TestPlayBeforeJoinIsPrecondition(t *testing.T) {
	a := newTestApp(t, 0)

	w := a.do(http.MethodPost, "/api/v1/play", `{"card":"WIZARD"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, reconciler.MsgMissingIDs, decode(t, w)["activeError"])
	assert.Equal(t, 0, a.dialer.Attempts())
}

func TestCommandsBeforeJoinExplainWhy(t *testing.T) {
	a := newTestApp(t, 0)

	w := a.do(http.MethodPost, "/api/v1/predict", `{"prediction":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, reconciler.MsgPredictionIDs, decode(t, w)["activeError"])

	w = a.do(http.MethodPost, "/api/v1/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, reconciler.MsgMissingGameID, decode(t, w)["activeError"])
	assert.Equal(t, 0, a.dialer.Attempts())
}

func TestJoinConnectionFailure(t *testing.T) {
	a := newTestApp(t, 0)
	a.dialer.Err = errors.New("connection refused")

	w := a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, reconciler.MsgConnectionFailed, decode(t, w)["activeError"])
}

func TestStateReflectsPushes(t *testing.T) {
	a := newTestApp(t, 0)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`).Code)

	a.dialer.Last().Push("/topic/game/p1", `{"gameId":"g1","status":"PLAYING","players":[],"handCards":[{"color":"RED","value":"7","type":"NUMBER"}],"currentRound":1,"lastTrickWinnerId":"p1"}`)
	require.Eventually(t, func() bool { return a.game.HasGameStarted() }, time.Second, 5*time.Millisecond)

	state := decode(t, a.do(http.MethodGet, "/api/v1/state", ""))
	assert.Equal(t, true, state["hasGameStarted"])
	assert.Equal(t, float64(1), state["lastKnownRound"])
	snapshot := state["snapshot"].(map[string]any)
	assert.Equal(t, "PLAYING", snapshot["status"])

	snapshot = decode(t, a.do(http.MethodPost, "/api/v1/trick-winner/clear", ""))["snapshot"].(map[string]any)
	assert.Nil(t, snapshot["lastTrickWinnerId"])

	ended := decode(t, a.do(http.MethodPost, "/api/v1/end-early", ""))
	assert.Equal(t, "ENDED", ended["snapshot"].(map[string]any)["status"])
	assert.Equal(t, false, ended["hasGameStarted"])

	reset := decode(t, a.do(http.MethodPost, "/api/v1/reset", ""))
	assert.Nil(t, reset["snapshot"])
	assert.Equal(t, float64(reconciler.NoRound), reset["lastKnownRound"])
}

func TestToggleCheat(t *testing.T) {
	a := newTestApp(t, 0)

	w := a.do(http.MethodPost, "/api/v1/cheat/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["cheating"])
	assert.True(t, a.game.IsCheating("p1"))

	assert.Equal(t, false, decode(t, a.do(http.MethodPost, "/api/v1/cheat/p1", ""))["cheating"])
}

func TestCommandRateLimit(t *testing.T) {
	a := newTestApp(t, 2)

	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/cheat/p1", "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/cheat/p1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/api/v1/cheat/p1", "").Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/state", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, 0)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/join", `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`).Code)

	w := a.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wizard_commands_sent_total")
	assert.Contains(t, w.Body.String(), "wizard_connect_attempts_total")
}
