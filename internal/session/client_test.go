package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wizard_client/internal/domain"
	"wizard_client/internal/logger"
	"wizard_client/internal/metrics"
	"wizard_client/internal/transport/transporttest"
)

const playingJSON = `{"gameId":"g1","status":"PLAYING","players":[],"handCards":[],"currentRound":1}`

func newTestClient(d *transporttest.Dialer, opts ...Option) *Client {
	base := []Option{WithLogger(logger.Nop()), WithAddress("ws://test/ws"), WithJoinGrace(0)}
	return New(d, append(base, opts...)...)
}

func connected(t *testing.T, opts ...Option) (*Client, *transporttest.Conn) {
	t.Helper()
	d := &transporttest.Dialer{}
	c := newTestClient(d, opts...)
	require.True(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, d.Last()
}

func nextDest(t *testing.T, conn *transporttest.Conn) string {
	t.Helper()
	select {
	case d := <-conn.Subscribed():
		return d
	case <-time.After(time.Second):
		t.Fatalf("no subscription")
	}
	return ""
}

func TestConnectSuccess(t *testing.T) {
	m := metrics.New(nil)
	d := &transporttest.Dialer{}
	c := newTestClient(d, WithMetrics(m))

	assert.Equal(t, Disconnected, c.State())
	require.True(t, c.Connect(context.Background()))
	assert.Equal(t, Connected, c.State())
	assert.NoError(t, c.LastError())
	assert.Equal(t, []string{"ws://test/ws"}, d.Addresses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("ok")))
}

func TestConnectFailure(t *testing.T) {
	m := metrics.New(nil)
	d := &transporttest.Dialer{Err: errors.New("connection refused")}
	c := newTestClient(d, WithMetrics(m))

	assert.False(t, c.Connect(context.Background()))
	assert.Equal(t, Failed, c.State())
	require.Error(t, c.LastError())
	assert.ErrorIs(t, c.LastError(), domain.ErrConnectionFailure)
	assert.Contains(t, c.LastError().Error(), "connection refused")
	assert.Equal(t, 1, d.Attempts(), "no automatic retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("error")))
}

func TestReconnectReplacesConnection(t *testing.T) {
	d := &transporttest.Dialer{}
	c := newTestClient(d)
	ctx := context.Background()

	require.True(t, c.Connect(ctx))
	first := d.Last()
	sub, err := c.SubscribeErrors(ctx, "p1", func(string) {})
	require.NoError(t, err)

	require.True(t, c.Connect(ctx))
	second := d.Last()

	assert.NotSame(t, first, second)
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	waitDone(t, sub)
	assert.Equal(t, Connected, c.State())
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	d := &transporttest.Dialer{}
	c := newTestClient(d)
	ctx := context.Background()

	assert.NoError(t, c.SendJoin(ctx, "g1", "p1", "Elias"))
	assert.NoError(t, c.SendPrediction(ctx, "g1", "p1", 2))
	assert.NoError(t, c.SendPlayCard(ctx, "g1", "p1", "RED_7", false))
	assert.NoError(t, c.SendStartGame(ctx, "g1"))
	assert.NoError(t, c.SendProceedToNextRound(ctx, "g1"))
	assert.NoError(t, c.SendForceEndGame(ctx, "g1"))
	assert.NoError(t, c.SendReturnToLobby(ctx, "g1"))

	assert.Equal(t, 0, d.Attempts())
	assert.Equal(t, Disconnected, c.State())
}

func TestSendPlayCardWithoutPlayerID(t *testing.T) {
	c, conn := connected(t)

	err := c.SendPlayCard(context.Background(), "g1", "", "RED_7", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	assert.Empty(t, conn.Sent())
	assert.Equal(t, Connected, c.State())
}

func TestSendNegativePredictionIsInvalid(t *testing.T) {
	c, conn := connected(t)

	err := c.SendPrediction(context.Background(), "g1", "p1", -1)
	require.ErrorIs(t, err, domain.ErrInvalidCommand)
	assert.NotErrorIs(t, err, domain.ErrPreconditionNotMet)
	assert.Empty(t, conn.Sent())
	assert.Equal(t, Connected, c.State())
}

func TestSendWithoutIDsWhileDisconnected(t *testing.T) {
	d := &transporttest.Dialer{}
	c := newTestClient(d)

	err := c.SendStartGame(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrPreconditionNotMet)
}

func TestSendCommands(t *testing.T) {
	c, conn := connected(t)
	ctx := context.Background()

	require.NoError(t, c.SendJoin(ctx, "g1", "p1", "Elias"))
	require.NoError(t, c.SendPrediction(ctx, "g1", "p1", 0))
	require.NoError(t, c.SendPlayCard(ctx, "g1", "p1", "WIZARD", true))
	require.NoError(t, c.SendPlayCard(ctx, "g1", "p1", "RED_7", false))
	require.NoError(t, c.SendStartGame(ctx, "g1"))
	require.NoError(t, c.SendProceedToNextRound(ctx, "g1"))
	require.NoError(t, c.SendForceEndGame(ctx, "g1"))
	require.NoError(t, c.SendReturnToLobby(ctx, "g1"))

	want := []transporttest.Sent{
		{Destination: "/app/game/join", Body: `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`},
		{Destination: "/app/game/predict", Body: `{"gameId":"g1","playerId":"p1","prediction":0}`},
		{Destination: "/app/game/play", Body: `{"gameId":"g1","playerId":"p1","card":"WIZARD","cheating":true}`},
		{Destination: "/app/game/play", Body: `{"gameId":"g1","playerId":"p1","card":"RED_7"}`},
		{Destination: "/app/game/start", Body: `"g1"`},
		{Destination: "/app/game/proceedToNextRound", Body: `"g1"`},
		{Destination: "/app/game/forceEnd", Body: `"g1"`},
		{Destination: "/app/game/returnToLobby", Body: `"g1"`},
	}
	assert.Equal(t, want, conn.Sent())
}

func TestSendFailureIsReportedOnce(t *testing.T) {
	m := metrics.New(nil)
	c, conn := connected(t, WithMetrics(m))
	conn.SendErr = errors.New("broken pipe")
	ctx := context.Background()

	err := c.SendStartGame(ctx, "g1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCommandRejected)
	assert.Equal(t, Failed, c.State())
	assert.ErrorIs(t, c.LastError(), domain.ErrConnectionFailure)

	assert.NoError(t, c.SendStartGame(ctx, "g1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("/app/game/start", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("/app/game/start", "dropped")))
}

func TestConnectionLostMovesToFailed(t *testing.T) {
	c, conn := connected(t)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return c.State() == Failed }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.LastError(), domain.ErrConnectionFailure)
	assert.NoError(t, c.SendStartGame(context.Background(), "g1"))
}

func TestCloseIsIdempotent(t *testing.T) {
	c, conn := connected(t)
	ctx := context.Background()

	s1, err := c.SubscribeGameUpdates(ctx, "p1", func(domain.GameSnapshot) {})
	require.NoError(t, err)
	s2, err := c.SubscribeScoreboard(ctx, "g1", func([]domain.ScoreboardEntry) {})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	waitDone(t, s1)
	waitDone(t, s2)
	s1.Cancel()
	assert.True(t, conn.Closed())
	assert.Equal(t, Disconnected, c.State())
}

func TestJoinGracePeriodDefault(t *testing.T) {
	c := New(&transporttest.Dialer{}, WithLogger(logger.Nop()))
	assert.Equal(t, DefaultJoinGracePeriod, c.JoinGracePeriod())
	assert.Equal(t, 100*time.Millisecond, c.JoinGracePeriod())
}

func TestConnectAndJoinOrder(t *testing.T) {
	d := &transporttest.Dialer{}
	c := newTestClient(d, WithJoinGrace(10*time.Millisecond))
	defer c.Close()

	err := c.ConnectAndJoin(context.Background(), "g1", "p1", "Elias", Handlers{
		OnUpdate:     func(domain.GameSnapshot) {},
		OnScoreboard: func([]domain.ScoreboardEntry) {},
		OnError:      func(string) {},
	})
	require.NoError(t, err)

	conn := d.Last()
	assert.Equal(t, "/topic/game/p1", nextDest(t, conn))
	assert.Equal(t, "/topic/errors/p1", nextDest(t, conn))
	assert.Equal(t, "/topic/game/g1/scoreboard", nextDest(t, conn))
	assert.Equal(t, []transporttest.Sent{
		{Destination: "/app/game/join", Body: `{"gameId":"g1","playerId":"p1","playerName":"Elias"}`},
	}, conn.Sent())
}

func TestConnectAndJoinConnectFailure(t *testing.T) {
	d := &transporttest.Dialer{Err: errors.New("dial tcp: refused")}
	c := newTestClient(d)

	err := c.ConnectAndJoin(context.Background(), "g1", "p1", "Elias", Handlers{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectionFailure)
}

func TestConnectAndJoinCancelledDuringGrace(t *testing.T) {
	d := &transporttest.Dialer{}
	c := newTestClient(d, WithJoinGrace(time.Hour))
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.ConnectAndJoin(ctx, "g1", "p1", "Elias", Handlers{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.Last().Sent())
}
