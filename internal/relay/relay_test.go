package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offpay/offpay/internal/protocol"
)

const readWait = 3 * time.Second

func startRelay(t *testing.T, allowedOrigins []string) (*httptest.Server, string) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(hub, allowedOrigins, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readEvent reads envelopes until one matches event.
func readEvent(t *testing.T, ws *websocket.Conn, event string) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(readWait)))
	for {
		var env protocol.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func register(t *testing.T, ws *websocket.Conn, userID string) protocol.RegistrationConfirmed {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.EventRegisterUser, protocol.RegisterUser{UserID: userID, Username: userID})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	var conf protocol.RegistrationConfirmed
	require.NoError(t, readEvent(t, ws, protocol.EventRegistrationConfirmed).Decode(&conf))
	return conf
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var env protocol.Envelope
	err := ws.ReadJSON(&env)
	require.Error(t, err, "unexpected event %q", env.Event)
}

func TestRegistrationConfirmsDirectorySize(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)

	assert.Equal(t, 1, register(t, a, "alice").ConnectedUsers)
	assert.Equal(t, 2, register(t, b, "bob").ConnectedUsers)

	conf := register(t, c, "carol")
	assert.Equal(t, 3, conf.ConnectedUsers)
	assert.NotEmpty(t, conf.Message)
}

func TestSendTransactionFanOut(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)
	register(t, a, "alice")
	register(t, b, "bob")
	register(t, c, "carol")

	env, err := protocol.NewEnvelope(protocol.EventSendTransaction,
		protocol.SendTransaction{Amount: 25, Sender: "alice", Recipient: "bob"})
	require.NoError(t, err)
	require.NoError(t, a.WriteJSON(env))

	// every other peer gets the broadcast
	for _, peer := range []*websocket.Conn{b, c} {
		var ev protocol.TransactionEvent
		require.NoError(t, readEvent(t, peer, protocol.EventReceiveTransaction).Decode(&ev))
		assert.Equal(t, 25.0, ev.Amount)
		assert.Equal(t, "alice", ev.Sender)
		assert.Equal(t, protocol.FeedStatusCompleted, ev.Status)
		assert.NotZero(t, ev.Timestamp)
	}

	// the origin gets the echo only, never its own broadcast
	var echo protocol.TransactionEvent
	require.NoError(t, readEvent(t, a, protocol.EventTransactionSent).Decode(&echo))
	assert.Equal(t, protocol.FeedStatusSent, echo.Status)
	expectSilence(t, a)
}

func TestCompleteQRPaymentReachesEveryone(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)
	register(t, a, "alice")
	register(t, b, "bob")
	register(t, c, "carol")

	env, err := protocol.NewEnvelope(protocol.EventCompleteQRPayment,
		protocol.CompleteQRPayment{TransactionID: "qr_1", Amount: 10, Sender: "alice", Recipient: "bob"})
	require.NoError(t, err)
	require.NoError(t, a.WriteJSON(env))

	// the origin is included in this broadcast
	for _, peer := range []*websocket.Conn{a, b, c} {
		var done protocol.PaymentCompleted
		require.NoError(t, readEvent(t, peer, protocol.EventPaymentCompleted).Decode(&done))
		assert.Equal(t, "qr_1", done.TransactionID)
		assert.Equal(t, protocol.FeedStatusVerified, done.Status)
		assert.NotZero(t, done.Timestamp)
	}
}

func TestDisconnectedPeerDoesNotBreakBroadcast(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	a := dial(t, url)
	b := dial(t, url)
	register(t, a, "alice")
	register(t, b, "bob")
	require.NoError(t, b.Close())

	for i := 0; i < 2; i++ {
		env, err := protocol.NewEnvelope(protocol.EventSendTransaction,
			protocol.SendTransaction{Amount: 5, Sender: "alice", Recipient: "bob"})
		require.NoError(t, err)
		require.NoError(t, a.WriteJSON(env))

		var echo protocol.TransactionEvent
		require.NoError(t, readEvent(t, a, protocol.EventTransactionSent).Decode(&echo))
	}
}

func TestLastRegistrationWins(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	first := dial(t, url)
	second := dial(t, url)
	register(t, first, "alice")
	register(t, second, "alice")

	// the superseded socket is closed by the relay
	require.NoError(t, first.SetReadDeadline(time.Now().Add(readWait)))
	var env protocol.Envelope
	require.Error(t, first.ReadJSON(&env))

	// the directory holds one entry for alice
	third := dial(t, url)
	assert.Equal(t, 2, register(t, third, "bob").ConnectedUsers)
}

func TestPingPong(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, nil)

	ws := dial(t, url)
	require.NoError(t, ws.WriteJSON(protocol.Envelope{Event: protocol.EventPing}))
	readEvent(t, ws, protocol.EventPong)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _ := startRelay(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOriginRestriction(t *testing.T) {
	t.Parallel()
	_, url := startRelay(t, []string{"http://trusted.example"})

	h := http.Header{}
	h.Set("Origin", "http://evil.example")
	_, _, err := websocket.DefaultDialer.Dial(url, h)
	require.Error(t, err)

	h.Set("Origin", "http://trusted.example")
	ws, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	_ = ws.Close()
}
