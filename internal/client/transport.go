// Package client maintains the wallet's duplex connection to the relay:
// it registers the identity on connect, exposes the two outbound calls,
// and surfaces inbound broadcasts as a growing transaction feed.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/protocol"
)

// FeedEntry is one line of the live transaction feed. The feed is a
// connection-lifetime cache with client-generated ids; durable history
// lives in the transaction store, not here.
type FeedEntry struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status"`
	Type      string  `json:"type"` // "send" | "receive"
}

// Handler observes inbound relay events after the transport has updated
// its own state. It runs on the read loop; keep it quick.
type Handler func(env protocol.Envelope)

// Transport owns one websocket to the relay for one identity.
type Transport struct {
	url      string
	identity protocol.RegisterUser
	handler  Handler
	log      *zap.Logger

	mu         sync.Mutex
	ws         *websocket.Conn
	connected  bool
	registered bool
	peers      int
	feed       []FeedEntry
	closed     chan struct{}
}

// New constructs a transport for identity against the relay at url
// (ws://host:port/ws). handler may be nil.
func New(url string, identity protocol.RegisterUser, handler Handler, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{url: url, identity: identity, handler: handler, log: log}
}

// Connect dials the relay and registers the identity immediately. The
// registration confirmation arrives asynchronously and flips the
// transport into the registered state.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	env, err := protocol.NewEnvelope(protocol.EventRegisterUser, t.identity)
	if err != nil {
		_ = ws.Close()
		return err
	}
	if err := ws.WriteJSON(env); err != nil {
		_ = ws.Close()
		return fmt.Errorf("register: %w", err)
	}

	t.ws = ws
	t.connected = true
	t.closed = make(chan struct{})
	go t.readLoop(ws, t.closed)
	t.log.Info("connected to relay", zap.String("url", t.url), zap.String("user", t.identity.UserID))
	return nil
}

// Close tears the connection down. Safe to call when not connected.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	t.registered = false
	return t.ws.Close()
}

// Connected reports whether the registration has been confirmed and the
// socket is up. Outbound calls fail fast until then.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.registered
}

// Peers returns the connected-user count from the latest confirmation.
func (t *Transport) Peers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers
}

// Feed returns a copy of the live feed, newest first.
func (t *Transport) Feed() []FeedEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FeedEntry, len(t.feed))
	copy(out, t.feed)
	return out
}

// SendTransaction emits a payment to the relay. It fails fast with
// errs.ErrNotConnected when the transport is down; the optimistic feed
// entry comes from the inbound transaction_sent echo, not from here.
func (t *Transport) SendTransaction(amount float64, sender, recipient string) error {
	if amount <= 0 {
		return fmt.Errorf("validation: non-positive amount %v", amount)
	}
	return t.emit(protocol.EventSendTransaction, protocol.SendTransaction{
		Amount:    amount,
		Sender:    sender,
		Recipient: recipient,
	})
}

// CompleteQRPayment reports a scanned payment for global fan-out.
func (t *Transport) CompleteQRPayment(p protocol.CompleteQRPayment) error {
	return t.emit(protocol.EventCompleteQRPayment, p)
}

// Ping probes relay liveness.
func (t *Transport) Ping() error {
	return t.emit(protocol.EventPing, nil)
}

func (t *Transport) emit(event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || !t.registered {
		return errs.ErrNotConnected
	}
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	if err := t.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// readLoop applies inbound events to the transport state and forwards
// them to the handler. On any read error the state flips to disconnected;
// events broadcast while down are lost to this component by design.
func (t *Transport) readLoop(ws *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	for {
		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			t.mu.Lock()
			if t.ws == ws {
				t.connected = false
				t.registered = false
			}
			t.mu.Unlock()
			t.log.Info("relay connection closed", zap.Error(err))
			return
		}
		t.apply(env)
		if t.handler != nil {
			t.handler(env)
		}
	}
}

func (t *Transport) apply(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventRegistrationConfirmed:
		var rc protocol.RegistrationConfirmed
		if err := env.Decode(&rc); err != nil {
			t.log.Warn("bad confirmation", zap.Error(err))
			return
		}
		t.mu.Lock()
		t.registered = true
		t.peers = rc.ConnectedUsers
		t.mu.Unlock()
		t.log.Info("registration confirmed", zap.Int("connectedUsers", rc.ConnectedUsers))
	case protocol.EventReceiveTransaction:
		t.appendFeed(env, "recv", "receive", protocol.FeedStatusReceived)
	case protocol.EventTransactionSent:
		t.appendFeed(env, "sent", "send", protocol.FeedStatusSent)
	case protocol.EventPaymentCompleted, protocol.EventPong:
		// handler-only events
	default:
		t.log.Debug("unhandled event", zap.String("event", env.Event))
	}
}

// appendFeed synthesizes a feed entry with a client-generated id; the
// relay's payload carries no id of its own.
func (t *Transport) appendFeed(env protocol.Envelope, idPrefix, typ, status string) {
	var ev protocol.TransactionEvent
	if err := env.Decode(&ev); err != nil {
		t.log.Warn("bad feed event", zap.String("event", env.Event), zap.Error(err))
		return
	}
	entry := FeedEntry{
		ID:        fmt.Sprintf("%s_%d_%s", idPrefix, time.Now().UnixMilli(), uuid.Must(uuid.NewV4()).String()[:8]),
		Amount:    ev.Amount,
		Sender:    ev.Sender,
		Recipient: ev.Recipient,
		Timestamp: ev.Timestamp,
		Status:    status,
		Type:      typ,
	}
	t.mu.Lock()
	t.feed = append([]FeedEntry{entry}, t.feed...)
	t.mu.Unlock()
}
