// Package relay implements the websocket broadcast hub: it keeps the
// directory of connected identities and fans payment events out to peers.
// It holds no durable state; a peer offline at broadcast time never sees
// the event.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/model"
	"github.com/offpay/offpay/internal/protocol"
)

type inbound struct {
	c   *conn
	env protocol.Envelope
}

// Hub serializes the identity directory and all broadcasts on a single
// goroutine; connection readers only funnel messages in, so no locking is
// needed around business state.
type Hub struct {
	log *zap.Logger

	attach   chan *conn
	detach   chan *conn
	messages chan inbound
	done     chan struct{}

	conns     map[*conn]struct{}
	directory map[string]*conn // userId -> current connection, last write wins
}

// NewHub constructs an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:       log,
		attach:    make(chan *conn),
		detach:    make(chan *conn),
		messages:  make(chan inbound, 64),
		done:      make(chan struct{}),
		conns:     make(map[*conn]struct{}),
		directory: make(map[string]*conn),
	}
}

// Run processes hub events until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.conns {
				c.close()
			}
			return
		case c := <-h.attach:
			h.conns[c] = struct{}{}
			h.log.Info("connected", zap.String("conn", c.id))
		case c := <-h.detach:
			h.unregister(c)
		case m := <-h.messages:
			h.dispatch(m.c, m.env)
		}
	}
}

func (h *Hub) dispatch(c *conn, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventRegisterUser:
		h.handleRegister(c, env)
	case protocol.EventSendTransaction:
		h.handleSendTransaction(c, env)
	case protocol.EventCompleteQRPayment:
		h.handleCompleteQRPayment(c, env)
	case protocol.EventPing:
		c.send(protocol.Envelope{Event: protocol.EventPong})
	default:
		h.log.Warn("unknown event", zap.String("event", env.Event), zap.String("conn", c.id))
	}
}

// handleRegister inserts or overwrites the directory entry for the user.
// Concurrent registrations under one userId are not serialized beyond
// last-message-wins; the previous connection, if any, is closed so a
// single socket holds the identity.
func (h *Hub) handleRegister(c *conn, env protocol.Envelope) {
	var reg protocol.RegisterUser
	if err := env.Decode(&reg); err != nil || reg.UserID == "" {
		h.log.Warn("bad registration", zap.String("conn", c.id), zap.Error(err))
		return
	}
	if prev, ok := h.directory[reg.UserID]; ok && prev != c {
		h.log.Info("superseding registration",
			zap.String("user", reg.UserID), zap.String("prev", prev.id))
		prev.identity = model.Identity{}
		prev.close()
	}
	c.identity = model.Identity{UserID: reg.UserID, DisplayName: reg.Username, ConnectionID: c.id}
	h.directory[reg.UserID] = c

	h.log.Info("registered", zap.String("user", reg.UserID), zap.String("conn", c.id))
	h.reply(c, protocol.EventRegistrationConfirmed, protocol.RegistrationConfirmed{
		Message:        "Successfully connected to payment network",
		ConnectedUsers: len(h.directory),
	})
}

// handleSendTransaction stamps the payment and broadcasts it to every
// other connection, then acknowledges the origin separately.
func (h *Hub) handleSendTransaction(c *conn, env protocol.Envelope) {
	var tx protocol.SendTransaction
	if err := env.Decode(&tx); err != nil {
		h.log.Warn("bad transaction", zap.String("conn", c.id), zap.Error(err))
		return
	}
	now := time.Now().UnixMilli()

	h.broadcast(c, protocol.EventReceiveTransaction, protocol.TransactionEvent{
		Amount:    tx.Amount,
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Timestamp: now,
		Status:    protocol.FeedStatusCompleted,
	})
	h.reply(c, protocol.EventTransactionSent, protocol.TransactionEvent{
		Amount:    tx.Amount,
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Timestamp: now,
		Status:    protocol.FeedStatusSent,
	})
	h.log.Info("transaction broadcast",
		zap.Float64("amount", tx.Amount),
		zap.String("sender", tx.Sender),
		zap.String("recipient", tx.Recipient),
	)
}

// handleCompleteQRPayment stamps the completion and broadcasts it to all
// connections, the origin included.
func (h *Hub) handleCompleteQRPayment(c *conn, env protocol.Envelope) {
	var p protocol.CompleteQRPayment
	if err := env.Decode(&p); err != nil {
		h.log.Warn("bad payment completion", zap.String("conn", c.id), zap.Error(err))
		return
	}
	h.broadcast(nil, protocol.EventPaymentCompleted, protocol.PaymentCompleted{
		CompleteQRPayment: p,
		Timestamp:         time.Now().UnixMilli(),
		Status:            protocol.FeedStatusVerified,
	})
	h.log.Info("qr payment completed", zap.String("transaction", p.TransactionID))
}

// broadcast fans data out to every connection except skip (nil skip means
// everyone). Delivery is best-effort at-most-once per peer: a connection
// that disconnected mid-enumeration or cannot keep up is dropped silently.
func (h *Hub) broadcast(skip *conn, event string, data any) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	for c := range h.conns {
		if c == skip {
			continue
		}
		c.send(env)
	}
}

func (h *Hub) reply(c *conn, event string, data any) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		h.log.Error("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	c.send(env)
}

// unregister removes the connection and sweeps the directory entry that
// points at it. O(1) here since the conn remembers its identity, but a
// directory scan guards against a stale mapping.
func (h *Hub) unregister(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	for userID, cc := range h.directory {
		if cc == c {
			delete(h.directory, userID)
		}
	}
	c.close()
	h.log.Info("disconnected", zap.String("conn", c.id), zap.String("user", c.identity.UserID))
}
