package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/model"
	"github.com/offpay/offpay/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	outboundBuffer = 32
)

// conn is one websocket connection attached to the hub. The identity
// field is touched only on the hub goroutine.
type conn struct {
	id       string
	ws       *websocket.Conn
	hub      *Hub
	log      *zap.Logger
	identity model.Identity

	out       chan protocol.Envelope
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id string, ws *websocket.Conn, hub *Hub, log *zap.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		hub:    hub,
		log:    log,
		out:    make(chan protocol.Envelope, outboundBuffer),
		closed: make(chan struct{}),
	}
}

// send queues an envelope for delivery, preserving per-connection order.
// A peer whose queue is full cannot be allowed to stall the hub, so it is
// dropped instead.
func (c *conn) send(env protocol.Envelope) {
	select {
	case <-c.closed:
	case c.out <- env:
	default:
		c.log.Warn("slow consumer, dropping connection", zap.String("conn", c.id))
		c.close()
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// readPump funnels inbound envelopes to the hub until the socket errors
// or closes, then detaches.
func (c *conn) readPump() {
	defer func() {
		select {
		case c.hub.detach <- c:
		case <-c.hub.done:
		}
	}()
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		select {
		case c.hub.messages <- inbound{c: c, env: env}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the outbound queue onto the socket in order.
func (c *conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case env := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.close()
				return
			}
		}
	}
}
