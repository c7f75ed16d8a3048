// Package bus is the single in-process pub/sub channel for payment
// notifications. It replaces the original app's five parallel fan-out
// mechanisms with one explicit, constructor-injected delivery contract.
package bus

import (
	"sync"

	"github.com/offpay/offpay/internal/model"
)

// Topics.
const (
	TopicTransactionAdded = "transaction_added"
	TopicPaymentSent      = "payment_sent"
	TopicPaymentReceived  = "payment_received"
)

// Event is one published payment notification.
type Event struct {
	Topic       string
	Transaction model.Transaction
	Direction   model.Direction
}

const subBuffer = 64

// Bus fans events out to per-topic subscribers. Delivery is per-process:
// every live subscriber of a topic sees every publish, unless its buffer
// is full, in which case the event is dropped for that subscriber only.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
	closed bool
}

// New constructs an empty bus. Close it when the process shuts down.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers for a topic and returns the delivery channel plus an
// unsubscribe func. The channel is closed by Close, not by unsubscribing.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers ev to every subscriber of ev.Topic.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[ev.Topic] {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than block the publisher
		}
	}
}

// Close tears the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = make(map[string]map[int]chan Event)
}
