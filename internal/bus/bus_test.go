package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offpay/offpay/internal/model"
)

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	defer b.Close()

	ch1, unsub1 := b.Subscribe(TopicPaymentSent)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(TopicPaymentSent)
	defer unsub2()
	other, unsub3 := b.Subscribe(TopicPaymentReceived)
	defer unsub3()

	b.Publish(Event{Topic: TopicPaymentSent, Transaction: model.Transaction{ID: "tx1"}})

	assert.Equal(t, "tx1", (<-ch1).Transaction.ID)
	assert.Equal(t, "tx1", (<-ch2).Transaction.ID)
	assert.Empty(t, other)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(TopicTransactionAdded)
	unsub()

	b.Publish(Event{Topic: TopicTransactionAdded, Transaction: model.Transaction{ID: "tx1"}})
	assert.Empty(t, ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(TopicTransactionAdded)
	defer unsub()

	// overflow the buffer; extra events are dropped, Publish never blocks
	for i := 0; i < subBuffer+10; i++ {
		b.Publish(Event{Topic: TopicTransactionAdded})
	}
	assert.Len(t, ch, subBuffer)
}

func TestClose(t *testing.T) {
	t.Parallel()
	b := New()

	ch, _ := b.Subscribe(TopicPaymentSent)
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// all no-ops after close
	b.Publish(Event{Topic: TopicPaymentSent})
	b.Close()
	ch2, unsub := b.Subscribe(TopicPaymentSent)
	unsub()
	_, open = <-ch2
	require.False(t, open)
}
