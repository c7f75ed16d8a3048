package wallet

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offpay/offpay/internal/bus"
	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/gate"
	"github.com/offpay/offpay/internal/ledger"
	"github.com/offpay/offpay/internal/model"
	"github.com/offpay/offpay/internal/protocol"
	"github.com/offpay/offpay/internal/store"
)

type fakeRelay struct {
	mu        sync.Mutex
	connected bool
	completed []protocol.CompleteQRPayment
}

func (f *fakeRelay) Connected() bool { return f.connected }

func (f *fakeRelay) CompleteQRPayment(p protocol.CompleteQRPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, p)
	return nil
}

type fixture struct {
	wallet *Wallet
	ledger *ledger.Ledger
	store  *store.Store
	relay  *fakeRelay
	bus    *bus.Bus
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()
	dir := t.TempDir()
	b := bus.New()
	t.Cleanup(b.Close)
	l := ledger.New(dir, nil)
	st := store.New(dir, userID, "test passphrase", b, nil)
	fr := &fakeRelay{connected: true}
	return &fixture{
		wallet: New(userID, l, st, gate.NewStaticGate("2239"), fr, b, nil),
		ledger: l,
		store:  st,
		relay:  fr,
		bus:    b,
	}
}

// scannedRequest renders the QR payload bob's wallet would show to alice.
func scannedRequest(t *testing.T, payer string, amount float64, desc string) ([]byte, string) {
	t.Helper()
	payee := newFixture(t, "bob")
	pr, err := payee.wallet.NewPaymentRequest(amount, payer, desc)
	require.NoError(t, err)
	raw, err := json.Marshal(pr)
	require.NoError(t, err)
	return raw, pr.Transaction.ID
}

func (f *fixture) balance(t *testing.T, userID string) float64 {
	t.Helper()
	uc, err := f.ledger.Credit(userID)
	require.NoError(t, err)
	return uc.Balance
}

func TestNewPaymentRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "bob")

	pr, err := f.wallet.NewPaymentRequest(25, "alice", "Coffee")
	require.NoError(t, err)
	assert.Equal(t, protocol.PaymentRequestType, pr.Type)
	assert.Equal(t, "alice", pr.Transaction.Sender)
	assert.Equal(t, "bob", pr.Transaction.Recipient)
	assert.Equal(t, "Coffee", pr.Transaction.Description)
	assert.NotEmpty(t, pr.Transaction.Signature)
	assert.NotEmpty(t, pr.PublicKey)

	// the payload parses and verifies end to end
	raw, err := json.Marshal(pr)
	require.NoError(t, err)
	_, err = protocol.ParsePaymentRequest(raw)
	require.NoError(t, err)

	_, err = f.wallet.NewPaymentRequest(0, "alice", "")
	require.Error(t, err)
	_, err = f.wallet.NewPaymentRequest(25, "", "")
	require.Error(t, err)
}

func TestProcessScannedPayment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	raw, txID := scannedRequest(t, "alice", 25, "Coffee")

	sentCh, unsub := f.bus.Subscribe(bus.TopicPaymentSent)
	defer unsub()

	tx, err := f.wallet.ProcessScannedPayment(context.Background(), raw, "2239")
	require.NoError(t, err)
	assert.Equal(t, txID, tx.ID)

	// debited from the initial 100
	assert.Equal(t, 75.0, f.balance(t, "alice"))

	// durably recorded from the payer's perspective
	all := f.store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, model.DirectionSent, all[0].Direction)
	assert.Equal(t, model.StatusVerified, all[0].Status)
	assert.Equal(t, "Sent: Coffee", all[0].Description)

	// completion reported to the relay
	require.Len(t, f.relay.completed, 1)
	assert.Equal(t, txID, f.relay.completed[0].TransactionID)

	ev := <-sentCh
	assert.Equal(t, txID, ev.Transaction.ID)
}

func TestProcessScannedPayment_OfflineStillSettles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	f.relay.connected = false
	raw, _ := scannedRequest(t, "alice", 25, "")

	_, err := f.wallet.ProcessScannedPayment(context.Background(), raw, "2239")
	require.NoError(t, err)
	assert.Equal(t, 75.0, f.balance(t, "alice"))
	assert.Empty(t, f.relay.completed)
}

func TestProcessScannedPayment_WrongCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	raw, _ := scannedRequest(t, "alice", 25, "")

	_, err := f.wallet.ProcessScannedPayment(context.Background(), raw, "0000")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// nothing happened
	assert.Equal(t, 100.0, f.balance(t, "alice"))
	assert.Empty(t, f.store.GetAll())
}

func TestProcessScannedPayment_TamperedAmount(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	raw, _ := scannedRequest(t, "alice", 25, "")

	var pr protocol.PaymentRequest
	require.NoError(t, json.Unmarshal(raw, &pr))
	pr.Transaction.Amount = 1
	tampered, err := json.Marshal(pr)
	require.NoError(t, err)

	_, err = f.wallet.ProcessScannedPayment(context.Background(), tampered, "2239")
	require.ErrorIs(t, err, errs.ErrBadSignature)
	assert.Equal(t, 100.0, f.balance(t, "alice"))
}

func TestProcessScannedPayment_InvalidPayload(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")

	_, err := f.wallet.ProcessScannedPayment(context.Background(), []byte("not json"), "2239")
	require.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestProcessScannedPayment_DuplicateScan(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	raw, _ := scannedRequest(t, "alice", 25, "")

	_, err := f.wallet.ProcessScannedPayment(context.Background(), raw, "2239")
	require.NoError(t, err)
	_, err = f.wallet.ProcessScannedPayment(context.Background(), raw, "2239")
	require.ErrorIs(t, err, errs.ErrAlreadyApplied)

	// scanned once, paid once
	assert.Equal(t, 75.0, f.balance(t, "alice"))
	require.Len(t, f.store.GetAll(), 1)
}

func TestTopUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")

	tx, err := f.wallet.TopUp(50, "gift card")
	require.NoError(t, err)
	assert.Equal(t, ledger.GatewaySender, tx.Sender)
	assert.Equal(t, 150.0, f.balance(t, "alice"))

	uc, err := f.ledger.Credit("alice")
	require.NoError(t, err)
	require.Len(t, uc.History, 1)
	assert.Equal(t, model.EntryCredit, uc.History[0].Type)
	assert.Equal(t, tx.ID, uc.History[0].TransactionID)

	got, err := f.store.GetByID(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Amount)

	_, err = f.wallet.TopUp(-1, "")
	require.Error(t, err)
}

func TestHandleRelayEvent_ReceiveTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")

	recvCh, unsub := f.bus.Subscribe(bus.TopicPaymentReceived)
	defer unsub()

	env, err := protocol.NewEnvelope(protocol.EventReceiveTransaction, protocol.TransactionEvent{
		Amount: 40, Sender: "bob", Recipient: "alice", Timestamp: 1700000000000,
		Status: protocol.FeedStatusCompleted,
	})
	require.NoError(t, err)
	f.wallet.HandleRelayEvent(env)

	assert.Equal(t, 140.0, f.balance(t, "alice"))
	all := f.store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, model.DirectionReceived, all[0].Direction)

	ev := <-recvCh
	assert.Equal(t, 40.0, ev.Transaction.Amount)
}

func TestHandleRelayEvent_ForeignTransactionIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")

	env, err := protocol.NewEnvelope(protocol.EventReceiveTransaction, protocol.TransactionEvent{
		Amount: 40, Sender: "bob", Recipient: "carol",
	})
	require.NoError(t, err)
	f.wallet.HandleRelayEvent(env)

	assert.Equal(t, 100.0, f.balance(t, "alice"))
	assert.Empty(t, f.store.GetAll())
}

func TestHandleRelayEvent_CompletionEchoIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice")
	raw, txID := scannedRequest(t, "alice", 25, "")

	_, err := f.wallet.ProcessScannedPayment(context.Background(), raw, "2239")
	require.NoError(t, err)
	require.Equal(t, 75.0, f.balance(t, "alice"))

	// the relay fans payment_completed back to the payer; the ledger has
	// already seen this id
	env, err := protocol.NewEnvelope(protocol.EventPaymentCompleted, protocol.PaymentCompleted{
		CompleteQRPayment: protocol.CompleteQRPayment{
			TransactionID: txID, Amount: 25, Sender: "alice", Recipient: "bob",
		},
		Timestamp: 1700000000000,
		Status:    protocol.FeedStatusVerified,
	})
	require.NoError(t, err)
	f.wallet.HandleRelayEvent(env)

	assert.Equal(t, 75.0, f.balance(t, "alice"))
	require.Len(t, f.store.GetAll(), 1)
}

func TestHandleRelayEvent_PaymentCompletedCreditsPayee(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "bob")

	env, err := protocol.NewEnvelope(protocol.EventPaymentCompleted, protocol.PaymentCompleted{
		CompleteQRPayment: protocol.CompleteQRPayment{
			TransactionID: "qr_1", Amount: 25, Sender: "alice", Recipient: "bob",
		},
		Timestamp: 1700000000000,
		Status:    protocol.FeedStatusVerified,
	})
	require.NoError(t, err)
	f.wallet.HandleRelayEvent(env)

	assert.Equal(t, 125.0, f.balance(t, "bob"))
	all := f.store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, model.DirectionReceived, all[0].Direction)
}
