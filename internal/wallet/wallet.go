// Package wallet orchestrates the client-side payment flows: producing
// signed payment requests, running the scan-and-verify pipeline, and
// applying inbound relay broadcasts to the ledger and store. All
// collaborators are constructor-injected; there are no package singletons.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/bus"
	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/gate"
	"github.com/offpay/offpay/internal/ledger"
	"github.com/offpay/offpay/internal/model"
	"github.com/offpay/offpay/internal/protocol"
	"github.com/offpay/offpay/internal/sign"
	"github.com/offpay/offpay/internal/store"
)

// Relay is the outbound slice of the client transport the wallet needs.
type Relay interface {
	Connected() bool
	CompleteQRPayment(p protocol.CompleteQRPayment) error
}

// Wallet ties the ledger, store, gate and relay together for one user.
type Wallet struct {
	userID string
	ledger *ledger.Ledger
	store  *store.Store
	gate   gate.Authorizer
	relay  Relay // may be nil for offline use
	bus    *bus.Bus
	log    *zap.Logger
}

// New constructs a wallet for userID. relay and b may be nil.
func New(userID string, l *ledger.Ledger, st *store.Store, g gate.Authorizer, relay Relay, b *bus.Bus, log *zap.Logger) *Wallet {
	if log == nil {
		log = zap.NewNop()
	}
	return &Wallet{userID: userID, ledger: l, store: st, gate: g, relay: relay, bus: b, log: log}
}

// NewPaymentRequest builds and signs the QR payload billing payer for
// amount, payable to this wallet's user.
func (w *Wallet) NewPaymentRequest(amount float64, payer, description string) (protocol.PaymentRequest, error) {
	if amount <= 0 {
		return protocol.PaymentRequest{}, fmt.Errorf("validation: non-positive amount %v", amount)
	}
	if payer == "" {
		return protocol.PaymentRequest{}, fmt.Errorf("validation: empty payer")
	}
	if description == "" {
		description = "Payment Request"
	}
	pub, priv, err := sign.GenerateKey()
	if err != nil {
		return protocol.PaymentRequest{}, fmt.Errorf("generate key: %w", err)
	}
	fields := sign.Fields{
		ID:          "qr_" + uuid.Must(uuid.NewV4()).String(),
		Amount:      amount,
		Sender:      payer,
		Recipient:   w.userID,
		Description: description,
	}
	return protocol.PaymentRequest{
		Type: protocol.PaymentRequestType,
		Transaction: protocol.QRTransaction{
			ID:          fields.ID,
			Amount:      fields.Amount,
			Sender:      fields.Sender,
			Recipient:   fields.Recipient,
			Description: fields.Description,
			Signature:   sign.Sign(fields, priv),
		},
		PublicKey: pub,
	}, nil
}

// ProcessScannedPayment runs the scan-and-verify pipeline over a raw QR
// payload: parse, validate, confirm through the gate, verify the
// signature, apply to the ledger, append to the store, and report the
// completion to the relay when one is connected. Every rejection happens
// before any ledger mutation.
func (w *Wallet) ProcessScannedPayment(ctx context.Context, raw []byte, proof string) (*model.Transaction, error) {
	pr, err := protocol.ParsePaymentRequest(raw)
	if err != nil {
		return nil, err
	}
	qtx := pr.Transaction

	if err := w.gate.Confirm(ctx, qtx.ID, proof); err != nil {
		return nil, err
	}

	fields := sign.Fields{
		ID:          qtx.ID,
		Amount:      qtx.Amount,
		Sender:      qtx.Sender,
		Recipient:   qtx.Recipient,
		Description: qtx.Description,
	}
	if !sign.Verify(fields, qtx.Signature, pr.PublicKey) {
		return nil, fmt.Errorf("%w: transaction may be tampered with", errs.ErrBadSignature)
	}

	tx := model.Transaction{
		ID:          qtx.ID,
		Amount:      qtx.Amount,
		Sender:      qtx.Sender,
		Recipient:   qtx.Recipient,
		Timestamp:   time.Now().UnixMilli(),
		Description: qtx.Description,
		Status:      model.StatusPending,
		Signature:   qtx.Signature,
		PublicKey:   pr.PublicKey,
	}

	entry, err := w.ledger.Apply(w.userID, tx)
	if err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	if entry == nil {
		w.log.Warn("scanned payment does not involve this wallet",
			zap.String("transaction", tx.ID), zap.String("sender", tx.Sender))
	}

	if err := w.store.AddSent(tx); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}
	if w.bus != nil {
		w.bus.Publish(bus.Event{Topic: bus.TopicPaymentSent, Transaction: tx, Direction: model.DirectionSent})
	}

	if w.relay != nil && w.relay.Connected() {
		err := w.relay.CompleteQRPayment(protocol.CompleteQRPayment{
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			Sender:        tx.Sender,
			Recipient:     tx.Recipient,
		})
		if err != nil {
			// local state is already durable; the completion broadcast is
			// best-effort like every other relay delivery
			w.log.Warn("report payment completion", zap.String("transaction", tx.ID), zap.Error(err))
		}
	}

	w.log.Info("payment processed",
		zap.String("transaction", tx.ID),
		zap.Float64("amount", tx.Amount),
		zap.String("recipient", tx.Recipient),
	)
	return &tx, nil
}

// TopUp credits the wallet through the payment gateway and records the
// top-up in the durable log.
func (w *Wallet) TopUp(amount float64, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation: non-positive amount %v", amount)
	}
	tx := model.Transaction{
		ID:          "topup_" + uuid.Must(uuid.NewV4()).String(),
		Amount:      amount,
		Sender:      ledger.GatewaySender,
		Recipient:   w.userID,
		Timestamp:   time.Now().UnixMilli(),
		Description: description,
		Status:      model.StatusVerified,
		Direction:   model.DirectionReceived,
	}
	if _, err := w.ledger.Apply(w.userID, tx); err != nil {
		return nil, fmt.Errorf("apply top-up: %w", err)
	}
	if err := w.store.Save(tx); err != nil {
		return nil, fmt.Errorf("store top-up: %w", err)
	}
	return &tx, nil
}

// HandleRelayEvent applies inbound relay broadcasts to the local ledger
// and store. It is meant to run as the transport's event handler; unknown
// events are ignored.
func (w *Wallet) HandleRelayEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventReceiveTransaction:
		var ev protocol.TransactionEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warn("bad inbound transaction", zap.Error(err))
			return
		}
		// relayed sends carry no transaction id; synthesize one per
		// delivery (the relay delivers at most once per peer)
		w.applyInbound(model.Transaction{
			ID:        "recv_" + uuid.Must(uuid.NewV4()).String(),
			Amount:    ev.Amount,
			Sender:    ev.Sender,
			Recipient: ev.Recipient,
			Timestamp: ev.Timestamp,
			Status:    model.StatusVerified,
		})
	case protocol.EventPaymentCompleted:
		var ev protocol.PaymentCompleted
		if err := env.Decode(&ev); err != nil {
			w.log.Warn("bad payment completion", zap.Error(err))
			return
		}
		// the global fan-out reaches the payer too; the ledger's
		// applied-id set turns that replay into a no-op
		w.applyInbound(model.Transaction{
			ID:        ev.TransactionID,
			Amount:    ev.Amount,
			Sender:    ev.Sender,
			Recipient: ev.Recipient,
			Timestamp: ev.Timestamp,
			Status:    model.StatusVerified,
		})
	}
}

func (w *Wallet) applyInbound(tx model.Transaction) {
	entry, err := w.ledger.Apply(w.userID, tx)
	if err != nil {
		if !errors.Is(err, errs.ErrAlreadyApplied) {
			w.log.Warn("apply inbound", zap.String("transaction", tx.ID), zap.Error(err))
		}
		return
	}
	if entry == nil {
		return // not ours
	}
	if entry.Type == model.EntryCredit {
		if err := w.store.AddReceived(tx); err != nil {
			w.log.Warn("store inbound", zap.String("transaction", tx.ID), zap.Error(err))
		}
		if w.bus != nil {
			w.bus.Publish(bus.Event{Topic: bus.TopicPaymentReceived, Transaction: tx, Direction: model.DirectionReceived})
		}
	}
}
