// Package protocol defines the JSON wire contract between clients and the
// relay: a small envelope carrying named events, plus the QR payment
// request payload consumed by the scan pipeline.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/offpay/offpay/internal/errs"
)

// Event names. Client to server.
const (
	EventRegisterUser      = "register_user"
	EventSendTransaction   = "send_transaction"
	EventCompleteQRPayment = "complete_qr_payment"
	EventPing              = "ping"
)

// Event names. Server to client.
const (
	EventRegistrationConfirmed = "registration_confirmed"
	EventReceiveTransaction    = "receive_transaction"
	EventTransactionSent       = "transaction_sent"
	EventPaymentCompleted      = "payment_completed"
	EventPong                  = "pong"
)

// Feed statuses stamped by the relay on broadcast payloads. These describe
// a wire event's disposition and are distinct from model.Status, which is
// the durable store lifecycle.
const (
	FeedStatusSent      = "sent"
	FeedStatusReceived  = "received"
	FeedStatusCompleted = "completed"
	FeedStatusVerified  = "verified"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: empty %s payload", errs.ErrInvalidPayload, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errs.ErrInvalidPayload, e.Event, err)
	}
	return nil
}

// RegisterUser announces the client's identity right after connecting.
type RegisterUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// RegistrationConfirmed acknowledges a registration with the directory size.
type RegistrationConfirmed struct {
	Message        string `json:"message"`
	ConnectedUsers int    `json:"connectedUsers"`
}

// SendTransaction asks the relay to fan a payment out to the other peers.
type SendTransaction struct {
	Amount    float64 `json:"amount"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
}

// TransactionEvent is the relay-stamped broadcast for receive_transaction
// and the transaction_sent echo back to the origin.
type TransactionEvent struct {
	Amount    float64 `json:"amount"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status"`
}

// CompleteQRPayment reports a scanned QR payment back to the relay.
type CompleteQRPayment struct {
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Sender        string  `json:"sender"`
	Recipient     string  `json:"recipient"`
	QRCodeData    string  `json:"qrCodeData,omitempty"`
}

// PaymentCompleted is the relay-stamped global broadcast for a completed
// QR payment. Unlike TransactionEvent it reaches every peer, the origin
// included.
type PaymentCompleted struct {
	CompleteQRPayment
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}
