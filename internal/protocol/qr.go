package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/offpay/offpay/internal/errs"
)

// PaymentRequestType tags a QR payload as a signed payment request.
const PaymentRequestType = "payment_request"

// QRTransaction is the signed portion of a payment request. Signature
// covers id, amount, sender, recipient and description.
type QRTransaction struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Sender      string  `json:"sender"`
	Recipient   string  `json:"recipient"`
	Description string  `json:"description,omitempty"`
	Signature   string  `json:"signature"`
}

// PaymentRequest is the full QR payload: a signed transaction plus the
// signer's public key.
type PaymentRequest struct {
	Type        string        `json:"type"`
	Transaction QRTransaction `json:"transaction"`
	PublicKey   string        `json:"publicKey"`
}

// ParsePaymentRequest decodes and validates a scanned QR payload. All
// failures wrap errs.ErrInvalidPayload so the caller can reject the scan
// before any ledger mutation.
func ParsePaymentRequest(raw []byte) (PaymentRequest, error) {
	var pr PaymentRequest
	if err := json.Unmarshal(raw, &pr); err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: not valid JSON", errs.ErrInvalidPayload)
	}
	if pr.Type != PaymentRequestType {
		return PaymentRequest{}, fmt.Errorf("%w: unexpected type %q", errs.ErrInvalidPayload, pr.Type)
	}
	if pr.PublicKey == "" {
		return PaymentRequest{}, fmt.Errorf("%w: missing publicKey", errs.ErrInvalidPayload)
	}
	tx := pr.Transaction
	if tx.ID == "" || tx.Sender == "" || tx.Recipient == "" {
		return PaymentRequest{}, fmt.Errorf("%w: missing transaction fields", errs.ErrInvalidPayload)
	}
	if tx.Amount <= 0 {
		return PaymentRequest{}, fmt.Errorf("%w: non-positive amount", errs.ErrInvalidPayload)
	}
	if tx.Signature == "" {
		return PaymentRequest{}, fmt.Errorf("%w: missing signature", errs.ErrInvalidPayload)
	}
	return pr, nil
}
