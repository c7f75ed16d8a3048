// Package model defines domain entities shared by the relay, ledger and store.
package model

// Status is the lifecycle state of a stored transaction.
// It only advances: pending -> synced -> verified, never backwards.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSynced   Status = "synced"
	StatusVerified Status = "verified"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSynced:
		return 1
	case StatusVerified:
		return 2
	}
	return -1
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether moving to next keeps the lifecycle monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// Direction classifies a stored transaction from the device owner's point
// of view. It replaces classification by "Sent:"/"Received:" description
// prefixes.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionTransfer Direction = "transfer"
)

// Identity is an ephemeral relay-side registration record. The relay keeps
// at most one live connection id per user; the last registration wins.
type Identity struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

// Transaction is a single signed payment event.
type Transaction struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"` // must be > 0
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	Timestamp   int64     `json:"timestamp"` // ms since epoch
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Direction   Direction `json:"direction,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	PublicKey   string    `json:"publicKey,omitempty"`
}

// StoredTransaction pairs the plaintext projection with the authoritative
// encrypted copy. Decrypting EncryptedData must yield the same status,
// amount, sender and recipient as the projection fields.
type StoredTransaction struct {
	Transaction
	EncryptedData []byte `json:"encryptedData"`
}

// EntryType marks a ledger history entry as a credit or a debit.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// CreditHistoryEntry is one applied ledger mutation.
type CreditHistoryEntry struct {
	ID            string    `json:"id"`
	Amount        float64   `json:"amount"`
	Type          EntryType `json:"type"`
	TransactionID string    `json:"transactionId"`
	Timestamp     int64     `json:"timestamp"`
	Description   string    `json:"description"`
}

// UserCredit is the derived per-user balance and history, newest first.
//
// Balance is floored at zero: a debit past zero loses the overdraft
// instead of going negative. This is a deliberate lossy clamp for the
// demo, not a derived accounting balance.
type UserCredit struct {
	Balance float64              `json:"balance"`
	History []CreditHistoryEntry `json:"history"`
	// Applied records every transaction id folded into Balance so that
	// replays stay no-ops across restarts.
	Applied map[string]bool `json:"applied,omitempty"`
}
