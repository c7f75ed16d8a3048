// Package ledger derives per-user credit balances and history from a
// stream of applied transactions.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/model"
)

// GatewaySender marks top-up transactions issued by the payment gateway.
const GatewaySender = "payment_gateway"

// InitialBalance is granted to a user seen for the first time.
const InitialBalance = 100

const creditFilePrefix = "offpay_credits_"

// Ledger folds transactions into per-user balances, persisting state per
// user under the data directory. Applying a transaction id twice is a
// no-op: the ledger keeps an applied-id set so retries and resyncs never
// double-count.
type Ledger struct {
	dir string
	log *zap.Logger

	mu    sync.Mutex
	creds map[string]*model.UserCredit
}

// New constructs a ledger rooted at dir.
func New(dir string, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{dir: dir, log: log, creds: make(map[string]*model.UserCredit)}
}

// Credit returns the current balance and history for userID. A user seen
// for the first time is seeded with the initial grant.
func (l *Ledger) Credit(userID string) (model.UserCredit, error) {
	if userID == "" {
		return model.UserCredit{}, errors.New("validation: empty userID")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	uc := l.load(userID)
	return snapshot(uc), nil
}

// Apply folds one transaction into userID's balance and returns the
// resulting history entry.
//
// Classification, in order: sender == GatewaySender is a top-up credit;
// a sender containing the user's id is an outgoing debit; a recipient
// containing the user's id is an incoming credit; anything else does not
// involve this user and returns a nil entry without recording anything.
//
// The balance is floored at zero: a debit past zero loses the overdraft
// rather than going negative. Replaying an already-applied id returns
// errs.ErrAlreadyApplied and changes nothing.
func (l *Ledger) Apply(userID string, tx model.Transaction) (*model.CreditHistoryEntry, error) {
	if userID == "" {
		return nil, errors.New("validation: empty userID")
	}
	if tx.ID == "" {
		return nil, errors.New("validation: empty transaction id")
	}
	if tx.Amount <= 0 {
		return nil, fmt.Errorf("validation: non-positive amount %v", tx.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	uc := l.load(userID)
	if uc.Applied[tx.ID] {
		return nil, errs.ErrAlreadyApplied
	}

	var entry model.CreditHistoryEntry
	switch {
	case tx.Sender == GatewaySender:
		uc.Balance += tx.Amount
		entry = l.entry(tx, model.EntryCredit, orDefault(tx.Description,
			fmt.Sprintf("Added %.2f to wallet", tx.Amount)))
	case strings.Contains(tx.Sender, userID):
		uc.Balance -= tx.Amount
		entry = l.entry(tx, model.EntryDebit,
			fmt.Sprintf("Sent %.2f to %s", tx.Amount, shorten(tx.Recipient)))
	case strings.Contains(tx.Recipient, userID):
		uc.Balance += tx.Amount
		entry = l.entry(tx, model.EntryCredit,
			fmt.Sprintf("Received %.2f from %s", tx.Amount, shorten(tx.Sender)))
	default:
		// does not involve this user; not recorded
		return nil, nil
	}

	if uc.Balance < 0 {
		uc.Balance = 0 // lossy floor, see model.UserCredit
	}
	uc.History = append([]model.CreditHistoryEntry{entry}, uc.History...)
	uc.Applied[tx.ID] = true
	l.persist(userID, uc)
	return &entry, nil
}

func (l *Ledger) entry(tx model.Transaction, typ model.EntryType, desc string) model.CreditHistoryEntry {
	return model.CreditHistoryEntry{
		ID:            uuid.Must(uuid.NewV4()).String(),
		Amount:        tx.Amount,
		Type:          typ,
		TransactionID: tx.ID,
		Timestamp:     time.Now().UnixMilli(),
		Description:   desc,
	}
}

// load returns the cached state for userID, reading it from disk on first
// use. A missing or corrupt file falls back to a fresh initial grant; the
// failure is logged, never surfaced.
func (l *Ledger) load(userID string) *model.UserCredit {
	if uc, ok := l.creds[userID]; ok {
		return uc
	}
	uc := &model.UserCredit{Balance: InitialBalance, Applied: make(map[string]bool)}
	raw, err := os.ReadFile(l.path(userID))
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.persist(userID, uc)
	case err != nil:
		l.log.Warn("read credit state", zap.String("user", userID), zap.Error(err))
	default:
		if uerr := json.Unmarshal(raw, uc); uerr != nil {
			l.log.Warn("corrupt credit state, reseeding", zap.String("user", userID), zap.Error(uerr))
			uc = &model.UserCredit{Balance: InitialBalance, Applied: make(map[string]bool)}
		}
		if uc.Applied == nil {
			uc.Applied = make(map[string]bool)
		}
	}
	l.creds[userID] = uc
	return uc
}

// persist writes the state best-effort; a write failure is logged and the
// in-memory state stays authoritative for the rest of the process.
func (l *Ledger) persist(userID string, uc *model.UserCredit) {
	raw, err := json.MarshalIndent(uc, "", "  ")
	if err != nil {
		l.log.Error("encode credit state", zap.String("user", userID), zap.Error(err))
		return
	}
	if err := os.WriteFile(l.path(userID), raw, 0o600); err != nil {
		l.log.Error("write credit state", zap.String("user", userID), zap.Error(err))
	}
}

func (l *Ledger) path(userID string) string {
	return filepath.Join(l.dir, creditFilePrefix+userID+".json")
}

func snapshot(uc *model.UserCredit) model.UserCredit {
	out := model.UserCredit{Balance: uc.Balance}
	out.History = append(out.History, uc.History...)
	return out
}

func shorten(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
