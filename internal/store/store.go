// Package store keeps the durable per-device transaction log: an
// append-only JSON file where every entry carries both a plaintext
// projection for quick listing and the authoritative encrypted blob.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/bus"
	"github.com/offpay/offpay/internal/crypto/blobcrypt"
	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/model"
)

const logFilePrefix = "offpay_transactions_"

// logFile is the on-disk layout. The salt feeds key derivation for every
// blob in this log.
type logFile struct {
	Salt         []byte                    `json:"salt"`
	Transactions []model.StoredTransaction `json:"transactions"`
}

// Store is the transaction log for one user on one device. Storage
// failures are contained here: readers get empty results, writers get an
// error they can report, and nothing panics across the boundary.
type Store struct {
	path       string
	passphrase []byte
	bus        *bus.Bus
	log        *zap.Logger

	mu     sync.Mutex
	cipher *blobcrypt.Cipher
	lf     *logFile
}

// New constructs the store for userID rooted at dir. The bus may be nil
// when no one listens for local notifications.
func New(dir, userID, passphrase string, b *bus.Bus, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		path:       filepath.Join(dir, logFilePrefix+userID+".json"),
		passphrase: []byte(passphrase),
		bus:        b,
		log:        log,
	}
}

// Save encrypts tx and appends it to the log.
func (s *Store) Save(tx model.Transaction) error {
	if tx.ID == "" {
		return errors.New("validation: empty transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, cipher, err := s.load()
	if err != nil {
		return err
	}
	entry, err := seal(cipher, tx)
	if err != nil {
		return err
	}
	lf.Transactions = append(lf.Transactions, entry)
	return s.persist(lf)
}

// GetAll returns every stored entry, oldest first. A read failure is
// logged and comes back as an empty log.
func (s *Store) GetAll() []model.StoredTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, _, err := s.load()
	if err != nil {
		s.log.Warn("read transaction log", zap.Error(err))
		return nil
	}
	out := make([]model.StoredTransaction, len(lf.Transactions))
	copy(out, lf.Transactions)
	return out
}

// GetByID returns the decrypted authoritative transaction for id.
func (s *Store) GetByID(id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, cipher, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range lf.Transactions {
		if lf.Transactions[i].ID != id {
			continue
		}
		tx, err := open(cipher, lf.Transactions[i])
		if err != nil {
			return nil, fmt.Errorf("decrypt transaction %s: %w", id, err)
		}
		return tx, nil
	}
	return nil, errs.ErrNotFound
}

// UpdateStatus advances the status of id in both the projection and the
// encrypted blob. It returns false with a nil error when id is not in the
// log, and errs.ErrStatusRegression when the move would go backwards.
func (s *Store) UpdateStatus(id string, status model.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("validation: unknown status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, cipher, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range lf.Transactions {
		if lf.Transactions[i].ID != id {
			continue
		}
		tx, err := open(cipher, lf.Transactions[i])
		if err != nil {
			return false, fmt.Errorf("decrypt transaction %s: %w", id, err)
		}
		if !tx.Status.CanAdvanceTo(status) {
			return false, fmt.Errorf("%w: %s -> %s", errs.ErrStatusRegression, tx.Status, status)
		}
		tx.Status = status
		entry, err := seal(cipher, *tx)
		if err != nil {
			return false, err
		}
		lf.Transactions[i] = entry
		if err := s.persist(lf); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// AddSent appends tx from the payer's perspective: stamped verified,
// direction sent, description prefixed. Listeners on the bus are notified.
func (s *Store) AddSent(tx model.Transaction) error {
	return s.add(tx, model.DirectionSent, "Sent: ")
}

// AddReceived appends tx from the payee's perspective.
func (s *Store) AddReceived(tx model.Transaction) error {
	return s.add(tx, model.DirectionReceived, "Received: ")
}

func (s *Store) add(tx model.Transaction, dir model.Direction, prefix string) error {
	desc := tx.Description
	if desc == "" {
		desc = "Payment"
	}
	tx.Description = prefix + desc
	tx.Status = model.StatusVerified
	tx.Direction = dir
	tx.Timestamp = time.Now().UnixMilli()

	if err := s.Save(tx); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{Topic: bus.TopicTransactionAdded, Transaction: tx, Direction: dir})
	}
	return nil
}

// Stats summarizes the log in a single pass. Sent/received sums classify
// on the explicit direction field, not on description sniffing.
type Stats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Completed     int     `json:"completed"`
	TotalSent     float64 `json:"totalSent"`
	TotalReceived float64 `json:"totalReceived"`
}

// Stats computes counts by status and sums by direction.
func (s *Store) Stats() Stats {
	var st Stats
	for _, tx := range s.GetAll() {
		st.Total++
		switch tx.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusVerified:
			st.Completed++
		}
		switch tx.Direction {
		case model.DirectionSent:
			st.TotalSent += tx.Amount
		case model.DirectionReceived:
			st.TotalReceived += tx.Amount
		}
	}
	return st
}

// load returns the cached log, reading and initializing it on first use.
// A corrupt file is logged and replaced by an empty log rather than
// propagated.
func (s *Store) load() (*logFile, *blobcrypt.Cipher, error) {
	if s.lf != nil {
		return s.lf, s.cipher, nil
	}

	lf := &logFile{}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh log below
	case err != nil:
		return nil, nil, fmt.Errorf("read log: %w", err)
	default:
		if uerr := json.Unmarshal(raw, lf); uerr != nil {
			s.log.Warn("corrupt transaction log, starting empty", zap.Error(uerr))
			lf = &logFile{}
		}
	}
	if len(lf.Salt) == 0 {
		salt, err := blobcrypt.NewSalt()
		if err != nil {
			return nil, nil, fmt.Errorf("new salt: %w", err)
		}
		lf.Salt = salt
	}
	cipher, err := blobcrypt.New(s.passphrase, lf.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("derive log key: %w", err)
	}
	s.lf, s.cipher = lf, cipher
	return lf, cipher, nil
}

func (s *Store) persist(lf *logFile) error {
	raw, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func seal(cipher *blobcrypt.Cipher, tx model.Transaction) (model.StoredTransaction, error) {
	plain, err := json.Marshal(tx)
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("encode transaction: %w", err)
	}
	blob, err := cipher.Seal(tx.ID, plain)
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("encrypt transaction: %w", err)
	}
	return model.StoredTransaction{Transaction: tx, EncryptedData: blob}, nil
}

func open(cipher *blobcrypt.Cipher, st model.StoredTransaction) (*model.Transaction, error) {
	plain, err := cipher.Open(st.ID, st.EncryptedData)
	if err != nil {
		return nil, err
	}
	var tx model.Transaction
	if err := json.Unmarshal(plain, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
