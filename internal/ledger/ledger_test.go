package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/offpay/offpay/internal/errs"
	"github.com/offpay/offpay/internal/model"
)

func tx(id, sender, recipient string, amount float64) model.Transaction {
	return model.Transaction{ID: id, Sender: sender, Recipient: recipient, Amount: amount}
}

func TestCredit_SeedsInitialBalance(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, float64(InitialBalance), uc.Balance)
	require.Empty(t, uc.History)
}

func TestApply_TopUp(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	entry, err := l.Apply("alice", tx("t1", GatewaySender, "alice", 50))
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, model.EntryCredit, entry.Type)
	require.Equal(t, "t1", entry.TransactionID)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, 150.0, uc.Balance)
	require.Len(t, uc.History, 1)
}

func TestApply_DebitClampsAtZero(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	// 100 -> 20
	entry, err := l.Apply("alice", tx("t1", "alice", "bob", 80))
	require.NoError(t, err)
	require.Equal(t, model.EntryDebit, entry.Type)

	// 20 - 30 floors at 0, not -10
	_, err = l.Apply("alice", tx("t2", "alice", "bob", 30))
	require.NoError(t, err)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, 0.0, uc.Balance)
}

func TestApply_IncomingCredit(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	entry, err := l.Apply("alice", tx("t1", "bob", "wallet_alice", 25))
	require.NoError(t, err)
	require.Equal(t, model.EntryCredit, entry.Type)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, 125.0, uc.Balance)
}

func TestApply_ForeignTransactionIsNotRecorded(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	entry, err := l.Apply("alice", tx("t1", "bob", "carol", 25))
	require.NoError(t, err)
	require.Nil(t, entry)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, float64(InitialBalance), uc.Balance)
	require.Empty(t, uc.History)
}

// The original implementation double-counted on replay; Apply keeps an
// applied-id set instead, so the same transaction id is a no-op.
func TestApply_ReplayDoesNotDoubleCount(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	_, err := l.Apply("alice", tx("t1", GatewaySender, "alice", 50))
	require.NoError(t, err)

	_, err = l.Apply("alice", tx("t1", GatewaySender, "alice", 50))
	require.ErrorIs(t, err, errs.ErrAlreadyApplied)

	uc, err := l.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, 150.0, uc.Balance)
	require.Len(t, uc.History, 1)
}

func TestApply_Validation(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir(), nil)

	_, err := l.Apply("", tx("t1", "bob", "alice", 10))
	require.Error(t, err)
	_, err = l.Apply("alice", tx("", "bob", "alice", 10))
	require.Error(t, err)
	_, err = l.Apply("alice", tx("t1", "bob", "alice", 0))
	require.Error(t, err)
	_, err = l.Apply("alice", tx("t1", "bob", "alice", -5))
	require.Error(t, err)
}

func TestStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	l := New(dir, nil)
	_, err := l.Apply("alice", tx("t1", GatewaySender, "alice", 50))
	require.NoError(t, err)

	// fresh instance over the same data dir
	l2 := New(dir, nil)
	uc, err := l2.Credit("alice")
	require.NoError(t, err)
	require.Equal(t, 150.0, uc.Balance)
	require.Len(t, uc.History, 1)

	// the replay guard is durable too
	_, err = l2.Apply("alice", tx("t1", GatewaySender, "alice", 50))
	require.ErrorIs(t, err, errs.ErrAlreadyApplied)
}
