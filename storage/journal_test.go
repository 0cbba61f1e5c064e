package storage

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouravInsights/permissionless-go/pkg/erc4337/userop"
	"github.com/SouravInsights/permissionless-go/storage/schema"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	dir, err := os.MkdirTemp("", "journal-test")
	require.NoError(t, err)

	db, err := NewWithPath(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Destroy()
	})

	return NewJournal(db)
}

func testOp(sender common.Address, nonce int64) *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               sender,
		Nonce:                big.NewInt(nonce),
		CallData:             common.FromHex("0xb61d27f6"),
		CallGasLimit:         big.NewInt(55000),
		VerificationGasLimit: big.NewInt(700000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_500_000_000),
	}
}

func TestJournalRecordAndGet(t *testing.T) {
	j := testJournal(t)
	sender := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")
	hash := common.HexToHash("0x01")

	entry, err := j.Record(testOp(sender, 1), hash)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	assert.Equal(t, schema.StatusPending, entry.Status)

	got, err := j.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, sender, got.Sender)
	assert.Equal(t, hash, got.UserOpHash)
	assert.Equal(t, int64(1), got.Operation.Nonce.Int64())
}

func TestJournalTransitions(t *testing.T) {
	j := testJournal(t)
	sender := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")

	confirmed, err := j.Record(testOp(sender, 1), common.HexToHash("0x01"))
	require.NoError(t, err)
	failed, err := j.Record(testOp(sender, 2), common.HexToHash("0x02"))
	require.NoError(t, err)

	txHash := common.HexToHash("0xaa")
	require.NoError(t, j.MarkConfirmed(confirmed.ID, txHash))
	require.NoError(t, j.MarkFailed(failed.ID, "paymaster_deposit_too_low"))

	got, err := j.Get(confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusConfirmed, got.Status)
	assert.Equal(t, txHash, got.TxHash)

	got, err = j.Get(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusFailed, got.Status)
	assert.Equal(t, "paymaster_deposit_too_low", got.FailureKind)

	pending, err := j.ListByStatus(schema.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failures, err := j.ListByStatus(schema.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, failed.ID, failures[0].ID)
}

func TestJournalListBySender(t *testing.T) {
	j := testJournal(t)
	alice := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")
	bob := common.HexToAddress("0xBdCcA49575918De45bb32f5ba75388e7c3fBB5e4")

	_, err := j.Record(testOp(alice, 1), common.HexToHash("0x01"))
	require.NoError(t, err)
	_, err = j.Record(testOp(alice, 2), common.HexToHash("0x02"))
	require.NoError(t, err)
	_, err = j.Record(testOp(bob, 1), common.HexToHash("0x03"))
	require.NoError(t, err)

	entries, err := j.ListBySender(alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, alice, e.Sender)
	}
}

// trackingStorage fails the test if the journal mutates state outside of
// Transaction, and counts how many transactions ran.
type trackingStorage struct {
	Storage
	t            *testing.T
	transactions int
}

func (s *trackingStorage) Transaction(fn func(txn Txn) error) error {
	s.transactions++
	return s.Storage.Transaction(fn)
}

func (s *trackingStorage) Set(key, value []byte) error {
	s.t.Errorf("bare Set(%q) outside a transaction", key)
	return s.Storage.Set(key, value)
}

func (s *trackingStorage) Delete(key []byte) error {
	s.t.Errorf("bare Delete(%q) outside a transaction", key)
	return s.Storage.Delete(key)
}

func TestJournalTransitionIsAtomic(t *testing.T) {
	dir, err := os.MkdirTemp("", "journal-test")
	require.NoError(t, err)

	db, err := NewWithPath(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Destroy()
	})

	tracked := &trackingStorage{Storage: db, t: t}
	j := NewJournal(tracked)
	sender := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")

	entry, err := j.Record(testOp(sender, 1), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, 1, tracked.transactions)

	require.NoError(t, j.MarkConfirmed(entry.ID, common.HexToHash("0xaa")))
	assert.Equal(t, 2, tracked.transactions)

	// the old pending key must be gone in the same commit that wrote the
	// confirmed one, never both visible
	keys, err := db.ListKeys("op:")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, string(schema.SubmissionKey(entry.ID, schema.StatusConfirmed)), keys[0])
}

func TestJournalBacklog(t *testing.T) {
	j := testJournal(t)
	sender := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")

	e1, err := j.Record(testOp(sender, 1), common.HexToHash("0x01"))
	require.NoError(t, err)
	_, err = j.Record(testOp(sender, 2), common.HexToHash("0x02"))
	require.NoError(t, err)

	backlog, err := j.Backlog()
	require.NoError(t, err)
	assert.Equal(t, int64(2), backlog)

	require.NoError(t, j.MarkConfirmed(e1.ID, common.HexToHash("0xaa")))

	backlog, err = j.Backlog()
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog)
}

func TestJournalCounts(t *testing.T) {
	j := testJournal(t)
	sender := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")

	e1, err := j.Record(testOp(sender, 1), common.HexToHash("0x01"))
	require.NoError(t, err)
	_, err = j.Record(testOp(sender, 2), common.HexToHash("0x02"))
	require.NoError(t, err)
	require.NoError(t, j.MarkConfirmed(e1.ID, common.HexToHash("0xaa")))

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), counts[schema.StatusPending])
	assert.Equal(t, uint64(1), counts[schema.StatusConfirmed])
	assert.Equal(t, uint64(0), counts[schema.StatusFailed])
}
