package storage

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/SouravInsights/permissionless-go/pkg/erc4337/userop"
	"github.com/SouravInsights/permissionless-go/storage/schema"
)

// JournalEntry is one submitted user operation and its terminal outcome.
type JournalEntry struct {
	ID         string                  `json:"id"`
	Sender     common.Address          `json:"sender"`
	UserOpHash common.Hash             `json:"userOpHash"`
	Operation  *userop.UserOperation   `json:"operation"`
	Status     schema.SubmissionStatus `json:"status"`

	// FailureKind is the classified failure name when Status is failed.
	FailureKind string `json:"failureKind,omitempty"`
	// TxHash is the bundle transaction when Status is confirmed.
	TxHash common.Hash `json:"txHash,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Journal persists every submission so operators can audit what was sent and
// how it ended.
type Journal struct {
	db      Storage
	entropy *ulid.MonotonicEntropy
}

func NewJournal(db Storage) *Journal {
	return &Journal{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Record stores a freshly accepted submission in the pending state and
// returns the entry with its assigned id.
func (j *Journal) Record(op *userop.UserOperation, userOpHash common.Hash) (*JournalEntry, error) {
	now := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), j.entropy)
	if err != nil {
		return nil, err
	}

	entry := &JournalEntry{
		ID:         id.String(),
		Sender:     op.Sender,
		UserOpHash: userOpHash,
		Operation:  op,
		Status:     schema.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	err = j.db.Transaction(func(txn Txn) error {
		if err := txn.Set(schema.SubmissionKey(entry.ID, entry.Status), data); err != nil {
			return err
		}
		if err := txn.Set(schema.SenderIndexKey(op.Sender, entry.ID), []byte(entry.Status)); err != nil {
			return err
		}

		_, err := bumpCounter(txn, schema.CounterKey(schema.StatusPending))
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// MarkConfirmed moves the entry to the confirmed state and records the bundle
// transaction.
func (j *Journal) MarkConfirmed(id string, txHash common.Hash) error {
	return j.transition(id, schema.StatusConfirmed, func(e *JournalEntry) {
		e.TxHash = txHash
	})
}

// MarkFailed moves the entry to the failed state with its classified failure
// name.
func (j *Journal) MarkFailed(id string, failureKind string) error {
	return j.transition(id, schema.StatusFailed, func(e *JournalEntry) {
		e.FailureKind = failureKind
	})
}

// transition moves an entry between status prefixes. All four writes commit
// in one transaction, so a crash can never leave the entry visible under two
// statuses.
func (j *Journal) transition(id string, to schema.SubmissionStatus, mutate func(*JournalEntry)) error {
	entry, err := j.Get(id)
	if err != nil {
		return err
	}

	oldKey := schema.SubmissionKey(entry.ID, entry.Status)
	entry.Status = to
	entry.UpdatedAt = time.Now().UTC()
	mutate(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return j.db.Transaction(func(txn Txn) error {
		if err := txn.Set(schema.SubmissionKey(entry.ID, to), data); err != nil {
			return err
		}
		if err := txn.Delete(oldKey); err != nil {
			return err
		}
		if err := txn.Set(schema.SenderIndexKey(entry.Sender, entry.ID), []byte(to)); err != nil {
			return err
		}

		_, err := bumpCounter(txn, schema.CounterKey(to))
		return err
	})
}

// Get looks up an entry by id across the status prefixes.
func (j *Journal) Get(id string) (*JournalEntry, error) {
	for _, status := range []schema.SubmissionStatus{schema.StatusPending, schema.StatusConfirmed, schema.StatusFailed} {
		data, err := j.db.GetKey(schema.SubmissionKey(id, status))
		if err != nil {
			continue
		}
		return decodeEntry(data)
	}

	return nil, fmt.Errorf("journal entry %s not found", id)
}

// ListByStatus returns entries in submission order.
func (j *Journal) ListByStatus(status schema.SubmissionStatus) ([]*JournalEntry, error) {
	items, err := j.db.GetByPrefix(schema.SubmissionByStatusPrefix(status))
	if err != nil {
		return nil, err
	}

	entries := make([]*JournalEntry, 0, len(items))
	for _, item := range items {
		entry, err := decodeEntry(item.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// ListBySender returns every entry for one wallet, any status. The index
// holds ids in its keys, so a key-only scan is enough.
func (j *Journal) ListBySender(sender common.Address) ([]*JournalEntry, error) {
	prefix := string(schema.SenderIndexPrefix(sender))
	keys, err := j.db.ListKeys(prefix)
	if err != nil {
		return nil, err
	}

	ids := lo.Map(keys, func(key string, _ int) string {
		return key[len(prefix):]
	})

	entries := make([]*JournalEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := j.Get(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Backlog counts entries still sitting in the pending prefix, i.e. submitted
// but never confirmed or failed. Counts tracks lifetime totals instead.
func (j *Journal) Backlog() (int64, error) {
	return j.db.CountKeysByPrefix(schema.SubmissionByStatusPrefix(schema.StatusPending))
}

// Counts returns lifetime totals per status.
func (j *Journal) Counts() (map[schema.SubmissionStatus]uint64, error) {
	out := map[schema.SubmissionStatus]uint64{}
	for _, status := range []schema.SubmissionStatus{schema.StatusPending, schema.StatusConfirmed, schema.StatusFailed} {
		n, err := j.db.GetCounter(schema.CounterKey(status), 0)
		if err != nil {
			return nil, err
		}
		out[status] = n
	}

	return out, nil
}

func decodeEntry(data []byte) (*JournalEntry, error) {
	var entry JournalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
