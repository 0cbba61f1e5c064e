// Package schema defines the key layout of the submission journal.
package schema

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionStatus is the lifecycle of a journaled user operation.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusConfirmed SubmissionStatus = "confirmed"
	StatusFailed    SubmissionStatus = "failed"
)

// statusToStorageKey maps a status to its single-letter key segment
// p: pending - accepted by the bundler, receipt not yet seen
// c: confirmed - receipt observed on chain
// f: failed - rejected by the bundler or reverted on chain
func statusToStorageKey(s SubmissionStatus) string {
	switch s {
	case StatusConfirmed:
		return "c"
	case StatusFailed:
		return "f"
	default:
		return "p"
	}
}

// SubmissionKey is "op:<s>:<id>" where id is a ULID, so entries under one
// status prefix iterate in submission order.
func SubmissionKey(id string, status SubmissionStatus) []byte {
	return []byte(fmt.Sprintf("op:%s:%s", statusToStorageKey(status), id))
}

// SubmissionByStatusPrefix scans every entry with the given status.
func SubmissionByStatusPrefix(status SubmissionStatus) []byte {
	return []byte(fmt.Sprintf("op:%s:", statusToStorageKey(status)))
}

// SenderIndexKey maps a sender wallet to its submission ids. The value is the
// current status letter so lookups can rebuild the primary key.
func SenderIndexKey(sender common.Address, id string) []byte {
	return []byte(fmt.Sprintf("sender:%s:%s", strings.ToLower(sender.Hex()), id))
}

func SenderIndexPrefix(sender common.Address) []byte {
	return []byte(fmt.Sprintf("sender:%s:", strings.ToLower(sender.Hex())))
}

// CounterKey tracks lifetime totals per status.
func CounterKey(status SubmissionStatus) []byte {
	return []byte(fmt.Sprintf("stat:%s", statusToStorageKey(status)))
}
