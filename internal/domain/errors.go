package domain

import (
	"errors"
	"fmt"
)

// RejectReason discriminates why the normalizer refused a raw record.
type RejectReason string

const (
	RejectInvalidAmount RejectReason = "INVALID_AMOUNT"
	RejectMissingTitle  RejectReason = "MISSING_TITLE"
	RejectInvalidDate   RejectReason = "INVALID_DATE"
)

// RecordRejection is returned by the normalizer for a malformed record.
// The coordinator turns it into a warning entry and moves on; it never
// aborts the batch.
type RecordRejection struct {
	Index  int
	Reason RejectReason
	Detail string
}

func (e *RecordRejection) Error() string {
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Reason, e.Detail)
}

// Sentinel errors for the recoverable failure classes of the pipeline.
// Everything here degrades; the only unrecoverable condition is total
// upstream unavailability, surfaced before any record is processed.
var (
	// ErrClassifierUnavailable means the remote classifier could not be
	// reached or returned garbage. Affected records stay uncategorized.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrStoreUnavailable means the transaction store itself is unreachable,
	// the single batch-level failure mode.
	ErrStoreUnavailable = errors.New("transaction store unavailable")
)
