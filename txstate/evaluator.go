// Package txstate implements the pure aggregate-status function used by both
// TxManager.AdvanceTransactionProgress and the Monitor. It holds no state of
// its own and performs no I/O.
package txstate

import (
	"time"

	"github.com/brnsampaio/tcc-coordinator/txstore"
)

// Aggregate maps a transaction's per-participant TryStatuses, restricted to
// registeredParticipantIDs, to an overall TxStatus.
//
// Dominance rule: Failure dominates Hanging, both dominate Successful. A
// Failure entry forces TxFailure even if other entries are still Hanging —
// this is the only correctness-preserving choice under the Monitor model,
// since waiting for a Hanging entry next to a Failure just leaves a Try
// reservation orphaned forever.
//
// createdBefore bounds how long a transaction may carry a Hanging entry:
// any transaction whose CreatedAt predates the cutoff and still has a
// Hanging entry is treated as abandoned and reported as TxFailure, rather
// than hanging indefinitely on a participant whose Try never returned
// within the Try-phase budget. Pass the zero time.Time to disable the
// cutoff.
func Aggregate(tx *txstore.Transaction, registeredParticipantIDs []string, createdBefore time.Time) txstore.TxStatus {
	var hangingExists bool
	for _, id := range registeredParticipantIDs {
		entry, ok := tx.ParticipantStatuses[id]
		if !ok {
			continue
		}
		switch entry.TryStatus {
		case txstore.TryFailure:
			return txstore.TxFailure
		case txstore.TryHanging:
			hangingExists = true
		}
	}

	if hangingExists {
		if !createdBefore.IsZero() && tx.CreatedAt.Before(createdBefore) {
			return txstore.TxFailure
		}
		return txstore.TxHanging
	}

	return txstore.TxSuccessful
}
