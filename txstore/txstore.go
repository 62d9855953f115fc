// Package txstore defines the durable transaction log contract. Any backend
// (relational, embedded KV, in-memory for tests) is acceptable so long as it
// honors atomicity per operation and durability of successful writes.
package txstore

import (
	"context"
	"time"
)

// TryStatus is the per-participant outcome of the Try phase.
type TryStatus string

const (
	TryHanging    TryStatus = "hanging"
	TrySuccessful TryStatus = "successful"
	TryFailure    TryStatus = "failure"
)

// TxStatus is the aggregate transaction status.
type TxStatus string

const (
	TxHanging    TxStatus = "hanging"
	TxSuccessful TxStatus = "successful"
	TxFailure    TxStatus = "failure"
)

// ParticipantEntry tracks one participant's Try outcome within a Transaction.
type ParticipantEntry struct {
	ParticipantID string    `json:"participant_id"`
	TryStatus     TryStatus `json:"try_status"`
}

// Transaction is the durable unit tracked by TxStore. ParticipantStatuses's
// key set is fixed at CreateTx time and never grows or shrinks afterward.
type Transaction struct {
	ID                  string                      `json:"id"`
	Status              TxStatus                    `json:"status"`
	ParticipantStatuses map[string]*ParticipantEntry `json:"participant_statuses"`
	CreatedAt           time.Time                   `json:"created_at"`
	// Metadata is free-form, caller-supplied at CreateTx time. The core
	// never interprets it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ParticipantIDs returns the fixed participant key set for this transaction.
func (t *Transaction) ParticipantIDs() []string {
	ids := make([]string, 0, len(t.ParticipantStatuses))
	for id := range t.ParticipantStatuses {
		ids = append(ids, id)
	}
	return ids
}

// Log is the durable transaction log half of the storage contract: CRUD
// over transactions, without the distributed lock. Split out from Locker so
// a single backend (storegorm) and a separate distributed-lock backend
// (redislock) can be composed into one TxStore without either backend
// knowing about the other.
type Log interface {
	// CreateTx writes a new Transaction with every participant entry at
	// TryHanging and returns its assigned id. Fails with a retryable
	// StorageError on transient errors.
	CreateTx(ctx context.Context, participantIDs []string, metadata map[string]string) (txID string, err error)
	// TXUpdateComponentStatus atomically sets one participant entry's
	// TryStatus. Fails with ErrTransactionNotFound (terminal) if txID is
	// unknown; otherwise failures are retryable.
	TXUpdateComponentStatus(ctx context.Context, txID string, participantID string, accept bool) error
	// TXSubmit atomically sets the top-level status. Idempotent for the
	// same (txID, success) pair. Implementations enforce terminal-state
	// immutability and fail with ErrInvalidTransactionState on conflicting
	// success values for the same txID.
	TXSubmit(ctx context.Context, txID string, success bool) error
	// GetHangingTXs returns Transactions with Status == TxHanging, ordered
	// ascending by CreatedAt, bounded in size.
	GetHangingTXs(ctx context.Context) ([]*Transaction, error)
	// GetTX fetches one transaction by id, or ErrTransactionNotFound.
	GetTX(ctx context.Context, txID string) (*Transaction, error)
}

// Locker is the cluster-wide advisory mutex the Monitor uses to serialize
// reconciliation ticks across coordinator instances.
type Locker interface {
	// Lock blocks up to expire. Fails with ErrLockAcquisition (retryable,
	// by the Monitor only) if unavailable.
	Lock(ctx context.Context, expire time.Duration) error
	// Unlock releases whatever the caller holds; a no-op if not held.
	Unlock(ctx context.Context) error
}

// TxStore is the full storage contract a TxManager depends on: the
// transaction log plus the distributed lock. Implementations may satisfy
// both halves themselves (storemem does, for tests) or be assembled from
// two independent backends via Combine.
type TxStore interface {
	Log
	Locker
}

// combined glues an independently-chosen Log and Locker into one TxStore,
// e.g. storegorm.Store (the log) plus redislock.Lock (the lock).
type combined struct {
	Log
	Locker
}

// Combine assembles a TxStore from separately-constructed log and locker
// backends.
func Combine(log Log, locker Locker) TxStore {
	return &combined{Log: log, Locker: locker}
}
