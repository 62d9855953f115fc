// Package storemem provides an in-memory TxStore for unit tests and local
// development. It satisfies the same contract as storegorm, including
// monotonic ids and first-writer-wins semantics on participant entries, but
// holds no durability guarantee across process restarts — use storegorm
// wherever crash-safety actually matters.
package storemem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

// Store is a mutex-guarded, process-local TxStore.
type Store struct {
	mu       sync.Mutex
	nextID   uint64
	records  map[string]*txstore.Transaction
	locked   bool
	lockedBy chan struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*txstore.Transaction),
	}
}

func (s *Store) CreateTx(ctx context.Context, participantIDs []string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := formatID(s.nextID)

	statuses := make(map[string]*txstore.ParticipantEntry, len(participantIDs))
	for _, pid := range participantIDs {
		statuses[pid] = &txstore.ParticipantEntry{
			ParticipantID: pid,
			TryStatus:     txstore.TryHanging,
		}
	}

	s.records[id] = &txstore.Transaction{
		ID:                  id,
		Status:              txstore.TxHanging,
		ParticipantStatuses: statuses,
		CreatedAt:           time.Now(),
		Metadata:            metadata,
	}
	return id, nil
}

func (s *Store) TXUpdateComponentStatus(ctx context.Context, txID string, participantID string, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.records[txID]
	if !ok {
		return txerr.ErrTransactionNotFound
	}
	entry, ok := tx.ParticipantStatuses[participantID]
	if !ok {
		return txerr.NewStorageError("TXUpdateComponentStatus", errUnknownParticipant(participantID))
	}

	// First-writer-wins: a late Try completing after the phase already
	// recorded a terminal status for this participant must not overwrite it.
	if entry.TryStatus != txstore.TryHanging {
		return nil
	}
	if accept {
		entry.TryStatus = txstore.TrySuccessful
	} else {
		entry.TryStatus = txstore.TryFailure
	}
	return nil
}

func (s *Store) TXSubmit(ctx context.Context, txID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.records[txID]
	if !ok {
		return txerr.ErrTransactionNotFound
	}

	want := txstore.TxFailure
	if success {
		want = txstore.TxSuccessful
	}

	if tx.Status == want {
		return nil // idempotent no-op
	}
	if tx.Status != txstore.TxHanging {
		return txerr.ErrInvalidTransactionState
	}
	tx.Status = want
	return nil
}

func (s *Store) GetHangingTXs(ctx context.Context) ([]*txstore.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hanging := make([]*txstore.Transaction, 0)
	for _, tx := range s.records {
		if tx.Status == txstore.TxHanging {
			hanging = append(hanging, cloneTx(tx))
		}
	}
	sort.Slice(hanging, func(i, j int) bool {
		return hanging[i].CreatedAt.Before(hanging[j].CreatedAt)
	})
	const maxHangingBatch = 100
	if len(hanging) > maxHangingBatch {
		hanging = hanging[:maxHangingBatch]
	}
	return hanging, nil
}

func (s *Store) GetTX(ctx context.Context, txID string) (*txstore.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.records[txID]
	if !ok {
		return nil, txerr.ErrTransactionNotFound
	}
	return cloneTx(tx), nil
}

func (s *Store) Lock(ctx context.Context, expire time.Duration) error {
	s.mu.Lock()
	if !s.locked {
		s.locked = true
		s.lockedBy = make(chan struct{})
		s.mu.Unlock()
		return nil
	}
	waitOn := s.lockedBy
	s.mu.Unlock()

	timer := time.NewTimer(expire)
	defer timer.Stop()
	select {
	case <-waitOn:
		return s.Lock(ctx, expire)
	case <-timer.C:
		return txerr.ErrLockAcquisition
	case <-ctx.Done():
		return txerr.ErrLockAcquisition
	}
}

func (s *Store) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return nil
	}
	s.locked = false
	close(s.lockedBy)
	s.lockedBy = nil
	return nil
}

func formatID(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func errUnknownParticipant(id string) error {
	return fmt.Errorf("participant %q not part of this transaction", id)
}

func cloneTx(tx *txstore.Transaction) *txstore.Transaction {
	cp := *tx
	cp.ParticipantStatuses = make(map[string]*txstore.ParticipantEntry, len(tx.ParticipantStatuses))
	for id, entry := range tx.ParticipantStatuses {
		e := *entry
		cp.ParticipantStatuses[id] = &e
	}
	return &cp
}
