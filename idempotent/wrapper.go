// Package idempotent provides an opt-in dedup-key wrapper for participants
// whose Confirm/Cancel aren't naturally idempotent. The core never assumes
// this wrapper is present — idempotency is a participant-side obligation —
// but it demonstrates one way to satisfy that obligation for a participant
// backed by a side table instead of by its own business logic.
package idempotent

import (
	"context"
	"sync"

	"github.com/brnsampaio/tcc-coordinator/participant"
)

// KeyStore records which (txID, phase) dedup keys have already completed.
// A process-local map is enough for a single coordinator instance; a
// participant shared across instances should back this with its own
// storage.
type KeyStore interface {
	// MarkDone records that phase completed for txID, returning whether
	// this call was the one that recorded it (false means it was already
	// done and the underlying operation must be skipped).
	MarkDone(txID, phase string) (first bool)
}

// memKeyStore is the default process-local KeyStore.
type memKeyStore struct {
	mu   sync.Mutex
	done map[string]struct{}
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{done: make(map[string]struct{})}
}

func (m *memKeyStore) MarkDone(txID, phase string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := txID + "|" + phase
	if _, ok := m.done[key]; ok {
		return false
	}
	m.done[key] = struct{}{}
	return true
}

// Wrapper adapts an underlying participant.Participant, deduplicating
// repeated Confirm/Cancel calls against the same transaction by key.
type Wrapper struct {
	inner participant.Participant
	keys  KeyStore
}

// Wrap returns a Wrapper backed by a process-local KeyStore. Use WrapWith
// to supply a shared KeyStore across instances.
func Wrap(inner participant.Participant) *Wrapper {
	return WrapWith(inner, newMemKeyStore())
}

// WrapWith returns a Wrapper backed by the given KeyStore.
func WrapWith(inner participant.Participant, keys KeyStore) *Wrapper {
	return &Wrapper{inner: inner, keys: keys}
}

func (w *Wrapper) ID() string { return w.inner.ID() }

func (w *Wrapper) Try(ctx context.Context, req *participant.Request) (*participant.Response, error) {
	return w.inner.Try(ctx, req)
}

func (w *Wrapper) Confirm(ctx context.Context, txID string) (*participant.Response, error) {
	if !w.keys.MarkDone(txID, "confirm") {
		return &participant.Response{TxID: txID, ParticipantID: w.inner.ID(), Ack: true}, nil
	}
	return w.inner.Confirm(ctx, txID)
}

func (w *Wrapper) Cancel(ctx context.Context, txID string) (*participant.Response, error) {
	if !w.keys.MarkDone(txID, "cancel") {
		return &participant.Response{TxID: txID, ParticipantID: w.inner.ID(), Ack: true}, nil
	}
	return w.inner.Cancel(ctx, txID)
}

var _ participant.Participant = (*Wrapper)(nil)
