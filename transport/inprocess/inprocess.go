// Package inprocess adapts a local Go value to participant.Participant
// directly, with no network hop — the simpler of the two transport packages
// (the other is httpparticipant), used by tests and the bundled demo.
package inprocess

import (
	"context"
	"fmt"
	"sync"

	"github.com/brnsampaio/tcc-coordinator/participant"
)

// Funcs adapts three plain closures to participant.Participant. Handy for
// tests that want to script a participant's behavior (fail Try, fail
// Confirm N times then succeed, etc.) without a dedicated type.
type Funcs struct {
	IDFn      string
	TryFn     func(ctx context.Context, req *participant.Request) (*participant.Response, error)
	ConfirmFn func(ctx context.Context, txID string) (*participant.Response, error)
	CancelFn  func(ctx context.Context, txID string) (*participant.Response, error)
}

func (f *Funcs) ID() string { return f.IDFn }

func (f *Funcs) Try(ctx context.Context, req *participant.Request) (*participant.Response, error) {
	return f.TryFn(ctx, req)
}

func (f *Funcs) Confirm(ctx context.Context, txID string) (*participant.Response, error) {
	return f.ConfirmFn(ctx, txID)
}

func (f *Funcs) Cancel(ctx context.Context, txID string) (*participant.Response, error) {
	return f.CancelFn(ctx, txID)
}

var _ participant.Participant = (*Funcs)(nil)

// resourceState tracks one reserved-then-finalized-or-released unit of
// business data, kept entirely in memory since this transport variant is
// in-process by definition.
type resourceState int

const (
	stateNone resourceState = iota
	stateFrozen
	stateCommitted
	stateReleased
)

// Resource is a minimal in-process participant demonstrating the
// freeze-on-Try / finalize-on-Confirm / release-on-Cancel shape every real
// TCC participant follows, idempotent by txID.
type Resource struct {
	id string

	mu   sync.Mutex
	byTx map[string]resourceState
}

// NewResource builds an in-process Resource participant with the given id.
func NewResource(id string) *Resource {
	return &Resource{id: id, byTx: make(map[string]resourceState)}
}

func (r *Resource) ID() string { return r.id }

func (r *Resource) Try(ctx context.Context, req *participant.Request) (*participant.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.byTx[req.TxID] {
	case stateFrozen, stateCommitted:
		return &participant.Response{TxID: req.TxID, ParticipantID: r.id, Ack: true}, nil
	case stateReleased:
		return &participant.Response{TxID: req.TxID, ParticipantID: r.id, Ack: false}, nil
	}

	r.byTx[req.TxID] = stateFrozen
	return &participant.Response{TxID: req.TxID, ParticipantID: r.id, Ack: true}, nil
}

func (r *Resource) Confirm(ctx context.Context, txID string) (*participant.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byTx[txID] == stateReleased {
		return &participant.Response{TxID: txID, ParticipantID: r.id, Ack: false}, nil
	}
	r.byTx[txID] = stateCommitted
	return &participant.Response{TxID: txID, ParticipantID: r.id, Ack: true}, nil
}

func (r *Resource) Cancel(ctx context.Context, txID string) (*participant.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byTx[txID] == stateCommitted {
		return nil, errCancelAfterConfirm(r.id, txID)
	}
	r.byTx[txID] = stateReleased
	return &participant.Response{TxID: txID, ParticipantID: r.id, Ack: true}, nil
}

func errCancelAfterConfirm(participantID, txID string) error {
	return fmt.Errorf("inprocess: cannot cancel %s, already confirmed for tx %s", participantID, txID)
}

var _ participant.Participant = (*Resource)(nil)
