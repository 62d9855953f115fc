// Package participant defines the capability contract a TCC coordinator
// drives. A Participant is opaque to the coordinator beyond its id and the
// three TCC operations.
package participant

import "context"

// Request carries the coordinator-assigned transaction id, the target
// participant id, and the caller-supplied business arguments for Try.
type Request struct {
	TxID          string
	ParticipantID string
	Args          map[string]interface{}
}

// Response is returned by Try, Confirm and Cancel. Ack reports whether the
// participant accepted the operation; a non-nil error or Ack=false from Try
// aborts the Try phase (see tcc package).
type Response struct {
	TxID          string
	ParticipantID string
	Ack           bool
}

// Participant is the capability set the coordinator relies on. All three
// operations must be idempotent for a given (TxID, ParticipantID) pair:
// Confirm and Cancel may be invoked more than once by the RetryExecutor or by
// the Monitor re-driving a transaction after a coordinator restart.
type Participant interface {
	// ID returns a stable identifier, unique within one TxManager instance.
	ID() string
	// Try reserves resources for the transaction. May fail for business
	// reasons; any Try failure aborts the whole transaction.
	Try(ctx context.Context, req *Request) (*Response, error)
	// Confirm finalizes a Try that already succeeded. Must eventually
	// succeed; the coordinator retries it under RetryExecutor and, once those
	// retries are exhausted, again on later Monitor ticks.
	Confirm(ctx context.Context, txID string) (*Response, error)
	// Cancel releases resources reserved by Try. Must eventually succeed.
	Cancel(ctx context.Context, txID string) (*Response, error)
}
