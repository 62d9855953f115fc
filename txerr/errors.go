// Package txerr collects the error taxonomy shared by the store, the retry
// executor and the transaction manager. Classification is by sentinel, never
// by message text, so RetryExecutor can tell retryable errors from terminal
// ones without string matching.
package txerr

import (
	"errors"
	"fmt"
)

// Sentinels participants of errors.Is checks throughout the coordinator.
var (
	ErrTransactionNotFound      = errors.New("tcc: transaction not found")
	ErrDuplicateParticipant     = errors.New("tcc: duplicate participant id")
	ErrNoParticipantsRegistered = errors.New("tcc: no participants registered")
	ErrInvalidTransactionState  = errors.New("tcc: invalid transaction state transition")
	ErrLockAcquisition          = errors.New("tcc: failed to acquire distributed lock")
	ErrTransactionTimeout       = errors.New("tcc: try phase exceeded its timeout")
)

// Retryable marks an error that RetryExecutor should back off and retry,
// as opposed to surfacing immediately.
type Retryable interface {
	Retryable() bool
}

// StorageError wraps a transient storage failure. It is always retryable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tcc: storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Retryable() bool { return true }

// NewStorageError wraps err as a retryable StorageError tagged with the
// operation name that failed.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ParticipantExecutionError reports a failure executing a phase against a
// specific participant. Whether it is retryable depends on the wrapped
// cause: network/timeout causes are retryable, business rejections are not.
type ParticipantExecutionError struct {
	Phase         string // "try", "confirm", "cancel"
	ParticipantID string
	Cause         error
	retryable     bool
}

func (e *ParticipantExecutionError) Error() string {
	return fmt.Sprintf("tcc: participant %s failed during %s: %v", e.ParticipantID, e.Phase, e.Cause)
}

func (e *ParticipantExecutionError) Unwrap() error { return e.Cause }

func (e *ParticipantExecutionError) Retryable() bool { return e.retryable }

// NewParticipantError builds a ParticipantExecutionError; retryable should
// reflect the underlying cause's nature, not the phase.
func NewParticipantError(phase, participantID string, cause error, retryable bool) error {
	return &ParticipantExecutionError{
		Phase:         phase,
		ParticipantID: participantID,
		Cause:         cause,
		retryable:     retryable,
	}
}

// IsRetryable classifies err by kind, not message. Terminal sentinels
// (TransactionNotFound, DuplicateParticipant, InvalidTransactionState) and
// TransactionTimeout are never retryable. Anything implementing Retryable is
// asked directly. Unrecognized errors default to terminal: an unknown error
// is safer to surface than to retry forever.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrDuplicateParticipant),
		errors.Is(err, ErrInvalidTransactionState),
		errors.Is(err, ErrTransactionTimeout),
		errors.Is(err, ErrNoParticipantsRegistered):
		return false
	case errors.Is(err, ErrLockAcquisition):
		return true
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
