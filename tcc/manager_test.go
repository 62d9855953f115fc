package tcc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brnsampaio/tcc-coordinator/config"
	"github.com/brnsampaio/tcc-coordinator/participant"
	"github.com/brnsampaio/tcc-coordinator/retry"
	"github.com/brnsampaio/tcc-coordinator/storemem"
	"github.com/brnsampaio/tcc-coordinator/transport/inprocess"
	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

func testOptions() config.Options {
	return config.Options{
		Timeout:         200 * time.Millisecond,
		MonitorInterval: 30 * time.Millisecond,
		EnableMonitor:   false,
		Retry: retry.Config{
			MaxRetries:        3,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
			Jitter:            time.Millisecond,
		},
	}
}

func ackTry(id string) func(ctx context.Context, req *participant.Request) (*participant.Response, error) {
	return func(ctx context.Context, req *participant.Request) (*participant.Response, error) {
		return &participant.Response{TxID: req.TxID, ParticipantID: id, Ack: true}, nil
	}
}

func ackPhase(id string) func(ctx context.Context, txID string) (*participant.Response, error) {
	return func(ctx context.Context, txID string) (*participant.Response, error) {
		return &participant.Response{TxID: txID, ParticipantID: id, Ack: true}, nil
	}
}

// S1: two participants, both Try succeed, both Confirm succeed.
func TestStartTransaction_HappyPath(t *testing.T) {
	store := storemem.New()
	m := New(store, WithOptions(testOptions()))
	defer m.Stop()

	inventory := inprocess.NewResource("inventory")
	payments := inprocess.NewResource("payments")
	require.NoError(t, m.Register(inventory))
	require.NoError(t, m.Register(payments))

	result, err := m.StartTransaction(context.Background(), TransactionOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, OutcomeOK, result.Outcome)

	tx, err := store.GetTX(context.Background(), result.TxID)
	require.NoError(t, err)
	assert.Equal(t, txstore.TxSuccessful, tx.Status)
}

// S2: one participant rejects Try; the whole transaction must fail and be
// driven through Cancel, which reaches the rejecting participant exactly once.
func TestStartTransaction_OneTryFails(t *testing.T) {
	store := storemem.New()
	m := New(store, WithOptions(testOptions()))
	defer m.Stop()

	var cancelled int32
	good := inprocess.NewResource("inventory")
	bad := &inprocess.Funcs{
		IDFn: "payments",
		TryFn: func(ctx context.Context, req *participant.Request) (*participant.Response, error) {
			return &participant.Response{TxID: req.TxID, ParticipantID: "payments", Ack: false}, nil
		},
		ConfirmFn: ackPhase("payments"),
		CancelFn: func(ctx context.Context, txID string) (*participant.Response, error) {
			atomic.AddInt32(&cancelled, 1)
			return &participant.Response{TxID: txID, ParticipantID: "payments", Ack: true}, nil
		},
	}
	require.NoError(t, m.Register(good))
	require.NoError(t, m.Register(bad))

	result, err := m.StartTransaction(context.Background(), TransactionOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, OutcomeBusinessFailure, result.Outcome)

	tx, err := store.GetTX(context.Background(), result.TxID)
	require.NoError(t, err)
	assert.Equal(t, txstore.TxFailure, tx.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
}

// S3: a participant's Try never returns inside the timeout window; the Try
// phase must resolve as a timeout instead of hanging forever.
func TestStartTransaction_TryTimeout(t *testing.T) {
	store := storemem.New()
	opts := testOptions()
	opts.Timeout = 30 * time.Millisecond
	m := New(store, WithOptions(opts))
	defer m.Stop()

	slow := &inprocess.Funcs{
		IDFn: "slow",
		TryFn: func(ctx context.Context, req *participant.Request) (*participant.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		ConfirmFn: ackPhase("slow"),
		CancelFn:  ackPhase("slow"),
	}
	require.NoError(t, m.Register(slow))

	result, err := m.StartTransaction(context.Background(), TransactionOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.False(t, result.Success)
}

// S4: Confirm fails transiently twice, then succeeds; RetryExecutor must
// carry the transaction to TxSuccessful without StartTransaction itself
// surfacing an error.
func TestStartTransaction_ConfirmRetriesThenSucceeds(t *testing.T) {
	store := storemem.New()
	m := New(store, WithOptions(testOptions()))
	defer m.Stop()

	var attempts int32
	flaky := &inprocess.Funcs{
		IDFn:  "flaky",
		TryFn: ackTry("flaky"),
		ConfirmFn: func(ctx context.Context, txID string) (*participant.Response, error) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				// A transient StorageError, not a bare error, so
				// txerr.IsRetryable classifies it as retryable and
				// RetryExecutor actually retries instead of surfacing it.
				return nil, txerr.NewStorageError("confirm", errors.New("transient confirm failure"))
			}
			return &participant.Response{TxID: txID, ParticipantID: "flaky", Ack: true}, nil
		},
		CancelFn: ackPhase("flaky"),
	}
	require.NoError(t, m.Register(flaky))

	result, err := m.StartTransaction(context.Background(), TransactionOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)

	tx, err := store.GetTX(context.Background(), result.TxID)
	require.NoError(t, err)
	assert.Equal(t, txstore.TxSuccessful, tx.Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

// S5: a transaction whose Try phase already completed successfully in the
// store, but whose second phase never ran (simulating a coordinator crash
// between recording Try results and fanning out Confirm), must still reach
// TxSuccessful once the background Monitor picks it up.
func TestMonitor_PicksUpCrashedTransaction(t *testing.T) {
	store := storemem.New()
	opts := testOptions()
	opts.EnableMonitor = true
	opts.MonitorInterval = 20 * time.Millisecond
	m := New(store, WithOptions(opts))
	defer m.Stop()

	participant1 := inprocess.NewResource("inventory")
	require.NoError(t, m.Register(participant1))

	txID, err := store.CreateTx(context.Background(), []string{"inventory"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.TXUpdateComponentStatus(context.Background(), txID, "inventory", true))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tx, err := store.GetTX(context.Background(), txID)
		require.NoError(t, err)
		if tx.Status == txstore.TxSuccessful {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("monitor never advanced the crashed transaction to TxSuccessful")
}

// S6: registering the same participant id twice must fail without mutating
// the registry.
func TestRegister_DuplicateParticipantRejected(t *testing.T) {
	store := storemem.New()
	m := New(store, WithOptions(testOptions()))
	defer m.Stop()

	first := inprocess.NewResource("inventory")
	second := inprocess.NewResource("inventory")

	require.NoError(t, m.Register(first))
	err := m.Register(second)
	assert.Error(t, err)
	assert.Equal(t, 1, m.GetHealth().ParticipantCount)
}

func TestStartTransaction_NoParticipantsRegistered(t *testing.T) {
	store := storemem.New()
	m := New(store, WithOptions(testOptions()))
	defer m.Stop()

	_, err := m.StartTransaction(context.Background(), TransactionOptions{})
	assert.Error(t, err)
}

func TestGetHealth_ReportsParticipantCountAndMonitorState(t *testing.T) {
	store := storemem.New()
	opts := testOptions()
	opts.EnableMonitor = true
	m := New(store, WithOptions(opts))
	defer m.Stop()

	require.NoError(t, m.Register(inprocess.NewResource("inventory")))

	health := m.GetHealth()
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.ParticipantCount)
	assert.True(t, health.MonitorEnabled)
	assert.NotEmpty(t, health.InstanceID)
}
