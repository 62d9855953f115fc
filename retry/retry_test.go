package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brnsampaio/tcc-coordinator/txerr"
)

func fastConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            time.Millisecond,
	}
}

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesRetryableThenSucceeds(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return txerr.NewStorageError("update", errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_TerminalErrorSurfacesImmediately(t *testing.T) {
	e := NewExecutor(fastConfig())
	calls := 0
	want := txerr.ErrInvalidTransactionState
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (terminal error must not be retried)", calls)
	}
}

func TestDo_ExhaustsMaxRetriesAndSurfacesLastError(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2
	e := NewExecutor(cfg)

	calls := 0
	lastErr := errors.New("still failing")
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return txerr.NewParticipantError("confirm", "p1", lastErr, true)
	})
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	if !errors.Is(err, lastErr) {
		t.Fatalf("err = %v, want it to wrap %v", err, lastErr)
	}
	// MaxRetries=2 means up to 3 total attempts (1 initial + 2 retries).
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	e := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, func(ctx context.Context) error {
		calls++
		return txerr.NewStorageError("update", errors.New("transient"))
	})
	if err == nil {
		t.Fatal("expected an error when the context is already cancelled")
	}
}
