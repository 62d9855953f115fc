package storemem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

func TestCreateTx_AllEntriesHanging(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.CreateTx(ctx, []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("CreateTx: %v", err)
	}

	tx, err := s.GetTX(ctx, id)
	if err != nil {
		t.Fatalf("GetTX: %v", err)
	}
	if tx.Status != txstore.TxHanging {
		t.Fatalf("status = %s, want Hanging", tx.Status)
	}
	if len(tx.ParticipantStatuses) != 2 {
		t.Fatalf("len(ParticipantStatuses) = %d, want 2", len(tx.ParticipantStatuses))
	}
	for _, e := range tx.ParticipantStatuses {
		if e.TryStatus != txstore.TryHanging {
			t.Fatalf("entry status = %s, want Hanging", e.TryStatus)
		}
	}
}

func TestTXUpdateComponentStatus_UnknownTx(t *testing.T) {
	s := New()
	err := s.TXUpdateComponentStatus(context.Background(), "missing", "a", true)
	if !errors.Is(err, txerr.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestTXUpdateComponentStatus_FirstWriterWins(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.CreateTx(ctx, []string{"a"}, nil)

	if err := s.TXUpdateComponentStatus(ctx, id, "a", false); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// A late success must not overwrite the already-recorded failure.
	if err := s.TXUpdateComponentStatus(ctx, id, "a", true); err != nil {
		t.Fatalf("second update: %v", err)
	}

	tx, _ := s.GetTX(ctx, id)
	if tx.ParticipantStatuses["a"].TryStatus != txstore.TryFailure {
		t.Fatalf("status = %s, want Failure to stick", tx.ParticipantStatuses["a"].TryStatus)
	}
}

func TestTXSubmit_IdempotentNoOp(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.CreateTx(ctx, []string{"a"}, nil)

	if err := s.TXSubmit(ctx, id, true); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := s.TXSubmit(ctx, id, true); err != nil {
		t.Fatalf("second submit with same outcome should be a no-op: %v", err)
	}

	if err := s.TXSubmit(ctx, id, false); !errors.Is(err, txerr.ErrInvalidTransactionState) {
		t.Fatalf("conflicting submit err = %v, want ErrInvalidTransactionState", err)
	}
}

func TestGetHangingTXs_OrderedByCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := s.CreateTx(ctx, []string{"a"}, nil)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	batch, err := s.GetHangingTXs(ctx)
	if err != nil {
		t.Fatalf("GetHangingTXs: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("len(batch) = %d, want 3", len(batch))
	}
	for i, tx := range batch {
		if tx.ID != ids[i] {
			t.Fatalf("batch[%d].ID = %s, want %s (created-at order)", i, tx.ID, ids[i])
		}
	}
}

func TestLock_SerializesConcurrentCallers(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Lock(ctx, time.Second); err != nil {
		t.Fatalf("first Lock: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		if err := s.Lock(ctx, time.Second); err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired before first Unlock")
	case <-time.After(50 * time.Millisecond):
	}

	if err := s.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second Lock never acquired after Unlock")
	}
	_ = s.Unlock(ctx)
}

func TestLock_TimesOutWhenUnavailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Lock(ctx, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	err := s.Lock(ctx, 20*time.Millisecond)
	if !errors.Is(err, txerr.ErrLockAcquisition) {
		t.Fatalf("err = %v, want ErrLockAcquisition", err)
	}
}
