package tcc

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

// runMonitor is the reconciliation loop: sleep, lock, fetch hanging
// transactions, advance them concurrently, unlock, repeat — with a flat
// 3x backoff after a tick that errors out, rather than doubling.
func (m *TxManager) runMonitor() {
	defer m.monitorWG.Done()

	interval := m.opts.MonitorInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
		}

		if err := m.tick(); err != nil {
			m.logger.Warn("monitor tick failed, backing off", zap.Error(err))
			interval = 3 * m.opts.MonitorInterval
		} else {
			interval = m.opts.MonitorInterval
		}
		timer.Reset(interval)
	}
}

// tick runs one reconciliation pass: acquire the cluster lock, fetch the
// hanging batch, advance every transaction in it concurrently, and always
// release the lock before returning.
func (m *TxManager) tick() (err error) {
	if lockErr := m.store.Lock(m.ctx, m.opts.MonitorInterval*2); lockErr != nil {
		if lockErr == txerr.ErrLockAcquisition {
			return nil // another instance holds it; skip this tick quietly
		}
		return lockErr
	}
	defer func() {
		if unlockErr := m.store.Unlock(m.ctx); unlockErr != nil {
			m.logger.Warn("failed to release monitor lock", zap.Error(unlockErr))
		}
	}()

	batch, err := m.store.GetHangingTXs(m.ctx)
	if err != nil {
		return err
	}
	m.metrics.HangingTransactionCount(len(batch))

	// Per-transaction failures are logged by advanceBatch and do not fail
	// the tick, so they do not trigger the monitor's back-off.
	_ = m.advanceBatch(batch)
	return nil
}

// advanceBatch advances every transaction in batch concurrently, collecting
// per-transaction failures without aborting the rest of the tick.
func (m *TxManager) advanceBatch(batch []*txstore.Transaction) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(batch))

	for _, tx := range batch {
		tx := tx
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.advance(m.ctx, tx); err != nil {
				m.logger.Warn("advance failed during monitor tick",
					zap.String("tx_id", tx.ID), zap.Error(err))
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
	}
	return first
}
