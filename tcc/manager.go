// Package tcc implements the transaction lifecycle engine: TxManager drives
// participants through Try/Confirm/Cancel, and its embedded Monitor
// periodically reconciles hanging transactions. This is the core the other
// adapters (storegorm, redislock, transports) plug into.
package tcc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brnsampaio/tcc-coordinator/config"
	"github.com/brnsampaio/tcc-coordinator/metrics"
	"github.com/brnsampaio/tcc-coordinator/participant"
	"github.com/brnsampaio/tcc-coordinator/retry"
	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstate"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

// Outcome discriminates why StartTransaction didn't succeed: callers that
// only care about pass/fail can keep reading Success; callers that need to
// tell a timeout apart from a business rejection read Outcome.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeBusinessFailure Outcome = "business_failure"
)

// TransactionOptions carries the per-call overrides StartTransaction
// accepts: an optional Try-phase timeout override and free-form metadata
// recorded on the Transaction and handed to every participant's Try as
// business arguments. The coordinator has no per-participant argument
// channel of its own — every registered participant's Try receives the
// same metadata map.
type TransactionOptions struct {
	Timeout  time.Duration
	Metadata map[string]string
}

// StartResult is StartTransaction's return value.
type StartResult struct {
	TxID    string
	Success bool
	Outcome Outcome
}

// HealthStatus is GetHealth's return value.
type HealthStatus struct {
	Healthy          bool
	InstanceID       string
	ParticipantCount int
	MonitorEnabled   bool
	MetricsEnabled   bool
}

// TxManager is the coordinator core: participant registry, Try/Confirm/
// Cancel orchestration, and the background Monitor.
type TxManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts           config.Options
	store          txstore.TxStore
	registry       *registry
	retryExec      *retry.Executor
	metrics        metrics.Collector
	metricsEnabled bool
	logger         *zap.Logger
	instanceID     string

	monitorWG sync.WaitGroup
}

// Option configures a TxManager at construction time.
type Option func(*managerSettings)

type managerSettings struct {
	opts    config.Options
	metrics metrics.Collector
	logger  *zap.Logger
}

func WithOptions(o config.Options) Option {
	return func(s *managerSettings) { s.opts = o }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *managerSettings) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *managerSettings) { s.logger = l }
}

// New builds a TxManager over store and starts its Monitor goroutine if
// config.Options.EnableMonitor is set.
func New(store txstore.TxStore, opts ...Option) *TxManager {
	settings := &managerSettings{
		metrics: metrics.Noop{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(settings)
	}
	config.Repair(&settings.opts)

	_, isNoop := settings.metrics.(metrics.Noop)

	ctx, cancel := context.WithCancel(context.Background())
	m := &TxManager{
		ctx:            ctx,
		cancel:         cancel,
		opts:           settings.opts,
		store:          store,
		registry:       newRegistry(),
		retryExec:      retry.NewExecutor(settings.opts.Retry),
		metrics:        settings.metrics,
		metricsEnabled: !isNoop,
		logger:         settings.logger,
		instanceID:     uuid.NewString(),
	}

	if settings.opts.EnableMonitor {
		m.monitorWG.Add(1)
		go m.runMonitor()
	}

	return m
}

// Register adds p to the in-process participant set. Fails with
// txerr.ErrDuplicateParticipant if p.ID() is already registered.
func (m *TxManager) Register(p participant.Participant) error {
	return m.registry.register(p)
}

// StartTransaction snapshots the registered participant set, creates a
// durable transaction record, fans Try out to every participant within the
// Try-phase timeout, and best-effort advances the transaction before
// returning. Success is true iff every Try succeeded within the timeout and
// no terminal storage error occurred while recording Try results.
func (m *TxManager) StartTransaction(ctx context.Context, opts TransactionOptions) (*StartResult, error) {
	participants := m.registry.snapshot()
	if len(participants) == 0 {
		return nil, txerr.ErrNoParticipantsRegistered
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.opts.Timeout
	}

	participantIDs := make([]string, len(participants))
	for i, p := range participants {
		participantIDs[i] = p.ID()
	}

	txID, err := m.store.CreateTx(ctx, participantIDs, opts.Metadata)
	if err != nil {
		return nil, err
	}
	m.metrics.TransactionStarted()

	outcome := m.runTryPhase(ctx, txID, participants, opts.Metadata, timeout)

	if err := m.AdvanceTransactionProgress(m.ctx, txID); err != nil {
		m.logger.Warn("advance after try phase failed, monitor will retry",
			zap.String("tx_id", txID), zap.Error(err))
	}

	return &StartResult{
		TxID:    txID,
		Success: outcome == OutcomeOK,
		Outcome: outcome,
	}, nil
}

// runTryPhase races the registered participants' Try calls (each followed
// by its TXUpdateComponentStatus write) against a deadline timer. It
// returns as soon as the first of {all succeeded, any failure, deadline}
// resolves; participants still running at that point are abandoned, not
// forcibly cancelled.
func (m *TxManager) runTryPhase(ctx context.Context, txID string, participants []participant.Participant, args map[string]string, timeout time.Duration) Outcome {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bizArgs := make(map[string]interface{}, len(args))
	for k, v := range args {
		bizArgs[k] = v
	}

	type tryOutcome struct {
		err error
	}
	results := make(chan tryOutcome, len(participants))

	go func() {
		var wg sync.WaitGroup
		for _, p := range participants {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := p.Try(cctx, &participant.Request{
					TxID:          txID,
					ParticipantID: p.ID(),
					Args:          bizArgs,
				})
				accept := err == nil && resp != nil && resp.Ack
				updateErr := m.store.TXUpdateComponentStatus(cctx, txID, p.ID(), accept)
				if updateErr != nil {
					m.logger.Warn("failed to record try result",
						zap.String("tx_id", txID), zap.String("participant_id", p.ID()), zap.Error(updateErr))
				}
				if !accept {
					cause := err
					if cause == nil {
						cause = fmt.Errorf("participant %s declined try", p.ID())
					}
					results <- tryOutcome{err: txerr.NewParticipantError("try", p.ID(), cause, false)}
					return
				}
				// A terminal error recording the result ends the phase the
				// same way a rejected Try does; retryable ones are only logged.
				if updateErr != nil && !txerr.IsRetryable(updateErr) {
					results <- tryOutcome{err: updateErr}
					return
				}
				results <- tryOutcome{}
			}()
		}
		wg.Wait()
		close(results)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	completed := 0
	for completed < len(participants) {
		select {
		case res, ok := <-results:
			if !ok {
				return OutcomeOK
			}
			completed++
			if res.err != nil {
				return OutcomeBusinessFailure
			}
		case <-timer.C:
			return OutcomeTimeout
		case <-ctx.Done():
			return OutcomeTimeout
		}
	}
	return OutcomeOK
}

// AdvanceTransactionProgress fetches tx by id and drives it to Confirm or
// Cancel if its aggregate status has resolved, or leaves it untouched if
// still Hanging. Idempotent: calling it repeatedly on a terminal
// transaction is a no-op beyond the first call (TXSubmit itself is
// idempotent).
func (m *TxManager) AdvanceTransactionProgress(ctx context.Context, txID string) error {
	tx, err := m.store.GetTX(ctx, txID)
	if err != nil {
		return err
	}
	return m.advance(ctx, tx)
}

func (m *TxManager) advance(ctx context.Context, tx *txstore.Transaction) error {
	registeredIDs := m.registry.ids()
	cutoff := time.Now().Add(-m.opts.Timeout)
	status := txstate.Aggregate(tx, registeredIDs, cutoff)

	if status == txstore.TxHanging {
		return nil
	}

	success := status == txstore.TxSuccessful
	phase := "cancel"
	if success {
		phase = "confirm"
	}

	if err := m.fanOutSecondPhase(ctx, tx, success, phase); err != nil {
		return err
	}

	if err := m.store.TXSubmit(ctx, tx.ID, success); err != nil {
		return err
	}
	m.metrics.TransactionCompleted(string(status))
	return nil
}

// fanOutSecondPhase runs Confirm (success) or Cancel (!success) against
// every registered participant the transaction recorded, each under
// RetryExecutor. It returns the first unresolved participant's error
// without calling TXSubmit, leaving the transaction Hanging rather than
// submitting a partially-applied outcome.
func (m *TxManager) fanOutSecondPhase(ctx context.Context, tx *txstore.Transaction, success bool, phase string) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(tx.ParticipantStatuses))

	for id := range tx.ParticipantStatuses {
		p, ok := m.registry.get(id)
		if !ok {
			errs <- fmt.Errorf("tcc: participant %s not registered, cannot %s tx %s", id, phase, tx.ID)
			continue
		}

		wg.Add(1)
		go func(p participant.Participant) {
			defer wg.Done()
			attempt := 0
			err := m.retryExec.Do(ctx, func(ctx context.Context) error {
				if attempt > 0 {
					m.metrics.RetryAttempted(phase)
				}
				attempt++
				var resp *participant.Response
				var err error
				if success {
					resp, err = p.Confirm(ctx, tx.ID)
				} else {
					resp, err = p.Cancel(ctx, tx.ID)
				}
				if err != nil {
					return txerr.NewParticipantError(phase, p.ID(), err, txerr.IsRetryable(err))
				}
				if resp == nil || !resp.Ack {
					return txerr.NewParticipantError(phase, p.ID(), fmt.Errorf("no ack"), true)
				}
				return nil
			})
			if err != nil {
				m.logger.Warn("second phase exhausted retries",
					zap.String("tx_id", tx.ID), zap.String("participant_id", p.ID()),
					zap.String("phase", phase), zap.Error(err))
				errs <- err
			}
		}(p)
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

// Stop signals the Monitor loop to exit after its current iteration and
// blocks until it has joined. In-flight StartTransaction calls are not
// forcibly cancelled.
func (m *TxManager) Stop() {
	m.cancel()
	m.monitorWG.Wait()
}

// GetHealth reports the coordinator's current self-observed state.
func (m *TxManager) GetHealth() HealthStatus {
	return HealthStatus{
		Healthy:          true,
		InstanceID:       m.instanceID,
		ParticipantCount: len(m.registry.snapshot()),
		MonitorEnabled:   m.opts.EnableMonitor,
		MetricsEnabled:   m.metricsEnabled,
	}
}
