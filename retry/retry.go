// Package retry wraps a unary operation with exponential backoff and
// jitter, classifying failures as retryable or terminal by kind rather than
// by message. It is built on github.com/cenkalti/backoff/v5 instead of a
// hand-rolled sleep loop.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/brnsampaio/tcc-coordinator/txerr"
)

// Config parameterizes a RetryExecutor's backoff schedule.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            time.Duration
}

// DefaultConfig returns sane defaults expressed as real durations instead
// of raw tick counts.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            50 * time.Millisecond,
	}
}

// Executor runs operations under Config's backoff schedule.
type Executor struct {
	cfg Config
}

// NewExecutor builds an Executor. Zero-valued fields in cfg fall back to
// DefaultConfig's corresponding field.
func NewExecutor(cfg Config) *Executor {
	d := DefaultConfig()
	if cfg.MaxRetries > 0 {
		d.MaxRetries = cfg.MaxRetries
	}
	if cfg.BaseDelay > 0 {
		d.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		d.MaxDelay = cfg.MaxDelay
	}
	if cfg.BackoffMultiplier > 0 {
		d.BackoffMultiplier = cfg.BackoffMultiplier
	}
	if cfg.Jitter > 0 {
		d.Jitter = cfg.Jitter
	}
	return &Executor{cfg: d}
}

// jitteredBackOff decorates backoff.ExponentialBackOff, adding a uniform
// [0, jitter) delay on top of the exponential curve instead of the
// library's own multiplicative RandomizationFactor.
type jitteredBackOff struct {
	inner  *backoff.ExponentialBackOff
	jitter time.Duration
}

func (j *jitteredBackOff) Reset() {
	j.inner.Reset()
}

func (j *jitteredBackOff) NextBackOff() time.Duration {
	base := j.inner.NextBackOff()
	if base == backoff.Stop {
		return backoff.Stop
	}
	if j.jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(j.jitter)))
}

// Do runs op, retrying on retryable failures per Config until success, a
// terminal failure, or MaxRetries is exhausted (in which case the last
// failure is returned). A terminal failure surfaces immediately without
// sleeping.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	backOff := &jitteredBackOff{
		inner: &backoff.ExponentialBackOff{
			InitialInterval:     e.cfg.BaseDelay,
			MaxInterval:         e.cfg.MaxDelay,
			Multiplier:          e.cfg.BackoffMultiplier,
			RandomizationFactor: 0,
		},
		jitter: e.cfg.Jitter,
	}

	operation := func() (struct{}, error) {
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !txerr.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backOff),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries)+1),
	)
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
