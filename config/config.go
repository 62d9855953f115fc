// Package config holds the TxManager's tunables, in a functional-options
// idiom (Options struct + Option funcs), plus a small environment-variable
// loader for the values that only make sense at process start (store DSN,
// lock backend address).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/brnsampaio/tcc-coordinator/retry"
)

// Options configures a TxManager.
type Options struct {
	// Timeout bounds the Try phase for one transaction.
	Timeout time.Duration
	// MonitorInterval spaces Monitor ticks.
	MonitorInterval time.Duration
	// EnableMonitor gates whether the Monitor loop runs at all.
	EnableMonitor bool
	// Retry configures the RetryExecutor used for Confirm/Cancel fan-out.
	Retry retry.Config
}

// Option mutates an Options in place.
type Option func(*Options)

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.Timeout = timeout }
}

func WithMonitorInterval(interval time.Duration) Option {
	return func(o *Options) { o.MonitorInterval = interval }
}

func WithMonitorEnabled(enabled bool) Option {
	return func(o *Options) { o.EnableMonitor = enabled }
}

func WithRetryConfig(cfg retry.Config) Option {
	return func(o *Options) { o.Retry = cfg }
}

// Repair normalizes zero-valued fields to safe defaults.
func Repair(o *Options) {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = 10 * time.Second
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = retry.DefaultConfig()
	}
}

// StoreConfig holds the storegorm/redislock backend wiring, loaded from the
// environment so it never ends up hardcoded next to the core logic.
type StoreConfig struct {
	DSN            string
	RedisAddr      string
	RedisPassword  string
	MetricsEnabled bool
}

// LoadStoreConfig reads TCC_DSN, TCC_REDIS_ADDR, TCC_REDIS_PASSWORD and
// TCC_METRICS_ENABLED from the environment, applying sane local-dev
// defaults when unset.
func LoadStoreConfig() StoreConfig {
	cfg := StoreConfig{
		DSN:       "tcc.db",
		RedisAddr: "127.0.0.1:6379",
	}
	if v := os.Getenv("TCC_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("TCC_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.RedisPassword = os.Getenv("TCC_REDIS_PASSWORD")
	if v := os.Getenv("TCC_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.MetricsEnabled = enabled
		}
	}
	return cfg
}
