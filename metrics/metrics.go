// Package metrics defines the coordinator's metrics surface as an
// injectable interface rather than a singleton, to ease testing. A
// Prometheus-backed implementation is provided; tests and callers that
// don't care about metrics use Noop.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector receives the handful of counters/gauges the coordinator emits.
// Implementations must be safe for concurrent use.
type Collector interface {
	// TransactionStarted is incremented once per StartTransaction call.
	TransactionStarted()
	// TransactionCompleted is incremented once a transaction reaches a
	// terminal status, tagged by the outcome ("successful" or "failure").
	TransactionCompleted(status string)
	// RetryAttempted is incremented once per retry attempt RetryExecutor
	// takes, tagged by phase ("confirm" or "cancel").
	RetryAttempted(phase string)
	// HangingTransactionCount records the size of the batch a Monitor tick
	// just fetched from GetHangingTXs.
	HangingTransactionCount(n int)
}

// Noop discards every observation. Useful for tests and for callers that
// don't want a Prometheus registry dependency.
type Noop struct{}

func (Noop) TransactionStarted()         {}
func (Noop) TransactionCompleted(string) {}
func (Noop) RetryAttempted(string)       {}
func (Noop) HangingTransactionCount(int) {}

// Prometheus implements Collector against a prometheus.Registerer. Metric
// names follow the <namespace>_<unit> convention used across the pack's
// telemetry setups.
type Prometheus struct {
	started      prometheus.Counter
	completed    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	hangingGauge prometheus.Gauge
}

// NewPrometheus registers the coordinator's metrics against reg and returns
// a ready Collector. Pass a prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcc",
			Name:      "transactions_started_total",
			Help:      "Number of StartTransaction calls.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcc",
			Name:      "transactions_completed_total",
			Help:      "Number of transactions reaching a terminal status, by status.",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcc",
			Name:      "retry_attempts_total",
			Help:      "Number of retry attempts taken by RetryExecutor, by phase.",
		}, []string{"phase"}),
		hangingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tcc",
			Name:      "hanging_transactions",
			Help:      "Size of the last batch fetched by a Monitor tick.",
		}),
	}
	reg.MustRegister(p.started, p.completed, p.retries, p.hangingGauge)
	return p
}

func (p *Prometheus) TransactionStarted() { p.started.Inc() }

func (p *Prometheus) TransactionCompleted(status string) { p.completed.WithLabelValues(status).Inc() }

func (p *Prometheus) RetryAttempted(phase string) { p.retries.WithLabelValues(phase).Inc() }

func (p *Prometheus) HangingTransactionCount(n int) { p.hangingGauge.Set(float64(n)) }
