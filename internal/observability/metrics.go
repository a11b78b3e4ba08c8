// Package observability provides Prometheus metrics for the mixer ledger.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"privacymixer/internal/models"
)

// Metrics holds the ledger metrics and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	DepositsCreated      *prometheus.CounterVec
	WithdrawalsProcessed *prometheus.CounterVec
	OperationsRejected   *prometheus.CounterVec

	// Side-effect metrics
	MirrorFailures  *prometheus.CounterVec
	PublishFailures prometheus.Counter
	CommandsHandled *prometheus.CounterVec

	// Pool gauges
	PoolLiquidity    *prometheus.GaugeVec
	PoolAnonymitySet *prometheus.GaugeVec
	PoolFundBalance  *prometheus.GaugeVec

	// Health
	LastSnapshot prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "privacy_mixer"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DepositsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposits_created_total",
			Help:      "Total number of deposits recorded by currency",
		}, []string{"currency"}),
		WithdrawalsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "withdrawals_processed_total",
			Help:      "Total number of withdrawals processed by currency and relayer use",
		}, []string{"currency", "relayer"}),
		OperationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_rejected_total",
			Help:      "Total number of rejected ledger operations by operation and reason",
		}, []string{"operation", "reason"}),

		MirrorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "failures_total",
			Help:      "Total number of failed writes to the persistence mirror by entity",
		}, []string{"entity"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Total number of ledger events that could not be published",
		}),
		CommandsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "commands_handled_total",
			Help:      "Total number of queue commands handled by action and outcome",
		}, []string{"action", "outcome"}),

		PoolLiquidity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_liquidity",
			Help:      "Total active liquidity by currency",
		}, []string{"currency"}),
		PoolAnonymitySet: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "anonymity_set_size",
			Help:      "Number of active deposits by currency",
		}, []string{"currency"}),
		PoolFundBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "privacy_fund_balance",
			Help:      "Accumulated privacy fund fees by currency",
		}, []string{"currency"}),

		LastSnapshot: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_snapshot_timestamp",
			Help:      "Unix timestamp of the last pool snapshot",
		}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDeposit increments the deposit counter
func (m *Metrics) RecordDeposit(c models.Currency) {
	if m == nil {
		return
	}
	m.DepositsCreated.WithLabelValues(c.String()).Inc()
}

// RecordWithdrawal increments the withdrawal counter
func (m *Metrics) RecordWithdrawal(c models.Currency, relayer bool) {
	if m == nil {
		return
	}
	label := "direct"
	if relayer {
		label = "relayer"
	}
	m.WithdrawalsProcessed.WithLabelValues(c.String(), label).Inc()
}

// RecordRejection counts a refused ledger operation
func (m *Metrics) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.OperationsRejected.WithLabelValues(operation, reason).Inc()
}

// RecordMirrorFailure counts a failed persistence write
func (m *Metrics) RecordMirrorFailure(entity string) {
	if m == nil {
		return
	}
	m.MirrorFailures.WithLabelValues(entity).Inc()
}

// RecordPublishFailure counts an event that could not be published
func (m *Metrics) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// RecordCommand counts a handled queue command
func (m *Metrics) RecordCommand(action, outcome string) {
	if m == nil {
		return
	}
	m.CommandsHandled.WithLabelValues(action, outcome).Inc()
}

// ObservePool sets the pool gauges from s
func (m *Metrics) ObservePool(s models.PoolStats) {
	if m == nil {
		return
	}
	c := s.Currency.String()
	m.PoolLiquidity.WithLabelValues(c).Set(s.TotalLiquidity.InexactFloat64())
	m.PoolAnonymitySet.WithLabelValues(c).Set(float64(s.AnonymitySetSize))
	m.PoolFundBalance.WithLabelValues(c).Set(s.PrivacyFundBalance.InexactFloat64())
}

// RecordSnapshot stores the time of the last pool snapshot
func (m *Metrics) RecordSnapshot(t time.Time) {
	if m == nil {
		return
	}
	m.LastSnapshot.Set(float64(t.Unix()))
}
