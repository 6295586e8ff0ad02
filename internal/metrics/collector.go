// Package metrics exposes Prometheus counters for history curation and
// compaction decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns its registry so several collectors (tests, sessions) never
// collide on the global default registry. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	decisionsTotal      *prometheus.CounterVec
	curatedDroppedTotal prometheus.Counter
	accountingWarnings  *prometheus.CounterVec
	compactionsTotal    *prometheus.CounterVec
	historyTokens       prometheus.Histogram

	logger *zap.Logger
}

// NewCollector creates a collector whose metrics live under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_decisions_total",
			Help:      "Compaction decisions by action and trigger",
		},
		[]string{"action", "trigger"},
	)

	c.curatedDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curation_dropped_messages_total",
			Help:      "Messages removed from history by curation",
		},
	)

	c.accountingWarnings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounting_warnings_total",
			Help:      "Token accounting failures that skipped the compaction check",
		},
		[]string{"reason"},
	)

	c.compactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Compactor executions by outcome",
		},
		[]string{"outcome"},
	)

	c.historyTokens = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_tokens",
			Help:      "Token count of curated history at evaluation time",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 12),
		},
	)

	return c
}

// RecordDecision counts one planner decision.
func (c *Collector) RecordDecision(action string, forced bool, totalTokens int) {
	if c == nil {
		return
	}
	trigger := "auto"
	if forced {
		trigger = "forced"
	}
	c.decisionsTotal.WithLabelValues(action, trigger).Inc()
	if totalTokens > 0 {
		c.historyTokens.Observe(float64(totalTokens))
	}
}

// RecordCurationDrops counts messages removed by curation.
func (c *Collector) RecordCurationDrops(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.curatedDroppedTotal.Add(float64(n))
}

// RecordAccountingWarning counts a degraded compaction check.
func (c *Collector) RecordAccountingWarning(reason string) {
	if c == nil {
		return
	}
	c.accountingWarnings.WithLabelValues(reason).Inc()
}

// RecordCompaction counts a compactor run ("ok", "failed", "skipped").
func (c *Collector) RecordCompaction(outcome string) {
	if c == nil {
		return
	}
	c.compactionsTotal.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry (for tests and custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler at /metrics on addr until the server fails.
// It blocks; run it in a goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.logger.Info("serving metrics", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
