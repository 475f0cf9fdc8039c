// Package metrics exposes parse and match counters for Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/trialmatch/internal/model"
)

const namespace = "trialmatch"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	parses        *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	rulesParsed   *prometheus.CounterVec
	fallbackRules *prometheus.CounterVec
	matches       *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	storeErrors   prometheus.Counter
	queueDepth    prometheus.Gauge
}

// New registers all collectors plus the Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Trial parses by parser identity and status.",
		}, []string{"identity", "status"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one trial.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"identity"}),
		rulesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_parsed_total",
			Help:      "Rules produced, fallback rules included.",
		}, []string{"identity"}),
		fallbackRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_rules_total",
			Help:      "Sentences that could not be structured and became manual-review rules.",
		}, []string{"identity"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Match evaluations by tier.",
		}, []string{"tier"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Rule verdicts by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_lookups_total",
			Help:      "Rule-set cache lookups by result.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that failed for reasons other than a missing record.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parse_queue_depth",
			Help:      "Trials waiting for a parse worker.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.parses, m.parseDuration, m.rulesParsed, m.fallbackRules,
		m.matches, m.verdicts, m.cacheLookups, m.storeErrors, m.queueDepth,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveParse records one parse attempt
func (m *Metrics) ObserveParse(identity string, set *model.RuleSet, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.parses.WithLabelValues(identity, status).Inc()
	m.parseDuration.WithLabelValues(identity).Observe(elapsed.Seconds())
	if set != nil {
		m.rulesParsed.WithLabelValues(identity).Add(float64(set.Coverage.Rules))
		m.fallbackRules.WithLabelValues(identity).Add(float64(set.Coverage.Fallback))
	}
}

// ObserveMatch records the tier and verdict outcomes of one evaluation
func (m *Metrics) ObserveMatch(result model.MatchResult) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(string(result.Summary.Tier)).Inc()
	m.verdicts.WithLabelValues(string(model.OutcomePass)).Add(float64(result.Summary.Pass))
	m.verdicts.WithLabelValues(string(model.OutcomeFail)).Add(float64(result.Summary.Fail))
	m.verdicts.WithLabelValues(string(model.OutcomeUnknown)).Add(float64(result.Summary.Unknown))
}

// CacheLookup records a rule-set cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// StoreError counts a failed store operation
func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

// QueueDepth sets the parse queue gauge
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
