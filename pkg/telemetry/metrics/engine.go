package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks rule evaluation and cache behavior.
//
// Metrics:
//   - securecheck_evaluations_total: evaluation passes by outcome
//   - securecheck_rule_hits_total: matched rules by rule and action
//   - securecheck_rule_gated_total: rules held back by their threshold gate
//   - securecheck_evaluation_duration_seconds: full-pass duration
//   - securecheck_state_cache_hits_total / misses_total: hydration source
//   - securecheck_semantic_errors_total: failed semantic backend queries
type EngineMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	ruleHitsTotal      *prometheus.CounterVec
	ruleGatedTotal     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	stateCacheHits     prometheus.Counter
	stateCacheMisses   prometheus.Counter
	semanticErrors     prometheus.Counter
}

// NewEngineMetrics creates and registers engine metrics with the registry.
func NewEngineMetrics(namespace string, registry *prometheus.Registry) *EngineMetrics {
	m := &EngineMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total evaluation passes by outcome",
			},
			[]string{"outcome"},
		),
		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_hits_total",
				Help:      "Total rule matches by rule and action",
			},
			[]string{"rule_id", "action"},
		),
		ruleGatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_gated_total",
				Help:      "Rules that matched but were held by their threshold gate",
			},
			[]string{"rule_id"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a full evaluation pass in seconds",
				// Evaluations are sub-millisecond unless the semantic
				// backend is consulted.
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~330ms
			},
		),
		stateCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_cache_hits_total",
			Help:      "Conversation state hydrations served from cache",
		}),
		stateCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_cache_misses_total",
			Help:      "Conversation state hydrations that missed the cache",
		}),
		semanticErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_errors_total",
			Help:      "Failed semantic backend queries (treated as no match)",
		}),
	}

	registry.MustRegister(
		m.evaluationsTotal,
		m.ruleHitsTotal,
		m.ruleGatedTotal,
		m.evaluationDuration,
		m.stateCacheHits,
		m.stateCacheMisses,
		m.semanticErrors,
	)
	return m
}

// ObserveEvaluation records one completed evaluation pass.
func (m *EngineMetrics) ObserveEvaluation(matched int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "clean"
	if matched > 0 {
		outcome = "matched"
	}
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

// RuleHit records a fired rule.
func (m *EngineMetrics) RuleHit(ruleID, action string) {
	if m == nil {
		return
	}
	m.ruleHitsTotal.WithLabelValues(ruleID, action).Inc()
}

// RuleGated records a rule held back by its threshold.
func (m *EngineMetrics) RuleGated(ruleID string) {
	if m == nil {
		return
	}
	m.ruleGatedTotal.WithLabelValues(ruleID).Inc()
}

// StateCacheHit records a cache-served hydration.
func (m *EngineMetrics) StateCacheHit() {
	if m == nil {
		return
	}
	m.stateCacheHits.Inc()
}

// StateCacheMiss records a hydration that went past the cache.
func (m *EngineMetrics) StateCacheMiss() {
	if m == nil {
		return
	}
	m.stateCacheMisses.Inc()
}

// SemanticError records a failed semantic backend query.
func (m *EngineMetrics) SemanticError() {
	if m == nil {
		return
	}
	m.semanticErrors.Inc()
}
