package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion and the read path.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Operations processed by kind and outcome (normalized, redelivered, rejected)
	OperationsIngested *prometheus.CounterVec

	// Unique-constraint conflicts seen by the entity resolver, by entity kind
	ResolverConflicts *prometheus.CounterVec

	// Resolutions that gave up after the retry bound
	ResolverExhausted *prometheus.CounterVec

	// Identifiers whose operations did not form a valid tree
	BrokenTrees prometheus.Counter

	TimelineLatency prometheus.Histogram

	CacheLookups *prometheus.CounterVec
}

// New registers all plc metrics on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plcwatch_operations_ingested_total",
			Help: "Exported operations processed by kind and outcome",
		}, []string{"kind", "outcome"}),

		ResolverConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plcwatch_resolver_conflicts_total",
			Help: "Insert conflicts retried by the entity resolver",
		}, []string{"entity"}),

		ResolverExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plcwatch_resolver_exhausted_total",
			Help: "Entity resolutions that exceeded the retry bound",
		}, []string{"entity"}),

		BrokenTrees: factory.NewCounter(prometheus.CounterOpts{
			Name: "plcwatch_broken_operation_trees_total",
			Help: "Chain resolutions that failed because the operation tree is broken",
		}),

		TimelineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "plcwatch_timeline_build_duration_seconds",
			Help:    "Duration of handle timeline reads including store loads",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plcwatch_timeline_cache_lookups_total",
			Help: "Timeline cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"
	}
}

func (m *Metrics) IncrementIngested(kind, outcome string) {
	if m != nil {
		m.OperationsIngested.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncrementResolverConflict(entity string) {
	if m != nil {
		m.ResolverConflicts.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) IncrementResolverExhausted(entity string) {
	if m != nil {
		m.ResolverExhausted.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) IncrementBrokenTree() {
	if m != nil {
		m.BrokenTrees.Inc()
	}
}

func (m *Metrics) ObserveTimelineLatency(d time.Duration) {
	if m != nil {
		m.TimelineLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
