package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports session activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	factOps           *prometheus.CounterVec
	settleDuration    prometheus.Histogram
	scoreCalculations prometheus.Counter
	brokenSessions    *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg. Several sessions may
// share one Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokanscore",
			Name:      "fact_operations_total",
			Help:      "Fact mutations applied to sessions, by operation",
		}, []string{"op"}),
		settleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gokanscore",
			Name:      "settle_duration_seconds",
			Help:      "Time spent propagating pending mutations through the network",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		scoreCalculations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gokanscore",
			Name:      "score_calculations_total",
			Help:      "Score reads served by sessions",
		}),
		brokenSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokanscore",
			Name:      "broken_sessions_total",
			Help:      "Sessions broken by a failure during propagation, by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) factOp(op string) {
	if m == nil {
		return
	}
	m.factOps.WithLabelValues(op).Inc()
}

func (m *Metrics) observeSettle(d time.Duration) {
	if m == nil {
		return
	}
	m.settleDuration.Observe(d.Seconds())
}

func (m *Metrics) scoreCalculated() {
	if m == nil {
		return
	}
	m.scoreCalculations.Inc()
}

func (m *Metrics) sessionBroken(kind string) {
	if m == nil {
		return
	}
	m.brokenSessions.WithLabelValues(kind).Inc()
}
