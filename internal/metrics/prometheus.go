package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamward/failover/types"
)

// PrometheusCollector implements types.MetricsCollector backed by
// Prometheus.
//
// Collectors are registered lazily on first use so that constructing the
// collector never panics on duplicate registration during tests.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	transitions  *prometheus.CounterVec
	logWrites    *prometheus.CounterVec
	producerLost *prometheus.CounterVec
	selected     *prometheus.CounterVec
	barrierWait  *prometheus.HistogramVec
}

// Compile-time assertion that PrometheusCollector implements
// MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "failover")
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "failover"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

// register registers c, reusing the already-registered collector when one
// with the same descriptors exists. Duplicate registration happens when two
// leaders share one registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}

	return c
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.transitions = register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "state_transitions_total",
			Help:      "Total persisted leader state transitions by from/to state.",
		}, []string{"group", "from", "to"}))

		p.logWrites = register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "state_log_writes_total",
			Help:      "Total guarded state-log write attempts by outcome.",
		}, []string{"group", "result"}))

		p.producerLost = register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "producers_lost_total",
			Help:      "Total producer dead signals observed.",
		}, []string{"group"}))

		p.selected = register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "producers_selected_total",
			Help:      "Total replacement producer selections.",
		}, []string{"group"}))

		p.barrierWait = register(p.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "barrier_wait_seconds",
			Help:      "Time spent waiting for all instances to reach the rendezvous barrier.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"group"}))
	})
}

// RecordStateTransition records a persisted state machine transition.
func (p *PrometheusCollector) RecordStateTransition(group types.ConsumerGroupID, from, to types.StateKind) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(group.String(), from.String(), to.String()).Inc()
}

// RecordStateLogWrite records the outcome of a guarded state-log write.
func (p *PrometheusCollector) RecordStateLogWrite(group types.ConsumerGroupID, success bool) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "rejected"
	}
	p.logWrites.WithLabelValues(group.String(), result).Inc()
}

// RecordProducerLost records a producer dead signal.
func (p *PrometheusCollector) RecordProducerLost(group types.ConsumerGroupID) {
	p.ensureRegistered()
	p.producerLost.WithLabelValues(group.String()).Inc()
}

// RecordProducerSelected records a completed producer selection.
func (p *PrometheusCollector) RecordProducerSelected(group types.ConsumerGroupID) {
	p.ensureRegistered()
	p.selected.WithLabelValues(group.String()).Inc()
}

// RecordBarrierWait records the rendezvous wait duration in seconds.
func (p *PrometheusCollector) RecordBarrierWait(group types.ConsumerGroupID, seconds float64) {
	p.ensureRegistered()
	p.barrierWait.WithLabelValues(group.String()).Observe(seconds)
}
