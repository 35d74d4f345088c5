package types

// MetricsCollector receives operational metrics from the leader runtime.
//
// Implementations must be safe for use from the leader loop goroutine and
// should never block; recording a metric must not slow down failover
// handling.
//
// The library ships two implementations: a no-op collector (the default)
// and a Prometheus-backed collector enabled via the WithPrometheusMetrics
// option.
type MetricsCollector interface {
	// RecordStateTransition records a persisted state machine transition.
	RecordStateTransition(group ConsumerGroupID, from, to StateKind)

	// RecordStateLogWrite records the outcome of a guarded state-log write.
	// success is false when the transaction guard rejected the write.
	RecordStateLogWrite(group ConsumerGroupID, success bool)

	// RecordProducerLost records a producer dead signal.
	RecordProducerLost(group ConsumerGroupID)

	// RecordProducerSelected records a completed producer selection.
	RecordProducerSelected(group ConsumerGroupID)

	// RecordBarrierWait records the time spent waiting on a rendezvous
	// barrier, in seconds.
	RecordBarrierWait(group ConsumerGroupID, seconds float64)
}
