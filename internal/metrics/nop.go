// Package metrics provides the built-in types.MetricsCollector
// implementations.
package metrics

import "github.com/streamward/failover/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external metrics
// collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordStateTransition discards the state transition metric.
func (*NopMetrics) RecordStateTransition(types.ConsumerGroupID, types.StateKind, types.StateKind) {
	// No-op
}

// RecordStateLogWrite discards the state log write metric.
func (*NopMetrics) RecordStateLogWrite(types.ConsumerGroupID, bool) {
	// No-op
}

// RecordProducerLost discards the producer lost metric.
func (*NopMetrics) RecordProducerLost(types.ConsumerGroupID) {
	// No-op
}

// RecordProducerSelected discards the producer selected metric.
func (*NopMetrics) RecordProducerSelected(types.ConsumerGroupID) {
	// No-op
}

// RecordBarrierWait discards the barrier wait metric.
func (*NopMetrics) RecordBarrierWait(types.ConsumerGroupID, float64) {
	// No-op
}
