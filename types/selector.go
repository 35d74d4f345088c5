package types

// ProducerSelector is the pluggable producer-selection policy invoked when
// the state machine reaches ComputingProducerSelection.
//
// Contract:
//   - candidates holds the currently live producers; the leader has already
//     removed the lost producer of the prior epoch, so any pick satisfies
//     the "never re-select the lost producer" rule.
//   - The selector returns exactly one candidate, deterministically or
//     randomly; it must not invent producers outside the candidate set.
//   - An empty candidate set never reaches the selector; the leader fails
//     with ErrNoActiveProducer first. Implementations should still guard
//     against it for standalone use.
//
// Implementations live in the selector package and can be swapped or tested
// independently of the persistence logic.
type ProducerSelector interface {
	// Select picks the replacement producer for the group.
	Select(group ConsumerGroupID, candidates []ProducerID) (ProducerID, error)
}
