package types

// ConsumerGroupID identifies a log-consumption group. All coordination keys
// and the persisted leader state are scoped by this identifier.
type ConsumerGroupID string

// String returns the string form of the consumer group ID.
func (id ConsumerGroupID) String() string { return string(id) }

// ProducerID identifies a producer feeding a consumer group.
type ProducerID string

// String returns the string form of the producer ID.
func (id ProducerID) String() string { return string(id) }
