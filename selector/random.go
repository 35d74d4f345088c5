package selector

import (
	"math/rand/v2"

	"github.com/streamward/failover/types"
)

// Random picks a replacement producer uniformly at random.
type Random struct{}

var _ types.ProducerSelector = (*Random)(nil)

// NewRandom creates a new uniform random selection policy.
//
// Example:
//
//	leader, err := failover.NewLeader(ctx, &cfg, store, lead, group, selector.NewRandom())
func NewRandom() *Random {
	return &Random{}
}

// Select picks one candidate uniformly at random.
func (*Random) Select(_ types.ConsumerGroupID, candidates []types.ProducerID) (types.ProducerID, error) {
	if len(candidates) == 0 {
		return "", types.ErrNoActiveProducer
	}

	return candidates[rand.IntN(len(candidates))], nil
}
