package selector

import (
	"sort"
	"sync/atomic"

	"github.com/streamward/failover/types"
)

// RoundRobin rotates through candidates across successive selections.
//
// Candidates are sorted before indexing so the rotation is deterministic
// regardless of listing order. The counter is shared across groups; the
// policy aims at fairness over repeated failovers, not per-group affinity
// (use Rendezvous for that).
type RoundRobin struct {
	next atomic.Uint64
}

var _ types.ProducerSelector = (*RoundRobin)(nil)

// NewRoundRobin creates a new round-robin selection policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select picks the next candidate in rotation.
func (rr *RoundRobin) Select(_ types.ConsumerGroupID, candidates []types.ProducerID) (types.ProducerID, error) {
	if len(candidates) == 0 {
		return "", types.ErrNoActiveProducer
	}

	sorted := make([]types.ProducerID, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := rr.next.Add(1) - 1

	return sorted[n%uint64(len(sorted))], nil
}
