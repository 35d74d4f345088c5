package selector

import (
	"github.com/zeebo/xxh3"

	"github.com/streamward/failover/types"
)

// Rendezvous implements highest-random-weight (rendezvous) hashing over the
// candidate set.
//
// Each candidate is scored by hashing the (group, producer) pair with xxh3
// and the highest score wins. The pick is deterministic for a given group
// and candidate set, and removing the losing candidates never changes the
// winner, so repeated failovers for the same group keep converging on the
// same producer while it is alive.
type Rendezvous struct{}

var _ types.ProducerSelector = (*Rendezvous)(nil)

// NewRendezvous creates a new rendezvous-hash selection policy.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{}
}

// Select picks the candidate with the highest hash score for the group.
// Equal scores break ties toward the lexicographically smaller producer ID
// so the result stays deterministic.
func (*Rendezvous) Select(group types.ConsumerGroupID, candidates []types.ProducerID) (types.ProducerID, error) {
	if len(candidates) == 0 {
		return "", types.ErrNoActiveProducer
	}

	var (
		best      types.ProducerID
		bestScore uint64
		chosen    bool
	)
	for _, c := range candidates {
		score := score(group, c)
		if !chosen || score > bestScore || (score == bestScore && c < best) {
			best, bestScore, chosen = c, score, true
		}
	}

	return best, nil
}

// score hashes the (group, producer) pair. The NUL separator keeps
// ("ab","c") and ("a","bc") from colliding.
func score(group types.ConsumerGroupID, producer types.ProducerID) uint64 {
	buf := make([]byte, 0, len(group)+len(producer)+1)
	buf = append(buf, group...)
	buf = append(buf, 0)
	buf = append(buf, producer...)

	return xxh3.Hash(buf)
}
