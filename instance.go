package failover

import (
	"context"

	"github.com/streamward/failover/internal/barrier"
	"github.com/streamward/failover/internal/keys"
	"github.com/streamward/failover/types"
)

// Instance-side helpers. Group instances are not driven by this library,
// but they share its key layout and must arrive at failover barriers; these
// functions expose exactly that surface.

// StateLogKey returns the store key of the group's leader state log.
// Instances watch this key to observe failover progress.
func StateLogKey(namespace string, group types.ConsumerGroupID) string {
	return keys.StateLog(namespace, group)
}

// InstanceLockKey returns the lock key an instance of the group must hold.
// The set of held instance lock keys is what the leader freezes as the
// barrier participant set.
func InstanceLockKey(namespace string, group types.ConsumerGroupID, instance string) string {
	return keys.InstanceLock(namespace, group, instance)
}

// ArriveAtBarrier signals that the instance holding lockKey has reached the
// rendezvous barrier of a WaitingBarrier state. Instances call this after
// quiescing their consumption pipeline.
//
// Arrival is idempotent. Returns ErrBarrierNotFound when the barrier's
// lease already expired; the instance should resync from the state log.
func ArriveAtBarrier(ctx context.Context, store types.Store, state types.LeaderState, lockKey string) error {
	return barrier.Arrive(ctx, store, state.BarrierKey(), lockKey)
}
