package failover

import (
	"context"
	"errors"
	"time"

	"github.com/flowchartsman/retry"

	"github.com/streamward/failover/types"
)

// Supervisor retry policy. Transient store failures back off exponentially;
// anything else terminates immediately.
const (
	supervisorAttempts   = 5
	supervisorMinBackoff = 100 * time.Millisecond
	supervisorMaxBackoff = 2 * time.Second
)

// RunSupervised builds a Leader and runs it, rebuilding and retrying with
// exponential backoff when the coordination store is transiently
// unavailable. Each retry re-bootstraps from the persisted state log, so a
// retried failover resumes instead of restarting.
//
// Non-transient errors (lost leadership, corrupted state, selection
// failure) are returned immediately without retrying. ctx cancellation
// returns nil.
func RunSupervised(ctx context.Context, cfg *Config, store types.Store, lead types.Leadership,
	group types.ConsumerGroupID, sel types.ProducerSelector, opts ...Option,
) error {
	r := retry.NewRetrier(supervisorAttempts, supervisorMinBackoff, supervisorMaxBackoff)

	return r.RunContext(ctx, func(ctx context.Context) error {
		leader, err := NewLeader(ctx, cfg, store, lead, group, sel, opts...)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return err
			}
			return retry.Stop(err)
		}

		err = leader.Run(ctx)
		if err == nil || errors.Is(err, ErrStoreUnavailable) {
			return err
		}

		return retry.Stop(err)
	})
}
