// Package deadsignal produces one-shot notifications that a producer's
// liveness keys have been removed from the coordination store.
package deadsignal

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/types"
)

// Signal is a single-fire, cancel-safe dead-producer notification.
//
// C() delivers exactly one value: nil when the producer's liveness keys are
// gone, or an error when the watch failed or observed a state corruption.
// Stop cancels the underlying watch; it is idempotent and safe to call on
// every exit path, which is how the watch resource is guaranteed to be
// released.
type Signal struct {
	ch     chan error
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

// Subscribe establishes a dead signal for the liveness keys under prefix.
//
// The watch is established before the existence check so that a deletion
// racing the subscription is never missed. If no liveness key exists at
// subscribe time the signal resolves immediately.
//
// The watch is bound to ctx: cancelling it has the same effect as Stop.
func Subscribe(ctx context.Context, store types.Store, prefix string, logger types.Logger) (*Signal, error) {
	wctx, cancel := context.WithCancel(ctx)
	wch := store.Watch(wctx, prefix, clientv3.WithPrefix())

	resp, err := store.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to check producer liveness: %w", types.ErrStoreUnavailable, err)
	}

	s := &Signal{
		ch:     make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Producer already dead at subscribe time.
	if resp.Count == 0 {
		s.ch <- nil
		cancel()
		close(s.done)

		return s, nil
	}

	go s.consume(wch, prefix, logger)

	return s, nil
}

// consume drains the watch stream until a deletion fires the signal or the
// watch terminates.
func (s *Signal) consume(wch clientv3.WatchChan, prefix string, logger types.Logger) {
	defer close(s.done)

	for resp := range wch {
		if err := resp.Err(); err != nil {
			s.fire(fmt.Errorf("%w: liveness watch failed: %w", types.ErrStoreUnavailable, err))
			return
		}

		for _, ev := range resp.Events {
			switch ev.Type {
			case mvccpb.DELETE:
				s.fire(nil)
				return
			case mvccpb.PUT:
				// Producers are never resurrected under the same identity
				// while presumed dead.
				logger.Error("producer liveness key recreated while watched for death",
					"prefix", prefix,
					"key", string(ev.Kv.Key),
				)
				s.fire(fmt.Errorf("%w: producer liveness key %q recreated after dead signal subscription",
					types.ErrCorruptedState, string(ev.Kv.Key)))

				return
			}
		}
	}
	// Watch channel closed without an event: the subscription was cancelled.
	// The signal stays unfired; pending receivers are expected to be racing
	// the same cancellation.
}

// C returns the notification channel. It delivers exactly one value.
func (s *Signal) C() <-chan error { return s.ch }

// Stop cancels the underlying watch and waits for the draining goroutine to
// exit. Safe to call multiple times and after the signal has fired.
func (s *Signal) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// fire delivers the result exactly once. The channel is buffered so firing
// never blocks even if the receiver is gone.
func (s *Signal) fire(err error) {
	select {
	case s.ch <- err:
	default:
	}
}
