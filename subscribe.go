package failover

import (
	"sync"

	"github.com/streamward/failover/types"
)

// StateChange describes one persisted leader state transition.
type StateChange struct {
	From types.LeaderState
	To   types.LeaderState
}

type stateSubscriber struct {
	mu     sync.Mutex
	ch     chan StateChange
	closed bool
}

// trySend delivers a transition without blocking the leader loop.
func (s *stateSubscriber) trySend(change StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- change:
	default:
		// Subscriber is slow or not ready; they will get the next update.
	}
}

// close safely closes the subscriber's channel.
func (s *stateSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// SubscribeStateChanges returns a channel that receives every persisted
// state transition, and an unsubscribe function releasing the subscription.
//
// Delivery is best effort: a subscriber whose buffer is full misses
// transitions rather than blocking the leader loop. Subscribers needing the
// authoritative state should read the state log from the store; this
// channel is for in-process observers (dashboards, tests, instance-side
// glue reacting to WaitingBarrier).
//
// Parameters:
//   - buffer: Channel buffer size (values < 1 use a default of 8)
//
// Returns:
//   - <-chan StateChange: Transition stream, closed on unsubscribe
//   - func(): Unsubscribe function; idempotent
//
// Example:
//
//	ch, unsubscribe := leader.SubscribeStateChanges(8)
//	defer unsubscribe()
//	for change := range ch {
//	    fmt.Printf("%s -> %s\n", change.From, change.To)
//	}
func (l *Leader) SubscribeStateChanges(buffer int) (<-chan StateChange, func()) {
	if buffer < 1 {
		buffer = 8
	}

	id := l.nextSubID.Add(1)
	sub := &stateSubscriber{ch: make(chan StateChange, buffer)}
	l.subs.Store(id, sub)

	unsubscribe := func() {
		if sub, ok := l.subs.LoadAndDelete(id); ok {
			sub.close()
		}
	}

	return sub.ch, unsubscribe
}

// notifyStateChange fans a transition out to all subscribers.
func (l *Leader) notifyStateChange(from, to types.LeaderState) {
	change := StateChange{From: from, To: to}
	l.subs.Range(func(_ uint64, sub *stateSubscriber) bool {
		sub.trySend(change)
		return true
	})
}
