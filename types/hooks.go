package types

import "context"

// Hooks defines callbacks for leader lifecycle events.
//
// All hooks are optional. They are invoked inline from the leader loop
// after the corresponding state was durably persisted, so implementations
// should complete quickly and respect context cancellation. Hook errors are
// logged but never fail the loop.
//
// Example:
//
//	hooks := &failover.Hooks{
//	    OnProducerLost: func(ctx context.Context, p failover.ProducerID) error {
//	        alerting.Notify(ctx, "producer lost", p.String())
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called after a state transition was persisted.
	OnStateChanged func(ctx context.Context, from, to LeaderState) error

	// OnProducerLost is called when the dead signal for the active producer
	// fires, before the LostProducer state is persisted.
	OnProducerLost func(ctx context.Context, producer ProducerID) error

	// OnProducerSelected is called when a replacement producer was chosen,
	// before the Idle state is persisted.
	OnProducerSelected func(ctx context.Context, producer ProducerID, executionID []byte) error
}
