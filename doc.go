// Package failover provides leader-side failover coordination for sharded
// log-consumption groups backed by an etcd coordination store.
//
// One instance of a consumer group holds the leader lock (obtained through
// any election mechanism; a helper built on etcd elections is included).
// The leader runs a small persisted state machine that watches the active
// producer's liveness keys, and on producer loss drives every group
// instance through a rendezvous barrier before selecting a replacement
// producer. Each transition is written to the group's state log with a
// guarded transaction, so a demoted leader or a concurrent writer can never
// corrupt the log, and a restarted leader resumes exactly where its
// predecessor stopped.
//
// # Quick Start
//
//	import (
//	    "github.com/streamward/failover"
//	    "github.com/streamward/failover/selector"
//	)
//
//	cfg := failover.DefaultConfig()
//
//	// lead is the held leader lock, e.g. from the bundled election helper.
//	leader, err := failover.NewLeader(ctx, &cfg, etcdClient, lead,
//	    "billing-events", selector.NewRendezvous())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Run blocks until ctx is cancelled, leadership is lost, or the store
//	// becomes unavailable.
//	if err := leader.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # State Machine
//
// The persisted leader state forms a cycle:
//
//	Init → ComputingProducerSelection → Idle → LostProducer →
//	WaitingBarrier → ComputingProducerSelection → …
//
// Idle is the steady state: a producer is active and the leader blocks on
// its dead signal. All other states are traversed during bootstrap or
// failover. Only keys and identifiers are persisted; runtime handles are
// rebuilt from the persisted state after a restart.
//
// # Fencing
//
// Every state-log write is conditioned on the leader lock key still
// existing and on the log not having moved since it was last read. A write
// rejected by either guard surfaces as ErrFailedToUpdateStateLog and
// terminates the loop; the caller must stop acting as leader for the group.
//
// # Producers and Instances
//
// Producers advertise liveness through the liveness package, which keeps a
// lease-attached key alive in the store. Group instances participate in
// failover by watching the state log and signalling barrier arrival; see
// SubscribeStateChanges and the barrier arrival helper.
package failover
