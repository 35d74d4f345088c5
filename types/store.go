package types

import (
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store is the subset of an etcd client the failover library uses: the KV,
// Lease and Watcher facets. A *clientv3.Client satisfies it directly, as do
// namespace-wrapped facets and the in-memory fake in the testing package.
type Store interface {
	clientv3.KV
	clientv3.Lease
	clientv3.Watcher
}

// Leadership describes an already-held leader lock for a consumer group.
//
// The failover library does not elect leaders; the election primitive (see
// the internal election package, or any external mechanism that produces a
// lock key with a positive version bound to a live lease) hands its result
// to NewLeader through this value. Every state-log write is conditioned on
// LockKey still existing, which is what fences a demoted leader.
type Leadership struct {
	// LockKey is the leader lock key currently held by this instance.
	LockKey string

	// Lease is the lease the lock key is attached to.
	Lease clientv3.LeaseID
}
