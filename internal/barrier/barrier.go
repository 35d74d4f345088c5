// Package barrier implements the rendezvous primitive used during failover:
// a keyed barrier over a frozen set of participants, scoped to a store lease
// so that crashed rendezvous attempts clean themselves up.
package barrier

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/types"
)

// manifest is the persisted barrier record. Holding the lease ID in the
// manifest lets late arrivals attach their keys to the same lease, so every
// artifact of one rendezvous expires together.
type manifest struct {
	LeaseID      int64    `json:"lease_id"`
	Participants []string `json:"participants"`
}

// Barrier is a handle to a rendezvous point.
//
// A Barrier carries no server-side session of its own; it can be recreated
// at any time with Attach using only the persisted key, which is what makes
// a WaitingBarrier state resumable after a restart.
type Barrier struct {
	store types.Store
	key   string
	m     manifest
}

// New registers a new rendezvous point under key, frozen over the given
// participant set and scoped to leaseID.
func New(ctx context.Context, store types.Store, key string, participants []string, leaseID clientv3.LeaseID) (*Barrier, error) {
	m := manifest{LeaseID: int64(leaseID), Participants: participants}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode barrier manifest: %w", err)
	}

	_, err = store.Put(ctx, key, string(encoded), clientv3.WithLease(leaseID))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create barrier %q: %w", types.ErrStoreUnavailable, key, err)
	}

	return &Barrier{store: store, key: key, m: m}, nil
}

// Attach re-obtains a handle to an existing rendezvous point by key.
// Returns ErrBarrierNotFound when the key is gone, typically because its
// lease expired after a crash.
func Attach(ctx context.Context, store types.Store, key string) (*Barrier, error) {
	resp, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read barrier %q: %w", types.ErrStoreUnavailable, key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %q", types.ErrBarrierNotFound, key)
	}

	var m manifest
	if err := json.Unmarshal(resp.Kvs[0].Value, &m); err != nil {
		return nil, fmt.Errorf("%w: undecodable barrier manifest at %q: %w", types.ErrCorruptedState, key, err)
	}

	return &Barrier{store: store, key: key, m: m}, nil
}

// Key returns the rendezvous key.
func (b *Barrier) Key() string { return b.key }

// Participants returns a copy of the frozen participant set.
func (b *Barrier) Participants() []string {
	out := make([]string, len(b.m.Participants))
	copy(out, b.m.Participants)
	return out
}

// Wait blocks until every frozen participant has signalled arrival, or ctx
// is cancelled. There is no built-in timeout: staleness is bounded by the
// barrier lease TTL and by the caller's ctx.
func (b *Barrier) Wait(ctx context.Context) error {
	pending := make(map[string]struct{}, len(b.m.Participants))
	for _, p := range b.m.Participants {
		pending[p] = struct{}{}
	}
	if len(pending) == 0 {
		return nil
	}

	prefix := b.key + "/"

	// Watch before listing so arrivals racing the list are not missed.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wch := b.store.Watch(wctx, prefix, clientv3.WithPrefix())

	resp, err := b.store.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("%w: failed to list barrier arrivals: %w", types.ErrStoreUnavailable, err)
	}
	for _, kv := range resp.Kvs {
		b.markArrived(pending, string(kv.Key))
	}
	if len(pending) == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wresp, ok := <-wch:
			if !ok {
				return ctx.Err()
			}
			if err := wresp.Err(); err != nil {
				return fmt.Errorf("%w: barrier watch failed: %w", types.ErrStoreUnavailable, err)
			}
			for _, ev := range wresp.Events {
				if ev.Type == mvccpb.PUT {
					b.markArrived(pending, string(ev.Kv.Key))
				}
			}
			if len(pending) == 0 {
				return nil
			}
		}
	}
}

// markArrived decodes an arrival key and removes the corresponding
// participant from the pending set. Arrival keys outside the frozen set are
// ignored.
func (b *Barrier) markArrived(pending map[string]struct{}, arrivalKey string) {
	suffix := arrivalKey[len(b.key)+1:]
	raw, err := hex.DecodeString(suffix)
	if err != nil {
		return
	}
	delete(pending, string(raw))
}

// Arrive signals that participant has reached the rendezvous point at key.
// The arrival key is attached to the barrier's lease so it is reaped
// together with the barrier.
//
// Arrive is idempotent: re-signalling an arrival overwrites the same key.
func Arrive(ctx context.Context, store types.Store, key, participant string) error {
	b, err := Attach(ctx, store, key)
	if err != nil {
		return err
	}

	arrivalKey := key + "/" + hex.EncodeToString([]byte(participant))
	val := time.Now().UTC().Format(time.RFC3339Nano)

	var opts []clientv3.OpOption
	if b.m.LeaseID != 0 {
		opts = append(opts, clientv3.WithLease(clientv3.LeaseID(b.m.LeaseID)))
	}
	if _, err := store.Put(ctx, arrivalKey, val, opts...); err != nil {
		return fmt.Errorf("%w: failed to record barrier arrival: %w", types.ErrStoreUnavailable, err)
	}

	return nil
}
