// Package election wraps the etcd concurrency election primitive into the
// Leadership handle the Leader runtime consumes.
//
// The failover core never elects anyone itself: it only requires a lock key
// with a positive version bound to a live lease. This package is the
// built-in way to obtain one; any external mechanism producing the same
// shape works equally well.
package election

import (
	"context"
	"errors"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/streamward/failover/types"
)

// Common errors for election operations.
var (
	ErrNotCampaigning = errors.New("not campaigning")
)

// Election holds a won leadership campaign for a consumer group.
type Election struct {
	session  *concurrency.Session
	election *concurrency.Election
}

// Campaign blocks until this instance wins leadership for prefix or ctx is
// cancelled. candidateID is the advertised value of the lock key, typically
// the instance's own identifier.
//
// ttl is the session lease TTL in seconds; if the process dies the lock key
// disappears after at most ttl, unblocking the next campaigner.
func Campaign(ctx context.Context, client *clientv3.Client, prefix, candidateID string, ttl int) (*Election, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttl), concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create election session: %w", types.ErrStoreUnavailable, err)
	}

	election := concurrency.NewElection(session, prefix)
	if err := election.Campaign(ctx, candidateID); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to campaign for %q: %w", prefix, err)
	}

	return &Election{session: session, election: election}, nil
}

// Leadership returns the held lock key and lease in the form NewLeader
// consumes.
func (e *Election) Leadership() types.Leadership {
	return types.Leadership{
		LockKey: e.election.Key(),
		Lease:   e.session.Lease(),
	}
}

// Done is closed when the underlying session lease is lost. Callers should
// interrupt the leader loop when this fires.
func (e *Election) Done() <-chan struct{} {
	return e.session.Done()
}

// Resign gives up leadership and closes the session, releasing the lock key
// immediately instead of waiting for the lease TTL.
func (e *Election) Resign(ctx context.Context) error {
	if e.election == nil {
		return ErrNotCampaigning
	}

	if err := e.election.Resign(ctx); err != nil {
		_ = e.session.Close()
		return fmt.Errorf("failed to resign leadership: %w", err)
	}

	return e.session.Close()
}
