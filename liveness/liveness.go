// Package liveness publishes producer liveness to the coordination store.
//
// A producer holds a liveness key under its producer prefix for as long as
// it runs; the key is attached to a store lease kept alive in the
// background. When the producer crashes the lease expires and the key
// disappears, which is exactly the deletion the leader's dead-signal watcher
// reacts to. A graceful Stop revokes the lease and deletes the key
// immediately instead of waiting out the TTL.
package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/internal/keys"
	"github.com/streamward/failover/types"
)

const (
	reestablishAttempts = 3
	stopTimeout         = 5 * time.Second
)

// Publisher maintains one producer liveness key.
type Publisher struct {
	store      types.Store
	namespace  string
	producerID types.ProducerID
	ttl        time.Duration
	logger     types.Logger

	mu      sync.Mutex
	started bool
	key     string
	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New creates a liveness publisher for the given producer.
//
// ttl bounds how long a crashed producer can still look alive; it should be
// comfortably larger than the expected store round-trip but small enough for
// acceptable failover latency (typical: 10s).
func New(store types.Store, namespace string, producerID types.ProducerID, ttl time.Duration, logger types.Logger) *Publisher {
	return &Publisher{
		store:      store,
		namespace:  namespace,
		producerID: producerID,
		ttl:        ttl,
		logger:     logger,
	}
}

// Start grants the lease, writes the liveness key and begins keeping the
// lease alive in the background. It returns once the key is durably
// published.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return types.ErrLivenessAlreadyStarted
	}

	key := keys.ProducerLivenessKey(p.namespace, p.producerID, uuid.NewString())
	leaseID, ch, err := p.publish(ctx, key)
	if err != nil {
		return err
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	p.started = true
	p.key = key
	p.leaseID = leaseID
	p.cancel = cancel
	p.doneCh = make(chan struct{})

	go p.keepAlive(keepCtx, ch)

	return nil
}

// Stop revokes the lease and deletes the liveness key, signalling a
// graceful shutdown immediately instead of waiting for TTL expiry.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return types.ErrLivenessNotStarted
	}

	p.started = false
	p.cancel()
	doneCh := p.doneCh
	key := p.key
	leaseID := p.leaseID
	p.mu.Unlock()

	<-doneCh

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if _, err := p.store.Revoke(ctx, leaseID); err != nil {
		p.logger.Warn("failed to revoke liveness lease", "producer_id", p.producerID, "error", err)
	}
	if _, err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("stopped but failed to delete liveness key: %w", err)
	}

	return nil
}

// Key returns the currently published liveness key, or empty when stopped.
func (p *Publisher) Key() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ""
	}

	return p.key
}

// publish grants a fresh lease, writes the liveness key under it and opens
// the keepalive stream.
func (p *Publisher) publish(ctx context.Context, key string) (clientv3.LeaseID, <-chan *clientv3.LeaseKeepAliveResponse, error) {
	grant, err := p.store.Grant(ctx, int64(p.ttl/time.Second))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to grant liveness lease: %w", types.ErrStoreUnavailable, err)
	}

	val := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := p.store.Put(ctx, key, val, clientv3.WithLease(grant.ID)); err != nil {
		return 0, nil, fmt.Errorf("%w: failed to publish liveness key: %w", types.ErrStoreUnavailable, err)
	}

	ch, err := p.store.KeepAlive(ctx, grant.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to keep liveness lease alive: %w", types.ErrStoreUnavailable, err)
	}

	return grant.ID, ch, nil
}

// keepAlive drains keepalive responses and re-establishes the lease and key
// if the stream terminates while the publisher is still running.
func (p *Publisher) keepAlive(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if ok {
				continue
			}

			// Stream closed: lease expired or the connection dropped.
			retrier := retry.NewRetrier(reestablishAttempts, 100*time.Millisecond, time.Second)
			err := retrier.RunContext(ctx, func(ctx context.Context) error {
				leaseID, nch, err := p.publish(ctx, p.keySnapshot())
				if err != nil {
					return err
				}

				p.mu.Lock()
				p.leaseID = leaseID
				p.mu.Unlock()
				ch = nch

				return nil
			})
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("failed to re-establish producer liveness",
						"producer_id", p.producerID,
						"error", err,
					)
				}

				return
			}
			p.logger.Info("re-established producer liveness", "producer_id", p.producerID)
		}
	}
}

func (p *Publisher) keySnapshot() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.key
}
