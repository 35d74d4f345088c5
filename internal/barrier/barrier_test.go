package barrier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	failovertest "github.com/streamward/failover/testing"
	"github.com/streamward/failover/types"
)

const barrierKey = "ns/v1/barriers/tok"

func grantLease(t *testing.T, store *failovertest.Store) clientv3.LeaseID {
	t.Helper()
	grant, err := store.Grant(context.Background(), 10)
	require.NoError(t, err)

	return grant.ID
}

func TestNewAndAttach(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()
	leaseID := grantLease(t, store)

	participants := []string{"lock-a", "lock-b"}
	b, err := New(ctx, store, barrierKey, participants, leaseID)
	require.NoError(t, err)
	require.Equal(t, barrierKey, b.Key())
	require.Equal(t, participants, b.Participants())

	attached, err := Attach(ctx, store, barrierKey)
	require.NoError(t, err)
	require.Equal(t, participants, attached.Participants())
}

func TestAttachMissingBarrier(t *testing.T) {
	store := failovertest.NewStore(t)

	_, err := Attach(context.Background(), store, "ns/v1/barriers/gone")
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrBarrierNotFound))
}

func TestAttachCorruptManifest(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, barrierKey, "{{{not json")
	require.NoError(t, err)

	_, err = Attach(ctx, store, barrierKey)
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrCorruptedState))
}

func TestWaitEmptyParticipantSet(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	b, err := New(ctx, store, barrierKey, nil, grantLease(t, store))
	require.NoError(t, err)
	require.NoError(t, b.Wait(ctx))
}

func TestWaitResolvesOnAllArrivals(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	participants := []string{"lock-a", "lock-b"}
	b, err := New(ctx, store, barrierKey, participants, grantLease(t, store))
	require.NoError(t, err)

	// One participant arrives before Wait starts, one after.
	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-a"))

	var wg sync.WaitGroup
	wg.Add(1)
	waitErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		waitErr <- b.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-b"))

	select {
	case err := <-waitErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("barrier did not resolve after all arrivals")
	}
	wg.Wait()
}

func TestWaitIgnoresUnknownArrivals(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	b, err := New(ctx, store, barrierKey, []string{"lock-a"}, grantLease(t, store))
	require.NoError(t, err)

	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-stranger"))

	waitErr := make(chan error, 1)
	go func() { waitErr <- b.Wait(ctx) }()

	select {
	case <-waitErr:
		t.Fatal("barrier resolved on an arrival outside the frozen set")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-a"))
	select {
	case err := <-waitErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("barrier did not resolve")
	}
}

func TestWaitResumableViaAttach(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	participants := []string{"lock-a", "lock-b"}
	_, err := New(ctx, store, barrierKey, participants, grantLease(t, store))
	require.NoError(t, err)

	// Arrivals recorded before the (restarted) leader attaches.
	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-a"))
	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-b"))

	attached, err := Attach(ctx, store, barrierKey)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- attached.Wait(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("attached barrier did not observe pre-existing arrivals")
	}
}

func TestArriveIsIdempotent(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx := context.Background()

	b, err := New(ctx, store, barrierKey, []string{"lock-a"}, grantLease(t, store))
	require.NoError(t, err)

	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-a"))
	require.NoError(t, Arrive(ctx, store, barrierKey, "lock-a"))
	require.NoError(t, b.Wait(ctx))
}

func TestArriveMissingBarrier(t *testing.T) {
	store := failovertest.NewStore(t)

	err := Arrive(context.Background(), store, "ns/v1/barriers/gone", "lock-a")
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrBarrierNotFound))
}

func TestWaitHonorsContext(t *testing.T) {
	store := failovertest.NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	b, err := New(ctx, store, barrierKey, []string{"lock-a"}, grantLease(t, store))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Wait(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return on context cancellation")
	}
}
