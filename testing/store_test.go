package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestPutBumpsRevisionAndVersion(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "k", "v1")
	require.NoError(t, err)

	resp, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	require.Equal(t, int64(1), resp.Kvs[0].Version)
	first := resp.Kvs[0].ModRevision

	_, err = store.Put(ctx, "k", "v2")
	require.NoError(t, err)

	resp, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.Kvs[0].Version)
	require.Greater(t, resp.Kvs[0].ModRevision, first)
	require.Equal(t, first, resp.Kvs[0].CreateRevision)
}

func TestGetPrefixAndCountOnly(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	for _, k := range []string{"p/a", "p/b", "q/c"} {
		_, err := store.Put(ctx, k, "v")
		require.NoError(t, err)
	}

	resp, err := store.Get(ctx, "p/", clientv3.WithPrefix())
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.Count)
	require.Len(t, resp.Kvs, 2)
	require.Equal(t, "p/a", string(resp.Kvs[0].Key))
	require.Equal(t, "p/b", string(resp.Kvs[1].Key))

	resp, err = store.Get(ctx, "p/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.Count)
	require.Empty(t, resp.Kvs)
}

func TestDeletePrefix(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	for _, k := range []string{"p/a", "p/b", "q/c"} {
		_, err := store.Put(ctx, k, "v")
		require.NoError(t, err)
	}

	dresp, err := store.Delete(ctx, "p/", clientv3.WithPrefix())
	require.NoError(t, err)
	require.Equal(t, int64(2), dresp.Deleted)

	resp, err := store.Get(ctx, "q/c")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
}

func TestTxnVersionGuard(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	// Version(lock) > 0 fails while the lock key is absent.
	resp, err := store.Txn(ctx).If(
		clientv3.Compare(clientv3.Version("lock"), ">", 0),
	).Then(
		clientv3.OpPut("log", "init"),
	).Else(
		clientv3.OpGet("log"),
	).Commit()
	require.NoError(t, err)
	require.False(t, resp.Succeeded)
	require.NotNil(t, resp.Responses[0].GetResponseRange())

	_, err = store.Put(ctx, "lock", "held")
	require.NoError(t, err)

	resp, err = store.Txn(ctx).If(
		clientv3.Compare(clientv3.Version("lock"), ">", 0),
		clientv3.Compare(clientv3.Version("log"), "=", 0),
	).Then(
		clientv3.OpPut("log", "init"),
	).Commit()
	require.NoError(t, err)
	require.True(t, resp.Succeeded)

	put := resp.Responses[0].GetResponsePut()
	require.NotNil(t, put)
	require.Greater(t, put.Header.Revision, int64(0))
}

func TestTxnModRevisionGuard(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	presp, err := store.Put(ctx, "log", "v1")
	require.NoError(t, err)
	rev := presp.Header.Revision

	// CAS against the current mod revision succeeds.
	resp, err := store.Txn(ctx).If(
		clientv3.Compare(clientv3.ModRevision("log"), "=", rev),
	).Then(
		clientv3.OpPut("log", "v2"),
	).Commit()
	require.NoError(t, err)
	require.True(t, resp.Succeeded)

	// Retrying with the stale revision fails.
	resp, err = store.Txn(ctx).If(
		clientv3.Compare(clientv3.ModRevision("log"), "=", rev),
	).Then(
		clientv3.OpPut("log", "v3"),
	).Commit()
	require.NoError(t, err)
	require.False(t, resp.Succeeded)

	g, err := store.Get(ctx, "log")
	require.NoError(t, err)
	require.Equal(t, "v2", string(g.Kvs[0].Value))
}

func TestWatchPrefixDeliversEvents(t *testing.T) {
	store := NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wch := store.Watch(ctx, "p/", clientv3.WithPrefix())

	_, err := store.Put(context.Background(), "p/a", "v")
	require.NoError(t, err)
	_, err = store.Delete(context.Background(), "p/a")
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "other", "v")
	require.NoError(t, err)

	expectEvent := func(want mvccpb.Event_EventType, key string) {
		t.Helper()
		select {
		case resp := <-wch:
			require.NoError(t, resp.Err())
			require.Len(t, resp.Events, 1)
			require.Equal(t, want, resp.Events[0].Type)
			require.Equal(t, key, string(resp.Events[0].Kv.Key))
		case <-time.After(time.Second):
			t.Fatalf("no event for %s %s", want, key)
		}
	}

	expectEvent(mvccpb.PUT, "p/a")
	expectEvent(mvccpb.DELETE, "p/a")

	// The non-matching key produced no event.
	select {
	case resp := <-wch:
		t.Fatalf("unexpected event: %+v", resp.Events)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchCancelClosesChannel(t *testing.T) {
	store := NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	wch := store.Watch(ctx, "k")
	cancel()

	select {
	case _, ok := <-wch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestWatchWithRevReplaysHistory(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	presp, err := store.Put(ctx, "k", "v1")
	require.NoError(t, err)
	_, err = store.Put(ctx, "k", "v2")
	require.NoError(t, err)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wch := store.Watch(wctx, "k", clientv3.WithRev(presp.Header.Revision))

	select {
	case resp := <-wch:
		require.Len(t, resp.Events, 2)
		require.Equal(t, "v1", string(resp.Events[0].Kv.Value))
		require.Equal(t, "v2", string(resp.Events[1].Kv.Value))
	case <-time.After(time.Second):
		t.Fatal("no replayed events")
	}
}

func TestLeaseLifecycle(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	grant, err := store.Grant(ctx, 10)
	require.NoError(t, err)
	require.NotZero(t, grant.ID)

	ttl, err := store.TimeToLive(ctx, grant.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), ttl.TTL)

	kch, err := store.KeepAlive(ctx, grant.ID)
	require.NoError(t, err)

	select {
	case ka := <-kch:
		require.NotNil(t, ka)
		require.Equal(t, grant.ID, ka.ID)
	case <-time.After(time.Second):
		t.Fatal("no initial keepalive response")
	}

	_, err = store.Revoke(ctx, grant.ID)
	require.NoError(t, err)

	// Revocation terminates the keepalive stream.
	for {
		select {
		case _, ok := <-kch:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("keepalive stream not closed after revoke")
		}
	}
}

func TestKeepAliveUnknownLease(t *testing.T) {
	store := NewStore(t)
	ctx := context.Background()

	kch, err := store.KeepAlive(ctx, clientv3.LeaseID(999))
	require.NoError(t, err)

	select {
	case _, ok := <-kch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("keepalive channel for unknown lease not closed")
	}

	_, err = store.KeepAliveOnce(ctx, clientv3.LeaseID(999))
	require.ErrorIs(t, err, rpctypes.ErrLeaseNotFound)
}
