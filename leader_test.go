package failover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/internal/keys"
	failovertest "github.com/streamward/failover/testing"
	"github.com/streamward/failover/types"
)

const (
	testNS    = "testns"
	testGroup = types.ConsumerGroupID("g1")
	testLock  = "testns/v1/cgroups/g1/leader-election/leader-1"
)

// firstSelector deterministically picks the first candidate; candidates
// arrive sorted.
type firstSelector struct{}

func (firstSelector) Select(_ types.ConsumerGroupID, candidates []types.ProducerID) (types.ProducerID, error) {
	if len(candidates) == 0 {
		return "", types.ErrNoActiveProducer
	}

	return candidates[0], nil
}

func testSetup(t *testing.T) (*failovertest.Store, Config, Leadership) {
	t.Helper()
	store := failovertest.NewStore(t)

	_, err := store.Put(context.Background(), testLock, "leader-1")
	require.NoError(t, err)

	cfg := TestConfig()
	cfg.Namespace = testNS

	return store, cfg, Leadership{LockKey: testLock}
}

func putProducer(t *testing.T, store *failovertest.Store, id types.ProducerID) string {
	t.Helper()
	key := keys.ProducerLivenessKey(testNS, id, "tok-"+string(id))
	_, err := store.Put(context.Background(), key, "alive")
	require.NoError(t, err)

	return key
}

func putInstance(t *testing.T, store *failovertest.Store, instance string) string {
	t.Helper()
	key := keys.InstanceLock(testNS, testGroup, instance)
	_, err := store.Put(context.Background(), key, instance)
	require.NoError(t, err)

	return key
}

func newTestLeader(t *testing.T, store *failovertest.Store, cfg Config, lead Leadership) *Leader {
	t.Helper()
	leader, err := NewLeader(context.Background(), &cfg, store, lead, testGroup, firstSelector{},
		WithLogger(failovertest.NewTestLogger(t)))
	require.NoError(t, err)

	return leader
}

func waitForKind(t *testing.T, leader *Leader, kind types.StateKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		return leader.State().Kind() == kind
	}, 3*time.Second, 5*time.Millisecond, "leader never reached %s", kind)
}

func TestNewLeaderValidation(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx := context.Background()

	_, err := NewLeader(ctx, &cfg, nil, lead, testGroup, firstSelector{})
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewLeader(ctx, &cfg, store, lead, testGroup, nil)
	require.ErrorIs(t, err, ErrSelectorRequired)

	_, err = NewLeader(ctx, &cfg, store, Leadership{}, testGroup, firstSelector{})
	require.ErrorIs(t, err, ErrLeadershipRequired)

	_, err = NewLeader(ctx, &cfg, store, lead, "", firstSelector{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	bad := cfg
	bad.BarrierLeaseTTL = 100 * time.Millisecond
	_, err = NewLeader(ctx, &bad, store, lead, testGroup, firstSelector{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLeaderRequiresHeldLock(t *testing.T) {
	store := failovertest.NewStore(t)
	cfg := TestConfig()
	cfg.Namespace = testNS

	_, err := NewLeader(context.Background(), &cfg, store, Leadership{LockKey: testLock},
		testGroup, firstSelector{})
	require.ErrorIs(t, err, ErrFailedToUpdateStateLog)
}

// staleReadStore defers to the real store but reports one key as absent on
// Get, emulating a bootstrap read that raced a concurrent writer.
type staleReadStore struct {
	*failovertest.Store
	hideKey string
}

func (s *staleReadStore) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	resp, err := s.Store.Get(ctx, key, opts...)
	if err == nil && key == s.hideKey {
		resp.Kvs = nil
		resp.Count = 0
	}

	return resp, err
}

func TestBootstrapRaceLoserFails(t *testing.T) {
	store, cfg, lead := testSetup(t)

	winner := newTestLeader(t, store, cfg, lead)
	require.Equal(t, types.KindInit, winner.State().Kind())

	// The loser read the log before the winner's Init landed; its own Init
	// transaction must be rejected, not silently adopted.
	stale := &staleReadStore{Store: store, hideKey: keys.StateLog(testNS, testGroup)}
	_, err := NewLeader(context.Background(), &cfg, stale, lead, testGroup, firstSelector{})
	require.ErrorIs(t, err, ErrFailedToUpdateStateLog)

	// Exactly one Init write happened.
	resp, err := store.Get(context.Background(), keys.StateLog(testNS, testGroup))
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	require.Equal(t, int64(1), resp.Kvs[0].Version)
}

func TestBootstrapWritesInitExactlyOnce(t *testing.T) {
	store, cfg, lead := testSetup(t)

	first := newTestLeader(t, store, cfg, lead)
	require.Equal(t, types.KindInit, first.State().Kind())
	require.Greater(t, first.LastRevision(), int64(0))

	revAfterFirst := store.Revision()

	// A second bootstrapper adopts the existing entry without writing.
	second := newTestLeader(t, store, cfg, lead)
	require.Equal(t, types.KindInit, second.State().Kind())
	require.Equal(t, first.LastRevision(), second.LastRevision())
	require.Equal(t, revAfterFirst, store.Revision())
}

func TestRunFailoverCycle(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p1Key := putProducer(t, store, "p1")
	putProducer(t, store, "p2")
	i1 := putInstance(t, store, "i1")
	i2 := putInstance(t, store, "i2")

	leader := newTestLeader(t, store, cfg, lead)
	changes, unsubscribe := leader.SubscribeStateChanges(16)
	defer unsubscribe()

	runErr := make(chan error, 1)
	go func() { runErr <- leader.Run(ctx) }()

	// Bootstrap settles on the first producer.
	waitForKind(t, leader, types.KindIdle)
	idle1 := leader.State()
	require.Equal(t, types.ProducerID("p1"), idle1.Producer())
	require.NotEmpty(t, idle1.ExecutionID())
	revIdle1 := leader.LastRevision()

	// Producer death starts the failover.
	_, err := store.Delete(ctx, p1Key)
	require.NoError(t, err)

	waitForKind(t, leader, types.KindWaitingBarrier)
	waiting := leader.State()
	require.ElementsMatch(t, []string{i1, i2}, waiting.WaitFor())

	// A transient marker was staged when the loss was detected.
	markers, err := store.Get(ctx, testNS+"/v1/markers/", clientv3.WithPrefix())
	require.NoError(t, err)
	require.Equal(t, int64(1), markers.Count)

	// Both instances reach the rendezvous.
	require.NoError(t, ArriveAtBarrier(ctx, store, waiting, i1))
	require.NoError(t, ArriveAtBarrier(ctx, store, waiting, i2))

	// The lost producer is excluded from the next selection.
	waitForKind(t, leader, types.KindIdle)
	idle2 := leader.State()
	require.Equal(t, types.ProducerID("p2"), idle2.Producer())
	require.NotEqual(t, idle1.ExecutionID(), idle2.ExecutionID())
	require.Greater(t, leader.LastRevision(), revIdle1)

	// The rendezvous lease is left to expire on its own TTL; the loop never
	// revokes it.
	leases, err := store.Leases(ctx)
	require.NoError(t, err)
	ids := make([]clientv3.LeaseID, 0, len(leases.Leases))
	for _, l := range leases.Leases {
		ids = append(ids, l.ID)
	}
	require.Contains(t, ids, clientv3.LeaseID(waiting.LeaseID()))

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// Full transition sequence was published to subscribers.
	wantKinds := [][2]types.StateKind{
		{types.KindInit, types.KindComputingProducerSelection},
		{types.KindComputingProducerSelection, types.KindIdle},
		{types.KindIdle, types.KindLostProducer},
		{types.KindLostProducer, types.KindWaitingBarrier},
		{types.KindWaitingBarrier, types.KindComputingProducerSelection},
		{types.KindComputingProducerSelection, types.KindIdle},
	}
	for _, want := range wantKinds {
		select {
		case change := <-changes:
			require.Equal(t, want[0], change.From.Kind())
			require.Equal(t, want[1], change.To.Kind())
		case <-time.After(time.Second):
			t.Fatalf("missing transition %s -> %s", want[0], want[1])
		}
	}
}

func TestRunInterruptDuringBarrierIsResumable(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p1Key := putProducer(t, store, "p1")
	putProducer(t, store, "p2")
	i1 := putInstance(t, store, "i1")
	i2 := putInstance(t, store, "i2")

	leader := newTestLeader(t, store, cfg, lead)
	runErr := make(chan error, 1)
	go func() { runErr <- leader.Run(ctx) }()

	waitForKind(t, leader, types.KindIdle)
	_, err := store.Delete(ctx, p1Key)
	require.NoError(t, err)
	waitForKind(t, leader, types.KindWaitingBarrier)

	// Interrupt while instances have not arrived. The persisted state must
	// stay untouched and the exit must be clean.
	revBefore := leader.LastRevision()
	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	logResp, err := store.Get(context.Background(), keys.StateLog(testNS, testGroup))
	require.NoError(t, err)
	require.Len(t, logResp.Kvs, 1)
	persisted, err := types.DecodeLeaderState(logResp.Kvs[0].Value)
	require.NoError(t, err)
	require.Equal(t, types.KindWaitingBarrier, persisted.Kind())
	require.Equal(t, revBefore, logResp.Kvs[0].ModRevision)

	// A successor adopts the in-flight rendezvous and completes it.
	successor := newTestLeader(t, store, cfg, lead)
	require.Equal(t, types.KindWaitingBarrier, successor.State().Kind())

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	runErr2 := make(chan error, 1)
	go func() { runErr2 <- successor.Run(ctx2) }()

	waiting := successor.State()
	require.NoError(t, ArriveAtBarrier(ctx2, store, waiting, i1))
	require.NoError(t, ArriveAtBarrier(ctx2, store, waiting, i2))

	waitForKind(t, successor, types.KindIdle)
	require.Equal(t, types.ProducerID("p2"), successor.State().Producer())

	cancel2()
	require.NoError(t, <-runErr2)
}

func TestRunRecoversFromExpiredBarrier(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putProducer(t, store, "p2")

	// Simulate a predecessor that crashed in WaitingBarrier and whose
	// barrier lease expired: the state points at a key that no longer
	// exists.
	stale := types.WaitingBarrier(0, keys.Barrier(testNS, "expired"), []string{"lock-x"})
	encoded, err := stale.Encode()
	require.NoError(t, err)
	_, err = store.Put(ctx, keys.StateLog(testNS, testGroup), string(encoded))
	require.NoError(t, err)

	leader := newTestLeader(t, store, cfg, lead)
	require.Equal(t, types.KindWaitingBarrier, leader.State().Kind())

	runErr := make(chan error, 1)
	go func() { runErr <- leader.Run(ctx) }()

	waitForKind(t, leader, types.KindIdle)
	require.Equal(t, types.ProducerID("p2"), leader.State().Producer())

	cancel()
	require.NoError(t, <-runErr)
}

func TestRunFencedOnLostLeadership(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p1Key := putProducer(t, store, "p1")
	putInstance(t, store, "i1")

	leader := newTestLeader(t, store, cfg, lead)
	runErr := make(chan error, 1)
	go func() { runErr <- leader.Run(ctx) }()

	waitForKind(t, leader, types.KindIdle)

	// Leadership is lost, then the producer dies: the LostProducer write
	// must be fenced out.
	_, err := store.Delete(ctx, testLock)
	require.NoError(t, err)
	_, err = store.Delete(ctx, p1Key)
	require.NoError(t, err)

	select {
	case err := <-runErr:
		require.ErrorIs(t, err, ErrFailedToUpdateStateLog)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not terminate after losing leadership")
	}
}

func TestRunAlreadyRunning(t *testing.T) {
	store, cfg, lead := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putProducer(t, store, "p1")

	leader := newTestLeader(t, store, cfg, lead)
	runErr := make(chan error, 1)
	go func() { runErr <- leader.Run(ctx) }()

	waitForKind(t, leader, types.KindIdle)
	require.ErrorIs(t, leader.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-runErr)
}

func TestSubscribeStateChangesUnsubscribe(t *testing.T) {
	store, cfg, lead := testSetup(t)

	leader := newTestLeader(t, store, cfg, lead)
	ch, unsubscribe := leader.SubscribeStateChanges(0)

	unsubscribe()
	unsubscribe() // idempotent

	_, ok := <-ch
	require.False(t, ok, "channel must be closed after unsubscribe")
}
