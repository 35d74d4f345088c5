package testing

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/types"
)

// ErrNotSupported is returned for client operations the fake store does not
// model (currently only KV.Do).
var ErrNotSupported = errors.New("operation not supported by fake store")

// Store is an in-memory coordination store implementing failover.Store.
//
// All operations are linearized under one mutex and share a single
// monotonically increasing revision counter, mirroring etcd's mvcc
// semantics closely enough for coordination logic: versions, create/mod
// revisions, conditional transactions, prefix ranges and watches.
type Store struct {
	mu       sync.Mutex
	revision int64
	kvs      map[string]*mvccpb.KeyValue
	history  []*clientv3.Event

	watchers    map[int64]*watcher
	nextWatchID int64

	leases      map[clientv3.LeaseID]*leaseRecord
	nextLeaseID int64
}

// Compile-time assertion that Store implements the consumed store facets.
var _ types.Store = (*Store)(nil)

type watcher struct {
	key []byte
	end []byte
	ch  chan clientv3.WatchResponse
}

type leaseRecord struct {
	ttl        int64
	keepAlives []*keepAlive
}

type keepAlive struct {
	ch   chan *clientv3.LeaseKeepAliveResponse
	once sync.Once
}

func (k *keepAlive) closeOnce() {
	k.once.Do(func() { close(k.ch) })
}

// NewStore creates a fake store. Watch channels are closed via t.Cleanup.
func NewStore(tb testing.TB) *Store {
	s := &Store{
		kvs:      make(map[string]*mvccpb.KeyValue),
		watchers: make(map[int64]*watcher),
		leases:   make(map[clientv3.LeaseID]*leaseRecord),
	}
	tb.Cleanup(func() { _ = s.Close() })

	return s
}

// Revision returns the store's current revision.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision
}

// --- KV ---

// Get implements clientv3.KV.
func (s *Store) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	op := clientv3.OpGet(key, opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	kvs := s.rangeKVs(op.KeyBytes(), op.RangeBytes())
	resp := &clientv3.GetResponse{Header: s.header(), Count: int64(len(kvs))}
	if !op.IsCountOnly() {
		resp.Kvs = kvs
	}

	return resp, nil
}

// Put implements clientv3.KV. Lease attachment options are accepted but not
// tracked; see the package documentation.
func (s *Store) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, []byte(val))

	return &clientv3.PutResponse{Header: s.header()}, nil
}

// Delete implements clientv3.KV.
func (s *Store) Delete(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	op := clientv3.OpDelete(key, opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := s.deleteRange(op.KeyBytes(), op.RangeBytes())

	return &clientv3.DeleteResponse{Header: s.header(), Deleted: deleted}, nil
}

// Compact implements clientv3.KV as a no-op.
func (s *Store) Compact(_ context.Context, _ int64, _ ...clientv3.CompactOption) (*clientv3.CompactResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &clientv3.CompactResponse{Header: s.header()}, nil
}

// Do implements clientv3.KV; the fake does not support generic ops.
func (s *Store) Do(context.Context, clientv3.Op) (clientv3.OpResponse, error) {
	return clientv3.OpResponse{}, ErrNotSupported
}

// Txn implements clientv3.KV.
func (s *Store) Txn(context.Context) clientv3.Txn {
	return &txn{s: s}
}

type txn struct {
	s       *Store
	cmps    []clientv3.Cmp
	thenOps []clientv3.Op
	elseOps []clientv3.Op
}

// If appends guard conditions.
func (t *txn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

// Then appends the success branch.
func (t *txn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.thenOps = append(t.thenOps, ops...)
	return t
}

// Else appends the failure branch.
func (t *txn) Else(ops ...clientv3.Op) clientv3.Txn {
	t.elseOps = append(t.elseOps, ops...)
	return t
}

// Commit atomically evaluates the guards and executes the matching branch.
func (t *txn) Commit() (*clientv3.TxnResponse, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	succeeded := true
	for _, cmp := range t.cmps {
		if !s.evalCompare(pb.Compare(cmp)) {
			succeeded = false
			break
		}
	}

	ops := t.thenOps
	if !succeeded {
		ops = t.elseOps
	}

	resps := make([]*pb.ResponseOp, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.IsPut():
			rev := s.put(string(op.KeyBytes()), op.ValueBytes())
			resps = append(resps, &pb.ResponseOp{
				Response: &pb.ResponseOp_ResponsePut{
					ResponsePut: &pb.PutResponse{Header: &pb.ResponseHeader{Revision: rev}},
				},
			})
		case op.IsGet():
			kvs := s.rangeKVs(op.KeyBytes(), op.RangeBytes())
			resps = append(resps, &pb.ResponseOp{
				Response: &pb.ResponseOp_ResponseRange{
					ResponseRange: &pb.RangeResponse{Header: s.header(), Kvs: kvs, Count: int64(len(kvs))},
				},
			})
		case op.IsDelete():
			deleted := s.deleteRange(op.KeyBytes(), op.RangeBytes())
			resps = append(resps, &pb.ResponseOp{
				Response: &pb.ResponseOp_ResponseDeleteRange{
					ResponseDeleteRange: &pb.DeleteRangeResponse{Header: s.header(), Deleted: deleted},
				},
			})
		}
	}

	return &clientv3.TxnResponse{Header: s.header(), Succeeded: succeeded, Responses: resps}, nil
}

func (s *Store) evalCompare(c pb.Compare) bool {
	kv := s.kvs[string(c.Key)]

	if c.Target == pb.Compare_VALUE {
		var cur []byte
		if kv != nil {
			cur = kv.Value
		}
		want := c.GetValue()
		switch c.Result {
		case pb.Compare_EQUAL:
			return bytes.Equal(cur, want)
		case pb.Compare_NOT_EQUAL:
			return !bytes.Equal(cur, want)
		default:
			return false
		}
	}

	var cur, want int64
	switch c.Target {
	case pb.Compare_VERSION:
		if kv != nil {
			cur = kv.Version
		}
		want = c.GetVersion()
	case pb.Compare_MOD:
		if kv != nil {
			cur = kv.ModRevision
		}
		want = c.GetModRevision()
	case pb.Compare_CREATE:
		if kv != nil {
			cur = kv.CreateRevision
		}
		want = c.GetCreateRevision()
	case pb.Compare_LEASE:
		if kv != nil {
			cur = kv.Lease
		}
		want = c.GetLease()
	default:
		return false
	}

	switch c.Result {
	case pb.Compare_EQUAL:
		return cur == want
	case pb.Compare_GREATER:
		return cur > want
	case pb.Compare_LESS:
		return cur < want
	case pb.Compare_NOT_EQUAL:
		return cur != want
	default:
		return false
	}
}

// put mutates a key and notifies watchers. Caller holds s.mu.
func (s *Store) put(key string, val []byte) int64 {
	s.revision++
	old := s.kvs[key]
	kv := &mvccpb.KeyValue{Key: []byte(key), Value: val, ModRevision: s.revision}
	if old == nil {
		kv.CreateRevision = s.revision
		kv.Version = 1
	} else {
		kv.CreateRevision = old.CreateRevision
		kv.Version = old.Version + 1
	}
	s.kvs[key] = kv
	s.notify(&clientv3.Event{Type: mvccpb.PUT, Kv: cloneKV(kv)})

	return s.revision
}

// deleteRange removes keys in [key, end) and notifies watchers. Caller
// holds s.mu.
func (s *Store) deleteRange(key, end []byte) int64 {
	var victims []string
	for k := range s.kvs {
		if matchRange([]byte(k), key, end) {
			victims = append(victims, k)
		}
	}
	if len(victims) == 0 {
		return 0
	}
	sort.Strings(victims)

	s.revision++
	for _, k := range victims {
		delete(s.kvs, k)
		s.notify(&clientv3.Event{
			Type: mvccpb.DELETE,
			Kv:   &mvccpb.KeyValue{Key: []byte(k), ModRevision: s.revision},
		})
	}

	return int64(len(victims))
}

// rangeKVs returns copies of the keys in [key, end), sorted ascending.
// Caller holds s.mu.
func (s *Store) rangeKVs(key, end []byte) []*mvccpb.KeyValue {
	var out []*mvccpb.KeyValue
	for k, kv := range s.kvs {
		if matchRange([]byte(k), key, end) {
			out = append(out, cloneKV(kv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })

	return out
}

func matchRange(k, key, end []byte) bool {
	if end == nil {
		return bytes.Equal(k, key)
	}
	if bytes.Compare(k, key) < 0 {
		return false
	}
	// end == "\x00" means an open-ended range.
	if len(end) == 1 && end[0] == 0 {
		return true
	}

	return bytes.Compare(k, end) < 0
}

func (s *Store) header() *pb.ResponseHeader {
	return &pb.ResponseHeader{Revision: s.revision}
}

func cloneKV(kv *mvccpb.KeyValue) *mvccpb.KeyValue {
	c := *kv
	c.Key = append([]byte(nil), kv.Key...)
	c.Value = append([]byte(nil), kv.Value...)

	return &c
}

// --- Watcher ---

// Watch implements clientv3.Watcher. Prefix ranges (WithPrefix) and start
// revisions (WithRev) are honored; events are delivered on a buffered
// channel that is closed when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	op := clientv3.OpGet(key, opts...)
	ch := make(chan clientv3.WatchResponse, 128)

	s.mu.Lock()
	id := s.nextWatchID
	s.nextWatchID++
	w := &watcher{key: op.KeyBytes(), end: op.RangeBytes(), ch: ch}

	if rev := op.Rev(); rev > 0 {
		var evs []*clientv3.Event
		for _, ev := range s.history {
			if ev.Kv.ModRevision >= rev && matchRange(ev.Kv.Key, w.key, w.end) {
				evs = append(evs, ev)
			}
		}
		if len(evs) > 0 {
			ch <- clientv3.WatchResponse{Header: *s.header(), Events: evs}
		}
	}

	s.watchers[id] = w
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
		s.mu.Unlock()
	}()

	return ch
}

// RequestProgress implements clientv3.Watcher as a no-op.
func (s *Store) RequestProgress(context.Context) error { return nil }

// Close implements clientv3.Watcher, terminating all open watches and
// keepalive streams.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w.ch)
	}
	for _, l := range s.leases {
		for _, ka := range l.keepAlives {
			ka.closeOnce()
		}
	}

	return nil
}

// notify fans an event out to matching watchers. Caller holds s.mu. A
// watcher whose buffer is full misses the event; test workloads stay far
// below the buffer size.
func (s *Store) notify(ev *clientv3.Event) {
	s.history = append(s.history, ev)
	for _, w := range s.watchers {
		if !matchRange(ev.Kv.Key, w.key, w.end) {
			continue
		}
		resp := clientv3.WatchResponse{Header: *s.header(), Events: []*clientv3.Event{ev}}
		select {
		case w.ch <- resp:
		default:
		}
	}
}

// --- Lease ---

// Grant implements clientv3.Lease. TTL expiry is not simulated.
func (s *Store) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLeaseID++
	id := clientv3.LeaseID(s.nextLeaseID)
	s.leases[id] = &leaseRecord{ttl: ttl}

	return &clientv3.LeaseGrantResponse{ResponseHeader: s.header(), ID: id, TTL: ttl}, nil
}

// Revoke implements clientv3.Lease, terminating the lease's keepalive
// streams. Attached keys are not reaped; see the package documentation.
func (s *Store) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[id]; ok {
		for _, ka := range l.keepAlives {
			ka.closeOnce()
		}
		delete(s.leases, id)
	}

	return &clientv3.LeaseRevokeResponse{Header: s.header()}, nil
}

// TimeToLive implements clientv3.Lease.
func (s *Store) TimeToLive(_ context.Context, id clientv3.LeaseID, _ ...clientv3.LeaseOption) (*clientv3.LeaseTimeToLiveResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &clientv3.LeaseTimeToLiveResponse{ResponseHeader: s.header(), ID: id, TTL: -1}
	if l, ok := s.leases[id]; ok {
		resp.TTL = l.ttl
		resp.GrantedTTL = l.ttl
	}

	return resp, nil
}

// Leases implements clientv3.Lease.
func (s *Store) Leases(context.Context) (*clientv3.LeaseLeasesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &clientv3.LeaseLeasesResponse{ResponseHeader: s.header()}
	for id := range s.leases {
		resp.Leases = append(resp.Leases, clientv3.LeaseStatus{ID: id})
	}

	return resp, nil
}

// KeepAlive implements clientv3.Lease. The stream delivers one immediate
// response and then stays open until the lease is revoked, the store is
// closed or ctx is cancelled.
func (s *Store) KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ka := &keepAlive{ch: make(chan *clientv3.LeaseKeepAliveResponse, 16)}
	l, ok := s.leases[id]
	if !ok {
		ka.closeOnce()
		return ka.ch, nil
	}

	ka.ch <- &clientv3.LeaseKeepAliveResponse{ResponseHeader: s.header(), ID: id, TTL: l.ttl}
	l.keepAlives = append(l.keepAlives, ka)

	go func() {
		<-ctx.Done()
		ka.closeOnce()
	}()

	return ka.ch, nil
}

// KeepAliveOnce implements clientv3.Lease.
func (s *Store) KeepAliveOnce(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok {
		return nil, rpctypes.ErrLeaseNotFound
	}

	return &clientv3.LeaseKeepAliveResponse{ResponseHeader: s.header(), ID: id, TTL: l.ttl}, nil
}
