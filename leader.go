package failover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamward/failover/internal/barrier"
	"github.com/streamward/failover/internal/deadsignal"
	"github.com/streamward/failover/internal/keys"
	"github.com/streamward/failover/types"
)

// markerLeaseTTL scopes the transient marker staged when a producer loss is
// detected. The marker expires on its own; nothing deletes it.
const markerLeaseTTL = 10 * time.Second

// Leader drives the failover state machine for one consumer group.
//
// A Leader instance is bound to a held leader lock: every state-log write is
// conditioned on the lock key still existing, so a demoted leader fences
// itself out on its next write. Create with NewLeader and drive with Run.
type Leader struct {
	cfg      Config
	store    types.Store
	lead     types.Leadership
	group    types.ConsumerGroupID
	selector types.ProducerSelector

	logger  types.Logger
	hooks   *types.Hooks
	metrics types.MetricsCollector

	logKey string

	mu           sync.Mutex
	running      bool
	state        types.LeaderState
	lastRevision int64

	// lastLost excludes the previous epoch's failed producer from the next
	// selection. Best effort: not persisted, so it is empty after a restart
	// into ComputingProducerSelection.
	lastLost types.ProducerID

	// Runtime caches rebuilt from persisted state on demand and dropped on
	// transition. Never persisted.
	sig *deadsignal.Signal
	bar *barrier.Barrier

	subs      *xsync.Map[uint64, *stateSubscriber]
	nextSubID atomic.Uint64
}

// NewLeader creates a failover leader for the consumer group and bootstraps
// its state log.
//
// If the group has no state log yet, an Init entry is written, guarded on
// the leader lock still being held. If a state log exists, its current
// entry is decoded and adopted, which is how a successor resumes a
// predecessor's in-flight failover.
//
// Parameters:
//   - ctx: Context bounding the bootstrap store operations
//   - cfg: Configuration (nil uses DefaultConfig; missing fields get defaults)
//   - store: Coordination store (a *clientv3.Client satisfies Store)
//   - lead: The held leader lock for this group
//   - group: Consumer group identifier
//   - sel: Producer selection policy (see the selector package)
//   - opts: Functional options (WithLogger, WithHooks, WithMetrics, ...)
//
// Returns:
//   - *Leader: Ready-to-run leader with adopted state
//   - error: ErrStoreRequired/ErrSelectorRequired/ErrLeadershipRequired/
//     ErrInvalidConfig for bad arguments, ErrFailedToUpdateStateLog when the
//     lock is not held, ErrStoreUnavailable/ErrCorruptedState from bootstrap
func NewLeader(ctx context.Context, cfg *Config, store types.Store, lead types.Leadership,
	group types.ConsumerGroupID, sel types.ProducerSelector, opts ...Option,
) (*Leader, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if sel == nil {
		return nil, ErrSelectorRequired
	}
	if lead.LockKey == "" {
		return nil, ErrLeadershipRequired
	}
	if group == "" {
		return nil, fmt.Errorf("%w: consumer group ID must not be empty", ErrInvalidConfig)
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := defaultLeaderOptions()
	for _, opt := range opts {
		opt(o)
	}
	c.ValidateWithWarnings(o.logger)

	l := &Leader{
		cfg:      c,
		store:    store,
		lead:     lead,
		group:    group,
		selector: sel,
		logger:   o.logger,
		hooks:    o.hooks,
		metrics:  o.metrics,
		logKey:   keys.StateLog(c.Namespace, group),
		subs:     xsync.NewMap[uint64, *stateSubscriber](),
	}

	if err := l.bootstrap(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// bootstrap adopts the group's existing state-log entry, or writes the Init
// entry for a fresh group. The Init write is guarded on the lock being held
// and the log still being absent, so exactly one concurrent bootstrapper
// writes; every other one observes the guard failure and must not assume
// leadership.
func (l *Leader) bootstrap(ctx context.Context) error {
	gctx, gcancel := l.opCtx(ctx)
	got, err := l.store.Get(gctx, l.logKey)
	gcancel()
	if err != nil {
		return fmt.Errorf("%w: failed to read state log: %w", types.ErrStoreUnavailable, err)
	}

	if len(got.Kvs) > 0 {
		kv := got.Kvs[0]
		state, err := types.DecodeLeaderState(kv.Value)
		if err != nil {
			return fmt.Errorf("%w: undecodable state log entry at %q: %w", types.ErrCorruptedState, l.logKey, err)
		}

		l.state = state
		l.lastRevision = kv.ModRevision
		if state.Kind() == types.KindLostProducer {
			l.lastLost = state.LostProducerID()
		}
		l.logger.Info("recovered leader state log",
			"group", l.group,
			"state", state.String(),
			"revision", kv.ModRevision,
		)

		return nil
	}

	init := types.Init()
	encoded, err := init.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode initial state: %w", err)
	}

	octx, cancel := l.opCtx(ctx)
	defer cancel()

	resp, err := l.store.Txn(octx).If(
		clientv3.Compare(clientv3.Version(l.lead.LockKey), ">", 0),
		clientv3.Compare(clientv3.Version(l.logKey), "=", 0),
	).Then(
		clientv3.OpPut(l.logKey, string(encoded)),
	).Commit()
	if err != nil {
		return fmt.Errorf("%w: state log bootstrap failed: %w", types.ErrStoreUnavailable, err)
	}

	if !resp.Succeeded {
		// Either the lock is gone or a concurrent initializer wrote the log
		// after our read. Both mean this instance must not act as leader.
		return fmt.Errorf("%w: lock %q not held or state log %q concurrently initialized",
			types.ErrFailedToUpdateStateLog, l.lead.LockKey, l.logKey)
	}

	rev := putRevision(resp)
	if rev == 0 {
		return fmt.Errorf("%w: bootstrap transaction returned no put response", types.ErrFailedToUpdateStateLog)
	}
	l.state = init
	l.lastRevision = rev
	l.logger.Info("initialized leader state log",
		"group", l.group,
		"key", l.logKey,
		"revision", rev,
	)

	return nil
}

// Run drives the state machine until ctx is cancelled, leadership is lost,
// or an unrecoverable error occurs.
//
// Cancellation is the normal shutdown path and returns nil; the persisted
// state is left exactly as last written and a successor resumes from it.
// Any non-nil error means this instance must stop acting as leader for the
// group.
//
// Run must not be called concurrently; a second call while the loop is
// active returns ErrAlreadyRunning.
func (l *Leader) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.stopSignal()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	l.logger.Info("leader loop starting",
		"group", l.group,
		"state", l.State().String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		next, proceed, err := l.nextState(ctx)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}

		if err := l.persist(ctx, next); err != nil {
			return err
		}
	}
}

// nextState executes the current state's arm and produces the successor
// state. proceed is false when ctx was cancelled mid-arm; the loop then
// exits cleanly without persisting anything.
func (l *Leader) nextState(ctx context.Context) (next types.LeaderState, proceed bool, err error) {
	switch l.state.Kind() {
	case types.KindInit:
		return types.ComputingProducerSelection(), true, nil

	case types.KindComputingProducerSelection:
		return l.selectProducer(ctx)

	case types.KindIdle:
		return l.watchProducer(ctx)

	case types.KindLostProducer:
		return l.openBarrier(ctx)

	case types.KindWaitingBarrier:
		return l.awaitBarrier(ctx)

	default:
		return types.LeaderState{}, false,
			fmt.Errorf("%w: unknown leader state kind %d", types.ErrCorruptedState, l.state.Kind())
	}
}

// selectProducer lists live producers, excludes the producer lost in the
// previous epoch, and applies the selection policy. A fresh execution ID is
// minted so writers of the superseded epoch are invalidated.
func (l *Leader) selectProducer(ctx context.Context) (types.LeaderState, bool, error) {
	candidates, err := l.liveProducers(ctx)
	if err != nil {
		return types.LeaderState{}, false, err
	}
	if len(candidates) == 0 {
		return types.LeaderState{}, false,
			fmt.Errorf("%w: group %q has no live producers", types.ErrNoActiveProducer, l.group)
	}

	picked, err := l.selector.Select(l.group, candidates)
	if err != nil {
		return types.LeaderState{}, false, fmt.Errorf("producer selection failed for group %q: %w", l.group, err)
	}

	executionID := newExecutionID()
	l.logger.Info("selected producer",
		"group", l.group,
		"producer", picked,
		"candidates", len(candidates),
	)
	l.metrics.RecordProducerSelected(l.group)
	l.callHook("OnProducerSelected", func() error {
		if l.hooks == nil || l.hooks.OnProducerSelected == nil {
			return nil
		}
		return l.hooks.OnProducerSelected(ctx, picked, executionID)
	})

	return types.Idle(picked, executionID), true, nil
}

// watchProducer blocks on the active producer's dead signal. When it fires,
// a transient marker is staged and the loss is recorded as the next state.
func (l *Leader) watchProducer(ctx context.Context) (types.LeaderState, bool, error) {
	if l.sig == nil {
		prefix := keys.ProducerLivenessPrefix(l.cfg.Namespace, l.state.Producer())
		sig, err := deadsignal.Subscribe(ctx, l.store, prefix, l.logger)
		if err != nil {
			return types.LeaderState{}, false, err
		}
		l.sig = sig
	}

	select {
	case <-ctx.Done():
		return types.LeaderState{}, false, nil
	case err := <-l.sig.C():
		if err != nil {
			return types.LeaderState{}, false, err
		}
	}

	lost := l.state.Producer()
	l.logger.Warn("active producer lost",
		"group", l.group,
		"producer", lost,
	)
	l.metrics.RecordProducerLost(l.group)
	l.callHook("OnProducerLost", func() error {
		if l.hooks == nil || l.hooks.OnProducerLost == nil {
			return nil
		}
		return l.hooks.OnProducerLost(ctx, lost)
	})

	// Stage a short-lived marker before the loss is persisted. External
	// tooling can watch the marker prefix to observe failover onset without
	// decoding the state log.
	if err := l.stageMarker(ctx); err != nil {
		return types.LeaderState{}, false, err
	}

	l.lastLost = lost

	return types.LostProducer(lost, l.state.ExecutionID()), true, nil
}

// openBarrier freezes the group's current instance set and registers a
// rendezvous barrier for it under a fresh lease.
func (l *Leader) openBarrier(ctx context.Context) (types.LeaderState, bool, error) {
	participants, err := l.instanceLocks(ctx)
	if err != nil {
		return types.LeaderState{}, false, err
	}

	octx, cancel := l.opCtx(ctx)
	grant, err := l.store.Grant(octx, int64(l.cfg.BarrierLeaseTTL/time.Second))
	cancel()
	if err != nil {
		return types.LeaderState{}, false,
			fmt.Errorf("%w: failed to grant barrier lease: %w", types.ErrStoreUnavailable, err)
	}

	key := keys.Barrier(l.cfg.Namespace, uuid.NewString())
	b, err := barrier.New(ctx, l.store, key, participants, grant.ID)
	if err != nil {
		return types.LeaderState{}, false, err
	}
	l.bar = b

	l.logger.Info("opened failover barrier",
		"group", l.group,
		"barrier", key,
		"participants", len(participants),
	)

	return types.WaitingBarrier(int64(grant.ID), key, participants), true, nil
}

// awaitBarrier waits for every frozen participant to arrive at the
// rendezvous. A restarted leader attaches to the persisted barrier key; if
// the barrier's lease already expired the rendezvous window has lapsed and
// the loop proceeds to selection directly.
func (l *Leader) awaitBarrier(ctx context.Context) (types.LeaderState, bool, error) {
	if l.bar == nil {
		b, err := barrier.Attach(ctx, l.store, l.state.BarrierKey())
		if errors.Is(err, types.ErrBarrierNotFound) {
			l.logger.Warn("failover barrier expired before completion, proceeding to selection",
				"group", l.group,
				"barrier", l.state.BarrierKey(),
			)

			return types.ComputingProducerSelection(), true, nil
		}
		if err != nil {
			return types.LeaderState{}, false, err
		}
		l.bar = b
	}

	start := time.Now()
	if err := l.bar.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return types.LeaderState{}, false, nil
		}

		return types.LeaderState{}, false, err
	}
	l.metrics.RecordBarrierWait(l.group, time.Since(start).Seconds())

	l.logger.Info("failover barrier complete",
		"group", l.group,
		"barrier", l.state.BarrierKey(),
		"waited", time.Since(start),
	)

	return types.ComputingProducerSelection(), true, nil
}

// persist writes the next state through the guarded transaction and adopts
// it on success. Guard failure is fatal: either leadership was lost or a
// concurrent writer advanced the log.
func (l *Leader) persist(ctx context.Context, next types.LeaderState) error {
	encoded, err := next.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode leader state: %w", err)
	}

	octx, cancel := l.opCtx(ctx)
	defer cancel()

	resp, err := l.store.Txn(octx).If(
		clientv3.Compare(clientv3.Version(l.lead.LockKey), ">", 0),
		clientv3.Compare(clientv3.ModRevision(l.logKey), "=", l.lastRevision),
	).Then(
		clientv3.OpPut(l.logKey, string(encoded)),
	).Commit()
	if err != nil {
		return fmt.Errorf("%w: state log write failed: %w", types.ErrStoreUnavailable, err)
	}

	if !resp.Succeeded {
		l.metrics.RecordStateLogWrite(l.group, false)
		l.logger.Error("state log write rejected",
			"group", l.group,
			"from", l.state.String(),
			"to", next.String(),
			"lastRevision", l.lastRevision,
		)

		return fmt.Errorf("%w: group %q at revision %d", ErrFailedToUpdateStateLog, l.group, l.lastRevision)
	}

	rev := putRevision(resp)
	if rev == 0 {
		return fmt.Errorf("%w: transaction returned no put response", ErrFailedToUpdateStateLog)
	}

	l.mu.Lock()
	prev := l.state
	l.state = next
	l.lastRevision = rev
	l.mu.Unlock()

	l.metrics.RecordStateLogWrite(l.group, true)
	l.metrics.RecordStateTransition(l.group, prev.Kind(), next.Kind())
	l.logger.Debug("leader state transition",
		"group", l.group,
		"from", prev.String(),
		"to", next.String(),
		"revision", rev,
	)

	l.dropStaleCaches(next)
	l.callHook("OnStateChanged", func() error {
		if l.hooks == nil || l.hooks.OnStateChanged == nil {
			return nil
		}
		return l.hooks.OnStateChanged(ctx, prev, next)
	})
	l.notifyStateChange(prev, next)

	return nil
}

// dropStaleCaches releases runtime handles that do not belong to the new
// state. Handles are rebuilt from the persisted state when needed.
func (l *Leader) dropStaleCaches(next types.LeaderState) {
	if next.Kind() != types.KindIdle {
		l.stopSignal()
	}
	if next.Kind() != types.KindWaitingBarrier {
		l.bar = nil
	}
}

func (l *Leader) stopSignal() {
	if l.sig != nil {
		l.sig.Stop()
		l.sig = nil
	}
}

// liveProducers lists producers with at least one liveness key, excluding
// the previous epoch's lost producer, sorted for deterministic selection.
func (l *Leader) liveProducers(ctx context.Context) ([]types.ProducerID, error) {
	octx, cancel := l.opCtx(ctx)
	defer cancel()

	prefix := keys.ProducersPrefix(l.cfg.Namespace)
	resp, err := l.store.Get(octx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list producers: %w", types.ErrStoreUnavailable, err)
	}

	seen := make(map[types.ProducerID]struct{})
	for _, kv := range resp.Kvs {
		id, ok := keys.ProducerFromLivenessKey(l.cfg.Namespace, string(kv.Key))
		if !ok || id == l.lastLost {
			continue
		}
		seen[id] = struct{}{}
	}

	out := make([]types.ProducerID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}

// instanceLocks lists the group's current instance lock keys, sorted. The
// returned keys become the frozen barrier participant set.
func (l *Leader) instanceLocks(ctx context.Context) ([]string, error) {
	octx, cancel := l.opCtx(ctx)
	defer cancel()

	prefix := keys.InstanceLockPrefix(l.cfg.Namespace, l.group)
	resp, err := l.store.Get(octx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list group instances: %w", types.ErrStoreUnavailable, err)
	}

	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, string(kv.Key))
	}
	sort.Strings(out)

	return out, nil
}

// stageMarker writes an empty, lease-scoped marker key under a fresh uuid.
func (l *Leader) stageMarker(ctx context.Context) error {
	octx, cancel := l.opCtx(ctx)
	defer cancel()

	grant, err := l.store.Grant(octx, int64(markerLeaseTTL/time.Second))
	if err != nil {
		return fmt.Errorf("%w: failed to grant marker lease: %w", types.ErrStoreUnavailable, err)
	}

	key := keys.Marker(l.cfg.Namespace, uuid.NewString())
	if _, err := l.store.Put(octx, key, "", clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("%w: failed to stage failover marker: %w", types.ErrStoreUnavailable, err)
	}

	return nil
}

// callHook runs a hook and logs its error; hooks never fail the loop.
func (l *Leader) callHook(name string, fn func() error) {
	if err := fn(); err != nil {
		l.logger.Error("leader hook failed",
			"hook", name,
			"group", l.group,
			"error", err,
		)
	}
}

// State returns the current in-memory copy of the persisted leader state.
func (l *Leader) State() types.LeaderState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// LastRevision returns the mod revision of the last adopted state log
// entry. It increases strictly monotonically over the leader's lifetime.
func (l *Leader) LastRevision() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastRevision
}

// Group returns the consumer group this leader coordinates.
func (l *Leader) Group() types.ConsumerGroupID { return l.group }

func (l *Leader) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.OpTimeout)
}

// newExecutionID mints a fresh generation token.
func newExecutionID() []byte {
	u := uuid.New()

	return u[:]
}

// putRevision extracts the revision of the transaction's put response.
func putRevision(resp *clientv3.TxnResponse) int64 {
	if len(resp.Responses) == 0 {
		return 0
	}
	put := resp.Responses[0].GetResponsePut()
	if put == nil || put.Header == nil {
		return 0
	}

	return put.Header.Revision
}
