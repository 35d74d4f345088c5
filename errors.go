package failover

import "github.com/streamward/failover/types"

// Re-exported sentinel errors from the types package.
//
// Check with errors.Is; all errors returned by the library wrap one of
// these sentinels.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when the coordination store is nil.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrSelectorRequired is returned when the producer selector is nil.
	ErrSelectorRequired = types.ErrSelectorRequired

	// ErrLeadershipRequired is returned when the leader lock key is empty.
	ErrLeadershipRequired = types.ErrLeadershipRequired

	// ErrAlreadyRunning is returned when Run is called on a leader whose
	// loop is already running.
	ErrAlreadyRunning = types.ErrAlreadyRunning

	// ErrFailedToUpdateStateLog is returned when a guarded state-log write
	// does not execute: leadership was lost or a concurrent writer advanced
	// the log. The instance must stop acting as leader for the group.
	ErrFailedToUpdateStateLog = types.ErrFailedToUpdateStateLog

	// ErrStoreUnavailable indicates a transient coordination store failure.
	ErrStoreUnavailable = types.ErrStoreUnavailable

	// ErrCorruptedState indicates an unrecoverable coordination state
	// inconsistency.
	ErrCorruptedState = types.ErrCorruptedState

	// ErrNoActiveProducer is returned when producer selection runs with no
	// live candidate available.
	ErrNoActiveProducer = types.ErrNoActiveProducer

	// ErrBarrierNotFound is returned when attaching to a rendezvous key
	// that no longer exists.
	ErrBarrierNotFound = types.ErrBarrierNotFound
)
