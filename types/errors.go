package types

import "errors"

// Sentinel errors for the failover library.
//
// These errors provide type-safe error checking using errors.Is() and
// errors.As(). Components wrap external errors with context using
// fmt.Errorf("...: %w", err) and attach the matching sentinel so callers can
// branch on the error kind without string matching.

// Leader errors - Public API errors returned by the Leader runtime.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when the coordination store is nil.
	ErrStoreRequired = errors.New("coordination store is required")

	// ErrSelectorRequired is returned when the producer selector is nil.
	ErrSelectorRequired = errors.New("producer selector is required")

	// ErrLeadershipRequired is returned when the leader lock key is empty.
	ErrLeadershipRequired = errors.New("held leadership is required")

	// ErrAlreadyRunning is returned when Run is called on a leader whose
	// loop is already running.
	ErrAlreadyRunning = errors.New("leader loop already running")

	// ErrFailedToUpdateStateLog is returned when the guarded state-log write
	// does not execute: either leadership was lost or a concurrent writer
	// advanced the log. Fatal to this runtime instance; the caller must not
	// keep acting as leader for the group.
	ErrFailedToUpdateStateLog = errors.New("failed to update state log")

	// ErrStoreUnavailable indicates a transient coordination store failure.
	// The runtime terminates; a supervisor may rebuild and retry it.
	ErrStoreUnavailable = errors.New("coordination store unavailable")

	// ErrCorruptedState indicates an unrecoverable inconsistency: a state
	// log entry that cannot be decoded, or a producer liveness key recreated
	// while the producer was presumed dead.
	ErrCorruptedState = errors.New("corrupted coordination state")

	// ErrNoActiveProducer is returned when producer selection runs with no
	// live, non-excluded producer available.
	ErrNoActiveProducer = errors.New("no active producer")
)

// Barrier errors - rendezvous adapter errors.
var (
	// ErrBarrierNotFound is returned when attaching to a rendezvous key that
	// does not exist, typically because its lease already expired.
	ErrBarrierNotFound = errors.New("barrier not found")
)

// Liveness errors - producer liveness publisher errors.
var (
	// ErrLivenessAlreadyStarted is returned when Start is called on a
	// running publisher.
	ErrLivenessAlreadyStarted = errors.New("liveness publisher already started")

	// ErrLivenessNotStarted is returned when Stop is called before Start.
	ErrLivenessNotStarted = errors.New("liveness publisher not started")
)
