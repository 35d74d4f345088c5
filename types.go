package failover

import (
	"log/slog"

	"github.com/streamward/failover/internal/logging"
	"github.com/streamward/failover/types"
)

// Re-exported types from the types package.
//
// The canonical definitions live in the types subpackage so that internal
// packages can share them without import cycles; application code should
// use these aliases.
type (
	// ConsumerGroupID identifies a log-consumption group.
	ConsumerGroupID = types.ConsumerGroupID

	// ProducerID identifies a producer feeding a consumer group.
	ProducerID = types.ProducerID

	// LeaderState is the persisted state of a group's failover state machine.
	LeaderState = types.LeaderState

	// StateKind enumerates the LeaderState variants.
	StateKind = types.StateKind

	// LeaderCommand is an inter-instance message addressed to the leader.
	LeaderCommand = types.LeaderCommand

	// JoinCommand asks the leader to admit an instance into the group.
	JoinCommand = types.JoinCommand

	// Store is the coordination store facet consumed by the library.
	Store = types.Store

	// Leadership describes an already-held leader lock.
	Leadership = types.Leadership

	// ProducerSelector picks a replacement producer during failover.
	ProducerSelector = types.ProducerSelector

	// Logger is the logging interface used throughout the library.
	Logger = types.Logger

	// Hooks defines callbacks for leader lifecycle events.
	Hooks = types.Hooks

	// MetricsCollector receives operational metrics from the leader runtime.
	MetricsCollector = types.MetricsCollector
)

// Re-exported state kinds.
const (
	KindInit                       = types.KindInit
	KindLostProducer               = types.KindLostProducer
	KindWaitingBarrier             = types.KindWaitingBarrier
	KindComputingProducerSelection = types.KindComputingProducerSelection
	KindIdle                       = types.KindIdle
)

// NewSlogLogger creates a Logger backed by the given slog.Logger. Passing
// nil uses slog.Default().
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return logging.NewSlogDefault()
	}

	return logging.NewSlog(logger)
}
