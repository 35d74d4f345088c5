package types

import (
	"encoding/json"
	"fmt"
)

// StateKind enumerates the variants of the persisted leader state machine.
//
// Transitions form a cycle:
//
//	Init → ComputingProducerSelection → Idle → LostProducer →
//	WaitingBarrier → ComputingProducerSelection → …
type StateKind int

const (
	// KindInit is the freshly bootstrapped state; no decision made yet.
	KindInit StateKind = iota

	// KindLostProducer indicates a producer failure was detected but the
	// rendezvous with the group instances has not started yet.
	KindLostProducer

	// KindWaitingBarrier indicates a rendezvous is in progress.
	KindWaitingBarrier

	// KindComputingProducerSelection indicates the rendezvous completed and
	// a replacement producer is about to be selected.
	KindComputingProducerSelection

	// KindIdle is the steady state with an active producer.
	KindIdle
)

// String returns the string representation of the state kind. It is also the
// tag used in the persisted JSON envelope.
func (k StateKind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindLostProducer:
		return "LostProducer"
	case KindWaitingBarrier:
		return "WaitingBarrier"
	case KindComputingProducerSelection:
		return "ComputingProducerSelection"
	case KindIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// LeaderState is the persisted state of a consumer group's failover state
// machine. It is a closed tagged union: only the fields belonging to the
// current kind are meaningful.
//
// LeaderState holds keys and identifiers only, never live handles. Runtime
// handles (barrier, watch subscriptions) are caches owned by the Leader and
// reconstructed from the persisted keys after a restart.
//
// The zero value is the Init state.
type LeaderState struct {
	kind StateKind

	lostProducer ProducerID
	producer     ProducerID
	executionID  []byte
	leaseID      int64
	barrierKey   string
	waitFor      []string
}

// Init returns the freshly bootstrapped state.
func Init() LeaderState {
	return LeaderState{kind: KindInit}
}

// LostProducer returns the state recording a detected producer failure.
// The execution ID is carried over unchanged from the superseded Idle state.
func LostProducer(lost ProducerID, executionID []byte) LeaderState {
	return LeaderState{kind: KindLostProducer, lostProducer: lost, executionID: executionID}
}

// WaitingBarrier returns the state recording an in-progress rendezvous.
// waitFor is the frozen snapshot of participant keys captured at barrier
// creation time.
func WaitingBarrier(leaseID int64, barrierKey string, waitFor []string) LeaderState {
	return LeaderState{kind: KindWaitingBarrier, leaseID: leaseID, barrierKey: barrierKey, waitFor: waitFor}
}

// ComputingProducerSelection returns the state in which a replacement
// producer is pending selection.
func ComputingProducerSelection() LeaderState {
	return LeaderState{kind: KindComputingProducerSelection}
}

// Idle returns the steady state. executionID is the generation token that
// invalidates stale writers from a superseded epoch; it must be freshly
// minted on every Idle entry.
func Idle(producer ProducerID, executionID []byte) LeaderState {
	return LeaderState{kind: KindIdle, producer: producer, executionID: executionID}
}

// Kind returns the variant of the state.
func (s LeaderState) Kind() StateKind { return s.kind }

// String returns the variant name.
func (s LeaderState) String() string { return s.kind.String() }

// LostProducerID returns the failed producer recorded by a LostProducer
// state.
func (s LeaderState) LostProducerID() ProducerID { return s.lostProducer }

// Producer returns the active producer recorded by an Idle state.
func (s LeaderState) Producer() ProducerID { return s.producer }

// ExecutionID returns the generation token of an Idle or LostProducer state.
func (s LeaderState) ExecutionID() []byte { return s.executionID }

// LeaseID returns the rendezvous lease of a WaitingBarrier state.
func (s LeaderState) LeaseID() int64 { return s.leaseID }

// BarrierKey returns the rendezvous key of a WaitingBarrier state.
func (s LeaderState) BarrierKey() string { return s.barrierKey }

// WaitFor returns a copy of the frozen participant set of a WaitingBarrier
// state.
func (s LeaderState) WaitFor() []string {
	out := make([]string, len(s.waitFor))
	copy(out, s.waitFor)
	return out
}

// stateEnvelope is the persisted JSON form of LeaderState. The State tag
// selects the variant; unused fields are omitted.
type stateEnvelope struct {
	State          string     `json:"state"`
	LostProducerID ProducerID `json:"lost_producer_id,omitempty"`
	ProducerID     ProducerID `json:"producer_id,omitempty"`
	ExecutionID    []byte     `json:"execution_id,omitempty"`
	LeaseID        int64      `json:"lease_id,omitempty"`
	BarrierKey     string     `json:"barrier_key,omitempty"`
	WaitFor        []string   `json:"wait_for,omitempty"`
}

// MarshalJSON encodes the state as a tagged JSON envelope.
func (s LeaderState) MarshalJSON() ([]byte, error) {
	env := stateEnvelope{State: s.kind.String()}
	switch s.kind {
	case KindLostProducer:
		env.LostProducerID = s.lostProducer
		env.ExecutionID = s.executionID
	case KindWaitingBarrier:
		env.LeaseID = s.leaseID
		env.BarrierKey = s.barrierKey
		env.WaitFor = s.waitFor
	case KindIdle:
		env.ProducerID = s.producer
		env.ExecutionID = s.executionID
	case KindInit, KindComputingProducerSelection:
	default:
		return nil, fmt.Errorf("unknown leader state kind %d", s.kind)
	}

	return json.Marshal(env)
}

// UnmarshalJSON decodes a tagged JSON envelope. Unknown state tags are an
// error so that a newer writer cannot be silently misread.
func (s *LeaderState) UnmarshalJSON(data []byte) error {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.State {
	case "Init":
		*s = Init()
	case "LostProducer":
		*s = LostProducer(env.LostProducerID, env.ExecutionID)
	case "WaitingBarrier":
		*s = WaitingBarrier(env.LeaseID, env.BarrierKey, env.WaitFor)
	case "ComputingProducerSelection":
		*s = ComputingProducerSelection()
	case "Idle":
		*s = Idle(env.ProducerID, env.ExecutionID)
	default:
		return fmt.Errorf("unknown leader state %q", env.State)
	}

	return nil
}

// Encode serializes the state to its persisted form.
func (s LeaderState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeLeaderState parses a persisted state log entry.
func DecodeLeaderState(data []byte) (LeaderState, error) {
	var s LeaderState
	if err := json.Unmarshal(data, &s); err != nil {
		return LeaderState{}, err
	}

	return s, nil
}
