package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeaderStateZeroValueIsInit(t *testing.T) {
	var s LeaderState
	require.Equal(t, KindInit, s.Kind())
	require.Equal(t, "Init", s.String())
}

func TestLeaderStateRoundTrip(t *testing.T) {
	execID := []byte{0x01, 0x02, 0x03, 0x04}

	states := []LeaderState{
		Init(),
		LostProducer("producer-a", execID),
		WaitingBarrier(42, "failover/v1/barriers/tok", []string{"lock-1", "lock-2"}),
		ComputingProducerSelection(),
		Idle("producer-b", execID),
	}

	for _, original := range states {
		t.Run(original.String(), func(t *testing.T) {
			encoded, err := original.Encode()
			require.NoError(t, err)

			decoded, err := DecodeLeaderState(encoded)
			require.NoError(t, err)
			require.Equal(t, original, decoded)
		})
	}
}

func TestLeaderStateEnvelopeTag(t *testing.T) {
	encoded, err := Idle("p1", []byte{0xAA}).Encode()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(encoded, &env))
	require.Equal(t, "Idle", env["state"])
	require.Equal(t, "p1", env["producer_id"])
	require.NotContains(t, env, "barrier_key")
	require.NotContains(t, env, "lost_producer_id")
}

func TestDecodeLeaderStateUnknownTag(t *testing.T) {
	_, err := DecodeLeaderState([]byte(`{"state":"Rebalancing"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Rebalancing")
}

func TestDecodeLeaderStateMalformed(t *testing.T) {
	_, err := DecodeLeaderState([]byte(`{{{`))
	require.Error(t, err)
}

func TestWaitingBarrierAccessors(t *testing.T) {
	s := WaitingBarrier(7, "ns/v1/barriers/b", []string{"a", "b"})
	require.Equal(t, int64(7), s.LeaseID())
	require.Equal(t, "ns/v1/barriers/b", s.BarrierKey())
	require.Equal(t, []string{"a", "b"}, s.WaitFor())

	// WaitFor returns a copy; mutating it must not affect the state.
	s.WaitFor()[0] = "mutated"
	require.Equal(t, []string{"a", "b"}, s.WaitFor())
}

func TestLostProducerCarriesExecutionID(t *testing.T) {
	execID := []byte{0xDE, 0xAD}
	s := LostProducer("p1", execID)
	require.Equal(t, KindLostProducer, s.Kind())
	require.Equal(t, ProducerID("p1"), s.LostProducerID())
	require.Equal(t, execID, s.ExecutionID())
}
