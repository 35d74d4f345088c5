package types

import (
	"encoding/json"
	"fmt"
)

// LeaderCommand is an inter-instance message addressed to the group leader.
//
// Only the Join variant exists today. It is a wire contract reserved for the
// join-request protocol; the leader loop does not consume it yet.
type LeaderCommand struct {
	// Join carries the requesting instance's lock key.
	Join *JoinCommand `json:"join,omitempty"`
}

// JoinCommand asks the leader to admit the instance holding LockKey into the
// consumer group.
type JoinCommand struct {
	LockKey []byte `json:"lock_key"`
}

// Encode serializes the command to its wire form.
func (c LeaderCommand) Encode() ([]byte, error) {
	if c.Join == nil {
		return nil, fmt.Errorf("leader command has no variant set")
	}

	return json.Marshal(c)
}

// DecodeLeaderCommand parses a wire-form leader command.
func DecodeLeaderCommand(data []byte) (LeaderCommand, error) {
	var c LeaderCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return LeaderCommand{}, err
	}
	if c.Join == nil {
		return LeaderCommand{}, fmt.Errorf("leader command has no variant set")
	}

	return c, nil
}
