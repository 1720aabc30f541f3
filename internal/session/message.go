package session

import (
	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"smash-arena/internal/game"
)

// Kind identifies an outbound message.
type Kind string

const (
	KindSnapshot  Kind = "snapshot"  // Full state, sent on start and on join
	KindDelta     Kind = "delta"     // Changes since the previous broadcast
	KindEvent     Kind = "event"     // One engine event
	KindWarning   Kind = "warning"   // Validator warn tier
	KindKick      Kind = "kick"      // Validator kick tier; transport closes the connection
	KindBan       Kind = "ban"       // Validator ban tier; transport closes the connection
	KindRejected  Kind = "rejected"  // Single refused message, no escalation
	KindResult    Kind = "result"    // Final standings
	KindLifecycle Kind = "lifecycle" // Session state change
)

// Message is one outbound item queued by a session during a tick. An empty
// Target means every connected player.
type Message struct {
	Kind      Kind   `json:"kind" msgpack:"kind"`
	SessionID string `json:"sessionId" msgpack:"sid"`
	Target    string `json:"target,omitempty" msgpack:"target,omitempty"`
	Frame     uint64 `json:"frame" msgpack:"frame"`
	Confirmed uint64 `json:"confirmed,omitempty" msgpack:"confirmed,omitempty"`
	Checksum  uint64 `json:"checksum,omitempty" msgpack:"checksum,omitempty"`
	Payload   any    `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Broadcast reports whether m goes to every player.
func (m Message) Broadcast() bool { return m.Target == "" }

// LifecyclePayload announces a session state change.
type LifecyclePayload struct {
	State  string `json:"state" msgpack:"state"`
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// EncodeMessage serializes m for the wire.
func EncodeMessage(m Message) ([]byte, error) {
	return msgpack.Marshal(&m)
}

// Checksum hashes the encoded snapshot so clients can detect divergence.
func Checksum(s *game.Snapshot) uint64 {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}
