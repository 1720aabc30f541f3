package game

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeHit
	EventTypeKnockout
	EventTypeRespawn
	EventTypeEliminated
	EventTypeSpecial
	EventTypeEntitySpawned
	EventTypeEntityRemoved
	EventTypePickup
	EventTypeRecovery
	EventTypeMatchEnd
	EventTypeEffectExpired
)

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeHit:
		return "hit"
	case EventTypeKnockout:
		return "knockout"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeEliminated:
		return "eliminated"
	case EventTypeSpecial:
		return "special"
	case EventTypeEntitySpawned:
		return "entity_spawned"
	case EventTypeEntityRemoved:
		return "entity_removed"
	case EventTypePickup:
		return "pickup"
	case EventTypeRecovery:
		return "recovery"
	case EventTypeMatchEnd:
		return "match_end"
	case EventTypeEffectExpired:
		return "effect_expired"
	default:
		return "unknown"
	}
}

// MarshalText lets events encode their type by name.
func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event is something the engine wants the outside world to know about. The
// engine only queues events; the session drains them after each step.
type Event struct {
	Type     EventType `json:"type" msgpack:"type"`
	Frame    uint64    `json:"frame" msgpack:"frame"`
	PlayerID string    `json:"playerId,omitempty" msgpack:"pid,omitempty"`
	Payload  any       `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Typed payloads for different event types

// HitPayload describes a landed hit. PlayerID on the event is the victim.
type HitPayload struct {
	AttackerID string  `json:"attackerId" msgpack:"attacker"`
	Damage     float64 `json:"damage" msgpack:"damage"`
	Total      float64 `json:"total" msgpack:"total"`
	Knockback  float64 `json:"knockback" msgpack:"kb"`
	Shielded   bool    `json:"shielded" msgpack:"shielded"`
	Projectile bool    `json:"projectile" msgpack:"proj"`
}

// KnockoutPayload describes a lost life.
type KnockoutPayload struct {
	CreditedTo string `json:"creditedTo,omitempty" msgpack:"credit,omitempty"`
	LivesLeft  int    `json:"livesLeft" msgpack:"lives"`
	BlastZone  bool   `json:"blastZone" msgpack:"blast"`
}

// RespawnPayload gives the reappearance point.
type RespawnPayload struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// SpecialPayload names the special used.
type SpecialPayload struct {
	Special string `json:"special" msgpack:"special"`
}

// EntityPayload identifies a projectile or pickup.
type EntityPayload struct {
	EntityID uint64 `json:"entityId" msgpack:"id"`
	Kind     string `json:"kind" msgpack:"kind"`
}

// RecoveryPayload is an authorized damage reduction.
type RecoveryPayload struct {
	Amount float64 `json:"amount" msgpack:"amount"`
}

// EffectPayload names a status effect.
type EffectPayload struct {
	Effect string `json:"effect" msgpack:"effect"`
}

// NewEvent creates an event for the given frame.
func NewEvent(t EventType, frame uint64, playerID string, payload any) Event {
	return Event{Type: t, Frame: frame, PlayerID: playerID, Payload: payload}
}
