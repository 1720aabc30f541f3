package game

import "github.com/solarlune/resolv"

// EntityKind separates moving attacks from collectibles.
type EntityKind uint8

const (
	EntityProjectile EntityKind = iota + 1
	EntityPickup
)

// PickupKind is what a pickup grants when collected.
type PickupKind uint8

const (
	PickupHeal PickupKind = iota + 1
	PickupMeter
	PickupSpeed
	PickupPower
	PickupRegen
	pickupKindCount = PickupRegen
)

// Entity tuning.
const (
	FireballSpeed     = 9.0
	FireballSize      = 16.0
	FireballDamage    = 8.0
	FireballKnockback = 6.0
	FireballBounces   = 3
	FireballLifetime  = 240

	PickupSize     = 24.0
	PickupLifetime = 600
	HealAmount     = 25.0
	MeterAmount    = 50.0

	entityGravityScale = 0.5
)

// Entity is a projectile or pickup living on the stage.
type Entity struct {
	ID        uint64
	Kind      EntityKind
	Pickup    PickupKind
	OwnerID   string
	Pos       Vec2 // Top-left
	Vel       Vec2
	Size      float64
	Damage    float64
	Knockback float64
	Lifetime  int
	Bounces   int // Platform or fighter contacts left before removal
	Gravity   bool
	resting   bool
	hit       []string
	body      *resolv.Object
}

// Box returns the entity's collision box.
func (e *Entity) Box() Rect { return Rect{X: e.Pos.X, Y: e.Pos.Y, W: e.Size, H: e.Size} }

func (e *Entity) hasHit(id string) bool {
	for _, h := range e.hit {
		if h == id {
			return true
		}
	}
	return false
}

// KindName returns the wire name, e.g. "projectile" or "pickup:heal".
func (e *Entity) KindName() string {
	if e.Kind == EntityProjectile {
		return "projectile"
	}
	return "pickup:" + e.Pickup.String()
}

// ToSnapshot captures the entity for broadcast.
func (e *Entity) ToSnapshot() EntitySnapshot {
	return EntitySnapshot{
		ID:      e.ID,
		Kind:    e.KindName(),
		X:       e.Pos.X,
		Y:       e.Pos.Y,
		VX:      e.Vel.X,
		VY:      e.Vel.Y,
		OwnerID: e.OwnerID,
		Bounces: e.Bounces,
	}
}

// String returns the wire name of the pickup.
func (k PickupKind) String() string {
	switch k {
	case PickupHeal:
		return "heal"
	case PickupMeter:
		return "meter"
	case PickupSpeed:
		return "speed"
	case PickupPower:
		return "power"
	case PickupRegen:
		return "regen"
	default:
		return "unknown"
	}
}

// bounce reflects the velocity component along the penetration axis.
func (e *Entity) bounce(push Vec2) {
	if push.X != 0 {
		e.Vel.X = -e.Vel.X
	}
	if push.Y != 0 {
		e.Vel.Y = -e.Vel.Y
	}
	e.Pos = e.Pos.Add(push)
}
