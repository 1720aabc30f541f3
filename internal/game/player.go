package game

import (
	"github.com/solarlune/resolv"

	"smash-arena/internal/input"
)

// PlayerSpec is the roster entry a match starts from.
type PlayerSpec struct {
	ID        string
	Archetype Archetype
}

// Player is the authoritative state of one fighter.
type Player struct {
	ID        string
	Slot      int
	Archetype Archetype
	Stats     Stats

	Pos    Vec2 // Top-left of the body box
	Vel    Vec2
	Facing float64 // +1 right, -1 left

	Damage float64 // Percent accumulator; only recovery and knockout lower it
	Lives  int
	Score  int
	KOs    int

	Grounded   bool
	groundKind PlatformKind
	JumpsLeft  int
	Meter      float64

	Combat  CombatState
	Effects StatusEffects
	Attack  *ActiveAttack

	Input     input.FrameInput
	prevInput input.FrameInput

	LastHitBy    string
	Eliminated   bool
	EliminatedAt uint64

	prevPos     Vec2
	moving      bool
	dropThrough int
	body        *resolv.Object
}

func newPlayer(spec PlayerSpec, slot, lives int) *Player {
	stats := spec.Archetype.Stats()
	return &Player{
		ID:        spec.ID,
		Slot:      slot,
		Archetype: spec.Archetype,
		Stats:     stats,
		Facing:    1,
		Lives:     lives,
		JumpsLeft: stats.Jumps,
	}
}

// Body returns the fighter's hurtbox.
func (p *Player) Body() Rect {
	return Rect{X: p.Pos.X, Y: p.Pos.Y, W: p.Stats.Width, H: p.Stats.Height}
}

// Feet returns the bottom-center point of the body.
func (p *Player) Feet() Vec2 {
	return Vec2{X: p.Pos.X + p.Stats.Width/2, Y: p.Pos.Y + p.Stats.Height}
}

// Active reports whether the fighter is on the stage and simulated.
func (p *Player) Active() bool {
	return !p.Eliminated && p.Combat.Respawn == 0
}

// Respawning reports whether the fighter is waiting to reappear.
func (p *Player) Respawning() bool {
	return !p.Eliminated && p.Combat.Respawn > 0
}

// TakeDamage adds damage and records the attacker.
func (p *Player) TakeDamage(amount float64, attackerID string) {
	if amount <= 0 {
		return
	}
	p.Damage += amount
	if attackerID != "" {
		p.LastHitBy = attackerID
	}
}

// Heal lowers damage by up to amount and returns how much was recovered.
func (p *Player) Heal(amount float64) float64 {
	if amount <= 0 || p.Damage <= 0 {
		return 0
	}
	if amount > p.Damage {
		amount = p.Damage
	}
	p.Damage -= amount
	return amount
}

func (p *Player) addMeter(amount, max float64) {
	p.Meter += amount
	if p.Meter > max {
		p.Meter = max
	}
}

func (p *Player) runSpeed() float64 {
	if p.Effects.Active(EffectSpeedBoost) {
		return p.Stats.RunSpeed * SpeedBoostMultiplier
	}
	return p.Stats.RunSpeed
}

func (p *Player) damageMultiplier() float64 {
	if p.Effects.Active(EffectPowerBoost) {
		return PowerBoostMultiplier
	}
	return 1
}

// ToSnapshot captures the fighter for broadcast.
func (p *Player) ToSnapshot() PlayerSnapshot {
	attacking := p.Attack != nil
	return PlayerSnapshot{
		ID:           p.ID,
		Slot:         p.Slot,
		Archetype:    p.Archetype.String(),
		X:            p.Pos.X,
		Y:            p.Pos.Y,
		VX:           p.Vel.X,
		VY:           p.Vel.Y,
		Facing:       int8(p.Facing),
		Damage:       p.Damage,
		Lives:        p.Lives,
		Score:        p.Score,
		Meter:        p.Meter,
		Grounded:     p.Grounded,
		Shielding:    p.Combat.Shielding,
		Dodging:      p.Combat.DodgeFrames > 0,
		Attacking:    attacking,
		Invulnerable: p.Combat.Invulnerable > 0,
		Respawning:   p.Respawning(),
		Eliminated:   p.Eliminated,
		Effects:      p.Effects.Mask(),
	}
}
