package game

// CombatState holds a fighter's frame counters. Every counter counts down one
// per frame in UpdateTimers so replays stay deterministic.
type CombatState struct {
	Shielding      bool
	ShieldFrames   int // Remaining shield budget while shielding
	ShieldCooldown int

	DodgeFrames   int // Remaining dodge i-frames
	DodgeCooldown int

	AttackCooldown int
	HitStun        int

	Invulnerable int // Spawn/respawn protection
	HitInvuln    int // Short protection after being hit
	Respawn      int // Frames until the fighter reappears

	// The last attacker may keep hitting through HitInvuln while ComboWindow runs.
	ComboOwner  string
	ComboWindow int
}

// Combat tuning, in frames unless noted.
const (
	ShieldMaxFrames      = 90
	ShieldCooldownFrames = 30
	ShieldDamageFactor   = 0.25

	DodgeFrames         = 20
	DodgeCooldownFrames = 60
	DodgeSpeedFactor    = 1.5

	HitStunPerKnockback = 0.6
	MeterGainPerDamage  = 0.5

	DropThroughFrames = 8
)

// UpdateTimers counts every combat counter down by one frame. Respawn is
// handled by the engine because reaching zero moves the fighter.
func (c *CombatState) UpdateTimers() {
	if c.Shielding && c.ShieldFrames > 0 {
		c.ShieldFrames--
	}
	if c.ShieldCooldown > 0 {
		c.ShieldCooldown--
	}
	if c.DodgeFrames > 0 {
		c.DodgeFrames--
	}
	if c.DodgeCooldown > 0 {
		c.DodgeCooldown--
	}
	if c.AttackCooldown > 0 {
		c.AttackCooldown--
	}
	if c.HitStun > 0 {
		c.HitStun--
	}
	if c.Invulnerable > 0 {
		c.Invulnerable--
	}
	if c.HitInvuln > 0 {
		c.HitInvuln--
	}
	if c.ComboWindow > 0 {
		c.ComboWindow--
		if c.ComboWindow == 0 {
			c.ComboOwner = ""
		}
	}
}

// StartShield raises the shield if it is off cooldown.
func (c *CombatState) StartShield() bool {
	if c.Shielding || c.ShieldCooldown > 0 {
		return false
	}
	c.Shielding = true
	c.ShieldFrames = ShieldMaxFrames
	return true
}

// DropShield lowers the shield and starts its cooldown.
func (c *CombatState) DropShield() {
	if !c.Shielding {
		return
	}
	c.Shielding = false
	c.ShieldFrames = 0
	c.ShieldCooldown = ShieldCooldownFrames
}

// StartDodge begins a dodge if it is off cooldown.
func (c *CombatState) StartDodge() bool {
	if c.DodgeCooldown > 0 || c.DodgeFrames > 0 {
		return false
	}
	c.DodgeFrames = DodgeFrames
	c.DodgeCooldown = DodgeCooldownFrames
	return true
}

// IsInvulnerableTo reports whether hits from attackerID are ignored this
// frame. Spawn protection and dodges block everyone; post-hit protection lets
// the current combo owner through.
func (c *CombatState) IsInvulnerableTo(attackerID string) bool {
	if c.Invulnerable > 0 || c.DodgeFrames > 0 || c.Respawn > 0 {
		return true
	}
	if c.HitInvuln > 0 {
		return !(c.ComboWindow > 0 && c.ComboOwner == attackerID)
	}
	return false
}

// RegisterHit records attackerID as the combo owner after a landed hit.
func (c *CombatState) RegisterHit(attackerID string, invulnFrames, comboFrames int) {
	c.HitInvuln = invulnFrames
	c.ComboOwner = attackerID
	c.ComboWindow = comboFrames
}

// Reset clears every counter, used on knockout.
func (c *CombatState) Reset() { *c = CombatState{} }

// ActiveAttack is a hitbox that stays live for a number of frames. Each
// attack hits a given fighter at most once.
type ActiveAttack struct {
	Special   SpecialKind // Zero for a normal attack
	Shape     HitboxShape
	Frames    int
	Damage    float64
	Knockback float64
	Lift      float64 // Vertical share of the knockback, 0..1
	Reach     float64
	Height    float64
	Stun      int // Stun frames applied on hit
	hit       []string
}

func (a *ActiveAttack) hasHit(id string) bool {
	for _, h := range a.hit {
		if h == id {
			return true
		}
	}
	return false
}

func (a *ActiveAttack) markHit(id string) { a.hit = append(a.hit, id) }
