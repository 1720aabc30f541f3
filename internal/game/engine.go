package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"smash-arena/internal/config"
	"smash-arena/internal/input"
)

// EngineConfig fixes the rules of one match.
type EngineConfig struct {
	Sim             config.SimConfig
	Mode            Mode
	Stocks          int
	TimeLimitFrames uint64 // Zero means no limit
	ScoreToWin      int    // Classic mode only, zero disables
	ItemsEnabled    bool
	Seed            int64
}

// Engine is the authoritative simulation of one match. It advances exactly one
// frame per Step and never reads the wall clock; all randomness comes from the
// seeded RNG so identical inputs replay identically.
//
// Engine is not safe for concurrent use; the owning session serializes access.
type Engine struct {
	cfg   EngineConfig
	sim   config.SimConfig
	stage *Stage

	players []*Player // Slot order
	byID    map[string]*Player

	entities     []*Entity // Id order
	nextEntityID uint64

	frame  uint64
	rng    *rand.Rand
	events []Event
	result *Result
}

// NewEngine places every roster entry at its slot's spawn point.
func NewEngine(cfg EngineConfig, stage *Stage, roster []PlayerSpec) (*Engine, error) {
	if stage == nil {
		return nil, errors.New("engine needs a stage")
	}
	if len(roster) == 0 {
		return nil, errors.New("engine needs at least one player")
	}
	if len(roster) > len(stage.Spawns) {
		return nil, fmt.Errorf("%d players but map %s has %d spawn points", len(roster), stage.ID, len(stage.Spawns))
	}

	e := &Engine{
		cfg:   cfg,
		sim:   cfg.Sim,
		stage: stage,
		byID:  make(map[string]*Player, len(roster)),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}

	lives := cfg.Stocks
	if lives <= 0 {
		lives = 1
	}
	center := stage.Width / 2
	for slot, spec := range roster {
		if !spec.Archetype.Valid() {
			return nil, fmt.Errorf("player %s: invalid archetype %d", spec.ID, spec.Archetype)
		}
		if _, dup := e.byID[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate player %s", spec.ID)
		}
		p := newPlayer(spec, slot, lives)
		p.Pos = stage.SpawnPosition(slot, p.Stats)
		p.prevPos = p.Pos
		if p.Feet().X > center {
			p.Facing = -1
		}
		p.body = stage.newBody(p.Body(), tagFighter)
		e.players = append(e.players, p)
		e.byID[p.ID] = p
	}
	return e, nil
}

// Frame returns the number of frames simulated so far.
func (e *Engine) Frame() uint64 { return e.frame }

// Stage returns the engine's stage.
func (e *Engine) Stage() *Stage { return e.stage }

// Player returns the fighter with id, or nil.
func (e *Engine) Player(id string) *Player { return e.byID[id] }

// Players returns fighters in slot order.
func (e *Engine) Players() []*Player { return e.players }

// Result returns the match outcome once the win condition has fired.
func (e *Engine) Result() *Result { return e.result }

// SetInput sets the input the fighter acts on from the next Step.
func (e *Engine) SetInput(playerID string, in input.FrameInput) error {
	p, ok := e.byID[playerID]
	if !ok {
		return fmt.Errorf("unknown player %s", playerID)
	}
	p.Input = in
	return nil
}

// DrainEvents returns and clears the queued events.
func (e *Engine) DrainEvents() []Event {
	out := e.events
	e.events = nil
	return out
}

// Finish ends the match early and returns the final ranking. Calling it on a
// finished match returns the existing result.
func (e *Engine) Finish(reason string) *Result {
	if e.result == nil {
		e.finish(reason)
	}
	return e.result
}

// Step advances the simulation by one frame. A panic in one fighter's
// action or one phase is recovered and returned as an error; the rest of
// the frame still runs.
func (e *Engine) Step() error {
	if e.result != nil {
		return nil
	}
	e.frame++

	var errs []error
	for _, p := range e.players {
		if p.Eliminated {
			continue
		}
		if err := e.safeAct(p); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range e.players {
		if p.Active() {
			errs = append(errs, guard("integrate "+p.ID, func() { e.integrate(p) }))
		}
	}
	for _, p := range e.players {
		if p.Active() {
			errs = append(errs, guard("collide "+p.ID, func() { e.collide(p) }))
		}
	}

	errs = append(errs, guard("combat", e.resolveCombat))

	for _, p := range e.players {
		errs = append(errs, guard("knockout "+p.ID, func() { e.checkKnockout(p) }))
	}

	errs = append(errs, guard("entities", e.updateEntities))
	errs = append(errs, guard("items", e.spawnItems))

	for _, p := range e.players {
		if p.Active() {
			errs = append(errs, guard("effects "+p.ID, func() { e.updateEffects(p) }))
		}
	}

	errs = append(errs, guard("win", e.checkWin))
	return errors.Join(errs...)
}

// updateEffects applies regeneration, counts effects down and regenerates
// meter.
func (e *Engine) updateEffects(p *Player) {
	if p.Effects.Active(EffectRegen) {
		if amount := p.Heal(RegenPerFrame); amount > 0 {
			e.emit(EventTypeRecovery, p.ID, RecoveryPayload{Amount: amount})
		}
	}
	for _, kind := range p.Effects.Tick() {
		e.emit(EventTypeEffectExpired, p.ID, EffectPayload{Effect: kind.String()})
	}
	p.addMeter(e.sim.MeterRegen, e.sim.MeterMax)
}

// guard runs one phase of the frame, converting a panic into an error.
func guard(phase string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", phase, r)
		}
	}()
	fn()
	return nil
}

// Snapshot captures the full state at the current frame.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Frame:    e.frame,
		Players:  make([]PlayerSnapshot, len(e.players)),
		Entities: make([]EntitySnapshot, len(e.entities)),
	}
	for i, p := range e.players {
		s.Players[i] = p.ToSnapshot()
	}
	for i, ent := range e.entities {
		s.Entities[i] = ent.ToSnapshot()
	}
	return s
}

func (e *Engine) emit(t EventType, playerID string, payload any) {
	e.events = append(e.events, NewEvent(t, e.frame, playerID, payload))
}

// =============================================================================
// INPUT & ACTIONS
// =============================================================================

func (e *Engine) safeAct(p *Player) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("player %s: action panic: %v", p.ID, r)
		}
	}()
	return e.act(p)
}

func (e *Engine) act(p *Player) error {
	p.Combat.UpdateTimers()
	if p.dropThrough > 0 {
		p.dropThrough--
	}

	if p.Combat.Respawn > 0 {
		p.Combat.Respawn--
		if p.Combat.Respawn == 0 {
			e.respawn(p)
		}
		p.prevInput = p.Input
		return nil
	}

	if p.Attack != nil {
		p.Attack.Frames--
		if p.Attack.Frames <= 0 {
			p.Attack = nil
		}
	}

	in := p.Input
	pressed := in.Pressed(p.prevInput)
	p.prevInput = in
	p.moving = false

	if p.Combat.HitStun > 0 || p.Effects.Active(EffectStun) {
		p.Combat.DropShield()
		return nil
	}

	if p.Combat.Shielding && (!in.Actions.Has(input.ActionShield) || p.Combat.ShieldFrames == 0) {
		p.Combat.DropShield()
	}
	if pressed.Has(input.ActionShield) && p.Grounded && p.Attack == nil {
		p.Combat.StartShield()
	}
	if p.Combat.Shielding {
		return nil
	}

	axisX := in.AxisX()
	if axisX != 0 {
		p.moving = true
		target := axisX * p.runSpeed()
		if target > 0 && p.Vel.X < target {
			p.Vel.X = math.Min(p.Vel.X+p.Stats.Acceleration, target)
		} else if target < 0 && p.Vel.X > target {
			p.Vel.X = math.Max(p.Vel.X-p.Stats.Acceleration, target)
		}
		if p.Attack == nil {
			p.Facing = sign(axisX)
		}
	}

	if in.AxisY() > 0.5 {
		if p.Grounded && p.groundKind == PlatformOneWay {
			p.dropThrough = DropThroughFrames
			p.Grounded = false
		} else if !p.Grounded && p.Vel.Y > 0 {
			p.Vel.Y = e.sim.MaxFallSpeed
		}
	}

	if pressed.Has(input.ActionJump) && p.JumpsLeft > 0 {
		p.Vel.Y = -e.sim.JumpVelocity * p.Stats.JumpScale
		p.JumpsLeft--
		p.Grounded = false
	}

	if pressed.Has(input.ActionDodge) && p.Combat.StartDodge() {
		dir := sign(axisX)
		if dir == 0 {
			dir = p.Facing
		}
		p.Vel.X = dir * p.Stats.RunSpeed * DodgeSpeedFactor
	}

	if p.Attack != nil || p.Combat.AttackCooldown > 0 {
		return nil
	}
	if pressed.Has(input.ActionSpecial) && p.Meter >= e.sim.SpecialCost {
		p.Meter -= e.sim.SpecialCost
		if err := e.performSpecial(p); err != nil {
			p.Meter += e.sim.SpecialCost
			return err
		}
		return nil
	}
	if pressed.Has(input.ActionAttack) {
		p.Attack = &ActiveAttack{
			Shape:     HitboxForward,
			Frames:    p.Stats.AttackFrames,
			Damage:    p.Stats.AttackDamage,
			Knockback: p.Stats.AttackKnockback,
			Lift:      0.45,
			Reach:     p.Stats.AttackReach,
			Height:    p.Stats.AttackHeight,
		}
		p.Combat.AttackCooldown = p.Stats.AttackCooldown
	}
	return nil
}

// performSpecial dispatches on the archetype's special. Every SpecialKind
// must have a case here.
func (e *Engine) performSpecial(p *Player) error {
	s := p.Stats
	switch s.Special {
	case SpecialUppercut:
		p.Attack = &ActiveAttack{
			Special: SpecialUppercut, Shape: HitboxAbove, Frames: 8,
			Damage: s.AttackDamage * 1.6, Knockback: s.AttackKnockback * 1.5, Lift: 0.9,
			Reach: 50,
		}
		p.Vel.Y = -e.sim.JumpVelocity * 0.8
		p.Grounded = false

	case SpecialDashStrike:
		p.Vel.X = p.Facing * s.RunSpeed * 2.5
		p.Attack = &ActiveAttack{
			Special: SpecialDashStrike, Shape: HitboxForward, Frames: 10,
			Damage: s.AttackDamage * 1.3, Knockback: s.AttackKnockback * 1.2, Lift: 0.25,
			Reach: s.AttackReach, Height: s.AttackHeight,
		}

	case SpecialGroundPound:
		if !p.Grounded {
			p.Vel.Y = e.sim.MaxFallSpeed
		}
		p.Attack = &ActiveAttack{
			Special: SpecialGroundPound, Shape: HitboxAround, Frames: 10,
			Damage: s.AttackDamage * 1.4, Knockback: s.AttackKnockback * 1.1, Lift: 0.6,
			Reach: 40, Height: 30, Stun: StunFrames,
		}

	case SpecialFireball:
		if len(e.entities) >= e.sim.MaxEntities {
			return fmt.Errorf("player %s: entity limit %d reached", p.ID, e.sim.MaxEntities)
		}
		body := p.Body()
		x := body.Right()
		if p.Facing < 0 {
			x = body.X - FireballSize
		}
		e.spawnEntity(&Entity{
			Kind:      EntityProjectile,
			OwnerID:   p.ID,
			Pos:       Vec2{X: x, Y: body.Center().Y - FireballSize/2},
			Vel:       Vec2{X: p.Facing * FireballSpeed, Y: -2},
			Size:      FireballSize,
			Damage:    FireballDamage * p.damageMultiplier(),
			Knockback: FireballKnockback,
			Lifetime:  FireballLifetime,
			Bounces:   FireballBounces,
			Gravity:   true,
		})

	default:
		return fmt.Errorf("player %s: archetype %s has no special", p.ID, p.Archetype)
	}

	p.Combat.AttackCooldown = s.AttackCooldown * 2
	e.emit(EventTypeSpecial, p.ID, SpecialPayload{Special: s.Special.String()})
	return nil
}

// =============================================================================
// PHYSICS & PLATFORMS
// =============================================================================

func (e *Engine) integrate(p *Player) {
	if !p.Grounded {
		p.Vel.Y += e.sim.Gravity
		if p.Vel.Y > e.sim.MaxFallSpeed {
			p.Vel.Y = e.sim.MaxFallSpeed
		}
	}

	if !p.moving || p.Combat.HitStun > 0 {
		if p.Grounded {
			p.Vel.X *= e.sim.GroundFriction
		} else {
			p.Vel.X *= e.sim.AirFriction
		}
	}
	if math.Abs(p.Vel.X) < 0.01 {
		p.Vel.X = 0
	}

	if speed := p.Vel.Len(); speed > e.sim.MaxVelocity {
		scale := e.sim.MaxVelocity / speed
		p.Vel.X *= scale
		p.Vel.Y *= scale
	}

	p.prevPos = p.Pos
	p.Pos = p.Pos.Add(p.Vel)
}

const surfaceEpsilon = 0.01

// collide pushes the fighter out of overlapping platforms along the axis of
// least penetration and refreshes its grounded state.
func (e *Engine) collide(p *Player) {
	nearby := e.stage.nearbyPlatforms(p.body, p.Body())
	p.Grounded = false

	for _, i := range nearby {
		plat := e.stage.Platforms[i]
		body := p.Body()
		push, ok := body.Penetration(plat.Rect)
		if !ok {
			continue
		}
		if plat.Kind == PlatformOneWay {
			prevBottom := p.prevPos.Y + p.Stats.Height
			if p.dropThrough > 0 || p.Vel.Y < 0 || prevBottom > plat.Y+surfaceEpsilon {
				continue
			}
			push = Vec2{Y: plat.Y - body.Bottom()}
		}

		p.Pos = p.Pos.Add(push)
		switch {
		case push.X != 0:
			p.Vel.X = 0
		case push.Y < 0:
			e.land(p, plat)
		case push.Y > 0 && p.Vel.Y < 0:
			p.Vel.Y = 0
		}
	}

	if !p.Grounded && p.Vel.Y >= 0 {
		body := p.Body()
		for _, i := range nearby {
			plat := e.stage.Platforms[i]
			if plat.Kind == PlatformOneWay && p.dropThrough > 0 {
				continue
			}
			if math.Abs(body.Bottom()-plat.Y) <= surfaceEpsilon && body.X < plat.Right() && plat.X < body.Right() {
				e.land(p, plat)
				break
			}
		}
	}

	p.body.X, p.body.Y = p.Pos.X, p.Pos.Y
	p.body.Update()
}

func (e *Engine) land(p *Player, plat Platform) {
	p.Pos.Y = plat.Y - p.Stats.Height
	p.JumpsLeft = p.Stats.Jumps
	if plat.Kind == PlatformBouncy {
		p.Vel.Y = -e.sim.BounceImpulse
		p.Grounded = false
		return
	}
	if p.Vel.Y > 0 {
		p.Vel.Y = 0
	}
	p.Grounded = true
	p.groundKind = plat.Kind
}

// =============================================================================
// COMBAT & KNOCKOUTS
// =============================================================================

func (e *Engine) resolveCombat() {
	for _, atk := range e.players {
		a := atk.Attack
		if a == nil || !atk.Active() {
			continue
		}
		box := Hitbox(atk.Body(), atk.Facing, a.Shape, a.Reach, a.Height)
		for _, v := range e.players {
			if v == atk || !v.Active() || a.hasHit(v.ID) {
				continue
			}
			if v.Combat.IsInvulnerableTo(atk.ID) || !box.Intersects(v.Body()) {
				continue
			}
			a.markHit(v.ID)

			dir := atk.Facing
			if a.Shape != HitboxForward {
				if d := sign(v.Body().Center().X - atk.Body().Center().X); d != 0 {
					dir = d
				}
			}
			dealt := e.applyHit(atk.ID, v, a.Damage*atk.damageMultiplier(), a.Knockback, a.Lift, dir, a.Stun, false)
			atk.addMeter(dealt*MeterGainPerDamage, e.sim.MeterMax)
		}
	}
}

// applyHit damages v and launches it. Shields cut damage and absorb the
// launch. Returns the damage dealt.
func (e *Engine) applyHit(attackerID string, v *Player, damage, knockback, lift, dir float64, stun int, projectile bool) float64 {
	shielded := v.Combat.Shielding
	if shielded {
		damage *= ShieldDamageFactor
	}
	v.TakeDamage(damage, attackerID)
	v.Combat.RegisterHit(attackerID, e.sim.HitInvulnFrames, e.sim.ComboWindowFrames)

	force := 0.0
	if !shielded {
		force = knockback * (1 + v.Damage/60) / v.Stats.Weight
		v.Vel = Vec2{X: dir * force * (1 - lift), Y: -force * lift}
		v.Grounded = false
		v.Combat.HitStun = int(force * HitStunPerKnockback)
		v.Attack = nil
		if stun > 0 {
			v.Effects.Apply(EffectStun, stun)
		}
	}

	e.emit(EventTypeHit, v.ID, HitPayload{
		AttackerID: attackerID,
		Damage:     damage,
		Total:      v.Damage,
		Knockback:  force,
		Shielded:   shielded,
		Projectile: projectile,
	})
	return damage
}

func (e *Engine) checkKnockout(p *Player) {
	if !p.Active() {
		return
	}
	blast := !e.stage.BlastZone.Contains(p.Body().Center())
	if p.Damage < e.sim.KnockoutDamage && !blast {
		return
	}
	e.knockout(p, blast)
}

func (e *Engine) knockout(p *Player, blast bool) {
	credit := ""
	if p.LastHitBy != "" && p.LastHitBy != p.ID {
		if k := e.byID[p.LastHitBy]; k != nil {
			k.Score++
			k.KOs++
			credit = k.ID
		}
	}

	if e.cfg.Mode == ModeTime {
		p.Score--
	} else {
		p.Lives--
	}
	p.Damage = 0
	p.Vel = Vec2{}
	p.Attack = nil
	p.Grounded = false
	p.LastHitBy = ""
	p.Effects.Clear()
	p.Combat.Reset()
	p.Pos = e.stage.SpawnPosition(p.Slot, p.Stats)

	e.emit(EventTypeKnockout, p.ID, KnockoutPayload{CreditedTo: credit, LivesLeft: p.Lives, BlastZone: blast})

	if e.cfg.Mode != ModeTime && p.Lives <= 0 {
		p.Lives = 0
		p.Eliminated = true
		p.EliminatedAt = e.frame
		e.emit(EventTypeEliminated, p.ID, nil)
		return
	}

	if e.sim.RespawnFrames <= 0 {
		e.respawn(p)
		return
	}
	p.Combat.Respawn = e.sim.RespawnFrames
}

func (e *Engine) respawn(p *Player) {
	p.Pos = e.stage.SpawnPosition(p.Slot, p.Stats)
	p.prevPos = p.Pos
	p.Vel = Vec2{}
	p.JumpsLeft = p.Stats.Jumps
	p.Combat.Respawn = 0
	p.Combat.Invulnerable = e.sim.RespawnInvulnFrames
	p.body.X, p.body.Y = p.Pos.X, p.Pos.Y
	p.body.Update()
	e.emit(EventTypeRespawn, p.ID, RespawnPayload{X: p.Pos.X, Y: p.Pos.Y})
}

// =============================================================================
// ENTITIES
// =============================================================================

func (e *Engine) spawnEntity(ent *Entity) {
	e.nextEntityID++
	ent.ID = e.nextEntityID
	ent.body = e.stage.newBody(ent.Box(), tagEntity)
	e.entities = append(e.entities, ent)
	e.emit(EventTypeEntitySpawned, ent.OwnerID, EntityPayload{EntityID: ent.ID, Kind: ent.KindName()})
}

func (e *Engine) updateEntities() {
	n := 0
	for _, ent := range e.entities {
		if e.updateEntity(ent) {
			e.entities[n] = ent
			n++
			continue
		}
		e.stage.removeBody(ent.body)
		e.emit(EventTypeEntityRemoved, ent.OwnerID, EntityPayload{EntityID: ent.ID, Kind: ent.KindName()})
	}
	for i := n; i < len(e.entities); i++ {
		e.entities[i] = nil
	}
	e.entities = e.entities[:n]
}

// updateEntity advances one entity and reports whether it survives.
func (e *Engine) updateEntity(ent *Entity) bool {
	ent.Lifetime--
	if ent.Lifetime <= 0 {
		return false
	}

	if ent.Gravity && !ent.resting {
		ent.Vel.Y += e.sim.Gravity * entityGravityScale
		if ent.Vel.Y > e.sim.MaxFallSpeed {
			ent.Vel.Y = e.sim.MaxFallSpeed
		}
	}
	ent.Pos = ent.Pos.Add(ent.Vel)

	for _, i := range e.stage.nearbyPlatforms(ent.body, ent.Box()) {
		plat := e.stage.Platforms[i]
		push, ok := ent.Box().Penetration(plat.Rect)
		if !ok {
			continue
		}
		if ent.Kind == EntityPickup {
			ent.Pos.Y = plat.Y - ent.Size
			ent.Vel = Vec2{}
			ent.resting = true
			break
		}
		if ent.Bounces <= 0 {
			return false
		}
		ent.Bounces--
		ent.bounce(push)
		break
	}

	if !ent.Box().Intersects(e.stage.BlastZone) {
		return false
	}

	for _, p := range e.players {
		if !p.Active() || !ent.Box().Intersects(p.Body()) {
			continue
		}
		switch ent.Kind {
		case EntityPickup:
			e.collect(p, ent)
			return false
		case EntityProjectile:
			if p.ID == ent.OwnerID || ent.hasHit(p.ID) || p.Combat.IsInvulnerableTo(ent.OwnerID) {
				continue
			}
			ent.hit = append(ent.hit, p.ID)
			dir := sign(ent.Vel.X)
			if dir == 0 {
				dir = 1
			}
			e.applyHit(ent.OwnerID, p, ent.Damage, ent.Knockback, 0.35, dir, 0, true)
			if ent.Bounces <= 0 {
				return false
			}
			ent.Bounces--
			ent.Vel.X = -ent.Vel.X
		}
	}

	ent.body.X, ent.body.Y = ent.Pos.X, ent.Pos.Y
	ent.body.Update()
	return true
}

func (e *Engine) collect(p *Player, ent *Entity) {
	switch ent.Pickup {
	case PickupHeal:
		if amount := p.Heal(HealAmount); amount > 0 {
			e.emit(EventTypeRecovery, p.ID, RecoveryPayload{Amount: amount})
		}
	case PickupMeter:
		p.addMeter(MeterAmount, e.sim.MeterMax)
	case PickupSpeed:
		p.Effects.Apply(EffectSpeedBoost, BoostFrames)
	case PickupPower:
		p.Effects.Apply(EffectPowerBoost, BoostFrames)
	case PickupRegen:
		p.Effects.Apply(EffectRegen, RegenFrames)
	}
	e.emit(EventTypePickup, p.ID, EntityPayload{EntityID: ent.ID, Kind: ent.KindName()})
}

func (e *Engine) spawnItems() {
	if !e.cfg.ItemsEnabled || e.sim.ItemSpawnFrames <= 0 || len(e.stage.ItemSpawns) == 0 {
		return
	}
	if e.frame%uint64(e.sim.ItemSpawnFrames) != 0 || len(e.entities) >= e.sim.MaxEntities {
		return
	}
	at := e.stage.ItemSpawns[e.rng.Intn(len(e.stage.ItemSpawns))]
	kind := PickupKind(e.rng.Intn(int(pickupKindCount)) + 1)
	e.spawnEntity(&Entity{
		Kind:     EntityPickup,
		Pickup:   kind,
		Pos:      Vec2{X: at.X - PickupSize/2, Y: at.Y - PickupSize},
		Size:     PickupSize,
		Lifetime: PickupLifetime,
		Gravity:  true,
	})
}
