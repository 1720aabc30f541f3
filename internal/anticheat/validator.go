// Package anticheat validates inbound client messages against physical and
// rules limits and escalates repeat offenders.
package anticheat

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"smash-arena/internal/config"
	"smash-arena/internal/input"
)

// PositionReport is a client's claim about its own movement. Velocities are
// in world units per frame.
type PositionReport struct {
	Frame    uint64  `json:"frame" msgpack:"f"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	VX       float64 `json:"vx" msgpack:"vx"`
	VY       float64 `json:"vy" msgpack:"vy"`
	Grounded bool    `json:"grounded" msgpack:"g"`
}

// StateReport is a client's claim about its fighter's vitals. Y is the feet
// position used for grounded checks.
type StateReport struct {
	Damage   float64 `json:"damage" msgpack:"dmg"`
	Lives    int     `json:"lives" msgpack:"lives"`
	Y        float64 `json:"y" msgpack:"y"`
	Grounded bool    `json:"grounded" msgpack:"g"`
}

// AttackReport is a client's claim about an attack it landed.
type AttackReport struct {
	Damage float64 `json:"damage" msgpack:"dmg"`
}

// Verdict is the outcome of one validation.
type Verdict struct {
	Accepted   bool     `json:"accepted"`
	Category   Category `json:"category,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Escalation Tier     `json:"escalation"` // Tier newly crossed by this violation
}

var accepted = Verdict{Accepted: true}

// tracker holds rolling per-player history.
type tracker struct {
	inputTimes []time.Time // accepted inputs inside the last second
	lastInput  time.Time
	momentumX  float64

	lastPos   *PositionReport
	lastPosAt time.Time
	impulseAt time.Time // last server-applied velocity change
	authVY    float64   // authoritative vertical velocity at the last tick
	authSeen  bool

	anchorFrame uint64 // first framed report, pins report frames to the wall clock
	anchorAt    time.Time

	state          *StateReport
	recoveryBudget float64

	lastAttackAt time.Time

	records [categoryCount + 1]ViolationRecord
}

// Validator checks one session's inbound traffic. Trackers are per player so
// one player's history never affects another's verdicts.
type Validator struct {
	mu       sync.Mutex
	cfg      config.AntiCheatConfig
	sim      config.SimConfig
	bans     BanStore
	surfaces []float64
	players  map[string]*tracker
}

// NewValidator creates a validator. bans may be nil, in which case the ban
// tier is reported but not persisted.
func NewValidator(cfg config.AntiCheatConfig, sim config.SimConfig, bans BanStore) *Validator {
	return &Validator{
		cfg:     cfg,
		sim:     sim,
		bans:    bans,
		players: make(map[string]*tracker),
	}
}

// SetSurfaces sets the platform tops a grounded fighter may stand on.
func (v *Validator) SetSurfaces(tops []float64) {
	v.mu.Lock()
	v.surfaces = append([]float64(nil), tops...)
	v.mu.Unlock()
}

// IsBanned reports whether the ban store holds playerID.
func (v *Validator) IsBanned(playerID string) bool {
	return v.bans != nil && v.bans.IsBanned(playerID)
}

func (v *Validator) tracker(playerID string) *tracker {
	t, ok := v.players[playerID]
	if !ok {
		t = &tracker{}
		for _, c := range Categories() {
			t.records[c].Category = c
		}
		v.players[playerID] = t
	}
	return t
}

// RemovePlayer forgets a player's history.
func (v *Validator) RemovePlayer(playerID string) {
	v.mu.Lock()
	delete(v.players, playerID)
	v.mu.Unlock()
}

// =============================================================================
// AUTHORITATIVE HOOKS
// =============================================================================

// AuthorizeRecovery lets a later state report show up to amount less damage.
func (v *Validator) AuthorizeRecovery(playerID string, amount float64) {
	if amount <= 0 {
		return
	}
	v.mu.Lock()
	v.tracker(playerID).recoveryBudget += amount
	v.mu.Unlock()
}

// NoteImpulse marks a server-applied velocity change (hit, launch) so the
// next position report skips the vertical movement model. Speed and teleport
// ceilings still apply.
func (v *Validator) NoteImpulse(playerID string, now time.Time) {
	v.mu.Lock()
	v.tracker(playerID).impulseAt = now
	v.mu.Unlock()
}

// ObserveVelocity records the authoritative velocity after a tick. A vertical
// change the gravity model cannot explain (jump, bounce, fast fall) counts as
// an impulse.
func (v *Validator) ObserveVelocity(playerID string, vx, vy float64, now time.Time) {
	v.mu.Lock()
	t := v.tracker(playerID)
	t.momentumX = vx
	if t.authSeen && (vy < t.authVY-1e-9 || vy > t.authVY+v.sim.Gravity+1e-9) {
		t.impulseAt = now
	}
	t.authVY, t.authSeen = vy, true
	v.mu.Unlock()
}

// SyncAuthoritative replaces the vitals baseline, used after knockouts and
// respawns. The next position report starts a new movement baseline.
func (v *Validator) SyncAuthoritative(playerID string, damage float64, lives int) {
	v.mu.Lock()
	t := v.tracker(playerID)
	t.state = &StateReport{Damage: damage, Lives: lives}
	t.recoveryBudget = 0
	t.lastPos = nil
	v.mu.Unlock()
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateInput checks rate, timing and physically impossible combinations.
func (v *Validator) ValidateInput(playerID string, in input.FrameInput, now time.Time) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.tracker(playerID)

	cutoff := now.Add(-time.Second)
	n := 0
	for _, ts := range t.inputTimes {
		if ts.After(cutoff) {
			t.inputTimes[n] = ts
			n++
		}
	}
	t.inputTimes = t.inputTimes[:n]

	prev := t.lastInput
	t.lastInput = now

	if v.cfg.MaxInputsPerSecond > 0 && len(t.inputTimes) >= v.cfg.MaxInputsPerSecond {
		return v.reject(playerID, t, CategoryInput, fmt.Sprintf("more than %d inputs per second", v.cfg.MaxInputsPerSecond), now)
	}
	if !prev.IsZero() && now.Sub(prev) < v.cfg.MinInputInterval {
		return v.reject(playerID, t, CategoryInput, fmt.Sprintf("input interval %s below %s", now.Sub(prev), v.cfg.MinInputInterval), now)
	}
	if (in.Left >= 1 && in.Right >= 1) || (in.Up >= 1 && in.Down >= 1) {
		return v.reject(playerID, t, CategoryInput, "opposite directions at full intensity", now)
	}
	if in.Actions.Has(input.ActionAttack | input.ActionShield) {
		return v.reject(playerID, t, CategoryInput, "attack while shielding", now)
	}
	if in.Actions.Has(input.ActionDodge) {
		axis := in.AxisX()
		if axis != 0 && math.Abs(t.momentumX) > v.cfg.DodgeMomentumLimit && (axis > 0) != (t.momentumX > 0) {
			return v.reject(playerID, t, CategoryInput, "dodge against momentum", now)
		}
	}

	t.inputTimes = append(t.inputTimes, now)
	return accepted
}

// ValidatePosition checks speed, teleports and airborne vertical motion.
// Elapsed time comes from the report frames when both carry one, so reports
// delivered in a burst are measured by when they were produced. Frames may
// not run ahead of the wall clock by more than ReportClockSlack.
func (v *Validator) ValidatePosition(playerID string, r PositionReport, now time.Time) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.tracker(playerID)

	if r.Frame > 0 {
		if t.anchorAt.IsZero() {
			t.anchorFrame, t.anchorAt = r.Frame, now
		} else if r.Frame > t.anchorFrame {
			claimed := v.frames(r.Frame - t.anchorFrame)
			if lead := claimed - now.Sub(t.anchorAt); lead > v.cfg.ReportClockSlack {
				return v.reject(playerID, t, CategoryPosition, fmt.Sprintf("frame %d is %s ahead of the clock", r.Frame, lead), now)
			}
		}
	}

	prev := t.lastPos
	if prev == nil {
		t.lastPos, t.lastPosAt = &r, now
		return accepted
	}

	framed := r.Frame > 0 && prev.Frame > 0
	if framed && r.Frame <= prev.Frame {
		// Late or duplicate report: check it against the newer baseline but
		// keep that baseline.
		if verdict := v.checkDistance(playerID, t, r, *prev, v.frames(prev.Frame-r.Frame), v.cfg.MaxSpeed, now); !verdict.Accepted {
			return verdict
		}
		return accepted
	}

	elapsed := now.Sub(t.lastPosAt)
	if framed {
		elapsed = v.frames(r.Frame - prev.Frame)
	}

	impulse := !t.impulseAt.IsZero() && !t.impulseAt.Before(t.lastPosAt)
	ceiling := v.cfg.MaxSpeed
	if impulse {
		ceiling = math.Max(ceiling, v.sim.MaxVelocity*float64(v.sim.TickRate))
	}
	if verdict := v.checkDistance(playerID, t, r, *prev, elapsed, ceiling, now); !verdict.Accepted {
		return verdict
	}

	if !impulse && !prev.Grounded && !r.Grounded {
		frames := math.Max(elapsed.Seconds(), 0.001) * float64(v.sim.TickRate)
		if framed {
			frames = float64(r.Frame - prev.Frame)
		}
		predicted := math.Min(prev.VY+v.sim.Gravity*frames, v.sim.MaxFallSpeed)
		if math.Abs(r.VY-predicted) > v.cfg.VelocityTolerance {
			return v.reject(playerID, t, CategoryPosition, fmt.Sprintf("vertical speed %.2f, expected %.2f", r.VY, predicted), now)
		}
	}

	t.lastPos, t.lastPosAt = &r, now
	t.momentumX = r.VX
	return accepted
}

// checkDistance applies the teleport and speed ceilings to the move from
// prev to r over elapsed.
func (v *Validator) checkDistance(playerID string, t *tracker, r, prev PositionReport, elapsed time.Duration, ceiling float64, now time.Time) Verdict {
	dist := math.Hypot(r.X-prev.X, r.Y-prev.Y)
	if elapsed < v.cfg.TeleportWindow && dist > v.cfg.TeleportDistance {
		return v.reject(playerID, t, CategoryPosition, fmt.Sprintf("moved %.0f units in %s", dist, elapsed), now)
	}
	secs := math.Max(elapsed.Seconds(), 0.001)
	if speed := dist / secs; ceiling > 0 && speed > ceiling {
		return v.reject(playerID, t, CategoryPosition, fmt.Sprintf("speed %.0f above %.0f", speed, ceiling), now)
	}
	return accepted
}

// frames converts a frame count to simulated time.
func (v *Validator) frames(n uint64) time.Duration {
	rate := v.sim.TickRate
	if rate <= 0 {
		rate = 60
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// ValidateState checks vitals against the last accepted baseline.
func (v *Validator) ValidateState(playerID string, r StateReport, now time.Time) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.tracker(playerID)

	drop := 0.0
	if base := t.state; base != nil {
		if r.Lives > base.Lives {
			return v.reject(playerID, t, CategoryState, fmt.Sprintf("lives rose %d -> %d", base.Lives, r.Lives), now)
		}
		drop = base.Damage - r.Damage
		if drop > t.recoveryBudget+1e-9 {
			return v.reject(playerID, t, CategoryState, fmt.Sprintf("damage fell %.1f with %.1f recovery", drop, t.recoveryBudget), now)
		}
	}

	if r.Grounded && len(v.surfaces) > 0 {
		near := false
		for _, top := range v.surfaces {
			if math.Abs(r.Y-top) <= v.cfg.GroundTolerance {
				near = true
				break
			}
		}
		if !near {
			return v.reject(playerID, t, CategoryState, fmt.Sprintf("grounded at y=%.0f with no platform", r.Y), now)
		}
	}

	if drop > 0 {
		t.recoveryBudget -= drop
	}
	t.state = &r
	return accepted
}

// ValidateCombat checks attack pacing and damage.
func (v *Validator) ValidateCombat(playerID string, r AttackReport, now time.Time) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.tracker(playerID)

	if !t.lastAttackAt.IsZero() && now.Sub(t.lastAttackAt) < v.cfg.MinAttackCooldown {
		return v.reject(playerID, t, CategoryCombat, fmt.Sprintf("attack after %s", now.Sub(t.lastAttackAt)), now)
	}
	if r.Damage > v.cfg.MaxHitDamage {
		return v.reject(playerID, t, CategoryCombat, fmt.Sprintf("damage %.1f above cap %.1f", r.Damage, v.cfg.MaxHitDamage), now)
	}
	t.lastAttackAt = now
	return accepted
}

func (v *Validator) reject(playerID string, t *tracker, cat Category, reason string, now time.Time) Verdict {
	th := Thresholds{WarnAt: v.cfg.WarnAt, KickAt: v.cfg.KickAt, BanAt: v.cfg.BanAt}
	tier := t.records[cat].add(reason, now, th, v.cfg.DecayWindow, v.cfg.MaxDetails)

	if tier != TierNone {
		log.Printf("🛡️ %s escalated to %s for %s violations: %s", playerID, tier, cat, reason)
	}
	if tier == TierBan && v.bans != nil {
		if err := v.bans.Ban(playerID, cat.String()+": "+reason, now); err != nil {
			log.Printf("⚠️ Failed to persist ban for %s: %v", playerID, err)
		}
	}
	return Verdict{Category: cat, Reason: reason, Escalation: tier}
}

// =============================================================================
// RECORDS & DECAY
// =============================================================================

// Records returns copies of a player's non-empty violation records.
func (v *Validator) Records(playerID string) []ViolationRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.players[playerID]
	if !ok {
		return nil
	}
	var out []ViolationRecord
	for _, c := range Categories() {
		r := t.records[c]
		if r.Count == 0 {
			continue
		}
		r.Details = append([]string(nil), r.Details...)
		out = append(out, r)
	}
	return out
}

// Sweep resets records that have been quiet for longer than the decay window.
func (v *Validator) Sweep(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	cleared := 0
	for _, t := range v.players {
		for _, c := range Categories() {
			if t.records[c].expired(now, v.cfg.DecayWindow) {
				t.records[c].reset()
				cleared++
			}
		}
	}
	return cleared
}
