package anticheat

import (
	"testing"
	"time"

	"smash-arena/internal/config"
	"smash-arena/internal/input"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator(bans BanStore) *Validator {
	return NewValidator(config.DefaultAntiCheat(), config.DefaultSim(), bans)
}

// TestInputRateCeiling verifies 31 inputs inside one second always produce a rejection
func TestInputRateCeiling(t *testing.T) {
	v := newTestValidator(nil)
	rejected := 0
	for i := 0; i < 31; i++ {
		now := t0.Add(time.Duration(i) * 32 * time.Millisecond)
		if !v.ValidateInput("p1", input.FrameInput{Frame: uint64(i + 1)}, now).Accepted {
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatal("expected at least one rejection")
	}

	// The window slides: a second later the player is welcome again.
	if !v.ValidateInput("p1", input.FrameInput{Frame: 40}, t0.Add(3*time.Second)).Accepted {
		t.Fatal("expected input accepted after window slid")
	}
}

// TestInputContentChecks verifies impossible controller states are rejected
func TestInputContentChecks(t *testing.T) {
	tests := []struct {
		name     string
		in       input.FrameInput
		momentum float64
		ok       bool
	}{
		{"neutral", input.FrameInput{}, 0, true},
		{"left and right", input.FrameInput{Left: 1, Right: 1}, 0, false},
		{"up and down", input.FrameInput{Up: 1, Down: 1}, 0, false},
		{"partial opposite", input.FrameInput{Left: 1, Right: 0.5}, 0, true},
		{"attack while shielding", input.FrameInput{Actions: input.ActionAttack | input.ActionShield}, 0, false},
		{"dodge with momentum", input.FrameInput{Right: 1, Actions: input.ActionDodge}, 15, true},
		{"dodge against momentum", input.FrameInput{Left: 1, Actions: input.ActionDodge}, 15, false},
		{"dodge against slow drift", input.FrameInput{Left: 1, Actions: input.ActionDodge}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(nil)
			v.ObserveVelocity("p1", tt.momentum, 0, t0)
			verdict := v.ValidateInput("p1", tt.in, t0)
			if verdict.Accepted != tt.ok {
				t.Fatalf("accepted=%v want %v (%s)", verdict.Accepted, tt.ok, verdict.Reason)
			}
			if !tt.ok && verdict.Category != CategoryInput {
				t.Errorf("expected input category, got %s", verdict.Category)
			}
		})
	}
}

// TestInputIntervalFloor verifies inputs closer than the minimum interval are rejected
func TestInputIntervalFloor(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidateInput("p1", input.FrameInput{Frame: 1}, t0)
	if v.ValidateInput("p1", input.FrameInput{Frame: 2}, t0.Add(2*time.Millisecond)).Accepted {
		t.Fatal("expected rejection for 2ms interval")
	}
	if !v.ValidateInput("p1", input.FrameInput{Frame: 3}, t0.Add(50*time.Millisecond)).Accepted {
		t.Fatal("expected acceptance for 48ms interval")
	}
}

// TestTeleportAlwaysRejected verifies a jump far beyond speed and teleport limits is never accepted
func TestTeleportAlwaysRejected(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{X: 100, Y: 100, Grounded: true}, t0)

	verdict := v.ValidatePosition("p1", PositionReport{X: 900, Y: 100, Grounded: true}, t0.Add(16*time.Millisecond))
	if verdict.Accepted {
		t.Fatal("teleport accepted")
	}
	if verdict.Category != CategoryPosition {
		t.Fatalf("expected position category, got %s", verdict.Category)
	}

	// A sustained overspeed with a long gap is still caught by the speed ceiling.
	verdict = v.ValidatePosition("p1", PositionReport{X: 2100, Y: 100, Grounded: true}, t0.Add(500*time.Millisecond))
	if verdict.Accepted {
		t.Fatal("overspeed accepted")
	}
}

// TestImpulseRelaxesOnlyVerticalModel verifies a server impulse skips the gravity check but never the speed ceilings
func TestImpulseRelaxesOnlyVerticalModel(t *testing.T) {
	sim := config.DefaultSim()
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 10, X: 100, Y: 300, VY: 0}, t0)

	// Launched upward by a hit between reports.
	v.NoteImpulse("p1", t0.Add(50*time.Millisecond))
	launched := PositionReport{Frame: 16, X: 160, Y: 240, VY: -sim.MaxVelocity}
	if verdict := v.ValidatePosition("p1", launched, t0.Add(100*time.Millisecond)); !verdict.Accepted {
		t.Fatalf("knockback launch rejected: %s", verdict.Reason)
	}

	v.NoteImpulse("p1", t0.Add(110*time.Millisecond))
	teleport := PositionReport{Frame: 17, X: 1160, Y: 240, VY: -sim.MaxVelocity}
	verdict := v.ValidatePosition("p1", teleport, t0.Add(117*time.Millisecond))
	if verdict.Accepted || verdict.Category != CategoryPosition {
		t.Fatalf("teleport after impulse accepted: %+v", verdict)
	}
}

// TestLaunchObservedFromAuthoritativeVelocity verifies jumps the engine applied relax the gravity model
func TestLaunchObservedFromAuthoritativeVelocity(t *testing.T) {
	sim := config.DefaultSim()
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 10, X: 100, Y: 300, VY: 5}, t0)

	// Falling under gravity is not a launch.
	v.ObserveVelocity("p1", 0, 5, t0.Add(10*time.Millisecond))
	v.ObserveVelocity("p1", 0, 5+sim.Gravity, t0.Add(20*time.Millisecond))
	doubleJump := PositionReport{Frame: 12, X: 100, Y: 290, VY: -sim.JumpVelocity}
	if v.ValidatePosition("p1", doubleJump, t0.Add(33*time.Millisecond)).Accepted {
		t.Fatal("unexplained upward reset accepted")
	}

	// The engine resets vertical speed for a double jump.
	v.ObserveVelocity("p1", 0, -sim.JumpVelocity, t0.Add(40*time.Millisecond))
	doubleJump.Frame = 14
	if verdict := v.ValidatePosition("p1", doubleJump, t0.Add(50*time.Millisecond)); !verdict.Accepted {
		t.Fatalf("observed double jump rejected: %s", verdict.Reason)
	}
}

// TestClientInputNeverRelaxesPosition verifies jump inputs do not open a teleport window
func TestClientInputNeverRelaxesPosition(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{X: 100, Y: 100}, t0)

	now := t0
	for i := 0; i < 5; i++ {
		now = now.Add(16 * time.Millisecond)
		v.ValidateInput("p1", input.FrameInput{Frame: uint64(i + 1), Actions: input.ActionJump}, now)
		if v.ValidatePosition("p1", PositionReport{X: 100 + float64(i+1)*5000, Y: 100}, now.Add(time.Millisecond)).Accepted {
			t.Fatalf("teleport %d accepted after jump input", i)
		}
	}
}

// TestBurstyReportsMeasuredByFrame verifies legal movement delivered in bursts is not flagged
func TestBurstyReportsMeasuredByFrame(t *testing.T) {
	v := newTestValidator(nil)

	frame := uint64(0)
	for burst := 0; burst < 10; burst++ {
		for j := 0; j < 3; j++ {
			frame++
			now := t0.Add(time.Duration(burst)*50*time.Millisecond + time.Duration(j)*time.Millisecond)
			r := PositionReport{Frame: frame, X: 100 + 8*float64(frame), Y: 640, VX: 8, Grounded: true}
			if verdict := v.ValidatePosition("p1", r, now); !verdict.Accepted {
				t.Fatalf("frame %d rejected: %s", frame, verdict.Reason)
			}
		}
	}
	if recs := v.Records("p1"); len(recs) != 0 {
		t.Fatalf("expected no violations, got %+v", recs)
	}
}

// TestFramesCannotOutrunClock verifies inflated frame numbers do not buy distance
func TestFramesCannotOutrunClock(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 1, X: 100, Y: 640, Grounded: true}, t0)

	// 600 claimed frames is ten seconds of movement, delivered 20ms later.
	verdict := v.ValidatePosition("p1", PositionReport{Frame: 601, X: 9000, Y: 640, Grounded: true}, t0.Add(20*time.Millisecond))
	if verdict.Accepted {
		t.Fatal("frame far ahead of the clock accepted")
	}
}

// TestLateReportKeepsBaseline verifies an out-of-order report is checked against the newer position
func TestLateReportKeepsBaseline(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 1, X: 100, Y: 640, Grounded: true}, t0)
	v.ValidatePosition("p1", PositionReport{Frame: 3, X: 116, Y: 640, Grounded: true}, t0.Add(34*time.Millisecond))

	if !v.ValidatePosition("p1", PositionReport{Frame: 2, X: 108, Y: 640, Grounded: true}, t0.Add(35*time.Millisecond)).Accepted {
		t.Fatal("honest late report rejected")
	}
	if v.ValidatePosition("p1", PositionReport{Frame: 2, X: 2000, Y: 640, Grounded: true}, t0.Add(36*time.Millisecond)).Accepted {
		t.Fatal("late teleport accepted")
	}

	// The baseline is still frame 3.
	if !v.ValidatePosition("p1", PositionReport{Frame: 4, X: 124, Y: 640, Grounded: true}, t0.Add(50*time.Millisecond)).Accepted {
		t.Fatal("next report rejected after late report")
	}
}

// TestRespawnStartsNewBaseline verifies a resync lets the fighter reappear at a spawn point
func TestRespawnStartsNewBaseline(t *testing.T) {
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 1, X: 100, Y: 640, Grounded: true}, t0)
	v.SyncAuthoritative("p1", 0, 2)

	if !v.ValidatePosition("p1", PositionReport{Frame: 2, X: 800, Y: 200}, t0.Add(17*time.Millisecond)).Accepted {
		t.Fatal("respawn position rejected")
	}
}

// TestAirborneVelocityModel verifies vertical speed must follow gravity while airborne
func TestAirborneVelocityModel(t *testing.T) {
	sim := config.DefaultSim()
	v := newTestValidator(nil)
	v.ValidatePosition("p1", PositionReport{Frame: 10, X: 100, Y: 300, VY: 0}, t0)

	good := PositionReport{Frame: 20, X: 100, Y: 330, VY: sim.Gravity * 10}
	if verdict := v.ValidatePosition("p1", good, t0.Add(166*time.Millisecond)); !verdict.Accepted {
		t.Fatalf("falling under gravity rejected: %s", verdict.Reason)
	}

	hover := PositionReport{Frame: 40, X: 100, Y: 330, VY: 0}
	if v.ValidatePosition("p1", hover, t0.Add(500*time.Millisecond)).Accepted {
		t.Fatal("hovering accepted")
	}
}

// TestStateChecks verifies vitals cannot improve without authorization
func TestStateChecks(t *testing.T) {
	v := newTestValidator(nil)
	v.SetSurfaces([]float64{700, 560})
	v.SyncAuthoritative("p1", 50, 3)

	if v.ValidateState("p1", StateReport{Damage: 40, Lives: 3, Y: 700, Grounded: true}, t0).Accepted {
		t.Fatal("unauthorized heal accepted")
	}
	if v.ValidateState("p1", StateReport{Damage: 50, Lives: 4, Y: 700, Grounded: true}, t0).Accepted {
		t.Fatal("extra life accepted")
	}
	if v.ValidateState("p1", StateReport{Damage: 50, Lives: 3, Y: 300, Grounded: true}, t0).Accepted {
		t.Fatal("grounded in mid-air accepted")
	}

	v.AuthorizeRecovery("p1", 25)
	if verdict := v.ValidateState("p1", StateReport{Damage: 25, Lives: 3, Y: 562, Grounded: true}, t0); !verdict.Accepted {
		t.Fatalf("authorized heal rejected: %s", verdict.Reason)
	}
	if v.ValidateState("p1", StateReport{Damage: 20, Lives: 3, Y: 700}, t0).Accepted {
		t.Fatal("recovery budget should be spent")
	}
}

// TestCombatChecks verifies attack pacing and the damage cap
func TestCombatChecks(t *testing.T) {
	v := newTestValidator(nil)
	if !v.ValidateCombat("p1", AttackReport{Damage: 10}, t0).Accepted {
		t.Fatal("first attack rejected")
	}
	if v.ValidateCombat("p1", AttackReport{Damage: 10}, t0.Add(50*time.Millisecond)).Accepted {
		t.Fatal("attack inside cooldown accepted")
	}
	if v.ValidateCombat("p1", AttackReport{Damage: 999}, t0.Add(time.Second)).Accepted {
		t.Fatal("oversized damage accepted")
	}
}

// TestEscalationTiers verifies each tier fires exactly once and the ban tier writes the store
func TestEscalationTiers(t *testing.T) {
	bans := NewMemoryBanStore()
	v := newTestValidator(bans)
	cfg := config.DefaultAntiCheat()

	fired := map[Tier]int{}
	for i := 0; i < cfg.BanAt+5; i++ {
		verdict := v.ValidateInput("cheater", input.FrameInput{Left: 1, Right: 1}, t0.Add(time.Duration(i)*time.Second))
		if verdict.Accepted {
			t.Fatal("impossible input accepted")
		}
		if verdict.Escalation != TierNone {
			fired[verdict.Escalation]++
			switch verdict.Escalation {
			case TierWarn:
				if i+1 != cfg.WarnAt {
					t.Errorf("warn fired at %d", i+1)
				}
			case TierKick:
				if i+1 != cfg.KickAt {
					t.Errorf("kick fired at %d", i+1)
				}
			case TierBan:
				if i+1 != cfg.BanAt {
					t.Errorf("ban fired at %d", i+1)
				}
			}
		}
	}
	for _, tier := range []Tier{TierWarn, TierKick, TierBan} {
		if fired[tier] != 1 {
			t.Errorf("%s fired %d times", tier, fired[tier])
		}
	}
	if !bans.IsBanned("cheater") || !v.IsBanned("cheater") {
		t.Fatal("expected ban persisted")
	}

	recs := v.Records("cheater")
	if len(recs) != 1 || recs[0].Category != CategoryInput || len(recs[0].Details) != cfg.MaxDetails {
		t.Fatalf("unexpected records %+v", recs)
	}
}

// TestCategoriesEscalateIndependently verifies one category does not push another over its threshold
func TestCategoriesEscalateIndependently(t *testing.T) {
	v := newTestValidator(nil)
	cfg := config.DefaultAntiCheat()
	for i := 0; i < cfg.WarnAt-1; i++ {
		v.ValidateInput("p1", input.FrameInput{Actions: input.ActionAttack | input.ActionShield}, t0.Add(time.Duration(i)*time.Second))
		v.ValidateCombat("p1", AttackReport{Damage: 999}, t0.Add(time.Duration(i)*time.Second))
	}
	for _, r := range v.Records("p1") {
		if r.Tier != TierNone {
			t.Fatalf("%s escalated early: %+v", r.Category, r)
		}
	}
}

// TestViolationDecay verifies quiet records reset and tiers can fire again
func TestViolationDecay(t *testing.T) {
	v := newTestValidator(nil)
	cfg := config.DefaultAntiCheat()

	bad := input.FrameInput{Up: 1, Down: 1}
	var last Verdict
	for i := 0; i < cfg.WarnAt; i++ {
		last = v.ValidateInput("p1", bad, t0.Add(time.Duration(i)*time.Second))
	}
	if last.Escalation != TierWarn {
		t.Fatalf("expected warn, got %s", last.Escalation)
	}

	later := t0.Add(cfg.DecayWindow + time.Hour)
	if cleared := v.Sweep(later); cleared != 1 {
		t.Fatalf("expected 1 record cleared, got %d", cleared)
	}
	if recs := v.Records("p1"); len(recs) != 0 {
		t.Fatalf("expected no records after decay, got %+v", recs)
	}

	for i := 0; i < cfg.WarnAt; i++ {
		last = v.ValidateInput("p1", bad, later.Add(time.Duration(i)*time.Second))
	}
	if last.Escalation != TierWarn {
		t.Fatalf("expected warn to fire again after decay, got %s", last.Escalation)
	}
}

// TestPlayersIsolated verifies one player's history never affects another
func TestPlayersIsolated(t *testing.T) {
	v := newTestValidator(nil)
	for i := 0; i < 40; i++ {
		v.ValidateInput("spammer", input.FrameInput{}, t0.Add(time.Duration(i)*10*time.Millisecond))
	}
	if !v.ValidateInput("calm", input.FrameInput{}, t0.Add(200*time.Millisecond)).Accepted {
		t.Fatal("calm player rejected because of another player's rate")
	}
}
