package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/config"
	"smash-arena/internal/input"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func duo() []PlayerEntry {
	return []PlayerEntry{{ID: "a", Archetype: "brawler"}, {ID: "b", Archetype: "tank"}}
}

func newTestSession(t *testing.T, bans anticheat.BanStore) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	s := New("s1", Options{Bans: bans, Now: clock.Now})
	if err := s.Start(duo(), DefaultMatchConfig()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, clock
}

func kinds(msgs []Message) map[Kind]int {
	out := make(map[Kind]int)
	for _, m := range msgs {
		out[m.Kind]++
	}
	return out
}

// TestStartValidation verifies every bad roster or ruleset is rejected as invalid configuration
func TestStartValidation(t *testing.T) {
	five := append(duo(),
		PlayerEntry{ID: "c", Archetype: "brawler"},
		PlayerEntry{ID: "d", Archetype: "brawler"},
		PlayerEntry{ID: "e", Archetype: "brawler"},
	)
	timeNoLimit := DefaultMatchConfig()
	timeNoLimit.Mode = "time"
	noStocks := DefaultMatchConfig()
	noStocks.Stocks = 0
	badMap := DefaultMatchConfig()
	badMap.MapID = "moon"
	badMode := DefaultMatchConfig()
	badMode.Mode = "sudden-death"

	tests := []struct {
		name    string
		players []PlayerEntry
		cfg     MatchConfig
	}{
		{"one player", duo()[:1], DefaultMatchConfig()},
		{"duplicate ids", []PlayerEntry{{ID: "a", Archetype: "brawler"}, {ID: "a", Archetype: "tank"}}, DefaultMatchConfig()},
		{"unknown archetype", []PlayerEntry{{ID: "a", Archetype: "wizard"}, {ID: "b", Archetype: "tank"}}, DefaultMatchConfig()},
		{"empty id", []PlayerEntry{{ID: "", Archetype: "brawler"}, {ID: "b", Archetype: "tank"}}, DefaultMatchConfig()},
		{"more players than spawns", five, DefaultMatchConfig()},
		{"unknown map", duo(), badMap},
		{"unknown mode", duo(), badMode},
		{"time mode without limit", duo(), timeNoLimit},
		{"zero stocks", duo(), noStocks},
		{"banned player", []PlayerEntry{{ID: "cheater", Archetype: "brawler"}, {ID: "b", Archetype: "tank"}}, DefaultMatchConfig()},
	}

	bans := anticheat.NewMemoryBanStore()
	_ = bans.Ban("cheater", "test", t0)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("s1", Options{Bans: bans})
			err := s.Start(tt.players, tt.cfg)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			if s.State() != StateForming {
				t.Fatalf("state %s after failed start", s.State())
			}
		})
	}
}

// TestStartQueuesOpeningSnapshot verifies a started session announces itself with a full snapshot
func TestStartQueuesOpeningSnapshot(t *testing.T) {
	s, _ := newTestSession(t, nil)
	if s.State() != StateActive {
		t.Fatalf("expected active, got %s", s.State())
	}

	msgs := s.Drain()
	var snapshots int
	for _, m := range msgs {
		if m.SessionID != "s1" {
			t.Errorf("message without session id: %+v", m)
		}
		if m.Kind == KindSnapshot {
			snapshots++
			if m.Checksum == 0 {
				t.Error("snapshot without checksum")
			}
		}
	}
	if snapshots != 1 {
		t.Fatalf("expected one snapshot, got %d", snapshots)
	}
	if len(s.Drain()) != 0 {
		t.Fatal("drain should clear the queue")
	}
	if err := s.Start(duo(), DefaultMatchConfig()); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("second start should fail, got %v", err)
	}
}

// TestSubmitInputErrors verifies the error taxonomy of inbound input
func TestSubmitInputErrors(t *testing.T) {
	forming := New("s0", Options{})
	if err := forming.SubmitInput("a", input.FrameInput{Frame: 1}); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}

	s, clock := newTestSession(t, nil)
	if err := s.SubmitInput("ghost", input.FrameInput{Frame: 1}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}

	clock.Advance(time.Second)
	if err := s.SubmitInput("a", input.FrameInput{Frame: 0}); !errors.Is(err, ErrDesyncInput) {
		t.Fatalf("expected ErrDesyncInput, got %v", err)
	}

	clock.Advance(time.Second)
	err := s.SubmitInput("a", input.FrameInput{Frame: 1, Left: 1, Right: 1})
	if !errors.Is(err, ErrRejectedInput) {
		t.Fatalf("expected ErrRejectedInput, got %v", err)
	}
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Category != anticheat.CategoryInput || rej.PlayerID != "a" {
		t.Fatalf("unexpected rejection %+v", rej)
	}

	clock.Advance(time.Second)
	if err := s.SubmitInput("a", input.FrameInput{Frame: 1, Right: 1}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

// TestTickBroadcastCadence verifies deltas go out every broadcast interval with the confirmed frame
func TestTickBroadcastCadence(t *testing.T) {
	s, clock := newTestSession(t, nil)
	s.Drain()

	for _, id := range []string{"a", "b"} {
		if err := s.SubmitInput(id, input.FrameInput{Frame: 1}); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(time.Second)

	interval := config.DefaultSim().BroadcastInterval()
	var deltas []Message
	for i := 0; i < interval*4; i++ {
		if err := s.Tick(); err != nil {
			t.Fatal(err)
		}
		for _, m := range s.Drain() {
			if m.Kind == KindDelta {
				deltas = append(deltas, m)
			}
		}
	}

	if len(deltas) != 4 {
		t.Fatalf("expected 4 deltas, got %d", len(deltas))
	}
	for i, d := range deltas {
		if want := uint64((i + 1) * interval); d.Frame != want {
			t.Errorf("delta %d at frame %d, want %d", i, d.Frame, want)
		}
		if d.Confirmed != 1 {
			t.Errorf("delta %d confirmed %d, want 1", i, d.Confirmed)
		}
		if d.Checksum == 0 {
			t.Errorf("delta %d without checksum", i)
		}
	}
	if sum := s.Summary(); sum.Frame != uint64(interval*4) || sum.Confirmed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

// TestStallAging verifies a silent player's last input is replaced with a neutral one
func TestStallAging(t *testing.T) {
	s, _ := newTestSession(t, nil)
	if err := s.SubmitInput("a", input.FrameInput{Frame: 1, Right: 1}); err != nil {
		t.Fatal(err)
	}

	stall := config.DefaultSim().StallFrames
	for i := 0; i < stall; i++ {
		_ = s.Tick()
	}
	if got := s.engine.Player("a").Input.Right; got != 1 {
		t.Fatalf("input aged too early: right=%v", got)
	}

	_ = s.Tick()
	if got := s.engine.Player("a").Input; got.Right != 0 || got.Actions != 0 {
		t.Fatalf("expected neutral input after stall, got %+v", got)
	}
}

// TestEndQueuesResults verifies ending finalizes rankings and closes the session to input
func TestEndQueuesResults(t *testing.T) {
	s, _ := newTestSession(t, nil)
	for i := 0; i < 10; i++ {
		_ = s.Tick()
	}
	s.Drain()

	res, err := s.End()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Standings) != 2 || res.Reason != "ended" {
		t.Fatalf("unexpected result %+v", res)
	}

	k := kinds(s.Drain())
	if k[KindResult] != 1 || k[KindLifecycle] != 1 || k[KindSnapshot] != 1 {
		t.Fatalf("unexpected final messages %v", k)
	}

	again, err := s.End()
	if err != nil || again != res {
		t.Fatalf("second end should return the same result, got %v %v", again, err)
	}
	if err := s.Tick(); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("tick after end: %v", err)
	}
	if err := s.SubmitInput("a", input.FrameInput{Frame: 20}); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("input after end: %v", err)
	}
	if _, err := New("x", Options{}).End(); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("end before start: %v", err)
	}
}

// TestEscalationMessages verifies warn, kick and ban tiers each queue one targeted message
func TestEscalationMessages(t *testing.T) {
	bans := anticheat.NewMemoryBanStore()
	s, clock := newTestSession(t, bans)
	if err := s.Connect("a"); err != nil {
		t.Fatal(err)
	}
	s.Drain()

	ac := config.DefaultAntiCheat()
	var msgs []Message
	for i := 0; i < ac.BanAt; i++ {
		clock.Advance(time.Second)
		err := s.SubmitInput("a", input.FrameInput{Frame: 1, Up: 1, Down: 1})
		if !errors.Is(err, ErrRejectedInput) {
			t.Fatalf("attempt %d: expected rejection, got %v", i, err)
		}
		msgs = append(msgs, s.Drain()...)
		if i+1 == ac.KickAt {
			if conn := s.Summary().Connected; len(conn) != 0 {
				t.Fatalf("kicked player still connected: %v", conn)
			}
		}
	}

	k := kinds(msgs)
	if k[KindWarning] != 1 || k[KindKick] != 1 || k[KindBan] != 1 {
		t.Fatalf("unexpected escalation messages %v", k)
	}
	for _, m := range msgs {
		if m.Target != "a" {
			t.Fatalf("enforcement message not targeted: %+v", m)
		}
	}
	if !bans.IsBanned("a") {
		t.Fatal("ban not persisted")
	}
	if err := s.Connect("a"); !errors.Is(err, ErrRejectedInput) {
		t.Fatalf("banned player reconnected: %v", err)
	}
	if len(s.Violations("a")) != 1 {
		t.Fatalf("expected one violation record, got %+v", s.Violations("a"))
	}
}

// TestReportsAreValidated verifies advisory reports are checked and never alter the match
func TestReportsAreValidated(t *testing.T) {
	s, clock := newTestSession(t, nil)
	before, _ := s.Snapshot()

	if err := s.ReportPosition("a", anticheat.PositionReport{X: 400, Y: 640, Grounded: true}); err != nil {
		t.Fatalf("first position report rejected: %v", err)
	}
	clock.Advance(16 * time.Millisecond)
	err := s.ReportPosition("a", anticheat.PositionReport{X: 1400, Y: 640, Grounded: true})
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Category != anticheat.CategoryPosition {
		t.Fatalf("teleport not rejected as position: %v", err)
	}

	err = s.ReportState("a", anticheat.StateReport{Lives: 9, Y: 700, Grounded: true})
	if !errors.As(err, &rej) || rej.Category != anticheat.CategoryState {
		t.Fatalf("extra lives not rejected as state: %v", err)
	}

	clock.Advance(time.Second)
	if err := s.ReportCombat("b", anticheat.AttackReport{Damage: 500}); !errors.Is(err, ErrRejectedInput) {
		t.Fatalf("oversized attack accepted: %v", err)
	}

	after, _ := s.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatal("reports changed authoritative state")
	}
}

// TestJumpInputDoesNotExcuseTeleport verifies accepted jump inputs never open a window for impossible movement
func TestJumpInputDoesNotExcuseTeleport(t *testing.T) {
	s, clock := newTestSession(t, nil)
	if err := s.ReportPosition("a", anticheat.PositionReport{X: 100, Y: 640}); err != nil {
		t.Fatalf("baseline report rejected: %v", err)
	}

	for i := 0; i < 5; i++ {
		clock.Advance(16 * time.Millisecond)
		if err := s.SubmitInput("a", input.FrameInput{Frame: uint64(i + 1), Actions: input.ActionJump}); err != nil {
			t.Fatalf("jump input %d: %v", i, err)
		}
		err := s.ReportPosition("a", anticheat.PositionReport{X: 100 + float64(i+1)*5000, Y: 640})
		var rej *RejectedError
		if !errors.As(err, &rej) || rej.Category != anticheat.CategoryPosition {
			t.Fatalf("teleport %d after jump input not rejected: %v", i, err)
		}
	}
}

// TestDeterministicSessions verifies identical scripts produce identical checksums
func TestDeterministicSessions(t *testing.T) {
	run := func() []uint64 {
		clock := &fakeClock{now: t0}
		cfg := DefaultMatchConfig()
		cfg.Seed = 7
		s := New("det", Options{Now: clock.Now})
		if err := s.Start(duo(), cfg); err != nil {
			t.Fatal(err)
		}

		var sums []uint64
		for frame := uint64(1); frame <= 240; frame++ {
			if frame%3 == 1 {
				a := input.FrameInput{Frame: frame, Right: 1}
				if frame%30 == 1 {
					a.Actions = input.ActionAttack
				}
				b := input.FrameInput{Frame: frame, Left: 1}
				if frame%60 == 1 {
					b.Actions = input.ActionJump
				}
				_ = s.SubmitInput("a", a)
				_ = s.SubmitInput("b", b)
			}
			clock.Advance(16 * time.Millisecond)
			if err := s.Tick(); err != nil {
				t.Fatal(err)
			}
			for _, m := range s.Drain() {
				if m.Kind == KindDelta {
					sums = append(sums, m.Checksum)
				}
			}
		}
		return sums
	}

	first, second := run(), run()
	if len(first) == 0 {
		t.Fatal("no deltas recorded")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical scripts diverged")
	}
}

// TestIdleAfterLastDisconnect verifies the inactivity clock starts when the last player leaves
func TestIdleAfterLastDisconnect(t *testing.T) {
	s, clock := newTestSession(t, nil)
	timeout := time.Minute

	if err := s.Connect("a"); err != nil {
		t.Fatal(err)
	}
	if s.Idle(clock.Now().Add(time.Hour), timeout) {
		t.Fatal("session with a connected player reported idle")
	}

	clock.Advance(10 * time.Second)
	s.Disconnect("a")
	left := clock.Now()
	if s.Idle(left.Add(timeout-time.Second), timeout) {
		t.Fatal("idle before timeout")
	}
	if !s.Idle(left.Add(timeout), timeout) {
		t.Fatal("not idle after timeout")
	}
}

// TestMessageEncoding verifies outbound messages encode to msgpack
func TestMessageEncoding(t *testing.T) {
	s, _ := newTestSession(t, nil)
	for _, m := range s.Drain() {
		b, err := EncodeMessage(m)
		if err != nil || len(b) == 0 {
			t.Fatalf("encode %s: %v", m.Kind, err)
		}
	}
}
