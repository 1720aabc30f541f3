// Package session owns the lifecycle of matches: it feeds validated input
// into the engine on a fixed clock and queues everything clients need to see.
package session

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/config"
	"smash-arena/internal/game"
	"smash-arena/internal/input"
)

// State is a session's lifecycle stage.
type State uint8

const (
	StateForming State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateForming:
		return "forming"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Observer receives session metrics. Implementations must not block.
type Observer interface {
	SessionStarted(sessionID string)
	SessionEnded(sessionID, reason string)
	TickObserved(d time.Duration)
	MessageRejected(category anticheat.Category, escalation anticheat.Tier)
	InputDesynced()
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string) {}
func (nopObserver) SessionEnded(string, string) {}
func (nopObserver) TickObserved(time.Duration) {}
func (nopObserver) MessageRejected(anticheat.Category, anticheat.Tier) {}
func (nopObserver) InputDesynced() {}

// Options configure a session. Zero values fall back to defaults.
type Options struct {
	Sim       config.SimConfig
	AntiCheat config.AntiCheatConfig
	Bans      anticheat.BanStore
	Observer  Observer
	Now       func() time.Time // Wall clock for the validator, overridable in tests
}

// Summary is a read-only view of a session.
type Summary struct {
	ID        string       `json:"id"`
	State     string       `json:"state"`
	MapID     string       `json:"mapId"`
	Mode      string       `json:"mode"`
	Frame     uint64       `json:"frame"`
	Confirmed uint64       `json:"confirmed"`
	Players   []string     `json:"players"`
	Connected []string     `json:"connected"`
	CreatedAt time.Time    `json:"createdAt"`
	Result    *game.Result `json:"result,omitempty"`
}

// Session is one match. All methods are safe for concurrent use; a single
// mutex serializes ticks with inbound messages.
type Session struct {
	mu sync.Mutex

	id        string
	sim       config.SimConfig
	observer  Observer
	now       func() time.Time
	createdAt time.Time

	state     State
	match     MatchConfig
	roster    []string
	engine    *game.Engine
	buffer    *input.Buffer
	validator *anticheat.Validator

	latest      map[string]input.FrameInput
	lastInputAt map[string]uint64 // Server frame of the last accepted input
	connected   map[string]bool
	idleSince   time.Time

	lastBroadcast *game.Snapshot
	outbox        []Message
	result        *game.Result
}

// New creates a forming session.
func New(id string, opts Options) *Session {
	if opts.Sim.TickRate == 0 {
		opts.Sim = config.DefaultSim()
	}
	if opts.AntiCheat.WarnAt == 0 {
		opts.AntiCheat = config.DefaultAntiCheat()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	return &Session{
		id:          id,
		sim:         opts.Sim,
		observer:    opts.Observer,
		now:         opts.Now,
		createdAt:   now,
		idleSince:   now,
		validator:   anticheat.NewValidator(opts.AntiCheat, opts.Sim, opts.Bans),
		latest:      make(map[string]input.FrameInput),
		lastInputAt: make(map[string]uint64),
		connected:   make(map[string]bool),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start validates the roster and rules, places every player at a spawn point
// and queues the opening snapshot.
func (s *Session) Start(players []PlayerEntry, cfg MatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateForming {
		return invalidf("session %s already %s", s.id, s.state)
	}
	if err := validateMatch(players, cfg); err != nil {
		return err
	}
	for _, p := range players {
		if s.validator.IsBanned(p.ID) {
			return invalidf("player %s is banned", p.ID)
		}
	}

	stage, err := game.LoadStage(cfg.MapID)
	if err != nil {
		return invalidf("%v", err)
	}
	if len(players) > len(stage.Spawns) {
		return invalidf("%d players but map %s has %d spawn points", len(players), cfg.MapID, len(stage.Spawns))
	}
	mode, err := game.ParseMode(cfg.Mode)
	if err != nil {
		return invalidf("%v", err)
	}
	specs, err := roster(players)
	if err != nil {
		return err
	}

	engine, err := game.NewEngine(game.EngineConfig{
		Sim:             s.sim,
		Mode:            mode,
		Stocks:          cfg.Stocks,
		TimeLimitFrames: uint64(cfg.TimeLimitSec) * uint64(s.sim.TickRate),
		ScoreToWin:      cfg.ScoreToWin,
		ItemsEnabled:    cfg.ItemsEnabled,
		Seed:            cfg.Seed,
	}, stage, specs)
	if err != nil {
		return invalidf("%v", err)
	}

	s.engine = engine
	s.match = cfg
	s.buffer = input.NewBuffer(s.sim.InputBufferFrames, s.sim.FutureFrames)
	s.validator.SetSurfaces(stage.Surfaces())
	for _, p := range engine.Players() {
		s.roster = append(s.roster, p.ID)
		s.buffer.AddPlayer(p.ID)
		s.validator.SyncAuthoritative(p.ID, p.Damage, p.Lives)
	}
	s.state = StateActive

	snap := engine.Snapshot()
	s.lastBroadcast = &snap
	s.push(Message{Kind: KindLifecycle, Payload: LifecyclePayload{State: StateActive.String()}})
	s.push(Message{Kind: KindSnapshot, Frame: snap.Frame, Checksum: Checksum(&snap), Payload: snap})

	s.observer.SessionStarted(s.id)
	log.Printf("🎮 Session %s started: %d players on %s (%s)", s.id, len(players), cfg.MapID, cfg.Mode)
	return nil
}

// End finalizes the ranking and queues the results. Ending an ended session
// returns its result again.
func (s *Session) End() (*game.Result, error) {
	return s.EndWithReason("ended")
}

// EndWithReason is End with an explicit reason recorded in the result.
func (s *Session) EndWithReason(reason string) (*game.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateEnded:
		return s.result, nil
	case StateActive:
		return s.endLocked(reason), nil
	default:
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.id, s.state)
	}
}

func (s *Session) endLocked(reason string) *game.Result {
	res := s.engine.Finish(reason)
	s.queueEvents(s.engine.DrainEvents())

	snap := s.engine.Snapshot()
	s.lastBroadcast = &snap
	s.push(Message{Kind: KindSnapshot, Frame: snap.Frame, Confirmed: s.buffer.ConfirmedFrame(), Checksum: Checksum(&snap), Payload: snap})
	s.push(Message{Kind: KindResult, Frame: res.Frame, Payload: res})
	s.push(Message{Kind: KindLifecycle, Frame: res.Frame, Payload: LifecyclePayload{State: StateEnded.String(), Reason: res.Reason}})

	s.state = StateEnded
	s.result = res
	s.observer.SessionEnded(s.id, res.Reason)
	log.Printf("🏆 Session %s ended at frame %d (%s), winner %s", s.id, res.Frame, res.Reason, res.Winner())
	return res
}

// fail marks the session ended without touching the engine. Used when
// finishing the match itself panicked.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	s.push(Message{Kind: KindLifecycle, Payload: LifecyclePayload{State: StateEnded.String(), Reason: reason}})
	s.observer.SessionEnded(s.id, reason)
}

// =============================================================================
// INBOUND
// =============================================================================

// SubmitInput validates and buffers one input.
func (s *Session) SubmitInput(playerID string, in input.FrameInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInbound(playerID); err != nil {
		return err
	}

	if v := s.validator.ValidateInput(playerID, in, s.now()); !v.Accepted {
		return s.rejected(playerID, v)
	}

	frame := s.engine.Frame()
	err := s.buffer.Submit(playerID, in, frame)
	if errors.Is(err, input.ErrUnknownPlayer) {
		// Evicted on disconnect; a fresh input readmits the player.
		s.buffer.AddPlayer(playerID)
		err = s.buffer.Submit(playerID, in, frame)
	}
	if errors.Is(err, input.ErrDesync) {
		s.observer.InputDesynced()
		log.Printf("⚠️ Session %s dropped desync input from %s: %v", s.id, playerID, err)
		return fmt.Errorf("%w: %v", ErrDesyncInput, err)
	}
	if err != nil {
		return err
	}

	if prev, ok := s.latest[playerID]; !ok || in.Frame >= prev.Frame {
		s.latest[playerID] = in
	}
	s.lastInputAt[playerID] = frame
	return nil
}

// ReportPosition validates a client's movement claim. Reports never change
// the authoritative state.
func (s *Session) ReportPosition(playerID string, r anticheat.PositionReport) error {
	return s.report(playerID, func(now time.Time) anticheat.Verdict {
		return s.validator.ValidatePosition(playerID, r, now)
	})
}

// ReportState validates a client's vitals claim.
func (s *Session) ReportState(playerID string, r anticheat.StateReport) error {
	return s.report(playerID, func(now time.Time) anticheat.Verdict {
		return s.validator.ValidateState(playerID, r, now)
	})
}

// ReportCombat validates a client's attack claim.
func (s *Session) ReportCombat(playerID string, r anticheat.AttackReport) error {
	return s.report(playerID, func(now time.Time) anticheat.Verdict {
		return s.validator.ValidateCombat(playerID, r, now)
	})
}

func (s *Session) report(playerID string, check func(time.Time) anticheat.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInbound(playerID); err != nil {
		return err
	}
	if v := check(s.now()); !v.Accepted {
		return s.rejected(playerID, v)
	}
	return nil
}

func (s *Session) checkInbound(playerID string) error {
	if s.state != StateActive {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.id, s.state)
	}
	if s.engine.Player(playerID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	return nil
}

// rejected queues the enforcement message for a refused message and builds
// the error returned to the transport.
func (s *Session) rejected(playerID string, v anticheat.Verdict) error {
	s.observer.MessageRejected(v.Category, v.Escalation)

	frame := s.engine.Frame()
	switch v.Escalation {
	case anticheat.TierWarn:
		s.push(Message{Kind: KindWarning, Target: playerID, Frame: frame, Payload: v})
	case anticheat.TierKick:
		s.push(Message{Kind: KindKick, Target: playerID, Frame: frame, Payload: v})
		s.disconnectLocked(playerID)
	case anticheat.TierBan:
		s.push(Message{Kind: KindBan, Target: playerID, Frame: frame, Payload: v})
		s.disconnectLocked(playerID)
	default:
		s.push(Message{Kind: KindRejected, Target: playerID, Frame: frame, Payload: v})
	}
	return &RejectedError{PlayerID: playerID, Category: v.Category, Reason: v.Reason, Escalation: v.Escalation}
}

// Connect marks a player's transport as attached and queues a full snapshot
// for them.
func (s *Session) Connect(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInbound(playerID); err != nil {
		return err
	}
	if s.validator.IsBanned(playerID) {
		return &RejectedError{PlayerID: playerID, Category: anticheat.CategoryInput, Reason: "banned", Escalation: anticheat.TierBan}
	}
	s.connected[playerID] = true
	s.buffer.AddPlayer(playerID)

	snap := s.engine.Snapshot()
	s.push(Message{Kind: KindSnapshot, Target: playerID, Frame: snap.Frame, Confirmed: s.buffer.ConfirmedFrame(), Checksum: Checksum(&snap), Payload: snap})
	log.Printf("📡 %s connected to session %s", playerID, s.id)
	return nil
}

// Disconnect detaches a player's transport. Their fighter stays in the match
// and idles once their input goes stale.
func (s *Session) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected[playerID] {
		log.Printf("📡 %s disconnected from session %s", playerID, s.id)
	}
	s.disconnectLocked(playerID)
}

func (s *Session) disconnectLocked(playerID string) {
	delete(s.connected, playerID)
	if s.buffer != nil {
		s.buffer.RemovePlayer(playerID)
	}
	if len(s.connected) == 0 {
		s.idleSince = s.now()
	}
}

// =============================================================================
// TICK
// =============================================================================

// Tick advances the match by exactly one frame.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.id, s.state)
	}
	start := time.Now()

	next := s.engine.Frame() + 1
	for _, p := range s.engine.Players() {
		in := s.latest[p.ID]
		if next-s.lastInputAt[p.ID] > uint64(s.sim.StallFrames) {
			in = in.Neutral()
		}
		if err := s.engine.SetInput(p.ID, in); err != nil {
			log.Printf("⚠️ Session %s frame %d: %v", s.id, next, err)
		}
	}

	if err := s.engine.Step(); err != nil {
		log.Printf("⚠️ Session %s frame %d: %v", s.id, next, err)
	}
	s.queueEvents(s.engine.DrainEvents())

	now := s.now()
	for _, p := range s.engine.Players() {
		s.validator.ObserveVelocity(p.ID, p.Vel.X, p.Vel.Y, now)
	}

	if interval := uint64(s.sim.BroadcastInterval()); interval > 0 && next%interval == 0 {
		s.broadcastDelta()
	}

	if s.engine.Result() != nil {
		s.endLocked(s.engine.Result().Reason)
	}
	s.observer.TickObserved(time.Since(start))
	return nil
}

func (s *Session) broadcastDelta() {
	snap := s.engine.Snapshot()
	delta := game.Diff(s.lastBroadcast, &snap)
	s.lastBroadcast = &snap
	s.push(Message{
		Kind:      KindDelta,
		Frame:     snap.Frame,
		Confirmed: s.buffer.ConfirmedFrame(),
		Checksum:  Checksum(&snap),
		Payload:   delta,
	})
}

// queueEvents forwards authoritative changes to the validator and queues
// every event for clients.
func (s *Session) queueEvents(events []game.Event) {
	if len(events) == 0 {
		return
	}
	now := s.now()
	for _, ev := range events {
		switch ev.Type {
		case game.EventTypeHit:
			s.validator.NoteImpulse(ev.PlayerID, now)
		case game.EventTypeKnockout, game.EventTypeRespawn:
			s.validator.NoteImpulse(ev.PlayerID, now)
			if p := s.engine.Player(ev.PlayerID); p != nil {
				s.validator.SyncAuthoritative(p.ID, p.Damage, p.Lives)
			}
		case game.EventTypeRecovery:
			if rec, ok := ev.Payload.(game.RecoveryPayload); ok {
				s.validator.AuthorizeRecovery(ev.PlayerID, rec.Amount)
			}
		case game.EventTypeEliminated:
			log.Printf("💀 %s eliminated in session %s at frame %d", ev.PlayerID, s.id, ev.Frame)
		}
		s.push(Message{Kind: KindEvent, Frame: ev.Frame, Payload: ev})
	}
}

// =============================================================================
// OUTBOUND & VIEWS
// =============================================================================

func (s *Session) push(m Message) {
	m.SessionID = s.id
	s.outbox = append(s.outbox, m)
}

// Drain returns and clears the outbound queue.
func (s *Session) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

// Snapshot returns the current authoritative state.
func (s *Session) Snapshot() (game.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return game.Snapshot{}, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.id, s.state)
	}
	return s.engine.Snapshot(), nil
}

// Violations returns a player's violation records.
func (s *Session) Violations(playerID string) []anticheat.ViolationRecord {
	return s.validator.Records(playerID)
}

// DecayViolations resets quiet violation records.
func (s *Session) DecayViolations(now time.Time) int {
	return s.validator.Sweep(now)
}

// Idle reports whether the session has had no connected players for at
// least timeout.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connected) == 0 && now.Sub(s.idleSince) >= timeout
}

// Summary returns a read-only view of the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		ID:        s.id,
		State:     s.state.String(),
		MapID:     s.match.MapID,
		Mode:      s.match.Mode,
		Players:   append([]string(nil), s.roster...),
		Connected: make([]string, 0, len(s.connected)),
		CreatedAt: s.createdAt,
		Result:    s.result,
	}
	for id := range s.connected {
		sum.Connected = append(sum.Connected, id)
	}
	sort.Strings(sum.Connected)
	if s.engine != nil {
		sum.Frame = s.engine.Frame()
		sum.Confirmed = s.buffer.ConfirmedFrame()
	}
	return sum
}
