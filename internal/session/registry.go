package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/config"
	"smash-arena/internal/game"
)

// Registry owns every live session and its runner. It is created by the
// server and passed to whoever needs lookups.
type Registry struct {
	mu      sync.RWMutex
	ctx     context.Context
	cfg     config.SessionConfig
	opts    Options
	runners map[string]*Runner

	dispatchers []Dispatcher
}

// NewRegistry creates a registry. Runners started by it stop when ctx is
// cancelled.
func NewRegistry(ctx context.Context, cfg config.SessionConfig, opts Options, dispatchers ...Dispatcher) *Registry {
	if opts.Sim.TickRate == 0 {
		opts.Sim = config.DefaultSim()
	}
	if opts.AntiCheat.WarnAt == 0 {
		opts.AntiCheat = config.DefaultAntiCheat()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		ctx:         ctx,
		cfg:         cfg,
		opts:        opts,
		runners:     make(map[string]*Runner),
		dispatchers: dispatchers,
	}
}

// AddDispatcher attaches a dispatcher to sessions created afterwards.
func (r *Registry) AddDispatcher(d Dispatcher) {
	r.mu.Lock()
	r.dispatchers = append(r.dispatchers, d)
	r.mu.Unlock()
}

// Bans returns the shared ban store, or nil.
func (r *Registry) Bans() anticheat.BanStore { return r.opts.Bans }

// Create starts a new session and its runner.
func (r *Registry) Create(players []PlayerEntry, cfg MatchConfig) (*Session, error) {
	r.mu.RLock()
	full := r.cfg.MaxSessions > 0 && len(r.runners) >= r.cfg.MaxSessions
	r.mu.RUnlock()
	if full {
		return nil, fmt.Errorf("%w: %d sessions", ErrRegistryFull, r.cfg.MaxSessions)
	}

	s := New(uuid.NewString(), r.opts)
	if err := s.Start(players, cfg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxSessions > 0 && len(r.runners) >= r.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: %d sessions", ErrRegistryFull, r.cfg.MaxSessions)
	}
	runner := NewRunner(s, NewFrameClock(r.opts.Sim.TickRate, r.opts.Sim.MaxCatchUpSteps), r.dispatchers...)
	r.runners[s.ID()] = runner
	runner.Start(r.ctx)
	return s, nil
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	runner, ok := r.runners[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return runner.Session(), nil
}

// List returns summaries of every session, oldest first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.runners))
	for _, runner := range r.runners {
		out = append(out, runner.Session().Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runners)
}

// End finishes a session, flushes its final messages and removes it.
func (r *Registry) End(id, reason string) (*game.Result, error) {
	r.mu.Lock()
	runner, ok := r.runners[id]
	delete(r.runners, id)
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	runner.Stop()
	res, err := runner.Session().EndWithReason(reason)
	runner.Flush()
	return res, err
}

// Sweep removes sessions that have ended or sat with nobody connected for
// the inactivity timeout, and decays quiet violation records.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.RLock()
	var stale []string
	for id, runner := range r.runners {
		s := runner.Session()
		s.DecayViolations(now)
		if s.State() == StateEnded || s.Idle(now, r.cfg.InactivityTimeout) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(stale)
	for _, id := range stale {
		if _, err := r.End(id, "inactive"); err == nil {
			log.Printf("🧹 Swept session %s", id)
		}
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context) {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Shutdown ends every session.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_, _ = r.End(id, "shutdown")
	}
	log.Printf("🛑 Ended %d sessions", len(ids))
}
