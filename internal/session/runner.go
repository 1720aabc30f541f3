package session

import (
	"context"
	"log"
	"sync"
)

// Dispatcher delivers drained messages. Dispatch is called from the
// session's runner goroutine and must not block; implementations buffer and
// drop when full.
type Dispatcher interface {
	Dispatch(sessionID string, msgs []Message)
}

// Runner drives one session on its own goroutine.
type Runner struct {
	session     *Session
	clock       *FrameClock
	dispatchers []Dispatcher

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRunner binds a session to a clock and its dispatchers.
func NewRunner(s *Session, clock *FrameClock, dispatchers ...Dispatcher) *Runner {
	return &Runner{
		session:     s,
		clock:       clock,
		dispatchers: dispatchers,
		done:        make(chan struct{}),
	}
}

// Session returns the driven session.
func (r *Runner) Session() *Session { return r.session }

// Start launches the tick loop. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ Session %s runner panic: %v", r.session.ID(), rec)
			r.abort()
		}
	}()

	r.Flush()
	r.clock.Run(ctx, r.step)
	r.Flush()
}

// step runs one tick and flushes. It returns false once the session ends.
func (r *Runner) step() (active bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ Session %s tick panic: %v", r.session.ID(), rec)
			r.abort()
			active = false
		}
	}()

	err := r.session.Tick()
	r.Flush()
	return err == nil && r.session.State() == StateActive
}

// abort ends the session with reason "error" after a panic so clients still
// receive a result. If finishing the match panics too, the session is
// closed without one.
func (r *Runner) abort() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ Session %s failed to finish: %v", r.session.ID(), rec)
			r.session.fail("error")
		}
		r.Flush()
	}()
	_, _ = r.session.EndWithReason("error")
}

// Flush drains the outbound queue into every dispatcher.
func (r *Runner) Flush() {
	msgs := r.session.Drain()
	if len(msgs) == 0 {
		return
	}
	for _, d := range r.dispatchers {
		d.Dispatch(r.session.ID(), msgs)
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly
// and on a runner that was never started.
func (r *Runner) Stop() {
	r.once.Do(func() {
		if r.cancel == nil {
			close(r.done)
			return
		}
		r.cancel()
	})
	<-r.done
}

// Done is closed once the loop has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }
