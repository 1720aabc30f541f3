// Package replay records every session's outbound stream to newline-delimited
// JSON so matches can be audited and replayed.
package replay

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"smash-arena/internal/session"
)

// Config bounds the recorder.
type Config struct {
	QueueSize        int           // Entries buffered between sessions and the writer
	MaxPerSec        int           // Global entry rate limit
	MaxPerSessionSec int           // Per-session entry rate limit
	FlushInterval    time.Duration // How often the writer drains the queue
	BatchSize        int           // Entries per write batch
}

// DefaultConfig returns production limits.
func DefaultConfig() Config {
	return Config{
		QueueSize:        4096,
		MaxPerSec:        20000,
		MaxPerSessionSec: 500,
		FlushInterval:    100 * time.Millisecond,
		BatchSize:        256,
	}
}

// Entry is one line of a replay file.
type Entry struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
	session.Message
}

// Stats reports recorder throughput.
type Stats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
	Open    int    `json:"open"`
}

// Recorder is a session.Dispatcher that appends each session's messages to
// <dir>/<session id>.jsonl. Dispatch never blocks: entries over the rate
// limits or beyond the queue are dropped and counted.
type Recorder struct {
	cfg   Config
	dir   string
	queue chan Entry

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*rate.Limiter

	files map[string]*os.File // Writer goroutine only
	open  atomic.Int64

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	seq     atomic.Uint64
	total   atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(dir string, cfg Config) *Recorder {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxPerSec <= 0 {
		cfg.MaxPerSec = def.MaxPerSec
	}
	if cfg.MaxPerSessionSec <= 0 {
		cfg.MaxPerSessionSec = def.MaxPerSessionSec
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Recorder{
		cfg:           cfg,
		dir:           dir,
		queue:         make(chan Entry, cfg.QueueSize),
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.MaxPerSec), cfg.MaxPerSec),
		files:         make(map[string]*os.File),
		stopChan:      make(chan struct{}),
	}
}

// Start creates the output directory and launches the writer.
func (r *Recorder) Start() error {
	if r.running.Load() {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create replay dir: %w", err)
	}
	r.running.Store(true)
	r.wg.Add(1)
	go r.writerLoop()
	log.Printf("📼 Recording replays to %s", r.dir)
	return nil
}

// Stop flushes everything queued and closes all files.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.stopChan)
		r.wg.Wait()
	})
}

// Dispatch queues msgs for sessionID.
func (r *Recorder) Dispatch(sessionID string, msgs []session.Message) {
	if !r.running.Load() {
		r.dropped.Add(uint64(len(msgs)))
		return
	}
	limiter := r.sessionLimiter(sessionID)
	now := time.Now()
	for _, m := range msgs {
		if !r.globalLimiter.Allow() || !limiter.Allow() {
			r.dropped.Add(1)
			continue
		}
		e := Entry{Seq: r.seq.Add(1), At: now, Message: m}
		e.SessionID = sessionID
		select {
		case r.queue <- e:
			r.total.Add(1)
		default:
			r.dropped.Add(1)
		}
	}
}

func (r *Recorder) sessionLimiter(sessionID string) *rate.Limiter {
	if l, ok := r.sessionLimiters.Load(sessionID); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(r.cfg.MaxPerSessionSec), r.cfg.MaxPerSessionSec)
	actual, _ := r.sessionLimiters.LoadOrStore(sessionID, l)
	return actual.(*rate.Limiter)
}

// Stats returns throughput counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Total:   r.total.Load(),
		Dropped: r.dropped.Load(),
		Pending: len(r.queue),
		Open:    int(r.open.Load()),
	}
}

// Path returns the replay file for sessionID.
func (r *Recorder) Path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".jsonl")
}

func (r *Recorder) writerLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, r.cfg.BatchSize)
	for {
		select {
		case <-r.stopChan:
			for {
				batch = r.collectBatch(batch[:0])
				if len(batch) == 0 {
					break
				}
				r.flushBatch(batch)
			}
			r.closeAll()
			return
		case <-ticker.C:
			batch = r.collectBatch(batch[:0])
			if len(batch) > 0 {
				r.flushBatch(batch)
			}
		}
	}
}

func (r *Recorder) collectBatch(batch []Entry) []Entry {
	for len(batch) < r.cfg.BatchSize {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// flushBatch appends entries to their session files. A session's file is
// closed once its ended lifecycle message is written.
func (r *Recorder) flushBatch(batch []Entry) {
	for _, e := range batch {
		f, err := r.file(e.SessionID)
		if err != nil {
			log.Printf("⚠️ Replay write failed for %s: %v", e.SessionID, err)
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			log.Printf("⚠️ Replay encode failed for %s: %v", e.SessionID, err)
			continue
		}
		data = append(data, '\n')
		if _, err := f.Write(data); err != nil {
			log.Printf("⚠️ Replay write failed for %s: %v", e.SessionID, err)
		}

		if lc, ok := e.Payload.(session.LifecyclePayload); ok && e.Kind == session.KindLifecycle && lc.State == session.StateEnded.String() {
			r.closeFile(e.SessionID)
			r.sessionLimiters.Delete(e.SessionID)
		}
	}
}

func (r *Recorder) file(sessionID string) (*os.File, error) {
	if f, ok := r.files[sessionID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(r.Path(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r.files[sessionID] = f
	r.open.Add(1)
	return f, nil
}

func (r *Recorder) closeFile(sessionID string) {
	if f, ok := r.files[sessionID]; ok {
		_ = f.Close()
		delete(r.files, sessionID)
		r.open.Add(-1)
	}
}

func (r *Recorder) closeAll() {
	for id := range r.files {
		r.closeFile(id)
	}
}
