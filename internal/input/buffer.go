package input

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDesync marks an input whose frame falls outside the accepted window.
	ErrDesync = errors.New("input frame outside accepted window")
	// ErrUnknownPlayer marks a submit for a player the buffer does not track.
	ErrUnknownPlayer = errors.New("unknown player")
)

type slot struct {
	frame uint64
	input FrameInput
	valid bool
}

// ring holds one player's recent inputs indexed by frame % len(slots).
type ring struct {
	slots  []slot
	latest uint64
}

func (r *ring) get(frame uint64) (FrameInput, bool) {
	s := r.slots[frame%uint64(len(r.slots))]
	if !s.valid || s.frame != frame {
		return FrameInput{}, false
	}
	return s.input, true
}

// Buffer tracks per-player input history for one session and the confirmed
// frame: the highest frame for which every tracked player has submitted input
// for that frame and all frames before it.
//
// Buffer is not safe for concurrent use; the owning session serializes access.
type Buffer struct {
	size      int
	future    uint64
	players   map[string]*ring
	order     []string // sorted ids
	confirmed uint64
	newest    uint64
}

// NewBuffer creates a buffer keeping size frames of history per player and
// accepting inputs up to future frames ahead of the current frame.
func NewBuffer(size, future int) *Buffer {
	if size < 1 {
		size = 1
	}
	if future < 0 {
		future = 0
	}
	return &Buffer{
		size:    size,
		future:  uint64(future),
		players: make(map[string]*ring),
	}
}

// AddPlayer starts tracking a player. Adding an existing player is a no-op.
func (b *Buffer) AddPlayer(playerID string) {
	if _, ok := b.players[playerID]; ok {
		return
	}
	b.players[playerID] = &ring{slots: make([]slot, b.size)}
	b.order = append(b.order, playerID)
	sort.Strings(b.order)
}

// RemovePlayer evicts a player's history. Confirmation then only considers the
// remaining players.
func (b *Buffer) RemovePlayer(playerID string) {
	if _, ok := b.players[playerID]; !ok {
		return
	}
	delete(b.players, playerID)
	n := 0
	for _, id := range b.order {
		if id != playerID {
			b.order[n] = id
			n++
		}
	}
	b.order = b.order[:n]
}

// Players returns tracked player ids in sorted order.
func (b *Buffer) Players() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Submit stores in for playerID. currentFrame is the session's simulation
// frame at the time of receipt.
func (b *Buffer) Submit(playerID string, in FrameInput, currentFrame uint64) error {
	r, ok := b.players[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if in.Frame == 0 {
		return fmt.Errorf("%w: frame 0", ErrDesync)
	}
	if in.Frame+uint64(b.size) <= currentFrame {
		return fmt.Errorf("%w: frame %d older than history (current %d)", ErrDesync, in.Frame, currentFrame)
	}
	if in.Frame > currentFrame+b.future {
		return fmt.Errorf("%w: frame %d too far ahead (current %d)", ErrDesync, in.Frame, currentFrame)
	}

	r.slots[in.Frame%uint64(b.size)] = slot{frame: in.Frame, input: in, valid: true}
	if in.Frame > r.latest {
		r.latest = in.Frame
	}
	if in.Frame > b.newest {
		b.newest = in.Frame
	}
	return nil
}

// Get returns the stored input for playerID at frame, if still retained.
func (b *Buffer) Get(playerID string, frame uint64) (FrameInput, bool) {
	r, ok := b.players[playerID]
	if !ok {
		return FrameInput{}, false
	}
	return r.get(frame)
}

// Latest returns the highest frame submitted by playerID.
func (b *Buffer) Latest(playerID string) uint64 {
	if r, ok := b.players[playerID]; ok {
		return r.latest
	}
	return 0
}

// ConfirmedFrame advances and returns the confirmed frame. Zero means no frame
// is confirmed yet. With no tracked players nothing can be confirmed and the
// previous value is returned.
func (b *Buffer) ConfirmedFrame() uint64 {
	if len(b.order) == 0 {
		return b.confirmed
	}

	// History older than the ring can no longer be checked; skip past it.
	if b.newest >= uint64(b.size) {
		oldest := b.newest - uint64(b.size) + 1
		if b.confirmed+1 < oldest {
			b.confirmed = oldest - 1
		}
	}

	for {
		next := b.confirmed + 1
		for _, id := range b.order {
			if _, ok := b.players[id].get(next); !ok {
				return b.confirmed
			}
		}
		b.confirmed = next
	}
}
