// Package input holds the per-frame controller state sent by clients and the
// per-session ring buffer that tracks it.
package input

// Action is a bitset of buttons held during a frame.
type Action uint8

const (
	ActionAttack Action = 1 << iota
	ActionSpecial
	ActionShield
	ActionDodge
	ActionJump
)

// Has reports whether every bit in a is set.
func (a Action) Has(b Action) bool { return a&b == b }

// String returns a compact debug form like "attack|jump".
func (a Action) String() string {
	if a == 0 {
		return "none"
	}
	names := [...]string{"attack", "special", "shield", "dodge", "jump"}
	out := ""
	for i, name := range names {
		if a&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	return out
}

// FrameInput is one player's controller state for one simulation frame.
// Directional values are intensities in [0, 1].
type FrameInput struct {
	Frame     uint64  `json:"frame" msgpack:"f"`
	Left      float64 `json:"left" msgpack:"l"`
	Right     float64 `json:"right" msgpack:"r"`
	Up        float64 `json:"up" msgpack:"u"`
	Down      float64 `json:"down" msgpack:"d"`
	Actions   Action  `json:"actions" msgpack:"a"`
	Timestamp int64   `json:"timestamp" msgpack:"t"` // client clock, milliseconds
}

// AxisX returns horizontal intent in [-1, 1], positive to the right.
func (in FrameInput) AxisX() float64 { return clamp01(in.Right) - clamp01(in.Left) }

// AxisY returns vertical intent in [-1, 1], positive downward.
func (in FrameInput) AxisY() float64 { return clamp01(in.Down) - clamp01(in.Up) }

// Pressed returns the actions held now but not in prev.
func (in FrameInput) Pressed(prev FrameInput) Action {
	return in.Actions &^ prev.Actions
}

// Neutral returns a copy with no directions or actions, keeping the frame.
func (in FrameInput) Neutral() FrameInput {
	return FrameInput{Frame: in.Frame, Timestamp: in.Timestamp}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
