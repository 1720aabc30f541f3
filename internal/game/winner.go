package game

import (
	"fmt"
	"sort"
)

// Mode selects the win condition.
type Mode uint8

const (
	ModeClassic Mode = iota + 1 // Last standing or first to the score target
	ModeStock                   // Last fighter with lives left
	ModeTime                    // Highest score when the clock runs out
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeClassic:
		return "classic"
	case ModeStock:
		return "stock"
	case ModeTime:
		return "time"
	default:
		return "unknown"
	}
}

// ParseMode resolves a wire name.
func ParseMode(name string) (Mode, error) {
	for _, m := range []Mode{ModeClassic, ModeStock, ModeTime} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", name)
}

// Standing is one fighter's final placement.
type Standing struct {
	Place    int     `json:"place" msgpack:"place"`
	PlayerID string  `json:"playerId" msgpack:"pid"`
	Lives    int     `json:"lives" msgpack:"lives"`
	Score    int     `json:"score" msgpack:"score"`
	KOs      int     `json:"kos" msgpack:"kos"`
	Damage   float64 `json:"damage" msgpack:"dmg"`
}

// Result is the outcome of a finished match.
type Result struct {
	Frame     uint64     `json:"frame" msgpack:"frame"`
	Mode      string     `json:"mode" msgpack:"mode"`
	Reason    string     `json:"reason" msgpack:"reason"`
	Standings []Standing `json:"standings" msgpack:"standings"`
}

// Winner returns the first-place player id, or "" with no standings.
func (r *Result) Winner() string {
	if r == nil || len(r.Standings) == 0 {
		return ""
	}
	return r.Standings[0].PlayerID
}

// Rank orders players for mode. Stock and classic rank by lives then score,
// time ranks by score alone. Ties go to whoever was eliminated later (or not
// at all), then lower damage, then lower slot.
func Rank(mode Mode, players []*Player) []Standing {
	ordered := make([]*Player, len(players))
	copy(ordered, players)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if mode != ModeTime && a.Lives != b.Lives {
			return a.Lives > b.Lives
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Eliminated != b.Eliminated {
			return !a.Eliminated
		}
		if a.EliminatedAt != b.EliminatedAt {
			return a.EliminatedAt > b.EliminatedAt
		}
		if a.Damage != b.Damage {
			return a.Damage < b.Damage
		}
		return a.Slot < b.Slot
	})

	out := make([]Standing, len(ordered))
	for i, p := range ordered {
		out[i] = Standing{
			Place:    i + 1,
			PlayerID: p.ID,
			Lives:    p.Lives,
			Score:    p.Score,
			KOs:      p.KOs,
			Damage:   p.Damage,
		}
	}
	return out
}

// checkWin evaluates the mode's end condition after a step.
func (e *Engine) checkWin() {
	reason := ""
	switch e.cfg.Mode {
	case ModeStock:
		if e.standingCount() <= 1 {
			reason = "last_standing"
		}
	case ModeClassic:
		if e.standingCount() <= 1 {
			reason = "last_standing"
		} else if e.cfg.ScoreToWin > 0 {
			for _, p := range e.players {
				if p.Score >= e.cfg.ScoreToWin {
					reason = "score"
					break
				}
			}
		}
	case ModeTime:
		if e.cfg.TimeLimitFrames > 0 && e.frame >= e.cfg.TimeLimitFrames {
			reason = "time"
		}
	}
	if reason != "" {
		e.finish(reason)
	}
}

func (e *Engine) standingCount() int {
	n := 0
	for _, p := range e.players {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

func (e *Engine) finish(reason string) {
	e.result = &Result{
		Frame:     e.frame,
		Mode:      e.cfg.Mode.String(),
		Reason:    reason,
		Standings: Rank(e.cfg.Mode, e.players),
	}
	e.emit(EventTypeMatchEnd, "", e.result)
}
