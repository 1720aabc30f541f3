package game

// PlayerSnapshot is an immutable copy of fighter state for broadcast.
// All fields are comparable so deltas can use ==.
type PlayerSnapshot struct {
	ID           string  `json:"id" msgpack:"id"`
	Slot         int     `json:"slot" msgpack:"slot"`
	Archetype    string  `json:"archetype" msgpack:"arch"`
	X            float64 `json:"x" msgpack:"x"`
	Y            float64 `json:"y" msgpack:"y"`
	VX           float64 `json:"vx" msgpack:"vx"`
	VY           float64 `json:"vy" msgpack:"vy"`
	Facing       int8    `json:"facing" msgpack:"face"`
	Damage       float64 `json:"damage" msgpack:"dmg"`
	Lives        int     `json:"lives" msgpack:"lives"`
	Score        int     `json:"score" msgpack:"score"`
	Meter        float64 `json:"meter" msgpack:"meter"`
	Grounded     bool    `json:"grounded" msgpack:"gnd"`
	Shielding    bool    `json:"shielding" msgpack:"shd"`
	Dodging      bool    `json:"dodging" msgpack:"ddg"`
	Attacking    bool    `json:"attacking" msgpack:"atk"`
	Invulnerable bool    `json:"invulnerable" msgpack:"inv"`
	Respawning   bool    `json:"respawning" msgpack:"rsp"`
	Eliminated   bool    `json:"eliminated" msgpack:"elim"`
	Effects      uint8   `json:"effects" msgpack:"fx"`
}

// EntitySnapshot is an immutable copy of a projectile or pickup.
type EntitySnapshot struct {
	ID      uint64  `json:"id" msgpack:"id"`
	Kind    string  `json:"kind" msgpack:"kind"`
	X       float64 `json:"x" msgpack:"x"`
	Y       float64 `json:"y" msgpack:"y"`
	VX      float64 `json:"vx" msgpack:"vx"`
	VY      float64 `json:"vy" msgpack:"vy"`
	OwnerID string  `json:"ownerId,omitempty" msgpack:"own,omitempty"`
	Bounces int     `json:"bounces" msgpack:"b"`
}

// Snapshot is the full authoritative state at a frame. Players are ordered by
// slot and entities by id.
type Snapshot struct {
	Frame    uint64           `json:"frame" msgpack:"frame"`
	Players  []PlayerSnapshot `json:"players" msgpack:"players"`
	Entities []EntitySnapshot `json:"entities" msgpack:"entities"`
}

// Delta carries what changed between two snapshots.
type Delta struct {
	BaseFrame uint64           `json:"baseFrame" msgpack:"base"`
	Frame     uint64           `json:"frame" msgpack:"frame"`
	Players   []PlayerSnapshot `json:"players,omitempty" msgpack:"players,omitempty"`
	Entities  []EntitySnapshot `json:"entities,omitempty" msgpack:"entities,omitempty"`
	Removed   []uint64         `json:"removed,omitempty" msgpack:"removed,omitempty"`
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Players) == 0 && len(d.Entities) == 0 && len(d.Removed) == 0
}

// Diff computes the delta that turns prev into next. A nil prev yields every
// player and entity in next.
func Diff(prev, next *Snapshot) Delta {
	d := Delta{Frame: next.Frame}
	if prev == nil {
		d.Players = append(d.Players, next.Players...)
		d.Entities = append(d.Entities, next.Entities...)
		return d
	}
	d.BaseFrame = prev.Frame

	before := make(map[string]PlayerSnapshot, len(prev.Players))
	for _, p := range prev.Players {
		before[p.ID] = p
	}
	for _, p := range next.Players {
		if old, ok := before[p.ID]; !ok || old != p {
			d.Players = append(d.Players, p)
		}
	}

	// Both entity lists are sorted by id; merge them.
	i, j := 0, 0
	for i < len(prev.Entities) || j < len(next.Entities) {
		switch {
		case j >= len(next.Entities) || (i < len(prev.Entities) && prev.Entities[i].ID < next.Entities[j].ID):
			d.Removed = append(d.Removed, prev.Entities[i].ID)
			i++
		case i >= len(prev.Entities) || next.Entities[j].ID < prev.Entities[i].ID:
			d.Entities = append(d.Entities, next.Entities[j])
			j++
		default:
			if prev.Entities[i] != next.Entities[j] {
				d.Entities = append(d.Entities, next.Entities[j])
			}
			i++
			j++
		}
	}
	return d
}
