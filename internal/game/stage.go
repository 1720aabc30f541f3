package game

import (
	"fmt"
	"log"
	"sort"

	"github.com/solarlune/resolv"
)

// Resolv tags used by the stage space.
const (
	tagPlatform = "platform"
	tagFighter  = "fighter"
	tagEntity   = "entity"
)

const stageCellSize = 32

// PlatformKind changes how a platform resolves contacts.
type PlatformKind uint8

const (
	PlatformSolid  PlatformKind = iota // Blocks from every side
	PlatformOneWay                     // Only lands from above, can be dropped through
	PlatformBouncy                     // Solid, launches fighters that land on it
)

// Platform is a static collision box.
type Platform struct {
	Rect
	Kind PlatformKind
}

// StageLayout is the immutable description of a map.
type StageLayout struct {
	ID         string
	Name       string
	Width      float64
	Height     float64
	Platforms  []Platform
	Spawns     []Vec2 // Feet positions, indexed by player slot
	ItemSpawns []Vec2
}

// Stage is a layout bound to its own collision space. Each engine owns one.
type Stage struct {
	StageLayout
	BlastZone Rect
	space     *resolv.Space
	platforms []*resolv.Object
}

var stageLayouts = map[string]func() StageLayout{
	"battlefield": func() StageLayout {
		return StageLayout{
			ID: "battlefield", Name: "Battlefield", Width: 1600, Height: 1000,
			Platforms: []Platform{
				{Rect: Rect{X: 400, Y: 700, W: 800, H: 60}, Kind: PlatformSolid},
				{Rect: Rect{X: 500, Y: 560, W: 200, H: 12}, Kind: PlatformOneWay},
				{Rect: Rect{X: 900, Y: 560, W: 200, H: 12}, Kind: PlatformOneWay},
				{Rect: Rect{X: 700, Y: 420, W: 200, H: 12}, Kind: PlatformOneWay},
			},
			Spawns:     []Vec2{{480, 700}, {1120, 700}, {640, 700}, {960, 700}},
			ItemSpawns: []Vec2{{600, 540}, {1000, 540}, {800, 400}, {800, 680}},
		}
	},
	"final-destination": func() StageLayout {
		return StageLayout{
			ID: "final-destination", Name: "Final Destination", Width: 1600, Height: 1000,
			Platforms: []Platform{
				{Rect: Rect{X: 300, Y: 700, W: 1000, H: 80}, Kind: PlatformSolid},
			},
			Spawns:     []Vec2{{450, 700}, {1150, 700}, {650, 700}, {950, 700}},
			ItemSpawns: []Vec2{{500, 680}, {800, 680}, {1100, 680}},
		}
	},
	"trampoline": func() StageLayout {
		return StageLayout{
			ID: "trampoline", Name: "Trampoline Park", Width: 1600, Height: 1000,
			Platforms: []Platform{
				{Rect: Rect{X: 400, Y: 720, W: 800, H: 60}, Kind: PlatformSolid},
				{Rect: Rect{X: 150, Y: 600, W: 150, H: 20}, Kind: PlatformBouncy},
				{Rect: Rect{X: 1300, Y: 600, W: 150, H: 20}, Kind: PlatformBouncy},
				{Rect: Rect{X: 650, Y: 520, W: 300, H: 12}, Kind: PlatformOneWay},
			},
			Spawns:     []Vec2{{500, 720}, {1100, 720}, {700, 720}, {900, 720}},
			ItemSpawns: []Vec2{{225, 580}, {1375, 580}, {800, 500}},
		}
	},
}

// StageIDs returns the known map ids in sorted order.
func StageIDs() []string {
	ids := make([]string, 0, len(stageLayouts))
	for id := range stageLayouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasStage reports whether id names a known map.
func HasStage(id string) bool {
	_, ok := stageLayouts[id]
	return ok
}

// LoadStage builds a fresh stage for id.
func LoadStage(id string) (*Stage, error) {
	build, ok := stageLayouts[id]
	if !ok {
		return nil, fmt.Errorf("unknown map %q", id)
	}
	return NewStage(build()), nil
}

// NewStage builds the collision space for a layout. Layout coordinates must
// lie within [0, Width] x [0, Height]; that box is also the blast zone.
func NewStage(layout StageLayout) *Stage {
	s := &Stage{
		StageLayout: layout,
		BlastZone:   Rect{X: 0, Y: 0, W: layout.Width, H: layout.Height},
		space:       resolv.NewSpace(int(layout.Width), int(layout.Height), stageCellSize, stageCellSize),
	}

	for i, p := range layout.Platforms {
		obj := resolv.NewObject(p.X, p.Y, p.W, p.H, tagPlatform)
		obj.SetShape(resolv.NewRectangle(0, 0, p.W, p.H))
		obj.Data = i
		s.space.Add(obj)
		s.platforms = append(s.platforms, obj)
	}

	log.Printf("🗺️ Loaded stage %s: %d platforms, %d spawns", layout.ID, len(layout.Platforms), len(layout.Spawns))
	return s
}

// Surfaces returns the top edge of every platform, used to sanity check
// grounded claims.
func (s *Stage) Surfaces() []float64 {
	out := make([]float64, len(s.Platforms))
	for i, p := range s.Platforms {
		out[i] = p.Y
	}
	return out
}

// SpawnPosition returns the top-left body position for a slot's spawn point.
func (s *Stage) SpawnPosition(slot int, stats Stats) Vec2 {
	feet := s.Spawns[slot%len(s.Spawns)]
	return Vec2{X: feet.X - stats.Width/2, Y: feet.Y - stats.Height}
}

// newBody registers a movable box with the space.
func (s *Stage) newBody(r Rect, tag string) *resolv.Object {
	obj := resolv.NewObject(r.X, r.Y, r.W, r.H, tag)
	obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.H))
	s.space.Add(obj)
	return obj
}

func (s *Stage) removeBody(obj *resolv.Object) {
	if obj != nil {
		s.space.Remove(obj)
	}
}

// nearbyPlatforms moves obj to r and returns indices of platforms sharing a
// cell with r grown by one unit downward, in layout order.
func (s *Stage) nearbyPlatforms(obj *resolv.Object, r Rect) []int {
	obj.X, obj.Y = r.X, r.Y
	obj.Update()

	check := obj.Check(0, 1, tagPlatform)
	if check == nil {
		return nil
	}
	found := check.ObjectsByTags(tagPlatform)
	idx := make([]int, 0, len(found))
	for _, o := range found {
		if i, ok := o.Data.(int); ok {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}
