package game

import "math"

// Vec2 is a 2D vector in world units. Y grows downward.
type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Len returns the vector magnitude.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Rect is an axis-aligned box anchored at its top-left corner.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Center returns the midpoint of the box.
func (r Rect) Center() Vec2 { return Vec2{r.X + r.W/2, r.Y + r.H/2} }

// Intersects reports whether the boxes overlap with non-zero area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Contains reports whether p lies inside the box, edges included.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Penetration returns the minimum translation that moves r out of o, and
// whether they overlap at all. Only one component of the result is non-zero:
// the axis with the smaller overlap.
func (r Rect) Penetration(o Rect) (Vec2, bool) {
	if !r.Intersects(o) {
		return Vec2{}, false
	}

	overlapX := math.Min(r.Right()-o.X, o.Right()-r.X)
	overlapY := math.Min(r.Bottom()-o.Y, o.Bottom()-r.Y)

	rc, oc := r.Center(), o.Center()
	if overlapX < overlapY {
		if rc.X < oc.X {
			return Vec2{X: -overlapX}, true
		}
		return Vec2{X: overlapX}, true
	}
	if rc.Y < oc.Y {
		return Vec2{Y: -overlapY}, true
	}
	return Vec2{Y: overlapY}, true
}

// HitboxShape selects where an attack box sits relative to the attacker.
type HitboxShape uint8

const (
	HitboxForward HitboxShape = iota // In front, at chest height
	HitboxAbove                      // Over the head, slightly wider than the body
	HitboxAround                     // Both sides at foot level
)

// Hitbox returns the attack box for a body facing the given direction
// (+1 right, -1 left). reach is horizontal length, height the box height.
func Hitbox(body Rect, facing float64, shape HitboxShape, reach, height float64) Rect {
	switch shape {
	case HitboxAbove:
		return Rect{X: body.X - reach/4, Y: body.Y - reach, W: body.W + reach/2, H: reach + body.H/2}
	case HitboxAround:
		return Rect{X: body.X - reach, Y: body.Bottom() - height, W: body.W + 2*reach, H: height}
	default:
		y := body.Y + (body.H-height)/2
		if facing < 0 {
			return Rect{X: body.X - reach, Y: y, W: reach, H: height}
		}
		return Rect{X: body.Right(), Y: y, W: reach, H: height}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
