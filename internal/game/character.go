package game

import "fmt"

// Archetype is the closed set of playable characters.
type Archetype uint8

const (
	ArchetypeBrawler Archetype = iota + 1
	ArchetypeSpeedster
	ArchetypeTank
	ArchetypeMarksman
)

// SpecialKind identifies the special ability an archetype performs.
type SpecialKind uint8

const (
	SpecialUppercut SpecialKind = iota + 1
	SpecialDashStrike
	SpecialGroundPound
	SpecialFireball
)

// Stats are the per-archetype balance parameters. Speeds are per frame.
type Stats struct {
	Width, Height float64

	RunSpeed     float64
	Acceleration float64
	JumpScale    float64
	Jumps        int
	Weight       float64 // Knockback divisor

	AttackDamage    float64
	AttackKnockback float64
	AttackReach     float64
	AttackHeight    float64
	AttackFrames    int // Active frames
	AttackCooldown  int

	Special SpecialKind
}

// Archetypes lists every archetype in declaration order.
func Archetypes() []Archetype {
	return []Archetype{ArchetypeBrawler, ArchetypeSpeedster, ArchetypeTank, ArchetypeMarksman}
}

// String returns the wire name of the archetype.
func (a Archetype) String() string {
	switch a {
	case ArchetypeBrawler:
		return "brawler"
	case ArchetypeSpeedster:
		return "speedster"
	case ArchetypeTank:
		return "tank"
	case ArchetypeMarksman:
		return "marksman"
	default:
		return "unknown"
	}
}

// Valid reports whether a is a known archetype.
func (a Archetype) Valid() bool {
	return a >= ArchetypeBrawler && a <= ArchetypeMarksman
}

// ParseArchetype resolves a wire name.
func ParseArchetype(name string) (Archetype, error) {
	for _, a := range Archetypes() {
		if a.String() == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown archetype %q", name)
}

// Stats returns the balance parameters for a. Unknown archetypes get zero
// stats and should have been rejected at session start.
func (a Archetype) Stats() Stats {
	switch a {
	case ArchetypeBrawler:
		return Stats{
			Width: 40, Height: 60,
			RunSpeed: 6, Acceleration: 1.2, JumpScale: 1.0, Jumps: 2, Weight: 1.0,
			AttackDamage: 9, AttackKnockback: 7, AttackReach: 40, AttackHeight: 30,
			AttackFrames: 6, AttackCooldown: 18,
			Special: SpecialUppercut,
		}
	case ArchetypeSpeedster:
		return Stats{
			Width: 34, Height: 54,
			RunSpeed: 8.5, Acceleration: 1.8, JumpScale: 1.05, Jumps: 3, Weight: 0.85,
			AttackDamage: 6, AttackKnockback: 5.5, AttackReach: 32, AttackHeight: 26,
			AttackFrames: 4, AttackCooldown: 12,
			Special: SpecialDashStrike,
		}
	case ArchetypeTank:
		return Stats{
			Width: 50, Height: 68,
			RunSpeed: 4.5, Acceleration: 0.8, JumpScale: 0.9, Jumps: 2, Weight: 1.4,
			AttackDamage: 13, AttackKnockback: 9, AttackReach: 48, AttackHeight: 40,
			AttackFrames: 8, AttackCooldown: 28,
			Special: SpecialGroundPound,
		}
	case ArchetypeMarksman:
		return Stats{
			Width: 38, Height: 58,
			RunSpeed: 5.5, Acceleration: 1.1, JumpScale: 1.0, Jumps: 2, Weight: 0.95,
			AttackDamage: 7, AttackKnockback: 6, AttackReach: 36, AttackHeight: 28,
			AttackFrames: 5, AttackCooldown: 20,
			Special: SpecialFireball,
		}
	default:
		return Stats{}
	}
}

// String returns the wire name of the special.
func (s SpecialKind) String() string {
	switch s {
	case SpecialUppercut:
		return "uppercut"
	case SpecialDashStrike:
		return "dash_strike"
	case SpecialGroundPound:
		return "ground_pound"
	case SpecialFireball:
		return "fireball"
	default:
		return "unknown"
	}
}
