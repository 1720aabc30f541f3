package game

// EffectKind is a timed status effect on a fighter.
type EffectKind uint8

const (
	EffectSpeedBoost EffectKind = iota
	EffectPowerBoost
	EffectStun
	EffectRegen
	effectKindCount
)

// Effect tuning.
const (
	SpeedBoostMultiplier = 1.3
	PowerBoostMultiplier = 1.25
	BoostFrames          = 300
	StunFrames           = 30
	RegenFrames          = 180
	RegenPerFrame        = 0.1 // Damage percent healed per frame while regenerating
)

// String returns the wire name of the effect.
func (k EffectKind) String() string {
	switch k {
	case EffectSpeedBoost:
		return "speed_boost"
	case EffectPowerBoost:
		return "power_boost"
	case EffectStun:
		return "stun"
	case EffectRegen:
		return "regen"
	default:
		return "unknown"
	}
}

// StatusEffects holds remaining frames per effect kind. Array-backed so it
// iterates in a fixed order and compares with ==.
type StatusEffects [effectKindCount]int

// Apply starts or extends an effect. A shorter reapplication never cuts an
// active effect short.
func (s *StatusEffects) Apply(kind EffectKind, frames int) {
	if kind >= effectKindCount {
		return
	}
	if frames > s[kind] {
		s[kind] = frames
	}
}

// Active reports whether kind has frames remaining.
func (s *StatusEffects) Active(kind EffectKind) bool {
	return kind < effectKindCount && s[kind] > 0
}

// Tick counts every active effect down by one frame and returns the kinds
// that expired on this frame.
func (s *StatusEffects) Tick() []EffectKind {
	var expired []EffectKind
	for k := range s {
		if s[k] == 0 {
			continue
		}
		s[k]--
		if s[k] == 0 {
			expired = append(expired, EffectKind(k))
		}
	}
	return expired
}

// Clear removes every effect.
func (s *StatusEffects) Clear() { *s = StatusEffects{} }

// Mask packs active effects into a bitset for snapshots.
func (s *StatusEffects) Mask() uint8 {
	var m uint8
	for k := range s {
		if s[k] > 0 {
			m |= 1 << k
		}
	}
	return m
}
