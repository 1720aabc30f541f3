package anticheat

import "time"

// Category groups violations so each kind escalates on its own.
type Category uint8

const (
	CategoryInput Category = iota + 1
	CategoryPosition
	CategoryState
	CategoryCombat
	categoryCount = CategoryCombat
)

// Categories lists every category in order.
func Categories() []Category {
	return []Category{CategoryInput, CategoryPosition, CategoryState, CategoryCombat}
}

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryPosition:
		return "position"
	case CategoryState:
		return "state"
	case CategoryCombat:
		return "combat"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Tier is the enforcement level a violation count has reached.
type Tier uint8

const (
	TierNone Tier = iota
	TierWarn
	TierKick
	TierBan
)

func (t Tier) String() string {
	switch t {
	case TierWarn:
		return "warn"
	case TierKick:
		return "kick"
	case TierBan:
		return "ban"
	default:
		return "none"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Thresholds map violation counts to tiers.
type Thresholds struct {
	WarnAt int
	KickAt int
	BanAt  int
}

func (th Thresholds) tierFor(count int) Tier {
	switch {
	case th.BanAt > 0 && count >= th.BanAt:
		return TierBan
	case th.KickAt > 0 && count >= th.KickAt:
		return TierKick
	case th.WarnAt > 0 && count >= th.WarnAt:
		return TierWarn
	default:
		return TierNone
	}
}

// ViolationRecord tracks one player's violations in one category.
type ViolationRecord struct {
	Category Category  `json:"category"`
	Count    int       `json:"count"`
	FirstAt  time.Time `json:"firstAt"`
	LastAt   time.Time `json:"lastAt"`
	Tier     Tier      `json:"tier"`
	Details  []string  `json:"details"`
}

// expired reports whether the record has gone quiet for longer than decay.
func (r *ViolationRecord) expired(now time.Time, decay time.Duration) bool {
	return r.Count > 0 && decay > 0 && now.Sub(r.LastAt) > decay
}

func (r *ViolationRecord) reset() {
	*r = ViolationRecord{Category: r.Category}
}

// add records one occurrence and returns the tier newly crossed, if any.
// Each tier fires once until the record decays.
func (r *ViolationRecord) add(reason string, now time.Time, th Thresholds, decay time.Duration, maxDetails int) Tier {
	if r.expired(now, decay) {
		r.reset()
	}
	if r.Count == 0 {
		r.FirstAt = now
	}
	r.Count++
	r.LastAt = now

	r.Details = append(r.Details, reason)
	if maxDetails > 0 && len(r.Details) > maxDetails {
		r.Details = append(r.Details[:0], r.Details[len(r.Details)-maxDetails:]...)
	}

	if tier := th.tierFor(r.Count); tier > r.Tier {
		r.Tier = tier
		return tier
	}
	return TierNone
}
