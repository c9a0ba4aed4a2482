// Package combat owns the authoritative boss hit points of a raid.
package combat

import (
	"math"
	"time"
)

// Phase is the coarse lifecycle of the boss.
type Phase int

const (
	PhaseAlive Phase = iota
	PhaseDefeated
)

func (p Phase) String() string {
	switch p {
	case PhaseAlive:
		return "ALIVE"
	case PhaseDefeated:
		return "DEFEATED"
	default:
		return "UNKNOWN"
	}
}

// CombatState is an immutable snapshot of the shared boss.
type CombatState struct {
	HP          int
	MaxHP       int
	Phase       Phase
	LastUpdated time.Time
}

// Defeated reports whether the boss is at zero hit points.
func (s CombatState) Defeated() bool {
	return s.Phase == PhaseDefeated
}

func phaseFor(hp int) Phase {
	if hp == 0 {
		return PhaseDefeated
	}
	return PhaseAlive
}

// ClampDamage converts a client-declared damage value into the amount actually applied.
// Fractional values are floored after clamping so the result stays within [min, max].
func ClampDamage(declared float64, min, max int) int {
	if math.IsNaN(declared) {
		return min
	}
	clamped := math.Min(math.Max(declared, float64(min)), float64(max))
	return int(math.Floor(clamped))
}
