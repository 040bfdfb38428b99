// Package climate decides when indoor conditions override the geometric
// cover position.
//
// The overlay is pure: it takes one cycle's sensor snapshot plus the
// already-solved geometric position and returns the position to use and a
// control-method label for observability. Reading the sensors and choosing
// whether the overlay runs at all (climate.enabled) belongs to the control
// loop.
//
// Position semantics follow the rest of the system: 0 is fully closed,
// 100 fully open. Winter heat harvesting therefore opens the cover (100)
// and summer heat rejection closes it (0).
package climate

import (
	"strings"

	"github.com/nerrad567/solshade-core/internal/cover"
)

// Control-method labels emitted with every decision.
const (
	MethodIntermediate = "intermediate"
	MethodSummer       = "summer"
	MethodWinter       = "winter"
)

// Signals is a snapshot of the climate sensor readings for one cycle.
// Nil fields mean the sensor is unconfigured or its last value was
// unavailable; the overlay degrades rather than failing.
type Signals struct {
	InsideTemp  *float64
	OutsideTemp *float64
	Presence    *bool
	Weather     *string
}

// Decision is the overlay outcome for one group and cycle.
type Decision struct {
	Position float64
	Method   string
}

// Apply resolves the climate override for one group.
//
// geometric is the solver position for this cycle and sunValid reports
// whether it came from a projection formula (sun inside the daylight and
// field-of-view window) rather than a fallback.
//
// The room's occupancy splits the strategy: an empty room trades glare
// control for heat management (fully open in winter, fully closed in
// summer), while an occupied room keeps the glare-tracking geometric
// position and the overlay only relabels the method. A missing
// temperature reading disables the overlay for the cycle.
func Apply(cfg cover.Climate, sig Signals, geometric float64, sunValid bool) Decision {
	temp := sig.InsideTemp
	if cfg.UseOutsideTemp {
		temp = sig.OutsideTemp
	}
	if temp == nil {
		return Decision{Position: geometric, Method: MethodIntermediate}
	}

	isSummer := *temp > cfg.TempHigh
	isWinter := *temp < cfg.TempLow

	occupied := true
	if sig.Presence != nil {
		occupied = *sig.Presence
	}

	if !occupied {
		switch {
		case isWinter:
			return Decision{Position: 100, Method: MethodWinter}
		case isSummer:
			return Decision{Position: 0, Method: MethodSummer}
		default:
			return Decision{Position: geometric, Method: MethodIntermediate}
		}
	}

	if isSummer && isSunny(cfg, sig) && sunValid {
		return Decision{Position: geometric, Method: MethodSummer}
	}
	return Decision{Position: geometric, Method: MethodIntermediate}
}

// isSunny reports whether the weather reading allows the summer branch.
// An empty condition list or a missing weather feed never disables the
// overlay; only an explicit non-sunny condition does.
func isSunny(cfg cover.Climate, sig Signals) bool {
	if len(cfg.SunnyConditions) == 0 || sig.Weather == nil {
		return true
	}
	for _, condition := range cfg.SunnyConditions {
		if strings.EqualFold(condition, *sig.Weather) {
			return true
		}
	}
	return false
}
