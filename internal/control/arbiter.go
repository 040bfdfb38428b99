package control

import (
	"math"

	"github.com/nerrad567/solshade-core/internal/cover"
)

// CoverTarget is the arbitrated command target for a group: the solver
// output converted to the integer percentages devices accept. Tilt is
// only set for double-roller groups, where it carries the secondary
// roller value.
type CoverTarget struct {
	Position int
	Tilt     *int
}

// Arbitrate turns a decided position (geometric or climate-overridden)
// and an optional secondary value into integer command values. Inversion
// is applied here and nowhere else: solvers always speak the 0=closed,
// 100=open convention, and groups facing hardware with the opposite
// sense flip each channel independently. Rounding is half away from
// zero; clamping runs after inversion so an inverted value can never
// escape the configured range.
//
// The primary value is whatever the solver family deems authoritative
// for the cover type. Mapping it onto wire channels happens at dispatch,
// not here.
func Arbitrate(position float64, tilt *float64, geo cover.Geometry, beh cover.Behaviour) CoverTarget {
	if beh.InversePosition {
		position = 100 - position
	}
	maxPos := int(math.Round(geo.MaxPosition))
	target := CoverTarget{
		Position: clampInt(int(math.Round(position)), 0, maxPos),
	}

	if tilt != nil {
		t := *tilt
		if beh.InverseTilt {
			t = 100 - t
		}
		rounded := clampInt(int(math.Round(t)), 0, 100)
		target.Tilt = &rounded
	}
	return target
}

// commandFor maps an arbitrated target onto the wire channels for a
// cover type. Vertical and horizontal covers move on the position
// channel; a tilt cover takes its value on the tilt channel; a double
// roller always drives the secondary screen (tilt channel) and the
// primary roller only when the toggle allows it.
func commandFor(typ cover.Type, doubleToggle bool, target CoverTarget) Command {
	var cmd Command
	switch typ {
	case cover.TypeVertical, cover.TypeHorizontal:
		pos := target.Position
		cmd.Position = &pos
	case cover.TypeTilt:
		tiltValue := target.Position
		cmd.Tilt = &tiltValue
	case cover.TypeDoubleRoller:
		if target.Tilt != nil {
			tiltValue := *target.Tilt
			cmd.Tilt = &tiltValue
		}
		if doubleToggle {
			pos := target.Position
			cmd.Position = &pos
		}
	}
	return cmd
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
