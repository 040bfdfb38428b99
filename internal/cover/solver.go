package cover

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/solshade-core/internal/solar"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Target is the raw solver output for one instant, before arbitration.
// Position is the authoritative primary-channel percentage (for tilt-only
// covers it carries the slat percentage, since that is the sole channel).
// Tilt is set only for double-roller covers and carries the secondary
// screen percentage. Valid reports whether the sun was inside the daylight
// window and the field of view, i.e. whether a projection formula (rather
// than a fallback) produced Position.
type Target struct {
	Position float64
	Tilt     *float64
	Valid    bool
}

// Solver converts a solar position into a raw cover target. Implementations
// are pure: identical inputs yield identical outputs, with no side effects.
//
// daylight reports whether the instant lies inside the group's daylight
// window (sunrise+offset .. sunset+offset); outside it the solver returns
// the configured sunset position unconditionally.
type Solver interface {
	Type() Type
	Compute(sun solar.SunPosition, daylight bool) Target
}

// NewSolver builds the solver variant for typ, validating that the
// geometry carries the measurements that variant needs.
func NewSolver(typ Type, geo Geometry) (Solver, error) {
	switch typ {
	case TypeVertical:
		if geo.Distance <= 0 || geo.WindowHeight <= 0 {
			return nil, fmt.Errorf("%w: vertical needs distance and window_height", ErrIncompleteGeometry)
		}
		return vertical{geo}, nil
	case TypeHorizontal:
		if geo.Distance <= 0 || geo.WindowHeight <= 0 || geo.AwningLength <= 0 {
			return nil, fmt.Errorf("%w: horizontal needs distance, window_height and awning_length", ErrIncompleteGeometry)
		}
		return horizontal{geo}, nil
	case TypeTilt:
		if geo.SlatDistance <= 0 || geo.SlatDepth <= 0 {
			return nil, fmt.Errorf("%w: tilt needs slat_distance and slat_depth", ErrIncompleteGeometry)
		}
		if !geo.TiltMode.IsValid() {
			return nil, fmt.Errorf("%w: tilt needs a tilt_mode", ErrIncompleteGeometry)
		}
		return tilt{geo}, nil
	case TypeDoubleRoller:
		if geo.Distance <= 0 || geo.WindowHeight <= 0 {
			return nil, fmt.Errorf("%w: double_roller needs distance and window_height", ErrIncompleteGeometry)
		}
		return doubleRoller{geo}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

// ─── Shared geometry ───

// inView resolves the surface azimuth and field-of-view test for geo.
func inView(geo Geometry, sun solar.SunPosition) (gamma float64, ok bool) {
	gamma = solar.SurfaceAzimuth(geo.Azimuth, sun.Azimuth)
	return gamma, solar.InView(gamma, sun.Elevation, geo.FOVLeft, geo.FOVRight)
}

// DefaultTarget returns the fallback target for a group whose geometry
// cannot support its solver: the sunset position at night, the default
// height during the day. The control cycle uses it instead of skipping
// the group entirely.
func DefaultTarget(geo Geometry, daylight bool) Target {
	return Target{Position: fallback(geo, daylight)}
}

// fallback returns the out-of-view or out-of-daylight position for geo.
func fallback(geo Geometry, daylight bool) float64 {
	if !daylight {
		return clamp(geo.SunsetPosition, 0, geo.MaxPosition)
	}
	return clamp(geo.DefaultHeight, 0, geo.MaxPosition)
}

// uncoveredHeight is the height, from the sill upward, that direct sun may
// leave exposed: the beam entering at the lower blind edge must strike the
// floor within geo.Distance of the facade. Shared by the vertical and
// double-roller variants.
func uncoveredHeight(geo Geometry, sun solar.SunPosition, gamma float64) float64 {
	h := geo.Distance * math.Tan(sun.Elevation*degToRad) / math.Cos(gamma*degToRad)
	return clamp(h, 0, geo.WindowHeight)
}

// ─── Vertical ───

type vertical struct {
	geo Geometry
}

func (vertical) Type() Type { return TypeVertical }

func (c vertical) Compute(sun solar.SunPosition, daylight bool) Target {
	if !daylight {
		return Target{Position: fallback(c.geo, false)}
	}
	gamma, ok := inView(c.geo, sun)
	if !ok {
		return Target{Position: fallback(c.geo, true)}
	}
	pct := uncoveredHeight(c.geo, sun, gamma) / c.geo.WindowHeight * 100
	return Target{Position: clamp(pct, 0, c.geo.MaxPosition), Valid: true}
}

// ─── Horizontal (awning) ───

type horizontal struct {
	geo Geometry
}

func (horizontal) Type() Type { return TypeHorizontal }

// Compute projects the shadow cast by the awning onto the facade and
// returns the fabric extension, as a percentage of the full awning length,
// needed to shade everything below the glare line.
func (c horizontal) Compute(sun solar.SunPosition, daylight bool) Target {
	if !daylight {
		return Target{Position: fallback(c.geo, false)}
	}
	gamma, ok := inView(c.geo, sun)
	if !ok {
		return Target{Position: fallback(c.geo, true)}
	}

	// Triangle between awning fabric, facade and the sun ray through the
	// fabric's outer edge: mounting angle and solar elevation fix the
	// third angle.
	mount := 90 - c.geo.AwningAngle
	ray := 90 - sun.Elevation
	third := 180 - mount - ray

	shaded := c.geo.WindowHeight - uncoveredHeight(c.geo, sun, gamma)
	length := shaded * math.Sin(ray*degToRad) / math.Sin(third*degToRad)

	pct := length / c.geo.AwningLength * 100
	return Target{Position: clamp(pct, 0, c.geo.MaxPosition), Valid: true}
}

// ─── Tilt (venetian) ───

type tilt struct {
	geo Geometry
}

func (tilt) Type() Type { return TypeTilt }

// Compute returns the slat angle, mapped onto a percentage per the tilt
// mode, that just blocks the direct beam: the cut-off condition for slats
// of depth w spaced d apart under a profile angle beta.
func (c tilt) Compute(sun solar.SunPosition, daylight bool) Target {
	if !daylight {
		return Target{Position: fallback(c.geo, false)}
	}
	gamma, ok := inView(c.geo, sun)
	if !ok {
		return Target{Position: fallback(c.geo, true)}
	}

	beta := math.Atan(math.Tan(sun.Elevation*degToRad) / math.Cos(gamma*degToRad))
	dw := c.geo.SlatDistance / c.geo.SlatDepth

	// Discriminant goes negative when the spacing exceeds the slat depth
	// enough that no angle fully cuts the beam off; bound it at zero and
	// accept the closest achievable angle.
	disc := math.Tan(beta)*math.Tan(beta) - dw*dw + 1
	if disc < 0 {
		disc = 0
	}
	slat := 2 * math.Atan((math.Tan(beta)+math.Sqrt(disc))/(1+dw)) * radToDeg

	span := 90.0
	if c.geo.TiltMode == TiltModeBidirectional {
		span = 180
	}
	pct := slat / span * 100
	return Target{Position: clamp(pct, 0, c.geo.MaxPosition), Valid: true}
}

// ─── Double roller ───

type doubleRoller struct {
	geo Geometry
}

func (doubleRoller) Type() Type { return TypeDoubleRoller }

// Compute runs the vertical projection for the primary roller and derives
// the secondary screen value as the sunlit remainder of the pane
// (100 - primary). The secondary rides on the tilt channel.
func (c doubleRoller) Compute(sun solar.SunPosition, daylight bool) Target {
	primary := vertical{c.geo}.Compute(sun, daylight)
	secondary := clamp(100-primary.Position, 0, 100)
	primary.Tilt = &secondary
	return primary
}

// ─── Daylight window helpers ───

// Daylight describes one calendar day's gating for a group: the raw rise
// and set instants, the offset-adjusted gate, and the direct-sun window
// within the field of view. A polar day leaves the gate open for the whole
// day; a polar night keeps it shut.
type Daylight struct {
	Sunrise time.Time
	Sunset  time.Time

	GateOpen  time.Time
	GateClose time.Time

	// WindowStart and WindowEnd bound the direct-sun period for the
	// facade; zero when HasWindow is false.
	WindowStart time.Time
	WindowEnd   time.Time
	HasWindow   bool

	PolarDay   bool
	PolarNight bool
}

// NewDaylight computes the daylight gating for the calendar date of now
// (interpreted in now's location) at the given coordinates.
func NewDaylight(now time.Time, latitude, longitude float64, geo Geometry) Daylight {
	var d Daylight

	rise, set := solar.RiseSet(now, latitude, longitude)
	if rise.IsZero() || set.IsZero() {
		if solar.PolarDay(now, latitude, longitude) {
			d.PolarDay = true
		} else {
			d.PolarNight = true
		}
	} else {
		d.Sunrise = rise.In(now.Location())
		d.Sunset = set.In(now.Location())
		d.GateOpen = d.Sunrise.Add(geo.SunriseOffset)
		d.GateClose = d.Sunset.Add(geo.SunsetOffset)
	}

	start, end, ok := solar.DirectSunWindow(now, latitude, longitude,
		geo.Azimuth, geo.FOVLeft, geo.FOVRight)
	d.WindowStart, d.WindowEnd, d.HasWindow = start, end, ok

	return d
}

// Contains reports whether t lies inside the daylight gate.
func (d Daylight) Contains(t time.Time) bool {
	if d.PolarDay {
		return true
	}
	if d.PolarNight {
		return false
	}
	return !t.Before(d.GateOpen) && !t.After(d.GateClose)
}

// clamp bounds v to [lo, hi]. NaN collapses to lo so a degenerate geometry
// cannot leak through to a command value.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
