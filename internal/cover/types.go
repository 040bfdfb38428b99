package cover

import (
	"time"
)

// Type identifies the shading mechanism a group of devices shares. It is a
// closed set: the solver family switches on it and unknown values are
// rejected at configuration load.
type Type string

// Cover types.
const (
	// TypeVertical is a roller blind or curtain moving vertically in the
	// window plane.
	TypeVertical Type = "vertical"

	// TypeHorizontal is an awning projecting outward over the facade.
	TypeHorizontal Type = "horizontal"

	// TypeTilt is a venetian blind whose slat angle is the only controlled
	// channel.
	TypeTilt Type = "tilt"

	// TypeDoubleRoller is a pair of rollers on one window: a primary
	// (usually blackout) roller plus a secondary screen roller reported on
	// the tilt channel.
	TypeDoubleRoller Type = "double_roller"
)

// AllTypes returns every valid cover type.
func AllTypes() []Type {
	return []Type{TypeVertical, TypeHorizontal, TypeTilt, TypeDoubleRoller}
}

// IsValid reports whether t is a known cover type.
func (t Type) IsValid() bool {
	switch t {
	case TypeVertical, TypeHorizontal, TypeTilt, TypeDoubleRoller:
		return true
	}
	return false
}

// UsesTiltChannel reports whether devices of this type report and accept
// values on the tilt channel.
func (t Type) UsesTiltChannel() bool {
	return t == TypeTilt || t == TypeDoubleRoller
}

// TiltMode selects the slat angle convention for tilt covers.
type TiltMode string

// Tilt modes.
const (
	// TiltModeSingle maps the slat angle onto 0-90 degrees (slats close in
	// one direction only).
	TiltModeSingle TiltMode = "single"

	// TiltModeBidirectional maps the slat angle onto 0-180 degrees (slats
	// swing through horizontal and close both ways).
	TiltModeBidirectional TiltMode = "bidirectional"
)

// IsValid reports whether m is a known tilt mode.
func (m TiltMode) IsValid() bool {
	return m == TiltModeSingle || m == TiltModeBidirectional
}

// Geometry holds the static window and device measurements a solver needs,
// fully resolved: fallback defaulting (sunrise offset inheriting the sunset
// offset) has already been applied at load time. Instances are treated as
// immutable once built.
type Geometry struct {
	// Azimuth is the facade facing direction in degrees from true north.
	Azimuth float64 `json:"azimuth"`

	// FOVLeft and FOVRight bound the field of view either side of the
	// facade normal, in degrees. Asymmetric windows are allowed; each side
	// is capped at 90 degrees when solving.
	FOVLeft  float64 `json:"fov_left"`
	FOVRight float64 `json:"fov_right"`

	// DefaultHeight is the position percentage used while the sun is up but
	// outside the field of view.
	DefaultHeight float64 `json:"default_height"`

	// MaxPosition caps the primary channel, percent.
	MaxPosition float64 `json:"max_position"`

	// SunsetPosition is the position percentage used outside the daylight
	// window (night and polar-night days).
	SunsetPosition float64 `json:"sunset_position"`

	// SunsetOffset shifts the close of the daylight window relative to
	// sunset; SunriseOffset shifts its opening relative to sunrise.
	SunsetOffset  time.Duration `json:"sunset_offset"`
	SunriseOffset time.Duration `json:"sunrise_offset"`

	// Distance is the horizontal depth, in metres, sunlight may penetrate
	// before it is considered glare. WindowHeight is the glazed height in
	// metres. Used by vertical and double-roller covers.
	Distance     float64 `json:"distance"`
	WindowHeight float64 `json:"window_height"`

	// AwningLength is the full extension of the awning fabric in metres;
	// AwningAngle its downward mounting angle in degrees. Horizontal only.
	AwningLength float64 `json:"awning_length"`
	AwningAngle  float64 `json:"awning_angle"`

	// SlatDistance is the spacing between slats and SlatDepth the slat
	// width, in the same unit. TiltMode picks the angle convention. Tilt
	// only.
	SlatDistance float64  `json:"slat_distance"`
	SlatDepth    float64  `json:"slat_depth"`
	TiltMode     TiltMode `json:"tilt_mode"`

	// DoubleToggle enables commanding the primary roller of a double-roller
	// pair; when false only the secondary (tilt channel) is driven.
	DoubleToggle bool `json:"double_toggle"`
}

// Behaviour holds the dispatch and override tuning for a cover group.
type Behaviour struct {
	// MinChange is the smallest position delta, in percent points, worth
	// sending a command for.
	MinChange float64 `json:"min_change"`

	// MinTimeDelta is the shortest interval between two commands to the
	// same device.
	MinTimeDelta time.Duration `json:"min_time_delta"`

	// StartMinutes and EndMinutes bound the daily dispatch window as
	// minutes from local midnight; -1 means unbounded on that side.
	StartMinutes int `json:"start_minutes"`
	EndMinutes   int `json:"end_minutes"`

	// ManualReset is how long a manual override suppresses automatic
	// control. ManualAllowReset restarts that window on every further
	// manual adjustment instead of measuring from the first one.
	ManualReset      time.Duration `json:"manual_reset"`
	ManualAllowReset bool          `json:"manual_allow_reset"`

	// InversePosition and InverseTilt flip the respective channel
	// (100 - value) for installations with reversed travel conventions.
	InversePosition bool `json:"inverse_position"`
	InverseTilt     bool `json:"inverse_tilt"`
}

// Climate holds the per-group climate strategy wiring. Sensor fields name
// sensors on the solshade/state/sensor/{id} topics; empty means
// unconfigured.
type Climate struct {
	Enabled bool `json:"enabled"`

	InsideTempSensor  string `json:"inside_temp_sensor"`
	OutsideTempSensor string `json:"outside_temp_sensor"`
	UseOutsideTemp    bool   `json:"use_outside_temp"`

	TempLow  float64 `json:"temp_low"`
	TempHigh float64 `json:"temp_high"`

	PresenceSensor string `json:"presence_sensor"`

	WeatherSensor string `json:"weather_sensor"`
	// SunnyConditions lists weather states under which glare control is
	// worthwhile; empty treats every condition as sunny.
	SunnyConditions []string `json:"sunny_conditions"`
}

// Group is one configured cover group: a shared window geometry and
// strategy applied to one or more physical devices. Resolved and validated
// at load; treated as immutable by the control cycle.
type Group struct {
	ID      string
	Name    string
	Type    Type
	Enabled bool

	// Devices lists the MQTT device identifiers driven by this group.
	Devices []string

	Geometry  Geometry
	Behaviour Behaviour
	Climate   Climate

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeepCopy returns an independent copy of the group, so registry callers
// can mutate their view without corrupting the cache.
func (g *Group) DeepCopy() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Devices = append([]string(nil), g.Devices...)
	out.Climate.SunnyConditions = append([]string(nil), g.Climate.SunnyConditions...)
	return &out
}
