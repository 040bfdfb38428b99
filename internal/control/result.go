package control

import (
	"time"

	"github.com/nerrad567/solshade-core/internal/cover"
)

// Result is the published outcome of one control cycle for one group. It
// is retained on solshade/result/{group} so late subscribers see the
// current state, kept for the REST surface, and recorded to history.
type Result struct {
	GroupID   string     `json:"group_id"`
	GroupName string     `json:"group_name"`
	Type      cover.Type `json:"type"`

	// State is the arbitrated primary value; DoubleState the secondary
	// roller value for double-roller groups.
	State       int  `json:"state"`
	DoubleState *int `json:"double_state,omitempty"`

	// ControlMethod records which strategy produced the value:
	// intermediate, summer or winter.
	ControlMethod string `json:"control_method"`

	// SunValid reports whether the sun was inside the daylight gate and
	// the field of view, i.e. whether State came from geometry rather
	// than a fallback.
	SunValid bool `json:"sun_valid"`

	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`

	// WindowStart and WindowEnd bound today's direct-sun period for the
	// facade; absent when the sun never enters the field of view.
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	AnyManualOverride bool     `json:"any_manual_override"`
	ManualDevices     []string `json:"manual_devices,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// Attributes exposes a group's configured defaults alongside the live
// dispatch bookkeeping, mirroring what an operator needs to understand
// why a device is (or is not) moving.
type Attributes struct {
	GroupID string     `json:"group_id"`
	Type    cover.Type `json:"type"`
	Devices []string   `json:"devices"`

	DefaultHeight  float64 `json:"default_height"`
	MaxPosition    float64 `json:"max_position"`
	SunsetPosition float64 `json:"sunset_position"`
	SunsetOffset   string  `json:"sunset_offset"`
	SunriseOffset  string  `json:"sunrise_offset"`
	Azimuth        float64 `json:"azimuth"`
	FOVLeft        float64 `json:"fov_left"`
	FOVRight       float64 `json:"fov_right"`
	MinChange      float64 `json:"min_change"`
	ClimateEnabled bool    `json:"climate_enabled"`

	// WaitingForTarget flags devices with a command in flight; TargetCall
	// holds what that command asked for. LastCommanded is the most recent
	// values this system sent, whether or not confirmed yet.
	WaitingForTarget map[string]bool    `json:"waiting_for_target"`
	TargetCall       map[string]Command `json:"target_call"`
	LastCommanded    map[string]Command `json:"last_commanded"`

	ManualControl map[string]bool      `json:"manual_control"`
	ManualSince   map[string]time.Time `json:"manual_since,omitempty"`
}

// newResult assembles the result object for one group's cycle outcome.
func newResult(group *cover.Group, target CoverTarget, method string, sunValid bool, day cover.Daylight, manual []string, at time.Time) Result {
	result := Result{
		GroupID:           group.ID,
		GroupName:         group.Name,
		Type:              group.Type,
		State:             target.Position,
		DoubleState:       target.Tilt,
		ControlMethod:     method,
		SunValid:          sunValid,
		Sunrise:           timePtr(day.Sunrise),
		Sunset:            timePtr(day.Sunset),
		AnyManualOverride: len(manual) > 0,
		ManualDevices:     manual,
		ComputedAt:        at,
	}
	if day.HasWindow {
		result.WindowStart = timePtr(day.WindowStart)
		result.WindowEnd = timePtr(day.WindowEnd)
	}
	return result
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
