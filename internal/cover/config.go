package cover

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to group settings left unset in the covers file.
const (
	// DefaultFOV is the per-side field of view in degrees.
	DefaultFOV = 90.0

	// DefaultHeightPercent is the position used when the sun is up but out
	// of view.
	DefaultHeightPercent = 60.0

	// DefaultMaxPosition is the primary channel cap.
	DefaultMaxPosition = 100.0

	// DefaultMinChange is the smallest dispatch-worthy delta in percent.
	DefaultMinChange = 1.0

	// DefaultMinTimeDelta is the shortest interval between commands.
	DefaultMinTimeDelta = 2 * time.Minute

	// DefaultManualReset is how long manual overrides suppress automation.
	DefaultManualReset = 15 * time.Minute
)

// GroupsFile is the root of the covers configuration file. The file seeds
// the cover registry on startup; groups edited at runtime through the API
// are preserved across restarts by the repository, not this file.
type GroupsFile struct {
	Groups []GroupConfig `yaml:"groups"`
}

// GroupConfig is the YAML shape of one cover group. Optional numeric
// fields use pointers so an explicit zero survives defaulting. The API
// speaks the same dialect (JSON tags), so file-seeded and API-edited
// groups go through identical resolution.
type GroupConfig struct {
	// ID uniquely identifies the group. Required.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable label. Defaults to the ID.
	Name string `yaml:"name" json:"name"`

	// Type is the cover type: vertical, horizontal, tilt, double_roller.
	Type string `yaml:"type" json:"type"`

	// Enabled gates the whole group. Default: true.
	Enabled *bool `yaml:"enabled" json:"enabled"`

	// Devices lists the MQTT device identifiers the group drives.
	// At least one is required.
	Devices []string `yaml:"devices" json:"devices"`

	Window    WindowSettings    `yaml:"window" json:"window"`
	Behaviour BehaviourSettings `yaml:"behaviour" json:"behaviour"`
	Climate   ClimateSettings   `yaml:"climate" json:"climate"`
}

// WindowSettings is the YAML shape of the window and device geometry.
type WindowSettings struct {
	// Azimuth is the facade facing direction in degrees. Required.
	Azimuth *float64 `yaml:"azimuth" json:"azimuth"`

	// FOVLeft and FOVRight bound the field of view per side (degrees).
	// Default: 90 each.
	FOVLeft  *float64 `yaml:"fov_left" json:"fov_left"`
	FOVRight *float64 `yaml:"fov_right" json:"fov_right"`

	// DefaultHeight is the out-of-view position percent. Default: 60.
	DefaultHeight *float64 `yaml:"default_height" json:"default_height"`

	// MaxPosition caps the primary channel percent. Default: 100.
	MaxPosition *float64 `yaml:"max_position" json:"max_position"`

	// SunsetPosition is the night position percent. Default: 0.
	SunsetPosition float64 `yaml:"sunset_position" json:"sunset_position"`

	// SunsetOffset and SunriseOffset shift the daylight gate, as Go
	// durations ("30m", "-15m"). SunriseOffset defaults to SunsetOffset.
	SunsetOffset  string `yaml:"sunset_offset" json:"sunset_offset"`
	SunriseOffset string `yaml:"sunrise_offset" json:"sunrise_offset"`

	// Distance and WindowHeight (metres): vertical and double-roller.
	Distance     float64 `yaml:"distance" json:"distance"`
	WindowHeight float64 `yaml:"window_height" json:"window_height"`

	// AwningLength (metres) and AwningAngle (degrees): horizontal.
	AwningLength float64 `yaml:"awning_length" json:"awning_length"`
	AwningAngle  float64 `yaml:"awning_angle" json:"awning_angle"`

	// SlatDistance and SlatDepth (same unit) and TiltMode
	// (single or bidirectional): tilt.
	SlatDistance float64 `yaml:"slat_distance" json:"slat_distance"`
	SlatDepth    float64 `yaml:"slat_depth" json:"slat_depth"`
	TiltMode     string  `yaml:"tilt_mode" json:"tilt_mode"`

	// DoubleToggle also drives the primary roller of a double-roller pair.
	DoubleToggle bool `yaml:"double_toggle" json:"double_toggle"`
}

// BehaviourSettings is the YAML shape of dispatch and override tuning.
type BehaviourSettings struct {
	// MinChange in percent points. Default: 1.
	MinChange *float64 `yaml:"min_change" json:"min_change"`

	// MinTimeDelta as a Go duration. Default: "2m".
	MinTimeDelta string `yaml:"min_time_delta" json:"min_time_delta"`

	// StartTime and EndTime bound the dispatch day as "HH:MM" local
	// clock times. Empty means unbounded.
	StartTime string `yaml:"start_time" json:"start_time"`
	EndTime   string `yaml:"end_time" json:"end_time"`

	// ManualReset as a Go duration. Default: "15m".
	ManualReset string `yaml:"manual_reset" json:"manual_reset"`

	// ManualAllowReset restarts the override window on every deviation.
	ManualAllowReset bool `yaml:"manual_allow_reset" json:"manual_allow_reset"`

	// InversePosition and InverseTilt flip the respective channels.
	InversePosition bool `yaml:"inverse_position" json:"inverse_position"`
	InverseTilt     bool `yaml:"inverse_tilt" json:"inverse_tilt"`
}

// ClimateSettings is the YAML shape of the climate strategy.
type ClimateSettings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	InsideTempSensor  string `yaml:"inside_temp_sensor" json:"inside_temp_sensor"`
	OutsideTempSensor string `yaml:"outside_temp_sensor" json:"outside_temp_sensor"`
	UseOutsideTemp    bool   `yaml:"use_outside_temp" json:"use_outside_temp"`

	TempLow  float64 `yaml:"temp_low" json:"temp_low"`
	TempHigh float64 `yaml:"temp_high" json:"temp_high"`

	PresenceSensor string `yaml:"presence_sensor" json:"presence_sensor"`

	WeatherSensor   string   `yaml:"weather_sensor" json:"weather_sensor"`
	SunnyConditions []string `yaml:"sunny_conditions" json:"sunny_conditions"`
}

// LoadGroups reads and resolves the covers file at path.
//
// Each group is validated and its fallback defaulting applied (sunrise
// offset inheriting the sunset offset, field-of-view and dispatch
// defaults), so every returned Group is fully populated and immutable.
// All validation failures across the file are reported together.
func LoadGroups(path string) ([]*Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading covers file: %w", err)
	}

	var file GroupsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing covers file: %w", err)
	}

	return ResolveGroups(file.Groups)
}

// ResolveGroups validates and resolves raw group configs into runtime
// groups. Exposed separately so API-driven edits share the same rules as
// the seed file.
func ResolveGroups(configs []GroupConfig) ([]*Group, error) {
	var errs []string
	seen := make(map[string]bool)
	groups := make([]*Group, 0, len(configs))

	for i, gc := range configs {
		if gc.ID == "" {
			errs = append(errs, fmt.Sprintf("groups[%d].id is required", i))
			continue
		}
		if seen[gc.ID] {
			errs = append(errs, fmt.Sprintf("groups[%d].id %q is duplicate", i, gc.ID))
			continue
		}
		seen[gc.ID] = true

		group, groupErrs := gc.Resolve()
		if len(groupErrs) > 0 {
			for _, e := range groupErrs {
				errs = append(errs, fmt.Sprintf("groups[%d] %q: %s", i, gc.ID, e))
			}
			continue
		}
		groups = append(groups, group)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGroup, strings.Join(errs, "; "))
	}
	return groups, nil
}

// Resolve validates gc and produces the fully-populated runtime group.
// Returned errors are human-readable fragments, one per problem.
func (gc GroupConfig) Resolve() (*Group, []string) {
	var errs []string

	typ := Type(gc.Type)
	if !typ.IsValid() {
		errs = append(errs, fmt.Sprintf("type %q is invalid (use vertical, horizontal, tilt or double_roller)", gc.Type))
	}
	if len(gc.Devices) == 0 {
		errs = append(errs, "devices must list at least one device id")
	}
	for j, d := range gc.Devices {
		if d == "" {
			errs = append(errs, fmt.Sprintf("devices[%d] is empty", j))
		}
	}

	geo, geoErrs := gc.Window.resolve()
	errs = append(errs, geoErrs...)

	beh, behErrs := gc.Behaviour.resolve()
	errs = append(errs, behErrs...)

	cli, cliErrs := gc.Climate.resolve()
	errs = append(errs, cliErrs...)

	if len(errs) == 0 {
		// Dry-run the solver so a group missing variant measurements is
		// rejected at load rather than at the first cycle.
		if _, err := NewSolver(typ, geo); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	name := gc.Name
	if name == "" {
		name = gc.ID
	}
	enabled := true
	if gc.Enabled != nil {
		enabled = *gc.Enabled
	}

	return &Group{
		ID:        gc.ID,
		Name:      name,
		Type:      typ,
		Enabled:   enabled,
		Devices:   append([]string(nil), gc.Devices...),
		Geometry:  geo,
		Behaviour: beh,
		Climate:   cli,
	}, nil
}

func (w WindowSettings) resolve() (Geometry, []string) {
	var errs []string
	geo := Geometry{
		FOVLeft:        DefaultFOV,
		FOVRight:       DefaultFOV,
		DefaultHeight:  DefaultHeightPercent,
		MaxPosition:    DefaultMaxPosition,
		SunsetPosition: w.SunsetPosition,
		Distance:       w.Distance,
		WindowHeight:   w.WindowHeight,
		AwningLength:   w.AwningLength,
		AwningAngle:    w.AwningAngle,
		SlatDistance:   w.SlatDistance,
		SlatDepth:      w.SlatDepth,
		TiltMode:       TiltMode(w.TiltMode),
		DoubleToggle:   w.DoubleToggle,
	}

	if w.Azimuth == nil {
		errs = append(errs, "window.azimuth is required")
	} else if *w.Azimuth < 0 || *w.Azimuth >= 360 {
		errs = append(errs, fmt.Sprintf("window.azimuth %v must be within [0, 360)", *w.Azimuth))
	} else {
		geo.Azimuth = *w.Azimuth
	}

	if w.FOVLeft != nil {
		geo.FOVLeft = *w.FOVLeft
	}
	if w.FOVRight != nil {
		geo.FOVRight = *w.FOVRight
	}
	if geo.FOVLeft < 0 || geo.FOVRight < 0 {
		errs = append(errs, "window.fov_left and window.fov_right must not be negative")
	}

	if w.DefaultHeight != nil {
		geo.DefaultHeight = *w.DefaultHeight
	}
	if w.MaxPosition != nil {
		geo.MaxPosition = *w.MaxPosition
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"window.default_height", geo.DefaultHeight},
		{"window.max_position", geo.MaxPosition},
		{"window.sunset_position", geo.SunsetPosition},
	} {
		if p.value < 0 || p.value > 100 {
			errs = append(errs, fmt.Sprintf("%s %v must be within [0, 100]", p.name, p.value))
		}
	}

	var err error
	geo.SunsetOffset, err = parseOptionalDuration(w.SunsetOffset, 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("window.sunset_offset %q is invalid: %v", w.SunsetOffset, err))
	}
	// Sunrise offset inherits the sunset offset when unset. Resolved here,
	// once, so nothing downstream re-derives it.
	geo.SunriseOffset, err = parseOptionalDuration(w.SunriseOffset, geo.SunsetOffset)
	if err != nil {
		errs = append(errs, fmt.Sprintf("window.sunrise_offset %q is invalid: %v", w.SunriseOffset, err))
	}

	if w.TiltMode != "" && !geo.TiltMode.IsValid() {
		errs = append(errs, fmt.Sprintf("window.tilt_mode %q is invalid (use single or bidirectional)", w.TiltMode))
	}

	return geo, errs
}

func (b BehaviourSettings) resolve() (Behaviour, []string) {
	var errs []string
	beh := Behaviour{
		MinChange:        DefaultMinChange,
		MinTimeDelta:     DefaultMinTimeDelta,
		StartMinutes:     -1,
		EndMinutes:       -1,
		ManualReset:      DefaultManualReset,
		ManualAllowReset: b.ManualAllowReset,
		InversePosition:  b.InversePosition,
		InverseTilt:      b.InverseTilt,
	}

	if b.MinChange != nil {
		beh.MinChange = *b.MinChange
	}
	if beh.MinChange < 0 {
		errs = append(errs, "behaviour.min_change must not be negative")
	}

	var err error
	beh.MinTimeDelta, err = parseOptionalDuration(b.MinTimeDelta, DefaultMinTimeDelta)
	if err != nil {
		errs = append(errs, fmt.Sprintf("behaviour.min_time_delta %q is invalid: %v", b.MinTimeDelta, err))
	}
	if beh.MinTimeDelta < 0 {
		errs = append(errs, "behaviour.min_time_delta must not be negative")
	}

	beh.ManualReset, err = parseOptionalDuration(b.ManualReset, DefaultManualReset)
	if err != nil {
		errs = append(errs, fmt.Sprintf("behaviour.manual_reset %q is invalid: %v", b.ManualReset, err))
	}
	if beh.ManualReset <= 0 {
		errs = append(errs, "behaviour.manual_reset must be positive")
	}

	if b.StartTime != "" {
		if beh.StartMinutes, err = parseClock(b.StartTime); err != nil {
			errs = append(errs, fmt.Sprintf("behaviour.start_time %q is invalid: %v", b.StartTime, err))
		}
	}
	if b.EndTime != "" {
		if beh.EndMinutes, err = parseClock(b.EndTime); err != nil {
			errs = append(errs, fmt.Sprintf("behaviour.end_time %q is invalid: %v", b.EndTime, err))
		}
	}
	if beh.StartMinutes >= 0 && beh.EndMinutes >= 0 && beh.EndMinutes <= beh.StartMinutes {
		errs = append(errs, "behaviour.end_time must be after behaviour.start_time")
	}

	return beh, errs
}

func (c ClimateSettings) resolve() (Climate, []string) {
	var errs []string
	cli := Climate{
		Enabled:           c.Enabled,
		InsideTempSensor:  c.InsideTempSensor,
		OutsideTempSensor: c.OutsideTempSensor,
		UseOutsideTemp:    c.UseOutsideTemp,
		TempLow:           c.TempLow,
		TempHigh:          c.TempHigh,
		PresenceSensor:    c.PresenceSensor,
		WeatherSensor:     c.WeatherSensor,
		SunnyConditions:   append([]string(nil), c.SunnyConditions...),
	}

	if !c.Enabled {
		return cli, nil
	}

	if c.InsideTempSensor == "" && c.OutsideTempSensor == "" {
		errs = append(errs, "climate.enabled needs inside_temp_sensor or outside_temp_sensor")
	}
	if c.UseOutsideTemp && c.OutsideTempSensor == "" {
		errs = append(errs, "climate.use_outside_temp needs outside_temp_sensor")
	}
	if c.TempLow >= c.TempHigh {
		errs = append(errs, fmt.Sprintf("climate.temp_low %v must be below temp_high %v", c.TempLow, c.TempHigh))
	}

	return cli, errs
}

// ConfigFromGroup renders a resolved group back into its config shape,
// with every default made explicit. The API uses it both to expose groups
// in the covers-file dialect and as the base for partial edits, so an
// edited group re-enters Resolve with all untouched settings intact.
func ConfigFromGroup(g *Group) GroupConfig {
	enabled := g.Enabled
	azimuth := g.Geometry.Azimuth
	fovLeft := g.Geometry.FOVLeft
	fovRight := g.Geometry.FOVRight
	defaultHeight := g.Geometry.DefaultHeight
	maxPosition := g.Geometry.MaxPosition
	minChange := g.Behaviour.MinChange

	return GroupConfig{
		ID:      g.ID,
		Name:    g.Name,
		Type:    string(g.Type),
		Enabled: &enabled,
		Devices: append([]string(nil), g.Devices...),
		Window: WindowSettings{
			Azimuth:        &azimuth,
			FOVLeft:        &fovLeft,
			FOVRight:       &fovRight,
			DefaultHeight:  &defaultHeight,
			MaxPosition:    &maxPosition,
			SunsetPosition: g.Geometry.SunsetPosition,
			SunsetOffset:   g.Geometry.SunsetOffset.String(),
			SunriseOffset:  g.Geometry.SunriseOffset.String(),
			Distance:       g.Geometry.Distance,
			WindowHeight:   g.Geometry.WindowHeight,
			AwningLength:   g.Geometry.AwningLength,
			AwningAngle:    g.Geometry.AwningAngle,
			SlatDistance:   g.Geometry.SlatDistance,
			SlatDepth:      g.Geometry.SlatDepth,
			TiltMode:       string(g.Geometry.TiltMode),
			DoubleToggle:   g.Geometry.DoubleToggle,
		},
		Behaviour: BehaviourSettings{
			MinChange:        &minChange,
			MinTimeDelta:     g.Behaviour.MinTimeDelta.String(),
			StartTime:        formatClock(g.Behaviour.StartMinutes),
			EndTime:          formatClock(g.Behaviour.EndMinutes),
			ManualReset:      g.Behaviour.ManualReset.String(),
			ManualAllowReset: g.Behaviour.ManualAllowReset,
			InversePosition:  g.Behaviour.InversePosition,
			InverseTilt:      g.Behaviour.InverseTilt,
		},
		Climate: ClimateSettings{
			Enabled:           g.Climate.Enabled,
			InsideTempSensor:  g.Climate.InsideTempSensor,
			OutsideTempSensor: g.Climate.OutsideTempSensor,
			UseOutsideTemp:    g.Climate.UseOutsideTemp,
			TempLow:           g.Climate.TempLow,
			TempHigh:          g.Climate.TempHigh,
			PresenceSensor:    g.Climate.PresenceSensor,
			WeatherSensor:     g.Climate.WeatherSensor,
			SunnyConditions:   append([]string(nil), g.Climate.SunnyConditions...),
		},
	}
}

// DeviceIndex maps every device identifier to its owning group ID.
func DeviceIndex(groups []*Group) map[string]string {
	idx := make(map[string]string)
	for _, g := range groups {
		for _, d := range g.Devices {
			idx[d] = g.ID
		}
	}
	return idx
}

// parseOptionalDuration parses s as a Go duration, returning fallback for
// the empty string.
func parseOptionalDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// formatClock renders minutes from midnight as "HH:MM"; negative values
// (unbounded) render as the empty string.
func formatClock(minutes int) string {
	if minutes < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// parseClock parses "HH:MM" into minutes from midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %q out of range", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute %q out of range", parts[1])
	}
	return h*60 + m, nil
}
