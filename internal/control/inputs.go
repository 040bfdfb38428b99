package control

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/solshade-core/internal/climate"
	"github.com/nerrad567/solshade-core/internal/cover"
)

// SensorReading is one retained sensor value with the moment it was
// reported.
type SensorReading struct {
	Value     any
	UpdatedAt time.Time
}

// SensorStore keeps the latest reading per sensor. Readings older than
// maxAge are treated as unavailable, so a dead temperature feed degrades
// the climate overlay instead of steering it with hours-old data.
type SensorStore struct {
	mu       sync.RWMutex
	readings map[string]SensorReading

	maxAge time.Duration
	now    func() time.Time
}

// NewSensorStore creates a sensor store. maxAge of zero disables staleness
// checks.
func NewSensorStore(maxAge time.Duration) *SensorStore {
	return &SensorStore{
		readings: make(map[string]SensorReading),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Set records a reading. A zero reported time falls back to the wall
// clock, for feeds that do not timestamp their payloads.
func (s *SensorStore) Set(id string, value any, reportedAt time.Time) {
	if reportedAt.IsZero() {
		reportedAt = s.now()
	}
	s.mu.Lock()
	s.readings[id] = SensorReading{Value: value, UpdatedAt: reportedAt}
	s.mu.Unlock()
}

// Get returns the reading for a sensor, if present and fresh.
func (s *SensorStore) Get(id string) (SensorReading, bool) {
	s.mu.RLock()
	reading, ok := s.readings[id]
	s.mu.RUnlock()
	if !ok {
		return SensorReading{}, false
	}
	if s.maxAge > 0 && s.now().Sub(reading.UpdatedAt) > s.maxAge {
		return SensorReading{}, false
	}
	return reading, true
}

// Float returns a sensor's value coerced to a number, or nil when the
// sensor is missing, stale or non-numeric.
func (s *SensorStore) Float(id string) *float64 {
	reading, ok := s.Get(id)
	if !ok {
		return nil
	}
	switch v := reading.Value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// String returns a sensor's value as a string, or nil when missing or
// stale.
func (s *SensorStore) String(id string) *string {
	reading, ok := s.Get(id)
	if !ok {
		return nil
	}
	switch v := reading.Value.(type) {
	case string:
		return &v
	case float64:
		str := strconv.FormatFloat(v, 'f', -1, 64)
		return &str
	case bool:
		str := strconv.FormatBool(v)
		return &str
	}
	return nil
}

// Bool returns a sensor's value coerced to a presence-style boolean, or
// nil when the sensor is missing, stale or unrecognised. Accepted truthy
// forms cover the common occupancy feeds: true, "on", "home", "occupied",
// "detected" and any non-zero number.
func (s *SensorStore) Bool(id string) *bool {
	reading, ok := s.Get(id)
	if !ok {
		return nil
	}
	switch v := reading.Value.(type) {
	case bool:
		return &v
	case float64:
		b := v != 0
		return &b
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "home", "occupied", "detected", "present", "1":
			b := true
			return &b
		case "false", "off", "away", "unoccupied", "clear", "absent", "0":
			b := false
			return &b
		}
	}
	return nil
}

// ClimateSignals assembles the overlay inputs for a group from whatever
// sensors its climate block names. Unconfigured or unavailable sensors
// come back nil, which the overlay treats as its own degraded cases.
func (s *SensorStore) ClimateSignals(cfg cover.Climate) climate.Signals {
	var sig climate.Signals
	if cfg.InsideTempSensor != "" {
		sig.InsideTemp = s.Float(cfg.InsideTempSensor)
	}
	if cfg.OutsideTempSensor != "" {
		sig.OutsideTemp = s.Float(cfg.OutsideTempSensor)
	}
	if cfg.PresenceSensor != "" {
		sig.Presence = s.Bool(cfg.PresenceSensor)
	}
	if cfg.WeatherSensor != "" {
		sig.Weather = s.String(cfg.WeatherSensor)
	}
	return sig
}

// Len returns the number of sensors with a stored reading, fresh or not.
func (s *SensorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// CoverState is the latest reported channel values for one device.
// Channels the device never reports stay nil.
type CoverState struct {
	Position  *float64
	Tilt      *float64
	UpdatedAt time.Time
}

// StateEvent is one cover state change queued for the next cycle.
type StateEvent struct {
	Device string
	State  CoverState
}

// StateStore keeps the latest reported state per device.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]CoverState
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]CoverState)}
}

// Set merges a report into the stored state. Devices that report position
// and tilt in separate messages keep the other channel's last value.
func (s *StateStore) Set(device string, state CoverState) CoverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.states[device]
	if state.Position != nil {
		merged.Position = state.Position
	}
	if state.Tilt != nil {
		merged.Tilt = state.Tilt
	}
	merged.UpdatedAt = state.UpdatedAt
	s.states[device] = merged
	return merged
}

// Get returns the stored state for a device.
func (s *StateStore) Get(device string) (CoverState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[device]
	return state, ok
}

// Prune drops stored states for devices keep rejects, so topics outside
// the managed set cannot grow the store without bound.
func (s *StateStore) Prune(keep func(device string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for device := range s.states {
		if !keep(device) {
			delete(s.states, device)
		}
	}
}

// Len returns the number of devices with a stored state.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
