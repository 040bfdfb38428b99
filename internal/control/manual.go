package control

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/solshade-core/internal/cover"
)

// Tracker records which devices are under manual control. A device enters
// manual control when it reports a state this system did not command; it
// leaves when its group's reset window elapses or an operator resets it
// explicitly. The tracker only holds the override state machine; deciding
// whether a report is a deviation stays with the control cycle, which
// knows the last commanded values.
type Tracker struct {
	mu      sync.Mutex
	devices map[string]struct{}
	records map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[string]struct{}),
		records: make(map[string]time.Time),
	}
}

// SetDevices replaces the set of devices the tracker watches. Reports for
// devices outside the set are ignored, and overrides for devices that
// left the set are dropped.
func (t *Tracker) SetDevices(devices []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = make(map[string]struct{}, len(devices))
	for _, d := range devices {
		t.devices[d] = struct{}{}
	}
	for d := range t.records {
		if _, ok := t.devices[d]; !ok {
			delete(t.records, d)
		}
	}
}

// MarkManual records a manual deviation reported at the given time. It
// returns true when this engaged a new override. While an override is
// already active the original timestamp is kept, unless allowReset is
// set, in which case every further adjustment restarts the reset window.
func (t *Tracker) MarkManual(device string, at time.Time, allowReset bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devices[device]; !ok {
		return false
	}
	if _, active := t.records[device]; active {
		if allowReset {
			t.records[device] = at
		}
		return false
	}
	t.records[device] = at
	return true
}

// Reset clears a device's override. It returns false when no override was
// active.
func (t *Tracker) Reset(device string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, active := t.records[device]; !active {
		return false
	}
	delete(t.records, device)
	return true
}

// Sweep clears overrides whose reset window has elapsed and returns the
// devices released. resetFor supplies each device's window; a
// non-positive window means the override never expires on its own.
func (t *Tracker) Sweep(now time.Time, resetFor func(device string) time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var released []string
	for device, since := range t.records {
		window := resetFor(device)
		if window <= 0 {
			continue
		}
		if !now.Before(since.Add(window)) {
			delete(t.records, device)
			released = append(released, device)
		}
	}
	sort.Strings(released)
	return released
}

// IsManual reports whether a device is under manual control.
func (t *Tracker) IsManual(device string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, active := t.records[device]
	return active
}

// Watches reports whether a device is in the tracked set.
func (t *Tracker) Watches(device string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.devices[device]
	return ok
}

// Snapshot returns every active override with its engagement time.
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Time, len(t.records))
	for device, since := range t.records {
		out[device] = since
	}
	return out
}

// Since returns when a device's active override was engaged.
func (t *Tracker) Since(device string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	since, active := t.records[device]
	return since, active
}

// ManualDevices returns every device under manual control, sorted.
func (t *Tracker) ManualDevices() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	devices := make([]string, 0, len(t.records))
	for d := range t.records {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices
}

// ManualFor filters a device list down to those under manual control,
// preserving order. Used to report per-group override sets.
func (t *Tracker) ManualFor(devices []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var manual []string
	for _, d := range devices {
		if _, active := t.records[d]; active {
			manual = append(manual, d)
		}
	}
	return manual
}

// Count returns the number of active overrides.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// deviatesFrom reports whether a reported state differs from the last
// commanded values on a channel the cover type treats as relevant:
// position for vertical and horizontal covers, tilt for tilt covers, and
// for double rollers the tilt channel always plus the position channel
// when the primary toggle is on. Channels without both a report and a
// commanded value cannot deviate.
func deviatesFrom(typ cover.Type, doubleToggle bool, reported CoverState, commanded Command) bool {
	switch typ {
	case cover.TypeVertical, cover.TypeHorizontal:
		return channelDeviates(reported.Position, commanded.Position)
	case cover.TypeTilt:
		return channelDeviates(reported.Tilt, commanded.Tilt)
	case cover.TypeDoubleRoller:
		if channelDeviates(reported.Tilt, commanded.Tilt) {
			return true
		}
		if doubleToggle {
			return channelDeviates(reported.Position, commanded.Position)
		}
	}
	return false
}
