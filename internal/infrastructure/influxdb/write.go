package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// CyclePoint is one control cycle outcome flattened for time-series storage.
//
// Tags (group_id, cover_type, method) are low cardinality and indexed;
// the numeric outcome goes into fields.
type CyclePoint struct {
	GroupID       string
	CoverType     string
	Method        string
	Position      int
	Secondary     *int
	Elevation     float64
	Azimuth       float64
	SunValid      bool
	ManualAny     bool
	ManualDevices int
	ComputedAt    time.Time
}

// WriteCycle writes a shading cycle outcome to the cover_cycle measurement.
//
// This is the primary method for recording controller telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteCycle(influxdb.CyclePoint{
//	    GroupID:   "living-south",
//	    CoverType: "vertical",
//	    Method:    "intermediate",
//	    Position:  62,
//	})
func (c *Client) WriteCycle(p CyclePoint) {
	if !c.IsConnected() {
		return
	}

	ts := p.ComputedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]interface{}{
		"position":       p.Position,
		"elevation":      p.Elevation,
		"azimuth":        p.Azimuth,
		"sun_valid":      p.SunValid,
		"manual_any":     p.ManualAny,
		"manual_devices": p.ManualDevices,
	}
	if p.Secondary != nil {
		fields["secondary"] = *p.Secondary
	}

	point := write.NewPoint(
		"cover_cycle",
		map[string]string{
			"group_id":   p.GroupID,
			"cover_type": p.CoverType,
			"method":     p.Method,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
