package solar

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// windowScanStep is the sampling resolution used when scanning a day for
// the direct-sun window. Five minutes keeps the scan to 288 samples while
// resolving the window edges well below any dispatch debounce interval.
const windowScanStep = 5 * time.Minute

// RiseSet returns the sunrise and sunset instants (UTC) for the calendar
// date of t in its own location. At polar latitudes where the sun never
// crosses the horizon the library yields zero times; callers should treat
// that via PolarDay.
func RiseSet(t time.Time, latitude, longitude float64) (rise, set time.Time) {
	y, m, d := t.Date()
	return sunrise.SunriseSunset(latitude, longitude, y, m, d)
}

// PolarDay reports whether the sun stays above the horizon for the whole
// calendar date of t. It samples the elevation at local solar midnight,
// which is only consulted when RiseSet returned zero times, i.e. the sun
// never crosses the horizon that day.
func PolarDay(t time.Time, latitude, longitude float64) bool {
	y, m, d := t.Date()
	// Solar midnight in UTC for this longitude, to first order.
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).
		Add(-time.Duration(longitude*4) * time.Minute)
	return Position(midnight, latitude, longitude).Elevation > 0
}

// DirectSunWindow scans the calendar date of day (in day's location) and
// returns the first and last instants at which direct sunlight reaches a
// facade: sun above the horizon and within the facade's field of view.
// ok is false when the sun never enters the field of view that day, for
// example a poleward-facing window in winter.
func DirectSunWindow(day time.Time, latitude, longitude, windowAzimuth, fovLeft, fovRight float64) (start, end time.Time, ok bool) {
	y, m, d := day.Date()
	cursor := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	next := cursor.AddDate(0, 0, 1)

	for ; cursor.Before(next); cursor = cursor.Add(windowScanStep) {
		pos := Position(cursor, latitude, longitude)
		gamma := SurfaceAzimuth(windowAzimuth, pos.Azimuth)
		if !InView(gamma, pos.Elevation, fovLeft, fovRight) {
			continue
		}
		if !ok {
			start = cursor
			ok = true
		}
		end = cursor
	}
	return start, end, ok
}
