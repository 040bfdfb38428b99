package solar

import (
	"math"
	"time"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// SunPosition is an immutable snapshot of where the sun sits in the sky.
type SunPosition struct {
	// Azimuth is measured in degrees clockwise from true north, 0-360.
	Azimuth float64

	// Elevation is the angle above the horizon in degrees. Negative values
	// mean the sun is below the horizon.
	Elevation float64
}

// Position returns the sun's apparent position at t for the given
// coordinates using the NOAA approximation. Longitude is positive east of
// Greenwich. The calculation is carried out in UTC regardless of the zone
// attached to t, so wall-clock representation does not affect the result.
//
// No atmospheric refraction correction is applied; rise and set instants,
// where refraction matters, come from RiseSet instead.
func Position(t time.Time, latitude, longitude float64) SunPosition {
	u := t.UTC()
	dayOfYear := float64(u.YearDay())
	hours := float64(u.Hour()) + float64(u.Minute())/60 + float64(u.Second())/3600

	// Fractional year in radians.
	g := 2 * math.Pi / 365 * (dayOfYear - 1 + (hours-12)/24)

	// Equation of time in minutes.
	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(g) - 0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) - 0.040849*math.Sin(2*g))

	// Solar declination in radians.
	decl := 0.006918 -
		0.399912*math.Cos(g) + 0.070257*math.Sin(g) -
		0.006758*math.Cos(2*g) + 0.000907*math.Sin(2*g) -
		0.002697*math.Cos(3*g) + 0.00148*math.Sin(3*g)

	// True solar time in minutes and hour angle in degrees, normalised
	// to (-180, 180] so the morning/afternoon test below stays valid for
	// any longitude.
	trueSolarTime := hours*60 + eqTime + 4*longitude
	hourAngle := normalizeSigned(trueSolarTime/4 - 180)

	latRad := latitude * degToRad
	haRad := hourAngle * degToRad

	cosZenith := math.Sin(latRad)*math.Sin(decl) +
		math.Cos(latRad)*math.Cos(decl)*math.Cos(haRad)
	zenith := math.Acos(clampUnit(cosZenith))

	elevation := 90 - zenith*radToDeg

	// Azimuth clockwise from north. The acos form yields 0-180; the hour
	// angle sign disambiguates the east/west half.
	sinZenith := math.Sin(zenith)
	azimuth := 180.0
	denom := math.Cos(latRad) * sinZenith
	if math.Abs(denom) > 1e-9 {
		cosAz := (math.Sin(decl) - math.Sin(latRad)*math.Cos(zenith)) / denom
		azimuth = math.Acos(clampUnit(cosAz)) * radToDeg
		if hourAngle > 0 {
			azimuth = 360 - azimuth
		}
	}

	return SunPosition{Azimuth: azimuth, Elevation: elevation}
}

// SurfaceAzimuth returns gamma, the signed angular offset of the sun from
// a facade facing windowAzimuth, normalised to [-180, 180). Positive gamma
// lies on the low-azimuth (left) side of the facade normal, negative on
// the high-azimuth (right) side.
func SurfaceAzimuth(windowAzimuth, solarAzimuth float64) float64 {
	return normalizeSigned(windowAzimuth - solarAzimuth)
}

// InView reports whether the sun can shine directly onto a facade: the sun
// must be above the horizon and its surface azimuth within the facade's
// asymmetric field of view. Each side of the field of view is capped at 90
// degrees, since beyond that the sun is behind the facade plane.
func InView(gamma, elevation, fovLeft, fovRight float64) bool {
	if elevation <= 0 {
		return false
	}
	left := math.Min(fovLeft, 90)
	right := math.Min(fovRight, 90)
	return gamma >= -right && gamma <= left
}

// normalizeSigned maps an angle in degrees onto [-180, 180).
func normalizeSigned(deg float64) float64 {
	d := math.Mod(deg+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// clampUnit bounds x to [-1, 1] before acos, guarding against floating
// point drift at the extremes.
func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
