// Package solar computes the sun's position in the sky and derives the
// daylight quantities the shading controller depends on: instantaneous
// azimuth/elevation, sunrise and sunset instants, and the window of the
// day during which direct sunlight can reach a given facade.
//
// All functions are pure and deterministic: identical inputs always yield
// identical outputs. There is no I/O, no caching and no shared state, so
// callers may invoke them from any goroutine. Forecast generation leans on
// this property to remain reproducible.
//
// Position uses the NOAA approximation (fractional-year series for the
// equation of time and solar declination). Accuracy is within roughly a
// tenth of a degree, which is far below the angular tolerances of any
// shading decision. Sunrise and sunset come from the go-sunrise library,
// which applies the standard -0.833 degree horizon correction.
//
// Angle conventions:
//   - Azimuth: degrees clockwise from true north, 0-360.
//   - Elevation: degrees above the horizon, negative below.
//   - Surface azimuth (gamma): signed offset of the sun from a facade's
//     facing direction, normalised to [-180, 180). Positive values lie to
//     the left of the facade normal (lower azimuth), negative to the right.
package solar
