// Package forecast precomputes cover positions over a time horizon from
// solar geometry alone. Forecasts show what the controller would command
// absent climate overrides and manual intervention, so they run the same
// solver and arbitration as a live cycle but skip both overlays.
package forecast

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/solshade-core/internal/control"
	"github.com/nerrad567/solshade-core/internal/cover"
	"github.com/nerrad567/solshade-core/internal/solar"
)

const (
	defaultHorizon = 24 * time.Hour
	defaultStep    = 30 * time.Minute
	defaultTTL     = 5 * time.Minute
)

// Point is one forecast instant for a group.
type Point struct {
	Time      time.Time `json:"time"`
	Position  int       `json:"position"`
	Elevation float64   `json:"elevation"`
	Azimuth   float64   `json:"azimuth"`
}

// Options holds configuration for the generator.
type Options struct {
	// Site is the observer location. Required.
	Site control.Site

	// Horizon is how far ahead to forecast. Default: 24 hours.
	Horizon time.Duration

	// Step is the spacing between forecast points. Default: 30 minutes.
	Step time.Duration

	// TTL is how long a generated forecast stays cached. Default: 5 minutes.
	TTL time.Duration
}

// Generator produces and caches per-group forecasts. Generation is pure
// computation, but a 24 hour horizon still walks the solver dozens of
// times, so results are cached per group and concurrent requests for the
// same group coalesce into one computation.
type Generator struct {
	site    control.Site
	horizon time.Duration
	step    time.Duration
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	flight singleflight.Group

	// Clock, replaceable in tests
	now func() time.Time
}

type cacheEntry struct {
	points  []Point
	expires time.Time
}

// NewGenerator creates a forecast generator.
func NewGenerator(opts Options) (*Generator, error) {
	if err := opts.Site.Validate(); err != nil {
		return nil, err
	}

	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = defaultHorizon
	}
	step := opts.Step
	if step <= 0 {
		step = defaultStep
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Generator{
		site:    opts.Site,
		horizon: horizon,
		step:    step,
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}, nil
}

// Generate returns the forecast for a group, ordered oldest first, from
// now through now+horizon inclusive. Results are cached per group;
// callers must treat the returned slice as read-only.
func (g *Generator) Generate(group *cover.Group) []Point {
	if points, ok := g.cached(group.ID); ok {
		return points
	}

	v, _, _ := g.flight.Do(group.ID, func() (any, error) {
		// A caller that queued behind the computing goroutine finds the
		// fresh entry here instead of recomputing.
		if points, ok := g.cached(group.ID); ok {
			return points, nil
		}
		points := g.compute(group)
		g.mu.Lock()
		g.cache[group.ID] = cacheEntry{points: points, expires: g.now().Add(g.ttl)}
		g.mu.Unlock()
		return points, nil
	})

	return v.([]Point)
}

// Invalidate drops a group's cached forecast, forcing the next Generate
// to recompute. Call after the group's geometry or behaviour changes.
func (g *Generator) Invalidate(groupID string) {
	g.mu.Lock()
	delete(g.cache, groupID)
	g.mu.Unlock()
}

// InvalidateAll drops every cached forecast.
func (g *Generator) InvalidateAll() {
	g.mu.Lock()
	g.cache = make(map[string]cacheEntry)
	g.mu.Unlock()
}

// cached returns a group's forecast if present and not expired.
func (g *Generator) cached(groupID string) ([]Point, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.cache[groupID]
	if !ok || g.now().After(entry.expires) {
		return nil, false
	}
	return entry.points, true
}

// compute walks the horizon, solving each instant with the group's
// geometry. A group whose geometry cannot build a solver forecasts its
// configured defaults, matching what a live cycle would command.
func (g *Generator) compute(group *cover.Group) []Point {
	start := g.now().In(g.site.Timezone)
	end := start.Add(g.horizon)

	solver, solverErr := cover.NewSolver(group.Type, group.Geometry)

	// Daylight gating is per calendar date; a 24 hour horizon spans two.
	days := make(map[string]cover.Daylight, 2)

	points := make([]Point, 0, int(g.horizon/g.step)+1)
	for t := start; !t.After(end); t = t.Add(g.step) {
		key := t.Format("2006-01-02")
		day, ok := days[key]
		if !ok {
			day = cover.NewDaylight(t, g.site.Latitude, g.site.Longitude, group.Geometry)
			days[key] = day
		}
		daylight := day.Contains(t)

		sun := solar.Position(t, g.site.Latitude, g.site.Longitude)

		var target cover.Target
		if solverErr != nil {
			target = cover.DefaultTarget(group.Geometry, daylight)
		} else {
			target = solver.Compute(sun, daylight)
		}
		arbitrated := control.Arbitrate(target.Position, target.Tilt, group.Geometry, group.Behaviour)

		points = append(points, Point{
			Time:      t,
			Position:  arbitrated.Position,
			Elevation: sun.Elevation,
			Azimuth:   sun.Azimuth,
		})
	}

	return points
}
