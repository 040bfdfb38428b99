// Package cover provides the cover group model and solvers for SolShade Core.
//
// A cover group pairs a window's measured geometry with the set of motorised
// covers (blinds, awnings, venetians, double rollers) shading it. The package
// owns the group catalogue and the pure maths that turns a solar position
// into a raw cover target; climate overrides and command dispatch live in
// the control package.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                           Cover Groups                             │
//	│                                                                    │
//	│  ┌────────────────┐   ┌────────────────┐   ┌────────────────────┐  │
//	│  │    Registry    │   │   Repository   │   │      Solvers       │  │
//	│  │ (registry.go)  │──▶│(repository.go) │   │    (solver.go)     │  │
//	│  │                │   │                │   │                    │  │
//	│  │ • CRUD ops     │   │ • SQLite       │   │ • vertical         │  │
//	│  │ • Cache        │   │ • JSON columns │   │ • horizontal       │  │
//	│  │ • Validation   │   │                │   │ • tilt             │  │
//	│  └────────────────┘   └────────────────┘   │ • double roller    │  │
//	│          ▲                                 └────────────────────┘  │
//	│          │ seed                                                    │
//	│  ┌────────────────┐                                                │
//	│  │  Groups file   │                                                │
//	│  │  (config.go)   │                                                │
//	│  └────────────────┘                                                │
//	└────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Group: A window with its geometry, behaviour, climate settings and devices
//   - Type: Cover kind (vertical, horizontal, tilt, double_roller)
//   - Solver: Pure solar position → Target conversion, one variant per Type
//   - Target: Raw solver output before inversion, rounding and clamping
//   - Daylight: Per-day sunrise/sunset gates and the direct-sun window
//
// # Position Convention
//
// Positions are percentages where 0 is fully closed and 100 is fully open.
// Groups whose hardware counts the other way set inverse_position or
// inverse_tilt; inversion is applied during arbitration, never inside a
// solver.
//
// # Usage
//
//	groups, err := cover.LoadGroups("covers.yaml")
//	if err != nil {
//	    return err
//	}
//
//	registry := cover.NewRegistry(cover.NewSQLiteRepository(db))
//	registry.SetLogger(log)
//	if err := registry.Seed(ctx, groups); err != nil {
//	    return err
//	}
//
//	solver, _ := cover.NewSolver(group.Type, group.Geometry)
//	target := solver.Compute(sun, daylight.Contains(now))
//
// # Thread Safety
//
// The Registry is safe for concurrent use; solvers are stateless and may be
// shared freely. The Repository implementation must also be thread-safe.
package cover
