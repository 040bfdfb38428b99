// Package control runs the adaptive shading control loop.
//
// The controller consumes cover and sensor state over MQTT, recomputes
// every group's target on a timer and on events, and publishes movement
// commands and per-cycle results:
//
//	                    ┌─────────────────────────────┐
//	 state/cover/+  ───▶│          Controller         │───▶ command/cover/{id}
//	 state/sensor/+ ───▶│                             │───▶ result/{group}
//	                    │  solve → climate → arbitrate│───▶ system/health/{id}
//	      ticker    ───▶│  → override check → dispatch│
//	                    └──────────────┬──────────────┘
//	                                   │
//	                     history / telemetry recorders
//
// # Cycle Shape
//
// Exactly one goroutine owns the cycle. Triggers arriving while a cycle
// is queued coalesce into a single run, and state events queue up for
// the next cycle's deviation pass, so bursts of MQTT traffic cannot
// stack recomputation.
//
// Each cycle processes queued state events first (confirming in-flight
// commands and detecting manual deviations), releases expired overrides,
// then per group: solves the geometry, applies the climate overlay,
// arbitrates inversion/rounding/clamping, publishes the result and
// dispatches commands through the gates (daily window, per-device
// spacing, minimum worthwhile movement).
//
// # Manual Override
//
// A device that reports a state this system did not command enters
// manual control: dispatch to it stops until its group's reset window
// elapses or an operator resets it. A device settling into a command it
// was just given is not a deviation; the pending record is written
// before the publish so that race cannot occur.
//
// # Key Types
//
//   - Controller: lifecycle, subscriptions and the cycle loop
//   - Tracker: the manual-override state machine
//   - SensorStore / StateStore: latest-value caches fed by MQTT
//   - CoverTarget / Command: arbitrated values and their wire channels
//   - Result / Attributes: the published outcome of a cycle
//   - HealthReporter: periodic health to MQTT with LWT integration
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The cycle goroutine
// owns dispatch bookkeeping; the API surface reads it through the
// accessors.
package control
