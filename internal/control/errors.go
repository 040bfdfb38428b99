package control

import "errors"

// Control errors.
var (
	// ErrMissingLocation indicates the site latitude, longitude or timezone
	// is absent. The controller cannot run a single cycle without them, so
	// this surfaces at construction rather than per cycle.
	ErrMissingLocation = errors.New("control: site location and timezone are required")

	// ErrUnknownDevice indicates an operation referenced a device no
	// enabled group drives.
	ErrUnknownDevice = errors.New("control: unknown device")

	// ErrNotManual indicates a manual-override reset was requested for a
	// device under automatic control.
	ErrNotManual = errors.New("control: device is not under manual control")
)
