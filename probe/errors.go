package probe

import "errors"

var (
	// ErrUnreachable is returned for targets outside the machine envelope.
	ErrUnreachable = errors.New("position not reachable")

	// ErrNotHomed is returned when actuation needs a homed axis.
	ErrNotHomed = errors.New("axis not homed")

	// ErrActuationFailed is returned when the probe did not change state on deploy or stow.
	ErrActuationFailed = errors.New("probe actuation failed")

	// ErrNotTriggered is returned when a descent reached its target without contact.
	ErrNotTriggered = errors.New("probe not triggered")

	// ErrTriggeredEarly is returned when a descent triggered above the expected height.
	ErrTriggeredEarly = errors.New("probe triggered early")

	// ErrTareFailed is returned when the probe could not be zeroed.
	ErrTareFailed = errors.New("probe tare failed")

	// ErrOverpressure is returned when the safety monitor tripped during a measurement.
	ErrOverpressure = errors.New("overpressure detected")
)
