package motor

import "errors"

var (
	// ErrInvalidPort indicates a port outside [1, Channels()].
	ErrInvalidPort = errors.New("motor: invalid port")

	// ErrInvalidRamp indicates a ramp rate that is not a positive number.
	ErrInvalidRamp = errors.New("motor: ramp rate must be positive")
)
