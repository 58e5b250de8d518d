package deconflict

import "errors"

var (
	// ErrInvalidInput reports trajectory data that cannot be used for time
	// queries, such as a waypoint without a timestamp.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig reports check parameters outside their domain.
	ErrInvalidConfig = errors.New("invalid config")
)
