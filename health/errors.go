package health

import "errors"

var (
	// ErrCheckTimeout indicates a probe did not answer in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates the named checker is not registered.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
