package secret

import (
	"errors"
	"fmt"
)

// ErrUnresolved matches resolution failures via errors.Is.
var ErrUnresolved = errors.New("secret: unresolved")

// ResolutionError is the fatal error raised under fail-fast when no
// provider resolves a descriptor. Path is the full dotted/indexed
// location in the configuration tree, e.g. "config.db.password".
type ResolutionError struct {
	Path string
	Name string
}

// Error returns the path-qualified message.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("secret: no provider resolved %q required at %s", e.Name, e.Path)
}

// Is reports whether this error matches ErrUnresolved.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrUnresolved
}
