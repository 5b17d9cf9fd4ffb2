package secret

import "context"

// Provider resolves secrets by logical name.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: "not found" is control flow, reported via found=false with a
//   nil error. A non-nil error means the provider itself misbehaved; the
//   chain logs it and treats it as a miss so later providers still run.
// - Implementations must never log secret values.
type Provider interface {
	// Name identifies the provider in audit entries.
	Name() string

	// Resolve looks up the secret for the logical name.
	Resolve(ctx context.Context, name string) (value string, found bool, err error)
}
