package exchange

import "errors"

// Sentinel errors for token exchange.
var (
	// ErrNoSubjectToken indicates the session does not carry its own
	// access token, so there is nothing to exchange.
	ErrNoSubjectToken = errors.New("exchange: session carries no access token")

	// ErrExchangeFailed indicates the identity provider rejected the
	// exchange or could not be reached.
	ErrExchangeFailed = errors.New("exchange: token exchange failed")

	// ErrMissingRequiredClaim indicates the delegated token lacks a
	// claim the configuration requires (e.g. legacy_name).
	ErrMissingRequiredClaim = errors.New("exchange: delegated token missing required claim")
)
