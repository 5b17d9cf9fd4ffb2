// Package exchange trades a session's own bearer token for an
// audience-scoped delegated credential using RFC 8693 token exchange.
//
// Results are cached per (sessionID, audience) with the requestor's
// subject bound to each entry: a lookup whose subject differs from the
// stored one is a miss and evicts the stale entry, so a delegated token
// can never leak across sessions that reuse a session identifier.
// Concurrent exchanges for the same key collapse into a single
// identity-provider call.
package exchange
