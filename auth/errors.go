package auth

import "errors"

// Sentinel errors for token validation.
var (
	ErrTokenMalformed   = errors.New("auth: token malformed")
	ErrSignatureInvalid = errors.New("auth: token signature invalid")
	ErrUntrustedIssuer  = errors.New("auth: token issuer not trusted")
	ErrAudienceMismatch = errors.New("auth: token audience mismatch")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrTokenNotYetValid = errors.New("auth: token not yet valid")
	ErrKeyNotFound      = errors.New("auth: signing key not found")
)
