// Package auth derives internal user sessions from inbound bearer tokens.
//
// The pipeline is Validator (signature, issuer, audience, time bounds) →
// RoleMapper (external role names → internal tier + custom roles) →
// SessionManager (versioned UserSession construction and migration).
// Validation is pure: callers own audit logging of decisions.
package auth
