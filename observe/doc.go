// Package observe provides structured logging for the delegation pipeline.
//
// The Logger interface is deliberately small: components accept a Logger and
// treat a nil value as "no logging". Log values that look like credentials
// are redacted before serialization.
package observe
