// Package config loads the gateway's YAML configuration.
//
// Loading is a two-stage pipeline: the raw document is decoded into a
// generic tree and handed to the secret resolver, which replaces every
// {"$secret": NAME} descriptor with its resolved value or aborts the
// load; only the fully resolved tree is then decoded into typed
// configuration. A configuration that reaches callers therefore never
// contains an unresolved secret descriptor.
package config
