// Package secret hydrates credentials referenced from configuration.
//
// A configuration node of the form {"$secret": "NAME"} is a descriptor.
// The resolver walks the configuration tree, replacing each descriptor
// with the value produced by an ordered provider chain; the first
// provider that knows the name wins. Resolution runs once at startup,
// before any component that depends on the resolved credentials.
package secret
