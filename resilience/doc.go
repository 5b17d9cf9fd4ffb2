// Package resilience bounds outbound calls made by the delegation
// pipeline. Every network operation (token exchange, backend request,
// health probe) runs under a configurable timeout so a wedged backend
// fails the call instead of leaving it pending.
package resilience
