// Package health reports the liveness of the gateway's backend modules.
//
// A Checker probes one component and returns a Result with a Status of
// Healthy, Degraded, or Unhealthy. The Aggregator fans out over all
// registered checkers and folds their results into one overall status,
// with Unhealthy dominating Degraded dominating Healthy.
//
// ModuleChecker adapts a delegation module's boolean health probe into
// a Checker, and RegistryChecker tracks a delegation registry so that
// modules registered later are probed without re-wiring.
package health
