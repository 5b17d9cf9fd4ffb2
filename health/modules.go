package health

import (
	"context"

	"github.com/jonwraymond/toolgate/delegation"
)

// ModuleChecker adapts one delegation module's boolean probe into a
// Checker.
type ModuleChecker struct {
	module delegation.Module
}

// NewModuleChecker wraps a delegation module.
func NewModuleChecker(module delegation.Module) *ModuleChecker {
	return &ModuleChecker{module: module}
}

func (c *ModuleChecker) Name() string { return c.module.Name() }

func (c *ModuleChecker) Check(ctx context.Context) Result {
	if c.module.HealthCheck(ctx) {
		return Healthy("backend reachable").WithDetails(map[string]any{
			"type": c.module.Type(),
		})
	}
	return Unhealthy("backend unreachable", nil).WithDetails(map[string]any{
		"type": c.module.Type(),
	})
}

// RegistryChecker probes every module currently held by a delegation
// registry, so modules registered after construction are still covered.
type RegistryChecker struct {
	registry *delegation.Registry
	config   AggregatorConfig
}

// NewRegistryChecker builds a checker over the registry.
func NewRegistryChecker(registry *delegation.Registry, config AggregatorConfig) *RegistryChecker {
	return &RegistryChecker{
		registry: registry,
		config:   config,
	}
}

func (c *RegistryChecker) Name() string { return "delegation" }

// Check probes each registered module and folds the results. A registry
// without modules is healthy.
func (c *RegistryChecker) Check(ctx context.Context) Result {
	snapshot := NewAggregator(c.config)
	for _, name := range c.registry.List() {
		if module, ok := c.registry.Get(name); ok {
			snapshot.Register(name, NewModuleChecker(module))
		}
	}

	results := snapshot.CheckAll(ctx)
	status := snapshot.OverallStatus(results)

	details := make(map[string]any, len(results))
	for name, result := range results {
		details[name] = result.Status.String()
	}

	switch status {
	case StatusHealthy:
		return Healthy("all modules reachable").WithDetails(details)
	case StatusDegraded:
		return Degraded("some modules impaired").WithDetails(details)
	default:
		return Unhealthy("one or more modules unreachable", nil).WithDetails(details)
	}
}

// Ensure both adapters implement Checker
var (
	_ Checker = (*ModuleChecker)(nil)
	_ Checker = (*RegistryChecker)(nil)
)
