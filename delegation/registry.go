package delegation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/toolgate/audit"
	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
)

// RegistryConfig configures the delegation registry.
type RegistryConfig struct {
	// Audit receives one entry per delegation call.
	// Default: audit disabled (Nop sink).
	Audit audit.Service

	// Logger receives delegation diagnostics.
	Logger observe.Logger
}

// Registry holds named delegation modules and is the enforcement point
// for session-level authorization.
//
// Contract:
// - Concurrency: lookups and Delegate are safe under concurrent
//   register/unregister; mutation is expected to be rare.
// - Errors: Delegate never returns an error; every failure is a Result.
type Registry struct {
	config RegistryConfig

	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Audit == nil {
		config.Audit = audit.Nop{}
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}
	config.Logger = config.Logger.WithComponent("delegation")

	return &Registry{
		config:  config,
		modules: make(map[string]Module),
	}
}

// Register adds a module keyed by its declared name. Registering a name
// twice is rejected: silently replacing a backend connector is a
// spoofing hazard, so callers wanting replacement unregister first.
func (r *Registry) Register(module Module) error {
	if module == nil || module.Name() == "" {
		return fmt.Errorf("delegation: invalid module registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := module.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("delegation: module %q already registered", name)
	}
	r.modules[name] = module
	return nil
}

// Unregister removes a module by name. Returns false when the name was
// not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; !exists {
		return false
	}
	delete(r.modules, name)
	return true
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, ok := r.modules[name]
	return module, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns the currently registered module names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delegate routes one operation to the named module, enforcing
// session-level authorization first. Exactly one audit entry is emitted
// per call, after the call settles.
func (r *Registry) Delegate(ctx context.Context, name string, session *auth.UserSession, action string, params Params) *Result {
	source := "delegation:" + name

	if session == nil {
		return r.settle(ctx, Fail(source, "", action, "no session provided", nil))
	}
	if session.Rejected {
		// A rejected session must never reach a backend module.
		return r.settle(ctx, Fail(source, session.UserID, action,
			(&AuthorizationError{Subject: session.UserID, Action: action, Reason: "session rejected"}).Error(), nil))
	}

	module, ok := r.Get(name)
	if !ok {
		return r.settle(ctx, Fail(source, session.UserID, action,
			fmt.Sprintf("module %q not found", name), nil))
	}

	if validator, ok := module.(AccessValidator); ok && !validator.ValidateAccess(session) {
		return r.settle(ctx, Fail(source, session.UserID, action,
			(&AuthorizationError{Subject: session.UserID, Action: action, Reason: "module access denied"}).Error(), nil))
	}

	result := r.invoke(ctx, module, session, action, params)
	if result.AuditTrail.ID == "" {
		result.AuditTrail = audit.NewEntry(source, session.UserID, action, result.Success, nil)
	}
	return r.settle(ctx, result)
}

// invoke calls the module, converting returned errors and panics into
// failed results so nothing escapes the module boundary.
func (r *Registry) invoke(ctx context.Context, module Module, session *auth.UserSession, action string, params Params) (result *Result) {
	source := "delegation:" + module.Name()

	defer func() {
		if rec := recover(); rec != nil {
			r.config.Logger.Error(ctx, "module panicked",
				observe.String("module", module.Name()),
				observe.String("panic", fmt.Sprint(rec)))
			result = Fail(source, session.UserID, action, "internal module failure", nil)
		}
	}()

	res, err := module.Delegate(ctx, session, action, params)
	if err != nil {
		return Fail(source, session.UserID, action, err.Error(), nil)
	}
	if res == nil {
		return Fail(source, session.UserID, action, "module returned no result", nil)
	}
	return res
}

// settle forwards the result's audit entry and returns the result.
func (r *Registry) settle(ctx context.Context, result *Result) *Result {
	if err := r.config.Audit.Log(ctx, result.AuditTrail); err != nil {
		r.config.Logger.Warn(ctx, "audit sink failed", observe.Err(err))
	}
	return result
}

// DestroyAll destroys every registered module and empties the registry.
// The first error is returned; destruction continues regardless.
func (r *Registry) DestroyAll(ctx context.Context) error {
	r.mu.Lock()
	modules := r.modules
	r.modules = make(map[string]Module)
	r.mu.Unlock()

	var first error
	for name, module := range modules {
		if err := module.Destroy(ctx); err != nil && first == nil {
			first = fmt.Errorf("delegation: destroy %q: %w", name, err)
		}
	}
	return first
}
