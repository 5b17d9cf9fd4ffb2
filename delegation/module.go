package delegation

import (
	"context"

	"github.com/jonwraymond/toolgate/audit"
	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/exchange"
)

// Params carries the arguments of one delegated operation. REST modules
// read Endpoint/Method/Data/Headers; SQL modules read SQL/Args. Values
// are always passed through as parameters, never interpolated into a
// query or URL path.
type Params struct {
	Endpoint string            `json:"endpoint,omitempty"`
	Method   string            `json:"method,omitempty"`
	Data     any               `json:"data,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	SQL      string            `json:"sql,omitempty"`
	Args     []any             `json:"params,omitempty"`

	// RequiredPermission overrides the module's per-action permission
	// for REST delegation; checked against session scopes.
	RequiredPermission string `json:"requiredPermission,omitempty"`
}

// Result is the uniform outcome of a delegation call.
//
// Invariant: Success implies Data may be present and Error is empty;
// !Success implies Error is a non-empty, non-sensitive message.
type Result struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	AuditTrail audit.Entry `json:"auditTrail"`
}

// Succeed builds a successful result with its audit entry.
func Succeed(source, userID, action string, data any, metadata map[string]any) *Result {
	return &Result{
		Success:    true,
		Data:       data,
		AuditTrail: audit.NewEntry(source, userID, action, true, metadata),
	}
}

// Fail builds a failed result with its audit entry.
func Fail(source, userID, action, errMsg string, metadata map[string]any) *Result {
	return &Result{
		Success:    false,
		Error:      errMsg,
		AuditTrail: audit.NewEntry(source, userID, action, false, metadata),
	}
}

// Module is a pluggable connector performing authorized operations
// against one backend system.
//
// Contract:
// - Concurrency: Delegate must be safe for concurrent use.
// - Errors: Delegate returns (result, nil) for domain failures; a
//   non-nil error is reserved for module-internal faults and is wrapped
//   into a failed Result by the registry.
// - Authorization: a module must decide authorization before issuing
//   any backend call.
type Module interface {
	// Name returns the unique, case-sensitive registry key.
	Name() string

	// Type tags the backend kind, e.g. "rest", "postgres", "sqlserver".
	Type() string

	// Initialize prepares the module (connection pools, credential
	// checks). Config keys supplement the construction-time config.
	Initialize(ctx context.Context, config map[string]any) error

	// Delegate performs one operation for the session.
	Delegate(ctx context.Context, session *auth.UserSession, action string, params Params) (*Result, error)

	// HealthCheck probes the backend.
	HealthCheck(ctx context.Context) bool

	// Destroy releases module resources.
	Destroy(ctx context.Context) error
}

// AccessValidator is an optional module capability: a coarse per-session
// gate checked by the registry before Delegate.
type AccessValidator interface {
	ValidateAccess(session *auth.UserSession) bool
}

// TokenExchanger is the subset of the exchange service modules depend
// on; narrowed so tests can supply fakes.
type TokenExchanger interface {
	Exchange(ctx context.Context, session *auth.UserSession, audience string, scopes ...string) (*exchange.Token, error)
}

// Ensure the exchange service satisfies TokenExchanger
var _ TokenExchanger = (*exchange.Service)(nil)
