package delegation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
)

// RESTConfig configures a REST delegation module.
type RESTConfig struct {
	// BaseURL is the backend's base URL. Request endpoints are joined
	// to it, never interpolated from data values.
	BaseURL string

	// UseTokenExchange attaches an audience-scoped delegated token as
	// the bearer credential.
	UseTokenExchange bool

	// Audience is the token-exchange audience for this backend.
	Audience string

	// Exchanger performs token exchange; required when
	// UseTokenExchange is set.
	Exchanger TokenExchanger

	// APIKey is the static fallback credential, attached as a bearer
	// token when token exchange is disabled.
	APIKey string

	// RequiredPermissions maps an action name to the scope a session
	// must hold for it. Params.RequiredPermission overrides per call.
	RequiredPermissions map[string]string

	// Timeout bounds one backend call.
	// Default: 15 seconds
	Timeout time.Duration

	// HealthPath is probed by HealthCheck.
	// Default: "/health"
	HealthPath string

	// HTTPClient is the client used for backend calls.
	HTTPClient *http.Client

	// Logger receives module diagnostics.
	Logger observe.Logger
}

// RESTModule delegates operations to an HTTP backend.
type RESTModule struct {
	name        string
	config      RESTConfig
	client      *http.Client
	logger      observe.Logger
	initialized bool
}

// NewRESTModule creates a REST module with the given registry name.
func NewRESTModule(name string, config RESTConfig) *RESTModule {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HealthPath == "" {
		config.HealthPath = "/health"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}

	return &RESTModule{
		name:   name,
		config: config,
		client: config.HTTPClient,
		logger: config.Logger.WithComponent("delegation:" + name),
	}
}

// Name returns the registry key.
func (m *RESTModule) Name() string { return m.name }

// Type returns "rest".
func (m *RESTModule) Type() string { return "rest" }

// Initialize validates the configuration. Supported config keys:
// baseUrl, apiKey, audience.
func (m *RESTModule) Initialize(_ context.Context, config map[string]any) error {
	if v, ok := config["baseUrl"].(string); ok && v != "" {
		m.config.BaseURL = v
	}
	if v, ok := config["apiKey"].(string); ok && v != "" {
		m.config.APIKey = v
	}
	if v, ok := config["audience"].(string); ok && v != "" {
		m.config.Audience = v
	}

	if m.config.BaseURL == "" {
		return fmt.Errorf("delegation: module %q needs a base URL", m.name)
	}
	m.config.BaseURL = strings.TrimRight(m.config.BaseURL, "/")
	if m.config.UseTokenExchange && m.config.Exchanger == nil {
		return fmt.Errorf("delegation: module %q has token exchange enabled but no exchanger", m.name)
	}

	m.initialized = true
	return nil
}

// Delegate performs one HTTP operation. The bearer credential is the
// exchanged delegated token when token exchange is enabled, else the
// static API key; with neither configured the call fails before any
// network activity.
func (m *RESTModule) Delegate(ctx context.Context, session *auth.UserSession, action string, params Params) (*Result, error) {
	source := "delegation:" + m.name

	if !m.initialized {
		return Fail(source, session.UserID, action, ErrNotInitialized.Error(), nil), nil
	}

	endpoint := params.Endpoint
	if err := validateEndpoint(endpoint); err != nil {
		return Fail(source, session.UserID, action, err.Error(), nil), nil
	}

	method := strings.ToUpper(params.Method)
	if method == "" {
		method = http.MethodGet
	}

	// Scope check before anything leaves the process.
	required := params.RequiredPermission
	if required == "" {
		required = m.config.RequiredPermissions[action]
	}
	if required != "" && !session.HasScope(required) {
		authzErr := &AuthorizationError{
			Subject:  session.UserID,
			Action:   action,
			Required: "scope " + required,
			Reason:   "scope not granted to session",
		}
		return Fail(source, session.UserID, action, authzErr.Error(), nil), nil
	}

	bearer, exchanged, err := m.credential(ctx, session)
	if err != nil {
		return Fail(source, session.UserID, action, err.Error(), nil), nil
	}

	var body io.Reader
	if params.Data != nil {
		encoded, err := json.Marshal(params.Data)
		if err != nil {
			return Fail(source, session.UserID, action, "request body not serializable", nil), nil
		}
		body = bytes.NewReader(encoded)
	}

	var status int
	var responseData any
	callErr := resilience.ExecuteWithTimeout(ctx, m.config.Timeout, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, m.config.BaseURL+endpoint, body)
		if err != nil {
			return &BackendError{Module: m.name, Cause: err}
		}

		for k, v := range params.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("X-User-ID", session.UserID)
		req.Header.Set("X-User-Role", string(session.Role))

		resp, err := m.client.Do(req)
		if err != nil {
			return &BackendError{Module: m.name, Cause: err}
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		if status < 200 || status >= 300 {
			return &BackendError{Module: m.name, Status: status}
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &BackendError{Module: m.name, Cause: err}
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &responseData); err != nil {
				responseData = string(raw)
			}
		}
		return nil
	})

	metadata := map[string]any{
		"endpoint":          endpoint,
		"method":            method,
		"status":            status,
		"tokenExchangeUsed": exchanged,
	}
	if callErr != nil {
		return Fail(source, session.UserID, action, callErr.Error(), metadata), nil
	}
	return Succeed(source, session.UserID, action, responseData, metadata), nil
}

// credential selects the bearer credential without touching the network
// unless token exchange is required.
func (m *RESTModule) credential(ctx context.Context, session *auth.UserSession) (bearer string, exchanged bool, err error) {
	if m.config.UseTokenExchange {
		token, err := m.config.Exchanger.Exchange(ctx, session, m.config.Audience)
		if err != nil {
			return "", false, fmt.Errorf("token exchange: %w", err)
		}
		return token.AccessToken, true, nil
	}
	if m.config.APIKey != "" {
		return m.config.APIKey, false, nil
	}
	return "", false, ErrNoAuthMethod
}

// HealthCheck probes GET {BaseURL}{HealthPath}, with the static
// credential when one is configured.
func (m *RESTModule) HealthCheck(ctx context.Context) bool {
	if !m.initialized {
		return false
	}

	healthy := false
	err := resilience.ExecuteWithTimeout(ctx, m.config.Timeout, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.BaseURL+m.config.HealthPath, nil)
		if err != nil {
			return err
		}
		if m.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
		return nil
	})
	return err == nil && healthy
}

// Destroy releases nothing for plain HTTP; connections are pooled by
// the client.
func (m *RESTModule) Destroy(_ context.Context) error {
	m.initialized = false
	return nil
}

// validateEndpoint refuses endpoints that could escape the configured
// base URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" || !strings.HasPrefix(endpoint, "/") {
		return &ValidationError{Reason: "endpoint must start with /"}
	}
	if strings.Contains(endpoint, "..") {
		return &ValidationError{Reason: "endpoint must not contain parent segments"}
	}
	if strings.Contains(endpoint, "://") {
		return &ValidationError{Reason: "endpoint must be a path, not a URL"}
	}
	return nil
}

// Ensure RESTModule implements Module
var _ Module = (*RESTModule)(nil)
