package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
)

// RFC 8693 token exchange constants.
const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	tokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
)

// Token is a delegated, audience-scoped credential.
type Token struct {
	// AccessToken is the compact delegated token.
	AccessToken string

	// TokenType is the issued token type, typically "Bearer".
	TokenType string

	// ExpiresAt is when the token stops being served from cache.
	ExpiresAt time.Time

	// Subject is the subject the token was exchanged for.
	Subject string

	// Claims holds the decoded delegated-token claims, such as
	// legacy_name and roles. Nil when decoding failed.
	Claims map[string]any
}

// LegacyName returns the backend identity claim used for impersonation.
func (t *Token) LegacyName() string {
	name, _ := t.Claims["legacy_name"].(string)
	return name
}

// Roles returns the roles claim carried by the delegated token.
func (t *Token) Roles(claimName string) []string {
	if claimName == "" {
		claimName = "roles"
	}
	raw, ok := t.Claims[claimName].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// Config configures the token exchange service.
type Config struct {
	// TokenURL is the identity provider's token endpoint.
	TokenURL string

	// ClientID is this gateway's client identifier.
	ClientID string

	// ClientSecret authenticates the exchange request.
	ClientSecret string

	// ClientAuthMethod is how to authenticate to the token endpoint.
	// Options: "client_secret_basic" (default), "client_secret_post"
	ClientAuthMethod string

	// Timeout bounds one exchange call.
	// Default: 10 seconds
	Timeout time.Duration

	// DefaultTTL is the cache lifetime used when the response carries
	// no expires_in and the delegated token carries no exp claim.
	// Default: 5 minutes
	DefaultTTL time.Duration

	// RolesClaim is the claim holding roles in the delegated token.
	// Default: "roles"
	RolesClaim string

	// RequiredClaim, when set, must be present in the delegated token
	// (e.g. "legacy_name" for SQL impersonation).
	RequiredClaim string

	// HTTPClient is the client used for exchange calls. If nil, a
	// default client bounded by Timeout is used.
	HTTPClient *http.Client

	// Meter records cache metrics. If nil, a noop meter is used.
	Meter metric.Meter

	// Logger receives exchange diagnostics.
	Logger observe.Logger
}

// Service performs RFC 8693 token exchange with caching.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent exchanges for the
//   same (sessionID, subject, audience) issue at most one outbound call.
// - Context: honored on every outbound call, bounded by Timeout.
type Service struct {
	config     Config
	httpClient *http.Client
	cache      *tokenCache
	metrics    *cacheMetrics
	group      singleflight.Group
	logger     observe.Logger
}

// NewService creates a token exchange service.
func NewService(config Config) (*Service, error) {
	if config.TokenURL == "" {
		return nil, fmt.Errorf("exchange: token URL is required")
	}
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}

	cache := newTokenCache()
	metrics, err := newCacheMetrics(config.Meter, cache)
	if err != nil {
		return nil, fmt.Errorf("exchange: init metrics: %w", err)
	}

	return &Service{
		config:     config,
		httpClient: config.HTTPClient,
		cache:      cache,
		metrics:    metrics,
		logger:     config.Logger.WithComponent("exchange"),
	}, nil
}

// Exchange returns a delegated token scoped to audience for the session,
// from cache when possible.
func (s *Service) Exchange(ctx context.Context, session *auth.UserSession, audience string, scopes ...string) (*Token, error) {
	if session == nil || session.AccessToken() == "" {
		return nil, ErrNoSubjectToken
	}
	if audience == "" {
		return nil, fmt.Errorf("%w: audience is required", ErrExchangeFailed)
	}

	key := session.SessionID + "\x00" + audience
	subject := session.Subject()
	// The in-flight key carries the subject too: callers sharing a
	// session identifier but acting for different subjects must never
	// attach to each other's outbound exchange, or one would receive a
	// token minted from the other's subject_token.
	flightKey := key + "\x00" + subject

	if token, result := s.cache.get(key, subject); result == lookupHit {
		s.metrics.recordLookup(ctx, lookupHit)
		return token, nil
	} else {
		s.metrics.recordLookup(ctx, result)
		if result == lookupMismatch {
			s.logger.Warn(ctx, "evicted delegated token for requestor mismatch",
				observe.String("audience", audience),
				observe.String("sessionId", session.SessionID))
		}
	}

	// Collapse concurrent misses for the same key into one outbound
	// call; the in-flight marker clears when the call settles, so a
	// timed-out exchange is retried rather than waited on forever.
	result, err, _ := s.group.Do(flightKey, func() (any, error) {
		// Re-check: another caller may have populated the cache between
		// our miss and this execution.
		if token, r := s.cache.get(key, subject); r == lookupHit {
			return token, nil
		}

		token, err := s.doExchange(ctx, session, audience, scopes)
		if err != nil {
			return nil, err
		}
		s.cache.set(key, subject, token)
		return token, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Token), nil
}

// Stats returns a snapshot of cache behavior.
func (s *Service) Stats() CacheStats {
	return CacheStats{
		Hits:                s.metrics.hits.Load(),
		Misses:              s.metrics.misses.Load(),
		RequestorMismatches: s.metrics.mismatches.Load(),
		DecodeFailures:      s.metrics.decodeErrs.Load(),
		ActiveEntries:       s.cache.len(),
		ApproxBytes:         s.cache.approxBytes(),
	}
}

// tokenResponse is the token endpoint's success response.
type tokenResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
	Scope           string `json:"scope"`
}

func (s *Service) doExchange(ctx context.Context, session *auth.UserSession, audience string, scopes []string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", grantTypeTokenExchange)
	form.Set("subject_token", session.AccessToken())
	form.Set("subject_token_type", tokenTypeAccessToken)
	form.Set("audience", audience)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	if s.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", s.config.ClientID)
		form.Set("client_secret", s.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if s.config.ClientAuthMethod == "client_secret_basic" {
		credentials := base64.StdEncoding.EncodeToString([]byte(s.config.ClientID + ":" + s.config.ClientSecret))
		req.Header.Set("Authorization", "Basic "+credentials)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExchangeFailed, err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carries no access_token", ErrExchangeFailed)
	}

	token := &Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		Subject:     session.Subject(),
	}

	// Decode the delegated token's claims. The token was just issued to
	// us over TLS and is consumed by the backend, so signature
	// verification is not re-done here; decode failures are counted and
	// leave Claims nil.
	if claims, err := decodeClaims(body.AccessToken); err != nil {
		s.metrics.recordDecodeFailure(ctx)
		s.logger.Warn(ctx, "delegated token claims not decodable", observe.Err(err))
	} else {
		token.Claims = claims
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			token.Subject = sub
		}
	}

	if s.config.RequiredClaim != "" {
		if _, ok := token.Claims[s.config.RequiredClaim]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingRequiredClaim, s.config.RequiredClaim)
		}
	}

	token.ExpiresAt = s.expiry(body, token.Claims)
	return token, nil
}

// expiry derives the cache lifetime: expires_in, else the delegated
// token's exp claim, else the configured default.
func (s *Service) expiry(body tokenResponse, claims map[string]any) time.Time {
	if body.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return time.Now().Add(s.config.DefaultTTL)
}

func decodeClaims(tokenString string) (map[string]any, error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}
