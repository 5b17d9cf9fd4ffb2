package auth

import (
	"strings"

	"github.com/google/uuid"
)

// CurrentSessionVersion is the schema version SessionManager produces.
const CurrentSessionVersion = 1

// ClaimsSnapshot is the raw issuer/subject/audience view kept on a session.
type ClaimsSnapshot struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	Audience []string `json:"aud"`
}

// UserSession is the internal representation of an authenticated caller.
//
// Sessions are immutable after construction. A session with Rejected set
// must never reach delegation; the registry turns such calls into
// authorization failures.
type UserSession struct {
	Version      int            `json:"_version"`
	SessionID    string         `json:"sessionId"`
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	Role         Role           `json:"role"`
	CustomRoles  []string       `json:"customRoles"`
	Scopes       []string       `json:"scopes"`
	CustomClaims map[string]any `json:"customClaims"`
	Claims       ClaimsSnapshot `json:"claims"`
	Rejected     bool           `json:"rejected"`
}

// Subject returns the subject claim the session was built from.
func (s *UserSession) Subject() string {
	return s.Claims.Subject
}

// AccessToken returns the caller's own bearer token, carried as the
// access_token custom claim for use as subject_token in token exchange.
func (s *UserSession) AccessToken() string {
	token, _ := s.CustomClaims["access_token"].(string)
	return token
}

// HasScope reports whether the session carries the given scope.
func (s *UserSession) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == scope {
			return true
		}
	}
	return false
}

// HasCustomRole reports whether the session carries the given custom role.
func (s *UserSession) HasCustomRole(role string) bool {
	for _, r := range s.CustomRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Registered claims that are not copied into CustomClaims.
var registeredClaims = map[string]bool{
	"iss": true,
	"sub": true,
	"aud": true,
	"exp": true,
	"iat": true,
	"nbf": true,
	"jti": true,
}

// SessionManager builds versioned user sessions from validated claims.
type SessionManager struct{}

// NewSessionManager creates a session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// CreateSession constructs a current-version session from validated
// claims and a role-mapping result. A failed mapping yields a rejected
// session with the unassigned role rather than an error.
func (m *SessionManager) CreateSession(claims *Claims, mapping RoleMappingResult) *UserSession {
	session := &UserSession{
		Version:      CurrentSessionVersion,
		SessionID:    uuid.NewString(),
		UserID:       claims.Subject,
		Username:     usernameFromClaims(claims.Raw, claims.Subject),
		Role:         mapping.PrimaryRole,
		CustomRoles:  append([]string(nil), mapping.CustomRoles...),
		Scopes:       scopesFromClaims(claims.Raw),
		CustomClaims: make(map[string]any),
		Claims: ClaimsSnapshot{
			Issuer:   claims.Issuer,
			Subject:  claims.Subject,
			Audience: append([]string(nil), claims.Audience...),
		},
		Rejected: mapping.MappingFailed,
	}

	for k, v := range claims.Raw {
		if registeredClaims[k] {
			continue
		}
		session.CustomClaims[k] = v
	}
	if claims.RawToken != "" {
		session.CustomClaims["access_token"] = claims.RawToken
	}

	return session
}

// MigrateSession upgrades a previously-serialized session of any older
// shape to the current version, filling absent fields with safe
// defaults. It is total: no legacy shape causes an error.
func (m *SessionManager) MigrateSession(legacy map[string]any) *UserSession {
	session := &UserSession{
		Version:      CurrentSessionVersion,
		Role:         RoleUnassigned,
		CustomRoles:  []string{},
		Scopes:       []string{},
		CustomClaims: make(map[string]any),
	}
	if legacy == nil {
		session.SessionID = uuid.NewString()
		return session
	}

	session.SessionID = stringField(legacy, "sessionId")
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	session.UserID = stringField(legacy, "userId")
	session.Username = stringField(legacy, "username")
	if role := stringField(legacy, "role"); role != "" {
		session.Role = Role(role)
	}
	if roles, ok := coerceRoleNames(legacy["customRoles"]); ok {
		session.CustomRoles = roles
	}
	if scopes, ok := coerceRoleNames(legacy["scopes"]); ok {
		session.Scopes = scopes
	}
	if claims, ok := legacy["customClaims"].(map[string]any); ok {
		for k, v := range claims {
			session.CustomClaims[k] = v
		}
	}
	if rejected, ok := legacy["rejected"].(bool); ok {
		session.Rejected = rejected
	}
	if snapshot, ok := legacy["claims"].(map[string]any); ok {
		session.Claims.Issuer = stringField(snapshot, "iss")
		session.Claims.Subject = stringField(snapshot, "sub")
		if aud, ok := coerceRoleNames(snapshot["aud"]); ok {
			session.Claims.Audience = aud
		}
	}

	return session
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func usernameFromClaims(raw map[string]any, fallback string) string {
	for _, key := range []string{"preferred_username", "username", "name"} {
		if name, ok := raw[key].(string); ok && name != "" {
			return name
		}
	}
	return fallback
}

func scopesFromClaims(raw map[string]any) []string {
	if scope, ok := raw["scope"].(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	if scp, ok := coerceRoleNames(raw["scp"]); ok {
		return scp
	}
	return []string{}
}
