package auth

import (
	"context"
	"testing"
	"time"
)

func testClaims() *Claims {
	return &Claims{
		Issuer:    "https://idp.example.com",
		Subject:   "user-123",
		Audience:  []string{"toolgate"},
		ExpiresAt: time.Now().Add(time.Hour),
		RawToken:  "raw.jwt.token",
		Raw: map[string]any{
			"iss":                "https://idp.example.com",
			"sub":                "user-123",
			"aud":                "toolgate",
			"preferred_username": "jdoe",
			"scope":              "api:read api:write",
			"department":         "engineering",
		},
	}
}

func TestSessionManager_CreateSession(t *testing.T) {
	manager := NewSessionManager()

	session := manager.CreateSession(testClaims(), RoleMappingResult{
		PrimaryRole: RoleUser,
		CustomRoles: []string{"sql-read"},
	})

	if session.Version != CurrentSessionVersion {
		t.Errorf("Version = %d, want %d", session.Version, CurrentSessionVersion)
	}
	if session.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if session.UserID != "user-123" {
		t.Errorf("UserID = %q, want user-123", session.UserID)
	}
	if session.Username != "jdoe" {
		t.Errorf("Username = %q, want jdoe", session.Username)
	}
	if session.Role != RoleUser {
		t.Errorf("Role = %v, want %v", session.Role, RoleUser)
	}
	if session.Rejected {
		t.Error("Rejected = true for a successful mapping")
	}
	if !session.HasScope("api:read") || !session.HasScope("api:write") {
		t.Errorf("Scopes = %v, want api:read and api:write", session.Scopes)
	}
	if !session.HasCustomRole("sql-read") {
		t.Errorf("CustomRoles = %v, want sql-read", session.CustomRoles)
	}
	if session.AccessToken() != "raw.jwt.token" {
		t.Errorf("AccessToken() = %q, want raw.jwt.token", session.AccessToken())
	}
	if session.Subject() != "user-123" {
		t.Errorf("Subject() = %q, want user-123", session.Subject())
	}
	if session.CustomClaims["department"] != "engineering" {
		t.Error("non-registered claims must be carried as custom claims")
	}
	if _, present := session.CustomClaims["iss"]; present {
		t.Error("registered claims must not leak into custom claims")
	}
}

func TestSessionManager_CreateSession_MappingFailure(t *testing.T) {
	manager := NewSessionManager()

	session := manager.CreateSession(testClaims(), RoleMappingResult{
		PrimaryRole:   RoleUnassigned,
		MappingFailed: true,
		FailureReason: "roles claim is not a sequence of strings",
	})

	if !session.Rejected {
		t.Error("Rejected = false for a failed mapping")
	}
	if session.Role != RoleUnassigned {
		t.Errorf("Role = %v, want %v", session.Role, RoleUnassigned)
	}
}

func TestSessionManager_MigrateSession(t *testing.T) {
	manager := NewSessionManager()

	tests := []struct {
		name   string
		legacy map[string]any
		check  func(t *testing.T, s *UserSession)
	}{
		{
			name:   "nil legacy",
			legacy: nil,
			check: func(t *testing.T, s *UserSession) {
				if s.SessionID == "" {
					t.Error("SessionID must be generated")
				}
				if s.Role != RoleUnassigned {
					t.Errorf("Role = %v, want unassigned", s.Role)
				}
			},
		},
		{
			name:   "pre-version shape without _version",
			legacy: map[string]any{"userId": "u1", "role": "user"},
			check: func(t *testing.T, s *UserSession) {
				if s.UserID != "u1" || s.Role != RoleUser {
					t.Errorf("got userID=%q role=%v", s.UserID, s.Role)
				}
				if s.CustomRoles == nil || s.Scopes == nil || s.CustomClaims == nil {
					t.Error("collections must default to empty, not nil")
				}
			},
		},
		{
			name: "full legacy shape",
			legacy: map[string]any{
				"sessionId":    "sess-1",
				"userId":       "u2",
				"username":     "alice",
				"role":         "admin",
				"customRoles":  []any{"sql-admin"},
				"scopes":       []any{"api:read"},
				"customClaims": map[string]any{"access_token": "tok"},
				"claims":       map[string]any{"iss": "https://idp", "sub": "u2"},
				"rejected":     false,
			},
			check: func(t *testing.T, s *UserSession) {
				if s.SessionID != "sess-1" {
					t.Errorf("SessionID = %q, want sess-1", s.SessionID)
				}
				if s.Role != RoleAdmin || s.Username != "alice" {
					t.Errorf("got role=%v username=%q", s.Role, s.Username)
				}
				if !s.HasCustomRole("sql-admin") || !s.HasScope("api:read") {
					t.Error("custom roles/scopes lost in migration")
				}
				if s.AccessToken() != "tok" {
					t.Errorf("AccessToken() = %q, want tok", s.AccessToken())
				}
				if s.Claims.Subject != "u2" {
					t.Errorf("Claims.Subject = %q, want u2", s.Claims.Subject)
				}
			},
		},
		{
			name:   "corrupt field types fall back to defaults",
			legacy: map[string]any{"userId": 42, "customRoles": "oops", "rejected": "yes"},
			check: func(t *testing.T, s *UserSession) {
				if s.UserID != "" {
					t.Errorf("UserID = %q, want empty", s.UserID)
				}
				if s.Rejected {
					t.Error("Rejected must default to false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := manager.MigrateSession(tt.legacy)
			if session.Version != CurrentSessionVersion {
				t.Errorf("Version = %d, want %d", session.Version, CurrentSessionVersion)
			}
			tt.check(t, session)
		})
	}
}

func TestSessionContext(t *testing.T) {
	session := &UserSession{SessionID: "s1", UserID: "u1"}
	ctx := WithSession(context.Background(), session)

	if got := SessionFromContext(ctx); got != session {
		t.Error("SessionFromContext() did not return attached session")
	}
	if got := UserIDFromContext(ctx); got != "u1" {
		t.Errorf("UserIDFromContext() = %q, want u1", got)
	}
	if got := SessionFromContext(context.Background()); got != nil {
		t.Error("SessionFromContext() on empty context must be nil")
	}
}
