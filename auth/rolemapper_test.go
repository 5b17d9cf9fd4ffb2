package auth

import (
	"reflect"
	"testing"
)

func TestRoleMapper_DetermineRoles(t *testing.T) {
	mapper := NewRoleMapper(RoleMapperConfig{
		AdminRoles: []string{"admin", "platform-admin"},
		UserRoles:  []string{"user", "developer"},
		GuestRoles: []string{"guest"},
	})

	tests := []struct {
		name        string
		input       any
		wantRole    Role
		wantCustom  []string
		wantFailed  bool
	}{
		{
			name:     "single user role",
			input:    []string{"user"},
			wantRole: RoleUser,
		},
		{
			name:     "highest tier wins",
			input:    []string{"guest", "admin", "user"},
			wantRole: RoleAdmin,
		},
		{
			name:       "custom roles pass through",
			input:      []string{"developer", "sql-admin", "sql-read"},
			wantRole:   RoleUser,
			wantCustom: []string{"sql-admin", "sql-read"},
		},
		{
			name:     "no mapped roles",
			input:    []string{},
			wantRole: RoleUnassigned,
		},
		{
			name:     "claim as []any",
			input:    []any{"platform-admin"},
			wantRole: RoleAdmin,
		},
		{
			name:     "claim as single string",
			input:    "guest",
			wantRole: RoleGuest,
		},
		{
			name:       "nil input fails as data",
			input:      nil,
			wantRole:   RoleUnassigned,
			wantFailed: true,
		},
		{
			name:       "non-sequence input fails as data",
			input:      42,
			wantRole:   RoleUnassigned,
			wantFailed: true,
		},
		{
			name:       "mixed-type sequence fails as data",
			input:      []any{"admin", 7},
			wantRole:   RoleUnassigned,
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapper.DetermineRoles(tt.input)
			if got.PrimaryRole != tt.wantRole {
				t.Errorf("PrimaryRole = %v, want %v", got.PrimaryRole, tt.wantRole)
			}
			if got.MappingFailed != tt.wantFailed {
				t.Errorf("MappingFailed = %v, want %v", got.MappingFailed, tt.wantFailed)
			}
			if tt.wantFailed && got.FailureReason == "" {
				t.Error("MappingFailed without a FailureReason")
			}
			if tt.wantCustom != nil && !reflect.DeepEqual(got.CustomRoles, tt.wantCustom) {
				t.Errorf("CustomRoles = %v, want %v", got.CustomRoles, tt.wantCustom)
			}
		})
	}
}

func TestRoleMapper_Defaults(t *testing.T) {
	mapper := NewRoleMapper(RoleMapperConfig{})

	if got := mapper.DetermineRoles([]string{"admin"}); got.PrimaryRole != RoleAdmin {
		t.Errorf("default admin mapping: PrimaryRole = %v, want %v", got.PrimaryRole, RoleAdmin)
	}
	if got := mapper.DetermineRoles([]string{"guest"}); got.PrimaryRole != RoleGuest {
		t.Errorf("default guest mapping: PrimaryRole = %v, want %v", got.PrimaryRole, RoleGuest)
	}
}

func TestRole_Privilege(t *testing.T) {
	if RoleAdmin.Privilege() <= RoleUser.Privilege() {
		t.Error("admin must outrank user")
	}
	if RoleUser.Privilege() <= RoleGuest.Privilege() {
		t.Error("user must outrank guest")
	}
	if RoleGuest.Privilege() <= RoleUnassigned.Privilege() {
		t.Error("guest must outrank unassigned")
	}
	if Role("made-up").Privilege() != RoleUnassigned.Privilege() {
		t.Error("unknown roles must rank as unassigned")
	}
}
