package auth

// Role is an internal privilege tier.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
)

// rolePrivilege orders tiers so the highest-privilege mapping wins.
var rolePrivilege = map[Role]int{
	RoleUnassigned: 0,
	RoleGuest:      1,
	RoleUser:       2,
	RoleAdmin:      3,
}

// Privilege returns the ordering rank of a role; unknown roles rank
// as unassigned.
func (r Role) Privilege() int {
	return rolePrivilege[r]
}

// RoleMappingResult is the outcome of mapping external roles to an
// internal tier. Mapping failures are reported as data, never as errors.
type RoleMappingResult struct {
	PrimaryRole   Role
	CustomRoles   []string
	MappingFailed bool
	FailureReason string
}

// RoleMapperConfig associates external role names with internal tiers.
type RoleMapperConfig struct {
	// AdminRoles lists external role names that map to the admin tier.
	// Default: ["admin"]
	AdminRoles []string

	// UserRoles lists external role names that map to the user tier.
	// Default: ["user"]
	UserRoles []string

	// GuestRoles lists external role names that map to the guest tier.
	// Default: ["guest"]
	GuestRoles []string
}

// RoleMapper maps external role claims to one primary tier plus a set of
// pass-through custom roles.
type RoleMapper struct {
	tiers map[string]Role
}

// NewRoleMapper creates a role mapper from the given configuration.
func NewRoleMapper(config RoleMapperConfig) *RoleMapper {
	if len(config.AdminRoles) == 0 {
		config.AdminRoles = []string{"admin"}
	}
	if len(config.UserRoles) == 0 {
		config.UserRoles = []string{"user"}
	}
	if len(config.GuestRoles) == 0 {
		config.GuestRoles = []string{"guest"}
	}

	tiers := make(map[string]Role)
	for _, name := range config.GuestRoles {
		tiers[name] = RoleGuest
	}
	for _, name := range config.UserRoles {
		tiers[name] = RoleUser
	}
	for _, name := range config.AdminRoles {
		tiers[name] = RoleAdmin
	}

	return &RoleMapper{tiers: tiers}
}

// DetermineRoles maps a raw roles claim value to a mapping result.
//
// The claim value is accepted as []string, []any of strings, or a single
// string; any other shape yields MappingFailed with the unassigned tier.
// When multiple external roles map to different tiers, the highest-
// privilege tier wins. External names with no tier mapping pass through
// unchanged as custom roles for command-level authorization.
func (m *RoleMapper) DetermineRoles(externalRoles any) RoleMappingResult {
	names, ok := coerceRoleNames(externalRoles)
	if !ok {
		return RoleMappingResult{
			PrimaryRole:   RoleUnassigned,
			MappingFailed: true,
			FailureReason: "roles claim is not a sequence of strings",
		}
	}

	result := RoleMappingResult{PrimaryRole: RoleUnassigned}
	for _, name := range names {
		if tier, mapped := m.tiers[name]; mapped {
			if tier.Privilege() > result.PrimaryRole.Privilege() {
				result.PrimaryRole = tier
			}
			continue
		}
		result.CustomRoles = append(result.CustomRoles, name)
	}
	return result
}

func coerceRoleNames(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []string:
		return v, true
	case string:
		return []string{v}, true
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			names = append(names, s)
		}
		return names, true
	default:
		return nil, false
	}
}
