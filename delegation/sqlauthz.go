package delegation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonwraymond/toolgate/auth"
)

// CommandTier is an ordered privilege level gating which SQL statements
// a caller may execute.
type CommandTier int

const (
	// TierNone grants nothing.
	TierNone CommandTier = iota
	// TierRead covers SELECT-class statements.
	TierRead
	// TierWrite adds row mutation.
	TierWrite
	// TierSchemaAdmin adds schema and grant management.
	TierSchemaAdmin
	// TierFullAdmin adds destructive statements.
	TierFullAdmin
)

// String returns the role name conventionally granting the tier.
func (t CommandTier) String() string {
	switch t {
	case TierRead:
		return "sql-read"
	case TierWrite:
		return "sql-write"
	case TierSchemaAdmin:
		return "sql-admin"
	case TierFullAdmin:
		return "admin"
	default:
		return "none"
	}
}

// keywordTiers maps a statement's leading keyword to the tier required
// to execute it.
var keywordTiers = map[string]CommandTier{
	"SELECT":  TierRead,
	"EXPLAIN": TierRead,
	"SHOW":    TierRead,
	"WITH":    TierRead,

	"INSERT": TierWrite,
	"UPDATE": TierWrite,
	"DELETE": TierWrite,
	"MERGE":  TierWrite,

	"CREATE": TierSchemaAdmin,
	"ALTER":  TierSchemaAdmin,
	"GRANT":  TierSchemaAdmin,
	"REVOKE": TierSchemaAdmin,

	"DROP":     TierFullAdmin,
	"TRUNCATE": TierFullAdmin,
}

// roleTiers maps role names (session custom roles and delegated-token
// roles) to the tier they grant.
var roleTiers = map[string]CommandTier{
	"sql-read":  TierRead,
	"sql-write": TierWrite,
	"sql-admin": TierSchemaAdmin,
	"admin":     TierFullAdmin,
}

// RequiredTier classifies a statement by its leading keyword. Unknown
// keywords are rejected rather than defaulted.
func RequiredTier(sql string) (CommandTier, error) {
	keyword := leadingKeyword(sql)
	if keyword == "" {
		return TierNone, &ValidationError{Reason: "empty SQL statement"}
	}
	tier, ok := keywordTiers[keyword]
	if !ok {
		return TierNone, &ValidationError{Reason: fmt.Sprintf("disallowed SQL keyword %q", keyword)}
	}
	return tier, nil
}

// leadingKeyword returns the first keyword of the statement, skipping
// line and block comments.
func leadingKeyword(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+1:])
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+2:])
		default:
			fields := strings.FieldsFunc(s, func(r rune) bool {
				return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
			})
			if len(fields) == 0 {
				return ""
			}
			return strings.ToUpper(fields[0])
		}
	}
}

// CallerTier computes the highest tier granted by the session's primary
// role, its custom roles, and the delegated token's roles claim. The
// admin primary role grants every tier; the user primary role grants
// reads, so an authenticated user needs no extra role to SELECT. Guest
// and unassigned sessions grant nothing on their own.
func CallerTier(session *auth.UserSession, delegatedRoles []string) CommandTier {
	tier := TierNone
	if session != nil {
		switch session.Role {
		case auth.RoleAdmin:
			tier = TierFullAdmin
		case auth.RoleUser:
			tier = TierRead
		}
		for _, role := range session.CustomRoles {
			if t, ok := roleTiers[role]; ok && t > tier {
				tier = t
			}
		}
	}
	for _, role := range delegatedRoles {
		if t, ok := roleTiers[role]; ok && t > tier {
			tier = t
		}
	}
	return tier
}

// AuthorizeSQL decides whether the caller may execute the statement.
// It never touches the backend: classification and the tier comparison
// both happen before any network call.
func AuthorizeSQL(sql string, session *auth.UserSession, delegatedRoles []string) error {
	required, err := RequiredTier(sql)
	if err != nil {
		return err
	}

	granted := CallerTier(session, delegatedRoles)
	if granted < required {
		subject := ""
		if session != nil {
			subject = session.UserID
		}
		return &AuthorizationError{
			Subject:  subject,
			Action:   leadingKeyword(sql),
			Required: required.String(),
			Reason:   fmt.Sprintf("caller tier %s is insufficient", granted),
		}
	}
	return nil
}

// identifierPattern accepts conventional SQL identifiers only; anything
// else is refused before it can reach an impersonation statement.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidIdentifier reports whether name is safe to use as an
// impersonation identifier.
func ValidIdentifier(name string) bool {
	return name != "" && len(name) <= 63 && identifierPattern.MatchString(name)
}
