package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
)

// PostgresConfig configures a PostgreSQL delegation module.
type PostgresConfig struct {
	// DSN is the pool connection string; its user is the service
	// principal that SET ROLE switches away from.
	DSN string

	// UseTokenExchange resolves the impersonation identity and
	// delegated roles per call from an audience-scoped token.
	UseTokenExchange bool

	// Audience is the token-exchange audience for this database.
	Audience string

	// Exchanger performs token exchange; required when
	// UseTokenExchange is set.
	Exchanger TokenExchanger

	// RolesClaim names the delegated-roles claim inside exchanged
	// tokens.
	// Default: "roles"
	RolesClaim string

	// QueryTimeout bounds one statement.
	// Default: 30 seconds
	QueryTimeout time.Duration

	// Logger receives module diagnostics.
	Logger observe.Logger
}

// PostgresModule delegates SQL statements to a PostgreSQL backend over
// a pgx connection pool, impersonating the session's legacy identity
// with SET ROLE when token exchange is enabled.
type PostgresModule struct {
	name   string
	config PostgresConfig
	pool   *pgxpool.Pool
	logger observe.Logger
}

// NewPostgresModule creates a PostgreSQL module with the given registry
// name.
func NewPostgresModule(name string, config PostgresConfig) *PostgresModule {
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}

	return &PostgresModule{
		name:   name,
		config: config,
		logger: config.Logger.WithComponent("delegation:" + name),
	}
}

// Name returns the registry key.
func (m *PostgresModule) Name() string { return m.name }

// Type returns "postgres".
func (m *PostgresModule) Type() string { return "postgres" }

// Initialize opens the connection pool. Supported config keys: dsn,
// audience.
func (m *PostgresModule) Initialize(ctx context.Context, config map[string]any) error {
	if v, ok := config["dsn"].(string); ok && v != "" {
		m.config.DSN = v
	}
	if v, ok := config["audience"].(string); ok && v != "" {
		m.config.Audience = v
	}

	if m.config.DSN == "" {
		return fmt.Errorf("delegation: module %q needs a DSN", m.name)
	}
	if m.config.UseTokenExchange && m.config.Exchanger == nil {
		return fmt.Errorf("delegation: module %q has token exchange enabled but no exchanger", m.name)
	}

	pool, err := pgxpool.New(ctx, m.config.DSN)
	if err != nil {
		return fmt.Errorf("delegation: module %q pool: %w", m.name, err)
	}
	m.pool = pool
	return nil
}

// Delegate authorizes and executes one SQL statement. Authorization is
// settled from the statement's command tier and the caller's roles
// before any connection is acquired.
func (m *PostgresModule) Delegate(ctx context.Context, session *auth.UserSession, action string, params Params) (*Result, error) {
	source := "delegation:" + m.name

	if m.pool == nil {
		return Fail(source, session.UserID, action, ErrNotInitialized.Error(), nil), nil
	}
	if params.SQL == "" {
		return Fail(source, session.UserID, action, "no SQL statement provided", nil), nil
	}

	legacyName, delegatedRoles, exchanged, err := m.identity(ctx, session)
	if err != nil {
		return Fail(source, session.UserID, action, err.Error(), nil), nil
	}

	if err := AuthorizeSQL(params.SQL, session, delegatedRoles); err != nil {
		return Fail(source, session.UserID, action, err.Error(), map[string]any{
			"tokenExchangeUsed": exchanged,
		}), nil
	}

	tier, _ := RequiredTier(params.SQL)

	queryCtx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	conn, err := m.pool.Acquire(queryCtx)
	if err != nil {
		return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), nil), nil
	}
	defer conn.Release()

	if legacyName != "" {
		if !ValidIdentifier(legacyName) {
			return Fail(source, session.UserID, action, (&ValidationError{Reason: "impersonation identity is not a valid role name"}).Error(), nil), nil
		}
		if _, err := conn.Exec(queryCtx, fmt.Sprintf(`SET ROLE %q`, legacyName)); err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), nil), nil
		}
		// Reset even when the statement failed or the request context
		// is already done, so the pooled connection never carries the
		// impersonated role to its next user.
		defer func() {
			resetCtx, cancel := context.WithTimeout(context.WithoutCancel(queryCtx), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(resetCtx, "RESET ROLE"); err != nil {
				m.logger.Error(resetCtx, "reset role failed", observe.Err(err))
				_ = conn.Conn().Close(resetCtx)
			}
		}()
	}

	metadata := map[string]any{
		"tier":              tier.String(),
		"tokenExchangeUsed": exchanged,
	}
	if legacyName != "" {
		metadata["impersonated"] = legacyName
	}

	var data any
	if tier == TierRead {
		rows, err := conn.Query(queryCtx, params.SQL, params.Args...)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
		data, err = collectRows(rows)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
	} else {
		tag, err := conn.Exec(queryCtx, params.SQL, params.Args...)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
		data = map[string]any{"rowsAffected": tag.RowsAffected()}
	}

	return Succeed(source, session.UserID, action, data, metadata), nil
}

// identity resolves the impersonation identity and delegated roles.
// Without token exchange both are empty and authorization falls back to
// the session's own roles.
func (m *PostgresModule) identity(ctx context.Context, session *auth.UserSession) (legacyName string, roles []string, exchanged bool, err error) {
	if !m.config.UseTokenExchange {
		return "", nil, false, nil
	}
	token, err := m.config.Exchanger.Exchange(ctx, session, m.config.Audience)
	if err != nil {
		return "", nil, false, fmt.Errorf("token exchange: %w", err)
	}
	return token.LegacyName(), token.Roles(m.config.RolesClaim), true, nil
}

// collectRows drains a result set into name-keyed maps.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HealthCheck pings the pool.
func (m *PostgresModule) HealthCheck(ctx context.Context) bool {
	if m.pool == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.pool.Ping(pingCtx) == nil
}

// Destroy closes the pool.
func (m *PostgresModule) Destroy(_ context.Context) error {
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	return nil
}

// Ensure PostgresModule implements Module
var _ Module = (*PostgresModule)(nil)
