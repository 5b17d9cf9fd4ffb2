package delegation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	// Registers the "sqlserver" database/sql driver.
	_ "github.com/microsoft/go-mssqldb"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
)

// SQLServerConfig configures a SQL Server delegation module.
type SQLServerConfig struct {
	// DSN is the connection string; its login is the service principal
	// that EXECUTE AS switches away from.
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

	// MaxOpenConns caps the pool.
	// Default: 10
	MaxOpenConns int

	// Logger receives module diagnostics.
	Logger observe.Logger
}

// SQLServerModule delegates SQL statements to a SQL Server backend,
// impersonating the session's legacy identity with EXECUTE AS USER when
// token exchange is enabled. Statements reference arguments as @p1,
// @p2, and so on.
type SQLServerModule struct {
	name   string
	config SQLServerConfig
	db     *sql.DB
	logger observe.Logger
}

// NewSQLServerModule creates a SQL Server module with the given
// registry name.
func NewSQLServerModule(name string, config SQLServerConfig) *SQLServerModule {
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}

	return &SQLServerModule{
		name:   name,
		config: config,
		logger: config.Logger.WithComponent("delegation:" + name),
	}
}

// Name returns the registry key.
func (m *SQLServerModule) Name() string { return m.name }

// Type returns "sqlserver".
func (m *SQLServerModule) Type() string { return "sqlserver" }

// Initialize opens the pool. Supported config keys: dsn, audience.
func (m *SQLServerModule) Initialize(ctx context.Context, config map[string]any) error {
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

	db, err := sql.Open("sqlserver", m.config.DSN)
	if err != nil {
		return fmt.Errorf("delegation: module %q open: %w", m.name, err)
	}
	db.SetMaxOpenConns(m.config.MaxOpenConns)
	m.db = db
	return nil
}

// Delegate authorizes and executes one SQL statement. Authorization is
// settled from the statement's command tier and the caller's roles
// before any connection is taken from the pool.
func (m *SQLServerModule) Delegate(ctx context.Context, session *auth.UserSession, action string, params Params) (*Result, error) {
	source := "delegation:" + m.name

	if m.db == nil {
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

	// Impersonation is connection-scoped, so the statement runs on a
	// pinned connection rather than through the pool directly.
	conn, err := m.db.Conn(queryCtx)
	if err != nil {
		return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), nil), nil
	}
	defer func() { _ = conn.Close() }()

	if legacyName != "" {
		if !ValidIdentifier(legacyName) {
			return Fail(source, session.UserID, action, (&ValidationError{Reason: "impersonation identity is not a valid user name"}).Error(), nil), nil
		}
		if _, err := conn.ExecContext(queryCtx, fmt.Sprintf("EXECUTE AS USER = '%s'", legacyName)); err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), nil), nil
		}
		// Revert even when the statement failed or the request context
		// is already done, so the pooled connection never carries the
		// impersonated user to its next borrower.
		defer func() {
			revertCtx, cancel := context.WithTimeout(context.WithoutCancel(queryCtx), 5*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(revertCtx, "REVERT"); err != nil {
				m.logger.Error(revertCtx, "revert impersonation failed", observe.Err(err))
				// Poison the connection so the pool discards it instead
				// of handing out an impersonated session.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
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
		rows, err := conn.QueryContext(queryCtx, params.SQL, params.Args...)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
		data, err = scanRows(rows)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
	} else {
		res, err := conn.ExecContext(queryCtx, params.SQL, params.Args...)
		if err != nil {
			return Fail(source, session.UserID, action, (&BackendError{Module: m.name, Cause: err}).Error(), metadata), nil
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = -1
		}
		data = map[string]any{"rowsAffected": affected}
	}

	return Succeed(source, session.UserID, action, data, metadata), nil
}

// identity resolves the impersonation identity and delegated roles.
// Without token exchange both are empty and authorization falls back to
// the session's own roles.
func (m *SQLServerModule) identity(ctx context.Context, session *auth.UserSession) (legacyName string, roles []string, exchanged bool, err error) {
	if !m.config.UseTokenExchange {
		return "", nil, false, nil
	}
	token, err := m.config.Exchanger.Exchange(ctx, session, m.config.Audience)
	if err != nil {
		return "", nil, false, fmt.Errorf("token exchange: %w", err)
	}
	return token.LegacyName(), token.Roles(m.config.RolesClaim), true, nil
}

// scanRows drains a result set into name-keyed maps.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HealthCheck pings the pool.
func (m *SQLServerModule) HealthCheck(ctx context.Context) bool {
	if m.db == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.db.PingContext(pingCtx) == nil
}

// Destroy closes the pool.
func (m *SQLServerModule) Destroy(_ context.Context) error {
	if m.db != nil {
		err := m.db.Close()
		m.db = nil
		return err
	}
	return nil
}

// Ensure SQLServerModule implements Module
var _ Module = (*SQLServerModule)(nil)
