// Package delegation routes authorized operations to pluggable backend
// modules on behalf of a user session.
//
// A Module is a connector for one backend kind (REST, PostgreSQL,
// SQL Server, or custom); the Registry is polymorphic over the Module
// interface and is the single point where a session's authorization is
// enforced before any module touches a real backend. Delegation
// failures are data: callers always receive a Result, never a panic or
// an error escaping the module boundary.
package delegation
