// Package tenantctx carries the resolved tenant scope through every core
// operation. The scope is an explicit context value, never an ambient global:
// each query in the core applies the tenant predicate from this scope, and a
// super operator bypasses it only by checking the flag explicitly.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Scope identifies the calling tenant and whether the caller is the
// platform-wide super operator.
type Scope struct {
	TenantID      snowflake.ID
	SuperOperator bool
}

// Visible reports whether an entity owned by tenantID may be read or written
// under this scope.
func (s Scope) Visible(tenantID snowflake.ID) bool {
	if s.SuperOperator {
		return true
	}
	return s.TenantID != 0 && s.TenantID == tenantID
}

type scopeKey struct{}

// WithScope stores the tenant scope in the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the tenant scope from context, if set.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, false
	}
	if scope.TenantID == 0 && !scope.SuperOperator {
		return Scope{}, false
	}
	return scope, true
}
