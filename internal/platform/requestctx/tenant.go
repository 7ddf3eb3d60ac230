// Package requestctx carries ambient request identity through context.
//
// Tenant resolution happens in an outer layer (API gateway, auth middleware);
// this package only transports the resolved values so storage collaborators
// can thread them into every call without re-deriving them.
package requestctx

import "context"

// tenantIDContextKey is the context key for the current tenant.
type tenantIDContextKey struct{}

// WithTenantID stores a tenant identifier in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantIDContextKey{}, tenantID)
}

// TenantIDFromContext returns the tenant identifier stored in context.
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(tenantIDContextKey{}).(string)
	return value
}
