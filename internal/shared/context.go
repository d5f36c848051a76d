package shared

import "context"

// Tenant identifies the acting company and user for a request. Services
// receive it explicitly; it is never inferred from the data being touched.
type Tenant struct {
	CompanyID int64
	UserID    int64
}

type tenantContextKey struct{}

// ContextWithTenant stores the acting tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the acting tenant from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.CompanyID != 0
}
