package middleware

import (
	"context"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// TenantKey is the context key for the authenticated tenant
	TenantKey contextKey = "tenant"
)

// WithTenant adds the authenticated tenant to the context
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// GetTenantFromContext retrieves the authenticated tenant from context
func GetTenantFromContext(ctx context.Context) *models.Tenant {
	if val := ctx.Value(TenantKey); val != nil {
		if tenant, ok := val.(*models.Tenant); ok {
			return tenant
		}
	}
	return nil
}
