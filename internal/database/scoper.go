package database

import "context"

type contextKey string

const (
	tenantIDKey      contextKey = "tenant_id"
	legalEntityIDKey contextKey = "legal_entity_id"
)

// WithTenant attaches a tenant ID to the context. Every core operation
// requires one; the core itself never authenticates the caller, it only
// carries the identifier the (external) auth layer already established.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantFromContext retrieves the tenant ID previously attached with
// WithTenant. Returns "" if none was set.
func TenantFromContext(ctx context.Context) string {
	if v := ctx.Value(tenantIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// WithLegalEntity attaches a legal entity ID to the context.
func WithLegalEntity(ctx context.Context, legalEntityID string) context.Context {
	return context.WithValue(ctx, legalEntityIDKey, legalEntityID)
}

// LegalEntityFromContext retrieves the legal entity ID previously attached
// with WithLegalEntity. Returns "" if none was set.
func LegalEntityFromContext(ctx context.Context) string {
	if v := ctx.Value(legalEntityIDKey); v != nil {
		return v.(string)
	}
	return ""
}
