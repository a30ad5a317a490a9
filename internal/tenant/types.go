package tenant

import "time"

// Tenant is the outermost tenancy scope. Every record in the system is
// ultimately reachable from exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// LegalEntity is the employer identity a pay run, ledger account, and
// payment instruction are booked against. A tenant may own more than one
// legal entity (e.g. separate subsidiaries run on one installation).
type LegalEntity struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	EIN       string    `json:"ein"`
	Currency  string    `json:"currency"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTenantRequest is the request to create a new tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateLegalEntityRequest is the request to create a new legal entity
// under a tenant.
type CreateLegalEntityRequest struct {
	Name     string `json:"name"`
	EIN      string `json:"ein"`
	Currency string `json:"currency"`
}
