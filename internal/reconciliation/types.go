// Package reconciliation pulls settlement records from every registered
// rail provider, upserts them by their external trace id, and matches them
// back to the payment instruction each one settles or returns (§4.10).
package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/railprovider"
)

// BankAccount is the settlement-account scope a provider's reconciled
// activity is recorded against. One per (tenant, legal_entity, provider) —
// created lazily the first time that provider's sweep runs for the entity.
type BankAccount struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	LegalEntityID string    `json:"legal_entity_id"`
	ProviderName  string    `json:"provider_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Settlement is a persisted, upserted copy of one rail provider's reconcile
// row, keyed uniquely by (bank_account_id, external_trace_id).
type Settlement struct {
	ID              string             `json:"id"`
	BankAccountID   string             `json:"bank_account_id"`
	ExternalTraceID string             `json:"external_trace_id"`
	EffectiveDate   time.Time          `json:"effective_date"`
	Status          railprovider.Status `json:"status"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        string             `json:"currency"`
	Direction       railprovider.Direction `json:"direction"`
	ReturnCode      string             `json:"return_code,omitempty"`
	RawPayload      map[string]any     `json:"raw_payload,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Result summarizes one reconciliation sweep for a (tenant, legal entity,
// date window): how many settlement records were pulled from providers, how
// many matched a known payment attempt, and how many didn't.
type Result struct {
	ProvidersSwept int
	Pulled         int
	Matched        int
	Unmatched      int
}
