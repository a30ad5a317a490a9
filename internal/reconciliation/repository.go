package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for reconciliation data access.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	GetOrCreateBankAccount(ctx context.Context, tenantID, legalEntityID, providerName string) (*BankAccount, error)
	UpsertSettlement(ctx context.Context, s *Settlement) (created bool, err error)
}

// Repository is the pgx-backed reconciliation store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new reconciliation repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the reconciliation tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_bank_accounts (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			provider_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, legal_entity_id, provider_name)
		);

		CREATE TABLE IF NOT EXISTS reconciliation_settlements (
			id UUID PRIMARY KEY,
			bank_account_id UUID NOT NULL REFERENCES reconciliation_bank_accounts(id),
			external_trace_id TEXT NOT NULL,
			effective_date DATE NOT NULL,
			status TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			direction TEXT NOT NULL,
			return_code TEXT NOT NULL DEFAULT '',
			raw_payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (bank_account_id, external_trace_id)
		);
		CREATE INDEX IF NOT EXISTS idx_reconciliation_settlements_date ON reconciliation_settlements(bank_account_id, effective_date);
	`)
	if err != nil {
		return fmt.Errorf("ensure reconciliation schema: %w", err)
	}
	return nil
}

// GetOrCreateBankAccount returns the settlement-account scope for a
// provider within a legal entity, creating it the first time it's needed.
func (r *Repository) GetOrCreateBankAccount(ctx context.Context, tenantID, legalEntityID, providerName string) (*BankAccount, error) {
	var a BankAccount
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, provider_name, created_at
		FROM reconciliation_bank_accounts WHERE tenant_id = $1 AND legal_entity_id = $2 AND provider_name = $3
	`, tenantID, legalEntityID, providerName).Scan(&a.ID, &a.TenantID, &a.LegalEntityID, &a.ProviderName, &a.CreatedAt)
	if err == nil {
		return &a, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("get reconciliation bank account: %w", err)
	}

	a = BankAccount{
		ID: uuid.New().String(), TenantID: tenantID, LegalEntityID: legalEntityID,
		ProviderName: providerName, CreatedAt: time.Now(),
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO reconciliation_bank_accounts (id, tenant_id, legal_entity_id, provider_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, legal_entity_id, provider_name) DO NOTHING
	`, a.ID, a.TenantID, a.LegalEntityID, a.ProviderName, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create reconciliation bank account: %w", err)
	}
	return r.GetOrCreateBankAccount(ctx, tenantID, legalEntityID, providerName)
}

// UpsertSettlement inserts a settlement or, on conflict with an existing
// (bank_account_id, external_trace_id), updates its status and merges the
// raw payload, pushing effective_date forward if the new value is later
// (§4.10).
func (r *Repository) UpsertSettlement(ctx context.Context, s *Settlement) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now()
	raw, err := json.Marshal(s.RawPayload)
	if err != nil {
		return false, fmt.Errorf("marshal settlement payload: %w", err)
	}

	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO reconciliation_settlements (
			id, bank_account_id, external_trace_id, effective_date, status,
			amount, currency, direction, return_code, raw_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (bank_account_id, external_trace_id) DO NOTHING
		RETURNING id
	`,
		s.ID, s.BankAccountID, s.ExternalTraceID, s.EffectiveDate, string(s.Status),
		s.Amount, s.Currency, string(s.Direction), s.ReturnCode, raw, now,
	).Scan(&id)
	if err == nil {
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, fmt.Errorf("insert settlement: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		UPDATE reconciliation_settlements
		SET status = $3,
		    return_code = $4,
		    raw_payload = raw_payload || $5::jsonb,
		    effective_date = GREATEST(effective_date, $6),
		    updated_at = $7
		WHERE bank_account_id = $1 AND external_trace_id = $2
	`, s.BankAccountID, s.ExternalTraceID, string(s.Status), s.ReturnCode, raw, s.EffectiveDate, now)
	if err != nil {
		return false, fmt.Errorf("update settlement: %w", err)
	}
	return false, nil
}
