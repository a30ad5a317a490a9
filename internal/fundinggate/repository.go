package fundinggate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for funding-gate evaluation
// persistence. Available-balance arithmetic is not this package's concern —
// it's delegated to internal/ledger's own Balance query (§4.7).
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	InsertEvaluation(ctx context.Context, e *Evaluation) (*Evaluation, bool, error)
	GetEvaluationByIdempotencyKey(ctx context.Context, tenantID, key string) (*Evaluation, error)
}

// Repository is the pgx-backed funding-gate evaluation store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new funding-gate repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the funding-gate evaluation table if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS funding_gate_evaluations (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			pay_run_id UUID,
			idempotency_key TEXT NOT NULL,
			outcome TEXT NOT NULL,
			required NUMERIC(18,2) NOT NULL,
			available NUMERIC(18,2) NOT NULL,
			reasons JSONB NOT NULL DEFAULT '[]',
			strict BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_funding_gate_evaluations_run ON funding_gate_evaluations(tenant_id, pay_run_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure funding gate schema: %w", err)
	}
	return nil
}

// InsertEvaluation persists an evaluation idempotently by (tenant_id,
// idempotency_key): a repeat evaluation under the same key returns the
// existing row and reports created=false, never writing a second row (I3).
func (r *Repository) InsertEvaluation(ctx context.Context, e *Evaluation) (*Evaluation, bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	reasons, err := json.Marshal(e.Reasons)
	if err != nil {
		return nil, false, fmt.Errorf("marshal gate reasons: %w", err)
	}

	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO funding_gate_evaluations (
			id, tenant_id, legal_entity_id, pay_run_id, idempotency_key,
			outcome, required, available, reasons, strict
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`,
		e.ID, e.TenantID, e.LegalEntityID, nullableString(e.PayRunID), e.IdempotencyKey,
		string(e.Outcome), e.Required, e.Available, reasons, e.Strict,
	).Scan(&id)

	if err == pgx.ErrNoRows {
		existing, getErr := r.GetEvaluationByIdempotencyKey(ctx, e.TenantID, e.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert funding gate evaluation: %w", err)
	}
	return e, true, nil
}

// GetEvaluationByIdempotencyKey looks up a previously persisted evaluation.
func (r *Repository) GetEvaluationByIdempotencyKey(ctx context.Context, tenantID, key string) (*Evaluation, error) {
	var e Evaluation
	var payRunID *string
	var reasons []byte
	var outcome string
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, pay_run_id, idempotency_key,
		       outcome, required, available, reasons, strict
		FROM funding_gate_evaluations WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key).Scan(
		&e.ID, &e.TenantID, &e.LegalEntityID, &payRunID, &e.IdempotencyKey,
		&outcome, &e.Required, &e.Available, &reasons, &e.Strict,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("funding gate evaluation not found for key %q", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get funding gate evaluation: %w", err)
	}
	e.Outcome = Outcome(outcome)
	if payRunID != nil {
		e.PayRunID = *payRunID
	}
	if err := json.Unmarshal(reasons, &e.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal gate reasons: %w", err)
	}
	return &e, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
