package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for payment instruction and
// attempt data access.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	CreateInstruction(ctx context.Context, inst *Instruction) (*Instruction, bool, error)
	GetInstruction(ctx context.Context, tenantID, instructionID string) (*Instruction, error)
	GetInstructionByIdempotencyKey(ctx context.Context, tenantID, key string) (*Instruction, error)
	UpdateInstructionStatus(ctx context.Context, tenantID, instructionID string, status InstructionStatus, providerName string) error
	CreateAttempt(ctx context.Context, a *Attempt) (*Attempt, bool, error)
	ListAttemptsByInstruction(ctx context.Context, tenantID, instructionID string) ([]Attempt, error)
	UpdateAttemptStatus(ctx context.Context, attemptID string, status AttemptStatus, message, externalTraceID, returnCode string) error
	FindAttemptByExternalTraceID(ctx context.Context, provider, externalTraceID string) (*Attempt, error)
	GetInstructionByID(ctx context.Context, instructionID string) (*Instruction, error)
}

// Repository is the pgx-backed payment store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payment repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the payment tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payment_instructions (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			purpose TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			payee_name TEXT NOT NULL DEFAULT '',
			payee_account_ref TEXT NOT NULL DEFAULT '',
			payee_routing_ref TEXT NOT NULL DEFAULT '',
			payee_rail TEXT NOT NULL DEFAULT '',
			payee_address_line1 TEXT NOT NULL DEFAULT '',
			payee_address_line2 TEXT NOT NULL DEFAULT '',
			payee_city TEXT NOT NULL DEFAULT '',
			payee_state TEXT NOT NULL DEFAULT '',
			payee_postal_code TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			requested_settlement_date TIMESTAMPTZ,
			status TEXT NOT NULL,
			provider_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_payment_instructions_status ON payment_instructions(tenant_id, status);

		CREATE TABLE IF NOT EXISTS payment_attempts (
			id UUID PRIMARY KEY,
			instruction_id UUID NOT NULL REFERENCES payment_instructions(id),
			provider TEXT NOT NULL,
			provider_request_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			trace_id TEXT NOT NULL DEFAULT '',
			external_trace_id TEXT NOT NULL DEFAULT '',
			estimated_settlement_date TIMESTAMPTZ,
			return_code TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (provider, provider_request_id)
		);
		CREATE INDEX IF NOT EXISTS idx_payment_attempts_instruction ON payment_attempts(instruction_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure payments schema: %w", err)
	}
	return nil
}

// CreateInstruction inserts a payment instruction idempotently by
// (tenant_id, idempotency_key): a repeat insert under the same key returns
// the existing row and reports created=false.
func (r *Repository) CreateInstruction(ctx context.Context, inst *Instruction) (*Instruction, bool, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_instructions (
			id, tenant_id, legal_entity_id, purpose, amount, currency,
			payee_name, payee_account_ref, payee_routing_ref, payee_rail,
			payee_address_line1, payee_address_line2, payee_city, payee_state, payee_postal_code,
			direction, idempotency_key, source, requested_settlement_date,
			status, provider_name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`,
		inst.ID, inst.TenantID, inst.LegalEntityID, inst.Purpose, inst.Amount, inst.Currency,
		inst.Payee.Name, inst.Payee.AccountRef, inst.Payee.RoutingRef, string(inst.Payee.Rail),
		inst.Payee.AddressLine1, inst.Payee.AddressLine2, inst.Payee.City, inst.Payee.State, inst.Payee.PostalCode,
		string(inst.Direction), inst.IdempotencyKey, inst.Source, inst.RequestedSettlementDate,
		string(inst.Status), inst.ProviderName, inst.CreatedAt, inst.UpdatedAt,
	).Scan(&id)

	if err == pgx.ErrNoRows {
		existing, getErr := r.GetInstructionByIdempotencyKey(ctx, inst.TenantID, inst.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create payment instruction: %w", err)
	}
	return inst, true, nil
}

// GetInstruction retrieves a payment instruction by ID.
func (r *Repository) GetInstruction(ctx context.Context, tenantID, instructionID string) (*Instruction, error) {
	return r.scanInstruction(ctx, `
		SELECT id, tenant_id, legal_entity_id, purpose, amount, currency,
		       payee_name, payee_account_ref, payee_routing_ref, payee_rail,
		       payee_address_line1, payee_address_line2, payee_city, payee_state, payee_postal_code,
		       direction, idempotency_key, source, requested_settlement_date,
		       status, provider_name, created_at, updated_at
		FROM payment_instructions WHERE tenant_id = $1 AND id = $2
	`, tenantID, instructionID)
}

// GetInstructionByIdempotencyKey looks up a previously created instruction
// by its idempotency key.
func (r *Repository) GetInstructionByIdempotencyKey(ctx context.Context, tenantID, key string) (*Instruction, error) {
	return r.scanInstruction(ctx, `
		SELECT id, tenant_id, legal_entity_id, purpose, amount, currency,
		       payee_name, payee_account_ref, payee_routing_ref, payee_rail,
		       payee_address_line1, payee_address_line2, payee_city, payee_state, payee_postal_code,
		       direction, idempotency_key, source, requested_settlement_date,
		       status, provider_name, created_at, updated_at
		FROM payment_instructions WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key)
}

func (r *Repository) scanInstruction(ctx context.Context, query, tenantID, key string) (*Instruction, error) {
	var inst Instruction
	var rail, direction, status string
	err := r.db.QueryRow(ctx, query, tenantID, key).Scan(
		&inst.ID, &inst.TenantID, &inst.LegalEntityID, &inst.Purpose, &inst.Amount, &inst.Currency,
		&inst.Payee.Name, &inst.Payee.AccountRef, &inst.Payee.RoutingRef, &rail,
		&inst.Payee.AddressLine1, &inst.Payee.AddressLine2, &inst.Payee.City, &inst.Payee.State, &inst.Payee.PostalCode,
		&direction, &inst.IdempotencyKey, &inst.Source, &inst.RequestedSettlementDate,
		&status, &inst.ProviderName, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("payment instruction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment instruction: %w", err)
	}
	inst.Payee.Rail = Rail(rail)
	inst.Direction = Direction(direction)
	inst.Status = InstructionStatus(status)
	return &inst, nil
}

// UpdateInstructionStatus transitions an instruction's status and, when
// providerName is non-empty, records which provider handled it.
func (r *Repository) UpdateInstructionStatus(ctx context.Context, tenantID, instructionID string, status InstructionStatus, providerName string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE payment_instructions
		SET status = $3, provider_name = CASE WHEN $4 = '' THEN provider_name ELSE $4 END, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, instructionID, string(status), providerName)
	if err != nil {
		return fmt.Errorf("update payment instruction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment instruction not found: %s", instructionID)
	}
	return nil
}

// CreateAttempt inserts a payment attempt idempotently by (provider,
// provider_request_id): a repeat insert for the same provider request
// returns the existing row and reports created=false.
func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) (*Attempt, bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_attempts (
			id, instruction_id, provider, provider_request_id, status, message,
			trace_id, external_trace_id, estimated_settlement_date, return_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, provider_request_id) DO NOTHING
		RETURNING id
	`,
		a.ID, a.InstructionID, a.Provider, a.ProviderRequestID, string(a.Status), a.Message,
		a.TraceID, a.ExternalTraceID, a.EstimatedSettlementAt, a.ReturnCode, a.CreatedAt,
	).Scan(&id)

	if err == pgx.ErrNoRows {
		existing, getErr := r.getAttemptByProviderRequestID(ctx, a.Provider, a.ProviderRequestID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create payment attempt: %w", err)
	}
	return a, true, nil
}

func (r *Repository) getAttemptByProviderRequestID(ctx context.Context, provider, providerRequestID string) (*Attempt, error) {
	return r.scanAttempt(ctx, `
		SELECT id, instruction_id, provider, provider_request_id, status, message,
		       trace_id, external_trace_id, estimated_settlement_date, return_code, created_at
		FROM payment_attempts WHERE provider = $1 AND provider_request_id = $2
	`, provider, providerRequestID)
}

// ListAttemptsByInstruction returns every attempt made for an instruction,
// oldest first.
func (r *Repository) ListAttemptsByInstruction(ctx context.Context, tenantID, instructionID string) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.instruction_id, a.provider, a.provider_request_id, a.status, a.message,
		       a.trace_id, a.external_trace_id, a.estimated_settlement_date, a.return_code, a.created_at
		FROM payment_attempts a
		JOIN payment_instructions i ON i.id = a.instruction_id
		WHERE i.tenant_id = $1 AND a.instruction_id = $2
		ORDER BY a.created_at
	`, tenantID, instructionID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(
			&a.ID, &a.InstructionID, &a.Provider, &a.ProviderRequestID, &status, &a.Message,
			&a.TraceID, &a.ExternalTraceID, &a.EstimatedSettlementAt, &a.ReturnCode, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		a.Status = AttemptStatus(status)
		out = append(out, a)
	}
	return out, nil
}

func (r *Repository) scanAttempt(ctx context.Context, query, arg1, arg2 string) (*Attempt, error) {
	var a Attempt
	var status string
	err := r.db.QueryRow(ctx, query, arg1, arg2).Scan(
		&a.ID, &a.InstructionID, &a.Provider, &a.ProviderRequestID, &status, &a.Message,
		&a.TraceID, &a.ExternalTraceID, &a.EstimatedSettlementAt, &a.ReturnCode, &a.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("payment attempt not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	a.Status = AttemptStatus(status)
	return &a, nil
}

// FindAttemptByExternalTraceID looks up the attempt a rail's settlement
// record matches back to, by the provider-reported trace id recorded at
// submit or status-refresh time (§4.10).
func (r *Repository) FindAttemptByExternalTraceID(ctx context.Context, provider, externalTraceID string) (*Attempt, error) {
	return r.scanAttempt(ctx, `
		SELECT id, instruction_id, provider, provider_request_id, status, message,
		       trace_id, external_trace_id, estimated_settlement_date, return_code, created_at
		FROM payment_attempts WHERE provider = $1 AND external_trace_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, provider, externalTraceID)
}

// GetInstructionByID retrieves a payment instruction without a tenant
// filter, for the reconciliation path where the tenant is only known once
// the matching instruction has been found.
func (r *Repository) GetInstructionByID(ctx context.Context, instructionID string) (*Instruction, error) {
	var inst Instruction
	var rail, direction, status string
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, purpose, amount, currency,
		       payee_name, payee_account_ref, payee_routing_ref, payee_rail,
		       payee_address_line1, payee_address_line2, payee_city, payee_state, payee_postal_code,
		       direction, idempotency_key, source, requested_settlement_date,
		       status, provider_name, created_at, updated_at
		FROM payment_instructions WHERE id = $1
	`, instructionID).Scan(
		&inst.ID, &inst.TenantID, &inst.LegalEntityID, &inst.Purpose, &inst.Amount, &inst.Currency,
		&inst.Payee.Name, &inst.Payee.AccountRef, &inst.Payee.RoutingRef, &rail,
		&inst.Payee.AddressLine1, &inst.Payee.AddressLine2, &inst.Payee.City, &inst.Payee.State, &inst.Payee.PostalCode,
		&direction, &inst.IdempotencyKey, &inst.Source, &inst.RequestedSettlementDate,
		&status, &inst.ProviderName, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("payment instruction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment instruction: %w", err)
	}
	inst.Payee.Rail = Rail(rail)
	inst.Direction = Direction(direction)
	inst.Status = InstructionStatus(status)
	return &inst, nil
}

// UpdateAttemptStatus records a provider's reported status for one attempt.
func (r *Repository) UpdateAttemptStatus(ctx context.Context, attemptID string, status AttemptStatus, message, externalTraceID, returnCode string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE payment_attempts
		SET status = $2, message = $3, external_trace_id = $4, return_code = $5
		WHERE id = $1
	`, attemptID, string(status), message, externalTraceID, returnCode)
	if err != nil {
		return fmt.Errorf("update payment attempt status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment attempt not found: %s", attemptID)
	}
	return nil
}
