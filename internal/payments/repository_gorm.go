//go:build gorm

package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// gormInstruction is the GORM row mapping for payment_instructions.
type gormInstruction struct {
	ID                      string `gorm:"primaryKey"`
	TenantID                string `gorm:"uniqueIndex:idx_gorm_payment_instructions_idem"`
	LegalEntityID           string
	Purpose                 string
	Amount                  decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency                string
	PayeeName               string
	PayeeAccountRef         string
	PayeeRoutingRef         string
	PayeeRail               string
	PayeeAddressLine1       string
	PayeeAddressLine2       string
	PayeeCity               string
	PayeeState              string
	PayeePostalCode         string
	Direction               string
	IdempotencyKey          string `gorm:"uniqueIndex:idx_gorm_payment_instructions_idem"`
	Source                  string
	RequestedSettlementDate *time.Time
	Status                  string
	ProviderName            string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (gormInstruction) TableName() string { return "payment_instructions" }

// gormAttempt is the GORM row mapping for payment_attempts.
type gormAttempt struct {
	ID                      string `gorm:"primaryKey"`
	InstructionID           string
	Provider                string `gorm:"uniqueIndex:idx_gorm_payment_attempts_provider_req"`
	ProviderRequestID       string `gorm:"uniqueIndex:idx_gorm_payment_attempts_provider_req"`
	Status                  string
	Message                 string
	TraceID                 string
	ExternalTraceID         string
	EstimatedSettlementDate *time.Time
	ReturnCode              string
	CreatedAt               time.Time
}

func (gormAttempt) TableName() string { return "payment_attempts" }

// GORMRepository implements RepositoryInterface using GORM, an
// alternate data-access path behind the gorm build tag.
type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

func (r *GORMRepository) EnsureSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&gormInstruction{}, &gormAttempt{})
}

func toGormInstruction(inst *Instruction) *gormInstruction {
	return &gormInstruction{
		ID: inst.ID, TenantID: inst.TenantID, LegalEntityID: inst.LegalEntityID,
		Purpose: inst.Purpose, Amount: inst.Amount, Currency: inst.Currency,
		PayeeName: inst.Payee.Name, PayeeAccountRef: inst.Payee.AccountRef, PayeeRoutingRef: inst.Payee.RoutingRef,
		PayeeRail: string(inst.Payee.Rail), PayeeAddressLine1: inst.Payee.AddressLine1, PayeeAddressLine2: inst.Payee.AddressLine2,
		PayeeCity: inst.Payee.City, PayeeState: inst.Payee.State, PayeePostalCode: inst.Payee.PostalCode,
		Direction: string(inst.Direction), IdempotencyKey: inst.IdempotencyKey, Source: inst.Source,
		RequestedSettlementDate: inst.RequestedSettlementDate, Status: string(inst.Status), ProviderName: inst.ProviderName,
		CreatedAt: inst.CreatedAt, UpdatedAt: inst.UpdatedAt,
	}
}

func fromGormInstruction(g *gormInstruction) *Instruction {
	return &Instruction{
		ID: g.ID, TenantID: g.TenantID, LegalEntityID: g.LegalEntityID,
		Purpose: g.Purpose, Amount: g.Amount, Currency: g.Currency,
		Payee: Payee{
			Name: g.PayeeName, AccountRef: g.PayeeAccountRef, RoutingRef: g.PayeeRoutingRef, Rail: Rail(g.PayeeRail),
			AddressLine1: g.PayeeAddressLine1, AddressLine2: g.PayeeAddressLine2,
			City: g.PayeeCity, State: g.PayeeState, PostalCode: g.PayeePostalCode,
		},
		Direction: Direction(g.Direction), IdempotencyKey: g.IdempotencyKey, Source: g.Source,
		RequestedSettlementDate: g.RequestedSettlementDate, Status: InstructionStatus(g.Status), ProviderName: g.ProviderName,
		CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func (r *GORMRepository) CreateInstruction(ctx context.Context, inst *Instruction) (*Instruction, bool, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(toGormInstruction(inst)).Error
	if err != nil {
		existing, getErr := r.GetInstructionByIdempotencyKey(ctx, inst.TenantID, inst.IdempotencyKey)
		if getErr != nil {
			return nil, false, fmt.Errorf("create payment instruction: %w", err)
		}
		return existing, false, nil
	}
	return inst, true, nil
}

func (r *GORMRepository) GetInstruction(ctx context.Context, tenantID, instructionID string) (*Instruction, error) {
	var g gormInstruction
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, instructionID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment instruction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment instruction: %w", err)
	}
	return fromGormInstruction(&g), nil
}

func (r *GORMRepository) GetInstructionByIdempotencyKey(ctx context.Context, tenantID, key string) (*Instruction, error) {
	var g gormInstruction
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment instruction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment instruction: %w", err)
	}
	return fromGormInstruction(&g), nil
}

func (r *GORMRepository) UpdateInstructionStatus(ctx context.Context, tenantID, instructionID string, status InstructionStatus, providerName string) error {
	updates := map[string]any{"status": string(status), "updated_at": time.Now()}
	if providerName != "" {
		updates["provider_name"] = providerName
	}
	result := r.db.WithContext(ctx).Model(&gormInstruction{}).
		Where("tenant_id = ? AND id = ?", tenantID, instructionID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update payment instruction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment instruction not found: %s", instructionID)
	}
	return nil
}

func (r *GORMRepository) CreateAttempt(ctx context.Context, a *Attempt) (*Attempt, bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	g := &gormAttempt{
		ID: a.ID, InstructionID: a.InstructionID, Provider: a.Provider, ProviderRequestID: a.ProviderRequestID,
		Status: string(a.Status), Message: a.Message, TraceID: a.TraceID, ExternalTraceID: a.ExternalTraceID,
		EstimatedSettlementDate: a.EstimatedSettlementAt, ReturnCode: a.ReturnCode, CreatedAt: a.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(g).Error
	if err != nil {
		var existing gormAttempt
		getErr := r.db.WithContext(ctx).
			Where("provider = ? AND provider_request_id = ?", a.Provider, a.ProviderRequestID).
			First(&existing).Error
		if getErr != nil {
			return nil, false, fmt.Errorf("create payment attempt: %w", err)
		}
		return fromGormAttempt(&existing), false, nil
	}
	return a, true, nil
}

func fromGormAttempt(g *gormAttempt) *Attempt {
	return &Attempt{
		ID: g.ID, InstructionID: g.InstructionID, Provider: g.Provider, ProviderRequestID: g.ProviderRequestID,
		Status: AttemptStatus(g.Status), Message: g.Message, TraceID: g.TraceID, ExternalTraceID: g.ExternalTraceID,
		EstimatedSettlementAt: g.EstimatedSettlementDate, ReturnCode: g.ReturnCode, CreatedAt: g.CreatedAt,
	}
}

func (r *GORMRepository) ListAttemptsByInstruction(ctx context.Context, tenantID, instructionID string) ([]Attempt, error) {
	var rows []gormAttempt
	err := r.db.WithContext(ctx).
		Joins("JOIN payment_instructions ON payment_instructions.id = payment_attempts.instruction_id").
		Where("payment_instructions.tenant_id = ? AND payment_attempts.instruction_id = ?", tenantID, instructionID).
		Order("payment_attempts.created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	out := make([]Attempt, len(rows))
	for i := range rows {
		out[i] = *fromGormAttempt(&rows[i])
	}
	return out, nil
}

// FindAttemptByExternalTraceID looks up the attempt a rail's settlement
// record matches back to, by the provider-reported trace id.
func (r *GORMRepository) FindAttemptByExternalTraceID(ctx context.Context, provider, externalTraceID string) (*Attempt, error) {
	var g gormAttempt
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_trace_id = ?", provider, externalTraceID).
		Order("created_at DESC").First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment attempt not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find payment attempt by external trace id: %w", err)
	}
	return fromGormAttempt(&g), nil
}

// GetInstructionByID retrieves a payment instruction without a tenant
// filter, for the reconciliation path.
func (r *GORMRepository) GetInstructionByID(ctx context.Context, instructionID string) (*Instruction, error) {
	var g gormInstruction
	err := r.db.WithContext(ctx).Where("id = ?", instructionID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment instruction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment instruction: %w", err)
	}
	return fromGormInstruction(&g), nil
}

func (r *GORMRepository) UpdateAttemptStatus(ctx context.Context, attemptID string, status AttemptStatus, message, externalTraceID, returnCode string) error {
	result := r.db.WithContext(ctx).Model(&gormAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]any{
			"status": string(status), "message": message,
			"external_trace_id": externalTraceID, "return_code": returnCode,
		})
	if result.Error != nil {
		return fmt.Errorf("update payment attempt status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment attempt not found: %s", attemptID)
	}
	return nil
}
