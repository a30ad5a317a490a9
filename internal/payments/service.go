package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/apierror"
	"github.com/ledgerline/payroll-psp/internal/events"
	"github.com/ledgerline/payroll-psp/internal/railprovider"
)

// DefaultRetryCount bounds how many times Submit retries a transient
// provider error before giving up, when a provider's own configuration
// doesn't specify one (§7 ProviderError taxonomy).
const DefaultRetryCount = 3

// Service is the payment orchestrator: it creates instructions
// idempotently, selects a rail provider by capability match, and tracks
// each submission attempt through to a terminal status (§4.8).
type Service struct {
	repo       RepositoryInterface
	registry   *railprovider.Registry
	emitter    *events.Emitter
	retryCount int
}

// NewService creates a pgx-backed payment orchestrator.
func NewService(db *pgxpool.Pool, registry *railprovider.Registry, emitter *events.Emitter) *Service {
	return &Service{repo: NewRepository(db), registry: registry, emitter: emitter, retryCount: DefaultRetryCount}
}

// NewServiceWithRepository creates a payment orchestrator over an arbitrary
// repository implementation (used by tests and the gorm-backed adapter).
func NewServiceWithRepository(repo RepositoryInterface, registry *railprovider.Registry, emitter *events.Emitter) *Service {
	return &Service{repo: repo, registry: registry, emitter: emitter, retryCount: DefaultRetryCount}
}

// WithRetryCount overrides the transient-error retry budget.
func (s *Service) WithRetryCount(n int) *Service {
	s.retryCount = n
	return s
}

// EnsureSchema bootstraps the payment tables.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// CreateInstruction registers a new payment instruction, idempotent by
// (tenant_id, idempotency_key): a repeat call with the same key returns the
// original instruction rather than creating a second one (§4.8).
func (s *Service) CreateInstruction(ctx context.Context, inst Instruction) (*Instruction, error) {
	if inst.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency_key is required")
	}
	if inst.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	if inst.Payee.Rail == "" {
		return nil, fmt.Errorf("payee.rail is required")
	}
	if inst.Direction == "" {
		inst.Direction = DirectionCredit
	}
	inst.Status = InstructionCreated

	created, isNew, err := s.repo.CreateInstruction(ctx, &inst)
	if err != nil {
		return nil, fmt.Errorf("create payment instruction: %w", err)
	}
	if isNew && s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypePaymentInstructionCreated, created.TenantID, created.ID, map[string]any{
			"instruction_id": created.ID,
			"purpose":        created.Purpose,
			"amount":         created.Amount.StringFixed(2),
			"rail":           string(created.Payee.Rail),
		}))
	}
	return created, nil
}

// ErrNoProviderAccepted is returned when every retry of a transient
// provider error is exhausted without acceptance.
var ErrNoProviderAccepted = errors.New("payments: provider did not accept the instruction")

// Submit selects a rail provider by capability match (ties broken by
// configuration-declared priority) and submits the instruction, persisting
// a payment attempt unique by (provider, provider_request_id) and moving
// the instruction to accepted or failed (§4.8). Transient provider errors
// are retried up to the service's retry budget; permanent errors fail the
// instruction immediately (§7).
func (s *Service) Submit(ctx context.Context, tenantID, instructionID string) (*Attempt, error) {
	inst, err := s.repo.GetInstruction(ctx, tenantID, instructionID)
	if err != nil {
		return nil, fmt.Errorf("load instruction: %w", err)
	}
	if inst.Status != InstructionCreated {
		return nil, fmt.Errorf("instruction %s is %s, not %s", instructionID, inst.Status, InstructionCreated)
	}

	provider, err := s.registry.Select(inst.Payee.Rail, inst.Direction)
	if err != nil {
		return nil, fmt.Errorf("select rail provider: %w", err)
	}

	payload := railprovider.InstructionPayload{
		InstructionID:   inst.ID,
		Amount:          inst.Amount,
		Currency:        inst.Currency,
		PayeeName:       inst.Payee.Name,
		PayeeAccountRef: inst.Payee.AccountRef,
		PayeeRoutingRef: inst.Payee.RoutingRef,
		Rail:            inst.Payee.Rail,
		Direction:       inst.Direction,
		SettlementDate:  inst.RequestedSettlementDate,
	}

	var result railprovider.SubmitResult
	var submitErr error
	attempts := s.retryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		result, submitErr = provider.Submit(ctx, payload)
		if submitErr == nil {
			break
		}
		var perr *railprovider.ProviderError
		if errors.As(submitErr, &perr) && perr.Class == railprovider.ErrorPermanent {
			break
		}
		// transient (or unclassified) errors retry; the loop falls through
		// to the next attempt unless this was the last one.
	}

	if submitErr != nil {
		return s.failInstruction(ctx, inst, provider.Name(), submitErr)
	}
	if !result.Accepted {
		return s.failInstruction(ctx, inst, provider.Name(), fmt.Errorf("%s", result.Message))
	}

	attempt := &Attempt{
		InstructionID:         inst.ID,
		Provider:              provider.Name(),
		ProviderRequestID:     result.ProviderRequestID,
		Status:                AttemptAccepted,
		Message:               result.Message,
		TraceID:               result.TraceID,
		ExternalTraceID:       result.TraceID,
		EstimatedSettlementAt: result.EstimatedSettlementDate,
	}
	persisted, isNew, err := s.repo.CreateAttempt(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("persist payment attempt: %w", err)
	}

	if err := s.repo.UpdateInstructionStatus(ctx, tenantID, inst.ID, InstructionAccepted, provider.Name()); err != nil {
		return nil, fmt.Errorf("update instruction status: %w", err)
	}

	if isNew && s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypePaymentSubmitted, tenantID, inst.ID, map[string]any{
			"instruction_id":      inst.ID,
			"provider":            provider.Name(),
			"provider_request_id": persisted.ProviderRequestID,
		}))
		s.emitter.Emit(ctx, events.New(events.TypePaymentAccepted, tenantID, inst.ID, map[string]any{
			"instruction_id": inst.ID,
			"provider":       provider.Name(),
		}))
	}
	return persisted, nil
}

func (s *Service) failInstruction(ctx context.Context, inst *Instruction, providerName string, cause error) (*Attempt, error) {
	if err := s.repo.UpdateInstructionStatus(ctx, inst.TenantID, inst.ID, InstructionFailed, providerName); err != nil {
		return nil, fmt.Errorf("mark instruction failed: %w", err)
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypePaymentFailed, inst.TenantID, inst.ID, map[string]any{
			"instruction_id": inst.ID,
			"provider":       providerName,
			"reason":         apierror.Sanitize(cause.Error()),
		}))
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProviderAccepted, cause)
}

// RefreshStatus polls the provider that handled an attempt and updates the
// attempt's and instruction's recorded status from the provider's response.
func (s *Service) RefreshStatus(ctx context.Context, tenantID, instructionID string) (*Attempt, error) {
	inst, err := s.repo.GetInstruction(ctx, tenantID, instructionID)
	if err != nil {
		return nil, fmt.Errorf("load instruction: %w", err)
	}
	attempts, err := s.repo.ListAttemptsByInstruction(ctx, tenantID, instructionID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("instruction %s has no submitted attempts", instructionID)
	}
	latest := attempts[len(attempts)-1]

	provider, ok := s.registry.Get(inst.ProviderName)
	if !ok {
		return nil, fmt.Errorf("rail provider %q not registered", inst.ProviderName)
	}
	status, err := provider.GetStatus(ctx, latest.ProviderRequestID)
	if err != nil {
		return nil, fmt.Errorf("get provider status: %w", err)
	}

	mapped := mapProviderStatus(status.Status)
	if err := s.repo.UpdateAttemptStatus(ctx, latest.ID, mapped, status.Message, status.ExternalTraceID, status.ReturnCode); err != nil {
		return nil, fmt.Errorf("update attempt status: %w", err)
	}

	instStatus := instructionStatusFor(mapped)
	if instStatus != "" && instStatus != inst.Status {
		if err := s.repo.UpdateInstructionStatus(ctx, tenantID, inst.ID, instStatus, inst.ProviderName); err != nil {
			return nil, fmt.Errorf("update instruction status: %w", err)
		}
		if s.emitter != nil {
			s.emitter.Emit(ctx, events.New(eventTypeFor(instStatus), tenantID, inst.ID, map[string]any{
				"instruction_id": inst.ID,
				"provider":       inst.ProviderName,
			}))
		}
	}

	latest.Status = mapped
	latest.Message = status.Message
	latest.ExternalTraceID = status.ExternalTraceID
	latest.ReturnCode = status.ReturnCode
	return &latest, nil
}

func mapProviderStatus(s railprovider.Status) AttemptStatus {
	switch s {
	case railprovider.StatusSubmitted:
		return AttemptSubmitted
	case railprovider.StatusAccepted:
		return AttemptAccepted
	case railprovider.StatusSettled:
		return AttemptSettled
	case railprovider.StatusFailed:
		return AttemptFailed
	case railprovider.StatusReversed:
		return AttemptReversed
	case railprovider.StatusReturned:
		return AttemptReturned
	default:
		return AttemptUnknown
	}
}

func instructionStatusFor(a AttemptStatus) InstructionStatus {
	switch a {
	case AttemptSettled:
		return InstructionSettled
	case AttemptFailed:
		return InstructionFailed
	case AttemptReturned:
		return InstructionReturned
	default:
		return ""
	}
}

func eventTypeFor(s InstructionStatus) events.Type {
	switch s {
	case InstructionSettled:
		return events.TypePaymentSettled
	case InstructionFailed:
		return events.TypePaymentFailed
	case InstructionReturned:
		return events.TypePaymentReturned
	default:
		return events.TypePaymentAccepted
	}
}

// HandleSettlement matches a rail-reported settlement record back to the
// instruction it belongs to by (provider, external_trace_id) and, on a
// terminal status, transitions the instruction accordingly (§4.10). A
// record that matches no known attempt is reported to the caller rather
// than treated as an error, so reconciliation can count it as unmatched.
func (s *Service) HandleSettlement(ctx context.Context, provider string, record railprovider.SettlementRecord) (matched bool, err error) {
	attempt, err := s.repo.FindAttemptByExternalTraceID(ctx, provider, record.ExternalTraceID)
	if err != nil {
		return false, nil
	}

	mapped := mapProviderStatus(record.Status)
	if err := s.repo.UpdateAttemptStatus(ctx, attempt.ID, mapped, string(record.Status), record.ExternalTraceID, record.ReturnCode); err != nil {
		return true, fmt.Errorf("update attempt status from settlement: %w", err)
	}

	inst, err := s.repo.GetInstructionByID(ctx, attempt.InstructionID)
	if err != nil {
		return true, fmt.Errorf("load instruction for settlement: %w", err)
	}

	instStatus := instructionStatusFor(mapped)
	if instStatus != "" && instStatus != inst.Status {
		if err := s.repo.UpdateInstructionStatus(ctx, inst.TenantID, inst.ID, instStatus, inst.ProviderName); err != nil {
			return true, fmt.Errorf("update instruction status from settlement: %w", err)
		}
		if s.emitter != nil {
			s.emitter.Emit(ctx, events.New(eventTypeFor(instStatus), inst.TenantID, inst.ID, map[string]any{
				"instruction_id":    inst.ID,
				"provider":          provider,
				"external_trace_id": record.ExternalTraceID,
			}))
		}
	}
	return true, nil
}

// Cancel attempts to cancel the latest attempt on an instruction via its
// rail provider, marking the instruction canceled on success.
func (s *Service) Cancel(ctx context.Context, tenantID, instructionID string) error {
	inst, err := s.repo.GetInstruction(ctx, tenantID, instructionID)
	if err != nil {
		return fmt.Errorf("load instruction: %w", err)
	}
	attempts, err := s.repo.ListAttemptsByInstruction(ctx, tenantID, instructionID)
	if err != nil {
		return fmt.Errorf("list payment attempts: %w", err)
	}
	if len(attempts) == 0 {
		return fmt.Errorf("instruction %s has no submitted attempts to cancel", instructionID)
	}
	latest := attempts[len(attempts)-1]

	provider, ok := s.registry.Get(inst.ProviderName)
	if !ok {
		return fmt.Errorf("rail provider %q not registered", inst.ProviderName)
	}
	result, err := provider.Cancel(ctx, latest.ProviderRequestID)
	if err != nil {
		return fmt.Errorf("cancel via provider: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("provider refused cancellation: %s", result.Message)
	}

	if err := s.repo.UpdateInstructionStatus(ctx, tenantID, inst.ID, InstructionCanceled, inst.ProviderName); err != nil {
		return fmt.Errorf("mark instruction canceled: %w", err)
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypePaymentCanceled, tenantID, inst.ID, map[string]any{
			"instruction_id": inst.ID,
			"provider":       inst.ProviderName,
		}))
	}
	return nil
}
