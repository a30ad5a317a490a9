package fundinggate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/events"
	"github.com/ledgerline/payroll-psp/internal/ledger"
)

// AvailableSource is the subset of internal/ledger's Service this package
// depends on to compute the gate's available side. Kept as a narrow
// interface so tests can fake it without standing up a full ledger.
type AvailableSource interface {
	AvailableForFunding(ctx context.Context, tenantID, legalEntityID string) (decimal.Decimal, error)
}

var _ AvailableSource = (*ledger.Service)(nil)

// Service is the funding gate: it computes required-vs-available and
// persists the outcome idempotently (§4.7).
type Service struct {
	repo    RepositoryInterface
	ledger  AvailableSource
	emitter *events.Emitter
}

// NewService creates a pgx-backed funding gate over a ledger service.
func NewService(db *pgxpool.Pool, ledgerSvc AvailableSource, emitter *events.Emitter) *Service {
	return &Service{repo: NewRepository(db), ledger: ledgerSvc, emitter: emitter}
}

// NewServiceWithRepository creates a funding gate over an arbitrary
// repository implementation (used by tests).
func NewServiceWithRepository(repo RepositoryInterface, ledgerSvc AvailableSource, emitter *events.Emitter) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, emitter: emitter}
}

// EnsureSchema bootstraps the funding-gate evaluation table.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// Evaluate computes required (from model and totals) vs. available (from
// the ledger) and persists the outcome under idempotencyKey. A repeat
// evaluation under the same key returns the original outcome without
// recomputation (I3).
func (s *Service) Evaluate(ctx context.Context, tenantID, legalEntityID, payRunID string, model FundingModel, totals StatementTotals, idempotencyKey string, strict bool) (*Evaluation, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("idempotency_key is required")
	}

	if existing, err := s.repo.GetEvaluationByIdempotencyKey(ctx, tenantID, idempotencyKey); err == nil {
		return existing, nil
	}

	required := model.Required(totals)
	available, err := s.ledger.AvailableForFunding(ctx, tenantID, legalEntityID)
	if err != nil {
		return nil, fmt.Errorf("compute available funds: %w", err)
	}

	eval := &Evaluation{
		TenantID:       tenantID,
		LegalEntityID:  legalEntityID,
		PayRunID:       payRunID,
		IdempotencyKey: idempotencyKey,
		Required:       required,
		Available:      available,
		Strict:         strict,
	}

	if available.GreaterThanOrEqual(required) {
		eval.Outcome = OutcomePass
	} else {
		eval.Reasons = append(eval.Reasons, Reason{
			Code: InsufficientFundsReason,
			Message: fmt.Sprintf("required %s exceeds available %s",
				required.StringFixed(2), available.StringFixed(2)),
		})
		if strict {
			eval.Outcome = OutcomeHardFail
		} else {
			eval.Outcome = OutcomeSoftFail
		}
	}

	persisted, created, err := s.repo.InsertEvaluation(ctx, eval)
	if err != nil {
		return nil, fmt.Errorf("persist funding gate evaluation: %w", err)
	}

	if created && s.emitter != nil {
		s.emitEvaluationEvent(ctx, persisted)
	}
	return persisted, nil
}

// EvaluatePayGate runs the pay-time variant: always strict, never
// bypassable, regardless of what the caller passes (§4.7 Pay-gate variant).
func (s *Service) EvaluatePayGate(ctx context.Context, tenantID, legalEntityID, payRunID string, model FundingModel, totals StatementTotals, idempotencyKey string) (*Evaluation, error) {
	return s.Evaluate(ctx, tenantID, legalEntityID, payRunID, model, totals, idempotencyKey, true)
}

func (s *Service) emitEvaluationEvent(ctx context.Context, eval *Evaluation) {
	payload := map[string]any{
		"evaluation_id": eval.ID,
		"pay_run_id":    eval.PayRunID,
		"required":      eval.Required.StringFixed(2),
		"available":     eval.Available.StringFixed(2),
		"strict":        eval.Strict,
	}

	switch eval.Outcome {
	case OutcomePass:
		s.emitter.Emit(ctx, events.New(events.TypeFundingApproved, eval.TenantID, "", payload))
	case OutcomeHardFail:
		payload["reasons"] = eval.Reasons
		s.emitter.Emit(ctx, events.New(events.TypeFundingBlocked, eval.TenantID, "", payload))
		s.emitter.Emit(ctx, events.New(events.TypeFundingInsufficientFunds, eval.TenantID, "", payload))
	case OutcomeSoftFail:
		payload["reasons"] = eval.Reasons
		s.emitter.Emit(ctx, events.New(events.TypeFundingInsufficientFunds, eval.TenantID, "", payload))
	}
}
