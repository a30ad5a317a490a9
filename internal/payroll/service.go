package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// Service is the pay-run lifecycle: preview, approve, commit, reopen, void,
// each an explicit operation over the state machine of §4.3.
type Service struct {
	repo    RepositoryInterface
	engine  *Engine
	emitter *events.Emitter
}

// NewService creates a pgx-backed payroll service.
func NewService(db *pgxpool.Pool, emitter *events.Emitter) *Service {
	return &Service{repo: NewRepository(db), engine: NewEngine(), emitter: emitter}
}

// NewServiceWithRepository creates a payroll service over an arbitrary
// repository implementation (used by tests and the gorm-backed adapter).
func NewServiceWithRepository(repo RepositoryInterface, emitter *events.Emitter) *Service {
	return &Service{repo: repo, engine: NewEngine(), emitter: emitter}
}

// EnsureSchema bootstraps the payroll tables.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// PreviewRun runs the calculation engine for every employee with inputs in
// the run's pay period and records each one's inclusion outcome. Calling it
// again while already in preview recomputes without disturbing status — the
// operation is a read-mostly projection, not a side-effecting transition
// (§4.5).
func (s *Service) PreviewRun(ctx context.Context, tenantID, payRunID string, asOf time.Time) ([]PayRunEmployee, error) {
	run, err := s.repo.GetPayRun(ctx, tenantID, payRunID)
	if err != nil {
		return nil, err
	}
	if run.Status == StatusDraft {
		if err := ValidateTransition(run.Status, StatusPreview); err != nil {
			return nil, err
		}
		if _, err := s.casStatus(ctx, tenantID, payRunID, StatusDraft, StatusPreview); err != nil {
			return nil, err
		}
	} else if run.Status != StatusPreview {
		return nil, &InvalidTransitionError{From: run.Status, To: StatusPreview, Reason: "preview is only re-enterable from draft or preview"}
	}

	timeEntries, err := s.repo.ListTimeEntries(ctx, tenantID, run.PayPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	adjustments, err := s.repo.ListAdjustments(ctx, tenantID, run.PayPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	taxRules, err := s.repo.ListEffectiveTaxRules(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list effective tax rules: %w", err)
	}

	byEmployee := make(map[string]bool)
	for _, te := range timeEntries {
		byEmployee[te.EmployeeID] = true
	}
	for _, adj := range adjustments {
		byEmployee[adj.EmployeeID] = true
	}

	var results []PayRunEmployee
	for employeeID := range byEmployee {
		result, err := s.calculateEmployee(ctx, tenantID, run, employeeID, asOf, timeEntries, adjustments, Rules{TaxRules: taxRules})
		if err != nil {
			pre := PayRunEmployee{PayRunID: payRunID, EmployeeID: employeeID, Status: InclusionError, ErrorMsg: err.Error()}
			if uerr := s.repo.UpsertPayRunEmployee(ctx, &pre); uerr != nil {
				return nil, uerr
			}
			results = append(results, pre)
			continue
		}
		pre := PayRunEmployee{PayRunID: payRunID, EmployeeID: employeeID, Status: InclusionIncluded, Gross: result.Gross, Net: result.Net}
		if err := s.repo.UpsertPayRunEmployee(ctx, &pre); err != nil {
			return nil, err
		}
		results = append(results, pre)
	}
	return results, nil
}

func (s *Service) calculateEmployee(ctx context.Context, tenantID string, run *PayRun, employeeID string, asOf time.Time, timeEntries []TimeEntry, adjustments []PayInputAdjustment, rules Rules) (CalculationResult, error) {
	var employeeEntries []TimeEntry
	for _, te := range timeEntries {
		if te.EmployeeID == employeeID {
			employeeEntries = append(employeeEntries, te)
		}
	}
	var employeeAdjustments []PayInputAdjustment
	for _, adj := range adjustments {
		if adj.EmployeeID == employeeID {
			employeeAdjustments = append(employeeAdjustments, adj)
		}
	}

	deductions, err := s.repo.ListDeductions(ctx, tenantID, employeeID)
	if err != nil {
		return CalculationResult{}, fmt.Errorf("list deductions: %w", err)
	}
	garnishments, err := s.repo.ListGarnishments(ctx, tenantID, employeeID)
	if err != nil {
		return CalculationResult{}, fmt.Errorf("list garnishments: %w", err)
	}
	rates, err := s.repo.ListRates(ctx, tenantID, employeeID)
	if err != nil {
		return CalculationResult{}, fmt.Errorf("list rates: %w", err)
	}

	return s.engine.Calculate(run.ID, EmployeeInputs{
		EmployeeID:   employeeID,
		AsOf:         asOf,
		TimeEntries:  employeeEntries,
		Adjustments:  employeeAdjustments,
		Deductions:   deductions,
		Garnishments: garnishments,
		Rates:        rates,
	}, rules)
}

// ApproveRun moves a pay run from preview to approved: locks every included
// employee's time entries and adjustments, and requires at least one
// included employee with none in error (§4.3 approve, S2).
func (s *Service) ApproveRun(ctx context.Context, tenantID, payRunID, approvedBy string) error {
	run, err := s.repo.GetPayRun(ctx, tenantID, payRunID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(run.Status, StatusApproved); err != nil {
		return err
	}

	employees, err := s.repo.ListPayRunEmployees(ctx, payRunID)
	if err != nil {
		return err
	}
	included := 0
	for _, e := range employees {
		if e.Status == InclusionError {
			return &InvalidTransitionError{From: run.Status, To: StatusApproved, Reason: fmt.Sprintf("employee %s is in error", e.EmployeeID)}
		}
		if e.Status == InclusionIncluded {
			included++
		}
	}
	if included == 0 {
		return &InvalidTransitionError{From: run.Status, To: StatusApproved, Reason: "pay run has no included employees"}
	}

	timeEntries, err := s.repo.ListTimeEntries(ctx, tenantID, run.PayPeriodID)
	if err != nil {
		return err
	}
	adjustments, err := s.repo.ListAdjustments(ctx, tenantID, run.PayPeriodID)
	if err != nil {
		return err
	}
	timeEntryIDs := make([]string, 0, len(timeEntries))
	for _, te := range timeEntries {
		timeEntryIDs = append(timeEntryIDs, te.ID)
	}
	adjustmentIDs := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		adjustmentIDs = append(adjustmentIDs, adj.ID)
	}

	now := time.Now()
	if err := s.repo.LockInputs(ctx, tenantID, payRunID, timeEntryIDs, adjustmentIDs, now); err != nil {
		return err
	}

	ok, err := s.repo.SetApproval(ctx, tenantID, payRunID, approvedBy, now)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidTransitionError{From: run.Status, To: StatusApproved, Reason: "pay run status changed concurrently"}
	}
	return nil
}

// ReopenRun moves an approved pay run back to preview, unlocking every row
// it had locked and incrementing reopen_count (§4.3 reopen, P7).
func (s *Service) ReopenRun(ctx context.Context, tenantID, payRunID, reason string) error {
	run, err := s.repo.GetPayRun(ctx, tenantID, payRunID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(run.Status, StatusPreview); err != nil {
		return err
	}
	if err := s.repo.UnlockInputs(ctx, tenantID, payRunID); err != nil {
		return err
	}
	ok, err := s.repo.Reopen(ctx, tenantID, payRunID)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidTransitionError{From: run.Status, To: StatusPreview, Reason: "pay run status changed concurrently"}
	}
	return nil
}

// CommitRun materializes results as pay statements and transitions the run
// to committed (§4.4). Emits PayRunCommitted after every successful call,
// including a repeat call against an already-committed run that inserts
// nothing new.
func (s *Service) CommitRun(ctx context.Context, tenantID, payRunID string, results []CalculationResult) ([]PayStatement, error) {
	statements, err := Commit(ctx, s.repo, tenantID, payRunID, results)
	if err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypePayRunCommitted, tenantID, payRunID, map[string]any{
			"pay_run_id":      payRunID,
			"statement_count": len(statements),
		}))
	}
	return statements, nil
}

// VoidRun moves a committed or paid pay run to voided, recording reason
// (§4.3 void). reason must be non-empty.
func (s *Service) VoidRun(ctx context.Context, tenantID, payRunID, reason string) error {
	if reason == "" {
		return fmt.Errorf("void reason is required")
	}
	run, err := s.repo.GetPayRun(ctx, tenantID, payRunID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(run.Status, StatusVoided); err != nil {
		return err
	}
	ok, err := s.repo.SetVoided(ctx, tenantID, payRunID, reason)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidTransitionError{From: run.Status, To: StatusVoided, Reason: "pay run status changed concurrently"}
	}
	return nil
}

func (s *Service) casStatus(ctx context.Context, tenantID, payRunID string, from, to Status) (bool, error) {
	return s.repo.UpdatePayRunStatusCAS(ctx, tenantID, payRunID, from, to)
}
