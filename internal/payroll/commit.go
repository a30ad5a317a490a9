package payroll

import (
	"context"
	"fmt"
)

// CalculationMismatchError reports that a caller's committed calculation no
// longer matches what the engine would produce from current inputs (§4.4):
// the pay run must be reopened and recalculated, never silently overwritten.
type CalculationMismatchError struct {
	EmployeeID    string
	Expected      string
	Got           string
}

func (e *CalculationMismatchError) Error() string {
	return fmt.Sprintf("calculation mismatch for employee %s: expected calculation_id %s, got %s", e.EmployeeID, e.Expected, e.Got)
}

// CommitRepository is the persistence surface the commit path depends on.
// Implemented by both the pgx and gorm repositories.
type CommitRepository interface {
	// WithAdvisoryLock runs fn holding a transaction-scoped Postgres advisory
	// lock keyed on payRunID, serializing concurrent commit attempts for the
	// same run (§5).
	WithAdvisoryLock(ctx context.Context, payRunID string, fn func(ctx context.Context) error) error
	GetPayRun(ctx context.Context, tenantID, payRunID string) (*PayRun, error)
	UpdatePayRunStatusCAS(ctx context.Context, tenantID, payRunID string, from, to Status) (bool, error)
	// GetPayRunEmployeeID resolves the pay-run-employee row backing one
	// employee's inclusion in payRunID — the unique key a statement is
	// pinned to (§3: "Pay Statement: one per pay-run-employee").
	GetPayRunEmployeeID(ctx context.Context, payRunID, employeeID string) (string, error)
	GetStatementByPayRunEmployeeID(ctx context.Context, tenantID, payRunEmployeeID string) (*PayStatement, error)
	InsertStatement(ctx context.Context, tenantID string, stmt *PayStatement, lines []PayLineItem) error
}

// Commit materializes every CalculationResult in results as a PayStatement
// with its line items, transitioning the pay run from approved to committed
// (§4.3, §4.4, §4.5 step 12). The whole operation runs inside a single
// advisory-locked critical section so two concurrent commit attempts for the
// same pay run can't interleave (§5).
//
// Re-submitting the exact same results against an already-committed run is a
// no-op: each statement is looked up by its pay_run_employee_id first — the
// unique key §4.4 requires — and only inserted if absent. Submitting a
// result whose calculation_id disagrees with what's already recorded for
// that pay-run-employee is rejected with CalculationMismatchError regardless
// of whether the run has finished committing, since a retry can race the
// CAS to committed; the caller must reopen and recalculate instead.
func Commit(ctx context.Context, repo CommitRepository, tenantID, payRunID string, results []CalculationResult) ([]PayStatement, error) {
	var statements []PayStatement

	err := repo.WithAdvisoryLock(ctx, payRunID, func(ctx context.Context) error {
		run, err := repo.GetPayRun(ctx, tenantID, payRunID)
		if err != nil {
			return fmt.Errorf("load pay run: %w", err)
		}
		alreadyCommitted := run.Status == StatusCommitted || run.Status == StatusPaid
		if !alreadyCommitted {
			if err := ValidateTransition(run.Status, StatusCommitted); err != nil {
				return err
			}
		}

		for _, r := range results {
			payRunEmployeeID, err := repo.GetPayRunEmployeeID(ctx, payRunID, r.EmployeeID)
			if err != nil {
				return fmt.Errorf("resolve pay run employee for %s: %w", r.EmployeeID, err)
			}

			existing, err := repo.GetStatementByPayRunEmployeeID(ctx, tenantID, payRunEmployeeID)
			if err != nil {
				return fmt.Errorf("load existing statement for employee %s: %w", r.EmployeeID, err)
			}
			if existing != nil {
				if existing.CalculationID != r.CalculationID {
					return &CalculationMismatchError{EmployeeID: r.EmployeeID, Expected: existing.CalculationID, Got: r.CalculationID}
				}
				statements = append(statements, *existing)
				continue
			}
			if alreadyCommitted {
				return fmt.Errorf("pay run employee %s has no statement on a committed run", r.EmployeeID)
			}

			stmt := PayStatement{
				PayRunID:         payRunID,
				PayRunEmployeeID: payRunEmployeeID,
				EmployeeID:       r.EmployeeID,
				CalculationID:    r.CalculationID,
				NetPay:           r.Net,
				GrossPay:         r.Gross,
			}
			lines := make([]PayLineItem, len(r.Lines))
			for i, lc := range r.Lines {
				lines[i] = PayLineItem{LineCandidate: lc}
			}
			if err := repo.InsertStatement(ctx, tenantID, &stmt, lines); err != nil {
				return fmt.Errorf("insert statement for employee %s: %w", r.EmployeeID, err)
			}
			statements = append(statements, stmt)
		}

		if alreadyCommitted {
			return nil
		}

		ok, err := repo.UpdatePayRunStatusCAS(ctx, tenantID, payRunID, StatusApproved, StatusCommitted)
		if err != nil {
			return fmt.Errorf("transition pay run to committed: %w", err)
		}
		if !ok {
			return &InvalidTransitionError{From: run.Status, To: StatusCommitted, Reason: "pay run status changed concurrently"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statements, nil
}
