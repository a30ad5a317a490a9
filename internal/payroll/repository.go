package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

// RepositoryInterface defines the contract for payroll data access.
type RepositoryInterface interface {
	CommitRepository

	EnsureSchema(ctx context.Context) error

	CreatePayPeriod(ctx context.Context, p *PayPeriod) error
	CreatePayRun(ctx context.Context, r *PayRun) error
	ListTimeEntries(ctx context.Context, tenantID, payPeriodID string) ([]TimeEntry, error)
	ListAdjustments(ctx context.Context, tenantID, payPeriodID string) ([]PayInputAdjustment, error)
	ListDeductions(ctx context.Context, tenantID, employeeID string) ([]Deduction, error)
	ListGarnishments(ctx context.Context, tenantID, employeeID string) ([]Garnishment, error)
	ListRates(ctx context.Context, tenantID, employeeID string) ([]ratecard.PayRate, error)
	ListEffectiveTaxRules(ctx context.Context, asOf time.Time) ([]TaxRuleVersion, error)
	LockInputs(ctx context.Context, tenantID, payRunID string, timeEntryIDs, adjustmentIDs []string, lockedAt time.Time) error
	UnlockInputs(ctx context.Context, tenantID, payRunID string) error
	UpsertPayRunEmployee(ctx context.Context, e *PayRunEmployee) error
	ListPayRunEmployees(ctx context.Context, payRunID string) ([]PayRunEmployee, error)
	SetApproval(ctx context.Context, tenantID, payRunID, approvedBy string, at time.Time) (bool, error)
	Reopen(ctx context.Context, tenantID, payRunID string) (bool, error)
	SetVoided(ctx context.Context, tenantID, payRunID, reason string) (bool, error)
}

// Repository is the pgx-backed payroll store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payroll repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the payroll tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payroll_employees (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS payroll_employments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL REFERENCES payroll_employees(id),
			legal_entity_id UUID NOT NULL,
			worker_type TEXT NOT NULL,
			pay_type TEXT NOT NULL,
			flsa_status TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE
		);

		CREATE TABLE IF NOT EXISTS payroll_pay_periods (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payroll_pay_runs (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			pay_period_id UUID NOT NULL REFERENCES payroll_pay_periods(id),
			status TEXT NOT NULL,
			reopen_count INT NOT NULL DEFAULT 0,
			approved_at TIMESTAMPTZ,
			approved_by TEXT NOT NULL DEFAULT '',
			committed_at TIMESTAMPTZ,
			void_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS payroll_pay_run_employees (
			id UUID PRIMARY KEY,
			pay_run_id UUID NOT NULL REFERENCES payroll_pay_runs(id),
			employee_id UUID NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			gross NUMERIC(18,2) NOT NULL DEFAULT 0,
			net NUMERIC(18,2) NOT NULL DEFAULT 0,
			UNIQUE (pay_run_id, employee_id)
		);

		CREATE TABLE IF NOT EXISTS payroll_time_entries (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			pay_period_id UUID NOT NULL,
			work_date DATE NOT NULL,
			hours NUMERIC(9,4) NOT NULL,
			dim_job TEXT NOT NULL DEFAULT '',
			dim_project TEXT NOT NULL DEFAULT '',
			dim_department TEXT NOT NULL DEFAULT '',
			dim_worksite TEXT NOT NULL DEFAULT '',
			rate_override NUMERIC(18,4),
			locked_by_pay_run_id UUID,
			locked_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payroll_time_entries_period ON payroll_time_entries(tenant_id, pay_period_id);

		CREATE TABLE IF NOT EXISTS payroll_adjustments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			pay_run_id UUID,
			pay_period_id UUID,
			type TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			pre_tax BOOLEAN NOT NULL DEFAULT false,
			locked_by_pay_run_id UUID,
			locked_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payroll_adjustments_period ON payroll_adjustments(tenant_id, pay_period_id);

		CREATE TABLE IF NOT EXISTS payroll_deductions (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			code TEXT NOT NULL,
			pre_tax BOOLEAN NOT NULL DEFAULT false,
			is_percent BOOLEAN NOT NULL DEFAULT false,
			rate NUMERIC(9,6) NOT NULL DEFAULT 0,
			flat_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true
		);

		CREATE TABLE IF NOT EXISTS payroll_garnishments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			order_type TEXT NOT NULL,
			max_percent NUMERIC(9,6) NOT NULL DEFAULT 0,
			max_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			priority INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			jurisdiction TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS payroll_rates (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			job TEXT NOT NULL DEFAULT '',
			project TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			worksite TEXT NOT NULL DEFAULT '',
			hourly_rate NUMERIC(18,4) NOT NULL DEFAULT 0,
			salary_rate NUMERIC(18,4) NOT NULL DEFAULT 0,
			priority INT NOT NULL DEFAULT 0,
			start_date DATE NOT NULL,
			end_date DATE
		);

		CREATE TABLE IF NOT EXISTS payroll_tax_rule_versions (
			id UUID PRIMARY KEY,
			jurisdiction TEXT NOT NULL,
			tax_type TEXT NOT NULL,
			is_employer_tax BOOLEAN NOT NULL DEFAULT false,
			kind TEXT NOT NULL,
			brackets JSONB NOT NULL DEFAULT '[]',
			flat_rate NUMERIC(9,6) NOT NULL DEFAULT 0,
			flat_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			wage_base NUMERIC(18,2),
			effective_from DATE NOT NULL,
			effective_to DATE,
			logic_hash TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payroll_statements (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			pay_run_id UUID NOT NULL REFERENCES payroll_pay_runs(id),
			pay_run_employee_id TEXT NOT NULL,
			employee_id UUID NOT NULL,
			calculation_id TEXT NOT NULL,
			net_pay NUMERIC(18,2) NOT NULL,
			gross_pay NUMERIC(18,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, pay_run_employee_id)
		);
		CREATE INDEX IF NOT EXISTS idx_payroll_statements_run ON payroll_statements(tenant_id, pay_run_id);

		CREATE TABLE IF NOT EXISTS payroll_line_items (
			id UUID PRIMARY KEY,
			statement_id UUID NOT NULL REFERENCES payroll_statements(id),
			line_type TEXT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			quantity NUMERIC(18,4),
			rate NUMERIC(18,4),
			account_code TEXT NOT NULL DEFAULT '',
			jurisdiction TEXT NOT NULL DEFAULT '',
			rule_id TEXT NOT NULL DEFAULT '',
			source_input_id TEXT NOT NULL DEFAULT '',
			calculation_id TEXT NOT NULL DEFAULT '',
			line_hash TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payroll_line_items_statement ON payroll_line_items(statement_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure payroll schema: %w", err)
	}
	return nil
}

// WithAdvisoryLock runs fn inside a transaction holding a Postgres
// transaction-scoped advisory lock keyed on hashtext(payRunID), released
// automatically at transaction end (§5).
func (r *Repository) WithAdvisoryLock(ctx context.Context, payRunID string, fn func(ctx context.Context) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, payRunID); err != nil {
		return fmt.Errorf("acquire pay run lock: %w", err)
	}

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txKey struct{}

func withTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// queryExecer is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// method below run either standalone or inside the advisory-locked
// transaction started by WithAdvisoryLock.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) q(ctx context.Context) queryExecer {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.db
}

// GetPayRun retrieves a pay run by ID.
func (r *Repository) GetPayRun(ctx context.Context, tenantID, payRunID string) (*PayRun, error) {
	var run PayRun
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, pay_period_id, status, reopen_count,
		       approved_at, approved_by, committed_at, void_reason, created_at, updated_at
		FROM payroll_pay_runs WHERE tenant_id = $1 AND id = $2
	`, tenantID, payRunID).Scan(
		&run.ID, &run.TenantID, &run.LegalEntityID, &run.PayPeriodID, &run.Status, &run.ReopenCount,
		&run.ApprovedAt, &run.ApprovedBy, &run.CommittedAt, &run.VoidReason, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("pay run not found: %s", payRunID)
	}
	if err != nil {
		return nil, fmt.Errorf("get pay run: %w", err)
	}
	return &run, nil
}

// CreatePayPeriod inserts a new pay period.
func (r *Repository) CreatePayPeriod(ctx context.Context, p *PayPeriod) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO payroll_pay_periods (id, tenant_id, legal_entity_id, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.TenantID, p.LegalEntityID, p.StartDate, p.EndDate)
	if err != nil {
		return fmt.Errorf("create pay period: %w", err)
	}
	return nil
}

// CreatePayRun inserts a new pay run in the draft status.
func (r *Repository) CreatePayRun(ctx context.Context, run *PayRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = StatusDraft
	}
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO payroll_pay_runs (id, tenant_id, legal_entity_id, pay_period_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.TenantID, run.LegalEntityID, run.PayPeriodID, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pay run: %w", err)
	}
	return nil
}

// UpdatePayRunStatusCAS transitions a pay run's status only if its current
// status still matches from, returning false (not an error) on a lost race
// so the caller can decide how to react (§4.3 P5).
func (r *Repository) UpdatePayRunStatusCAS(ctx context.Context, tenantID, payRunID string, from, to Status) (bool, error) {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_pay_runs SET status = $1, updated_at = $2,
			committed_at = CASE WHEN $1 = 'committed' THEN $2 ELSE committed_at END
		WHERE tenant_id = $3 AND id = $4 AND status = $5
	`, to, time.Now(), tenantID, payRunID, from)
	if err != nil {
		return false, fmt.Errorf("transition pay run status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListTimeEntries returns every time entry in a pay period.
func (r *Repository) ListTimeEntries(ctx context.Context, tenantID, payPeriodID string) ([]TimeEntry, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, tenant_id, employee_id, legal_entity_id, work_date, hours,
		       dim_job, dim_project, dim_department, dim_worksite, rate_override,
		       locked_by_pay_run_id, locked_at
		FROM payroll_time_entries WHERE tenant_id = $1 AND pay_period_id = $2
	`, tenantID, payPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()

	var out []TimeEntry
	for rows.Next() {
		var te TimeEntry
		var rateOverride *decimal.Decimal
		if err := rows.Scan(&te.ID, &te.TenantID, &te.EmployeeID, &te.LegalEntityID, &te.WorkDate, &te.Hours,
			&te.Dimensions.Job, &te.Dimensions.Project, &te.Dimensions.Department, &te.Dimensions.Worksite,
			&rateOverride, &te.LockedByPayRunID, &te.LockedAt); err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		te.RateOverride = rateOverride
		out = append(out, te)
	}
	return out, nil
}

// ListAdjustments returns every pay input adjustment targeting a pay period.
func (r *Repository) ListAdjustments(ctx context.Context, tenantID, payPeriodID string) ([]PayInputAdjustment, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, tenant_id, employee_id, COALESCE(pay_run_id::text, ''), COALESCE(pay_period_id::text, ''),
		       type, amount, description, pre_tax, locked_by_pay_run_id, locked_at
		FROM payroll_adjustments WHERE tenant_id = $1 AND pay_period_id = $2
	`, tenantID, payPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var out []PayInputAdjustment
	for rows.Next() {
		var a PayInputAdjustment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.EmployeeID, &a.PayRunID, &a.PayPeriodID,
			&a.Type, &a.Amount, &a.Description, &a.PreTax, &a.LockedByPayRunID, &a.LockedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ListDeductions returns every deduction configured for an employee.
func (r *Repository) ListDeductions(ctx context.Context, tenantID, employeeID string) ([]Deduction, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, employee_id, code, pre_tax, is_percent, rate, flat_amount, is_active
		FROM payroll_deductions WHERE tenant_id = $1 AND employee_id = $2
	`, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list deductions: %w", err)
	}
	defer rows.Close()

	var out []Deduction
	for rows.Next() {
		var d Deduction
		if err := rows.Scan(&d.ID, &d.EmployeeID, &d.Code, &d.PreTax, &d.IsPercent, &d.Rate, &d.FlatAmount, &d.IsActive); err != nil {
			return nil, fmt.Errorf("scan deduction: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ListGarnishments returns every garnishment order configured for an
// employee.
func (r *Repository) ListGarnishments(ctx context.Context, tenantID, employeeID string) ([]Garnishment, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, employee_id, order_type, max_percent, max_amount, priority, is_active, jurisdiction
		FROM payroll_garnishments WHERE tenant_id = $1 AND employee_id = $2
	`, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list garnishments: %w", err)
	}
	defer rows.Close()

	var out []Garnishment
	for rows.Next() {
		var g Garnishment
		if err := rows.Scan(&g.ID, &g.EmployeeID, &g.OrderType, &g.MaxPercent, &g.MaxAmount, &g.Priority, &g.IsActive, &g.Jurisdiction); err != nil {
			return nil, fmt.Errorf("scan garnishment: %w", err)
		}
		out = append(out, g)
	}
	return out, nil
}

// ListRates returns every pay rate candidate configured for an employee.
func (r *Repository) ListRates(ctx context.Context, tenantID, employeeID string) ([]ratecard.PayRate, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, tenant_id, employee_id, job, project, department, worksite,
		       hourly_rate, salary_rate, priority, start_date, end_date
		FROM payroll_rates WHERE tenant_id = $1 AND employee_id = $2
	`, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	var out []ratecard.PayRate
	for rows.Next() {
		var pr ratecard.PayRate
		if err := rows.Scan(&pr.ID, &pr.TenantID, &pr.EmployeeID, &pr.Job, &pr.Project, &pr.Department, &pr.Worksite,
			&pr.HourlyRate, &pr.SalaryRate, &pr.Priority, &pr.StartDate, &pr.EndDate); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		out = append(out, pr)
	}
	return out, nil
}

// ListEffectiveTaxRules returns every tax rule version effective on asOf.
func (r *Repository) ListEffectiveTaxRules(ctx context.Context, asOf time.Time) ([]TaxRuleVersion, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, jurisdiction, tax_type, is_employer_tax, kind, brackets, flat_rate, flat_amount,
		       wage_base, effective_from, effective_to, logic_hash
		FROM payroll_tax_rule_versions
		WHERE effective_from <= $1 AND (effective_to IS NULL OR effective_to >= $1)
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list effective tax rules: %w", err)
	}
	defer rows.Close()

	var out []TaxRuleVersion
	for rows.Next() {
		var t TaxRuleVersion
		var brackets []byte
		if err := rows.Scan(&t.ID, &t.Jurisdiction, &t.TaxType, &t.IsEmployerTax, &t.Kind, &brackets,
			&t.FlatRate, &t.FlatAmount, &t.WageBase, &t.EffectiveFrom, &t.EffectiveTo, &t.LogicHash); err != nil {
			return nil, fmt.Errorf("scan tax rule version: %w", err)
		}
		if len(brackets) > 0 {
			if err := json.Unmarshal(brackets, &t.Brackets); err != nil {
				return nil, fmt.Errorf("unmarshal tax brackets: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// LockInputs marks a set of time entries and adjustments as locked by
// payRunID (§4.3 approved side effect, I7).
func (r *Repository) LockInputs(ctx context.Context, tenantID, payRunID string, timeEntryIDs, adjustmentIDs []string, lockedAt time.Time) error {
	if _, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_time_entries SET locked_by_pay_run_id = $1, locked_at = $2
		WHERE tenant_id = $3 AND id = ANY($4) AND locked_by_pay_run_id IS NULL
	`, payRunID, lockedAt, tenantID, timeEntryIDs); err != nil {
		return fmt.Errorf("lock time entries: %w", err)
	}
	if _, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_adjustments SET locked_by_pay_run_id = $1, locked_at = $2
		WHERE tenant_id = $3 AND id = ANY($4) AND locked_by_pay_run_id IS NULL
	`, payRunID, lockedAt, tenantID, adjustmentIDs); err != nil {
		return fmt.Errorf("lock adjustments: %w", err)
	}
	return nil
}

// UnlockInputs releases every time entry and adjustment locked by payRunID
// (§4.3 reopen/void side effect).
func (r *Repository) UnlockInputs(ctx context.Context, tenantID, payRunID string) error {
	if _, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_time_entries SET locked_by_pay_run_id = NULL, locked_at = NULL
		WHERE tenant_id = $1 AND locked_by_pay_run_id = $2
	`, tenantID, payRunID); err != nil {
		return fmt.Errorf("unlock time entries: %w", err)
	}
	if _, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_adjustments SET locked_by_pay_run_id = NULL, locked_at = NULL
		WHERE tenant_id = $1 AND locked_by_pay_run_id = $2
	`, tenantID, payRunID); err != nil {
		return fmt.Errorf("unlock adjustments: %w", err)
	}
	return nil
}

// UpsertPayRunEmployee records one employee's inclusion outcome for a pay
// run.
func (r *Repository) UpsertPayRunEmployee(ctx context.Context, e *PayRunEmployee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO payroll_pay_run_employees (id, pay_run_id, employee_id, status, error_message, gross, net)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pay_run_id, employee_id) DO UPDATE SET
			status = EXCLUDED.status, error_message = EXCLUDED.error_message,
			gross = EXCLUDED.gross, net = EXCLUDED.net
	`, e.ID, e.PayRunID, e.EmployeeID, e.Status, e.ErrorMsg, e.Gross, e.Net)
	if err != nil {
		return fmt.Errorf("upsert pay run employee: %w", err)
	}
	return nil
}

// GetPayRunEmployeeID resolves the pay-run-employee row ID backing one
// employee's inclusion in payRunID — the key a statement is pinned to (§3).
func (r *Repository) GetPayRunEmployeeID(ctx context.Context, payRunID, employeeID string) (string, error) {
	var id string
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id FROM payroll_pay_run_employees WHERE pay_run_id = $1 AND employee_id = $2
	`, payRunID, employeeID).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("pay run employee not found for pay_run %s employee %s", payRunID, employeeID)
	}
	if err != nil {
		return "", fmt.Errorf("get pay run employee id: %w", err)
	}
	return id, nil
}

// GetStatementByPayRunEmployeeID looks up a previously committed statement
// by the pay-run-employee row it belongs to, returning (nil, nil) when
// absent.
func (r *Repository) GetStatementByPayRunEmployeeID(ctx context.Context, tenantID, payRunEmployeeID string) (*PayStatement, error) {
	var stmt PayStatement
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, pay_run_id, pay_run_employee_id, employee_id, calculation_id, net_pay, gross_pay, created_at
		FROM payroll_statements WHERE tenant_id = $1 AND pay_run_employee_id = $2
	`, tenantID, payRunEmployeeID).Scan(
		&stmt.ID, &stmt.PayRunID, &stmt.PayRunEmployeeID, &stmt.EmployeeID, &stmt.CalculationID,
		&stmt.NetPay, &stmt.GrossPay, &stmt.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get statement by pay run employee id: %w", err)
	}
	return &stmt, nil
}

// InsertStatement persists a pay statement and its line items. Guarded by
// the unique (tenant_id, pay_run_employee_id) constraint: a retry of an
// already-inserted pay-run-employee is absorbed silently rather than
// erroring, since the caller already checked via
// GetStatementByPayRunEmployeeID under the same advisory lock.
func (r *Repository) InsertStatement(ctx context.Context, tenantID string, stmt *PayStatement, lines []PayLineItem) error {
	if stmt.ID == "" {
		stmt.ID = uuid.New().String()
	}
	if stmt.CreatedAt.IsZero() {
		stmt.CreatedAt = time.Now()
	}
	tag, err := r.q(ctx).Exec(ctx, `
		INSERT INTO payroll_statements (id, tenant_id, pay_run_id, pay_run_employee_id, employee_id, calculation_id, net_pay, gross_pay, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, pay_run_employee_id) DO NOTHING
	`, stmt.ID, tenantID, stmt.PayRunID, stmt.PayRunEmployeeID, stmt.EmployeeID, stmt.CalculationID, stmt.NetPay, stmt.GrossPay, stmt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert statement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, lc := range lines {
		if lc.ID == "" {
			lc.ID = uuid.New().String()
		}
		if _, err := r.q(ctx).Exec(ctx, `
			INSERT INTO payroll_line_items (id, statement_id, line_type, amount, quantity, rate,
				account_code, jurisdiction, rule_id, source_input_id, calculation_id, line_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, lc.ID, stmt.ID, lc.LineType, lc.Amount, lc.Quantity, lc.Rate,
			lc.AccountCode, lc.Jurisdiction, lc.RuleID, lc.SourceInputID, lc.CalculationID, lc.LineHash); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

// ListPayRunEmployees returns every pay-run-employee row for a run.
func (r *Repository) ListPayRunEmployees(ctx context.Context, payRunID string) ([]PayRunEmployee, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, pay_run_id, employee_id, status, error_message, gross, net
		FROM payroll_pay_run_employees WHERE pay_run_id = $1
	`, payRunID)
	if err != nil {
		return nil, fmt.Errorf("list pay run employees: %w", err)
	}
	defer rows.Close()

	var out []PayRunEmployee
	for rows.Next() {
		var e PayRunEmployee
		if err := rows.Scan(&e.ID, &e.PayRunID, &e.EmployeeID, &e.Status, &e.ErrorMsg, &e.Gross, &e.Net); err != nil {
			return nil, fmt.Errorf("scan pay run employee: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// SetApproval transitions a pay run from preview to approved, stamping
// approved_at/approved_by, in a single compare-and-set (§4.3 approve).
func (r *Repository) SetApproval(ctx context.Context, tenantID, payRunID, approvedBy string, at time.Time) (bool, error) {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_pay_runs SET status = $1, approved_at = $2, approved_by = $3, updated_at = $2
		WHERE tenant_id = $4 AND id = $5 AND status = $6
	`, StatusApproved, at, approvedBy, tenantID, payRunID, StatusPreview)
	if err != nil {
		return false, fmt.Errorf("approve pay run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Reopen transitions a pay run from approved back to preview, clearing
// approved_at/approved_by and incrementing reopen_count (§4.3 reopen, P7).
func (r *Repository) Reopen(ctx context.Context, tenantID, payRunID string) (bool, error) {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_pay_runs
		SET status = $1, approved_at = NULL, approved_by = '', reopen_count = reopen_count + 1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND status = $5
	`, StatusPreview, time.Now(), tenantID, payRunID, StatusApproved)
	if err != nil {
		return false, fmt.Errorf("reopen pay run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetVoided transitions a pay run to voided, recording reason, only when its
// current status is committed or paid (§4.3); it reports false when no row
// in either status matched.
func (r *Repository) SetVoided(ctx context.Context, tenantID, payRunID, reason string) (bool, error) {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE payroll_pay_runs SET status = $1, void_reason = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status IN ($6, $7)
	`, StatusVoided, reason, time.Now(), tenantID, payRunID, StatusCommitted, StatusPaid)
	if err != nil {
		return false, fmt.Errorf("void pay run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
