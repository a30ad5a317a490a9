//go:build gorm

package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

func onConflictUpdatePayRunEmployee() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "pay_run_id"}, {Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "gross", "net"}),
	}
}

func onConflictDoNothingStatement() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "pay_run_employee_id"}},
		DoNothing: true,
	}
}

type gormPayRun struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"index:idx_gorm_payroll_pay_runs_tenant"`
	LegalEntityID string
	PayPeriodID   string
	Status        string
	ReopenCount   int
	ApprovedAt    *time.Time
	ApprovedBy    string
	CommittedAt   *time.Time
	VoidReason    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (gormPayRun) TableName() string { return "payroll_pay_runs" }

type gormPayPeriod struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string
	LegalEntityID string
	StartDate     time.Time
	EndDate       time.Time
}

func (gormPayPeriod) TableName() string { return "payroll_pay_periods" }

type gormPayRunEmployee struct {
	ID         string `gorm:"primaryKey"`
	PayRunID   string `gorm:"uniqueIndex:idx_gorm_payroll_pre"`
	EmployeeID string `gorm:"uniqueIndex:idx_gorm_payroll_pre"`
	Status     string
	ErrorMsg   string
	Gross      decimal.Decimal `gorm:"type:numeric(18,2)"`
	Net        decimal.Decimal `gorm:"type:numeric(18,2)"`
}

func (gormPayRunEmployee) TableName() string { return "payroll_pay_run_employees" }

type gormTimeEntry struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string `gorm:"index:idx_gorm_payroll_time_entries_period"`
	EmployeeID       string
	LegalEntityID    string
	PayPeriodID      string `gorm:"index:idx_gorm_payroll_time_entries_period"`
	WorkDate         time.Time
	Hours            decimal.Decimal `gorm:"type:numeric(9,4)"`
	DimJob           string
	DimProject       string
	DimDepartment    string
	DimWorksite      string
	RateOverride     *decimal.Decimal `gorm:"type:numeric(18,4)"`
	LockedByPayRunID *string
	LockedAt         *time.Time
}

func (gormTimeEntry) TableName() string { return "payroll_time_entries" }

type gormAdjustment struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string `gorm:"index:idx_gorm_payroll_adjustments_period"`
	EmployeeID       string
	PayRunID         string
	PayPeriodID      string `gorm:"index:idx_gorm_payroll_adjustments_period"`
	Type             string
	Amount           decimal.Decimal `gorm:"type:numeric(18,2)"`
	Description      string
	PreTax           bool
	LockedByPayRunID *string
	LockedAt         *time.Time
}

func (gormAdjustment) TableName() string { return "payroll_adjustments" }

type gormDeduction struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string
	EmployeeID string
	Code       string
	PreTax     bool
	IsPercent  bool
	Rate       decimal.Decimal `gorm:"type:numeric(9,6)"`
	FlatAmount decimal.Decimal `gorm:"type:numeric(18,2)"`
	IsActive   bool
}

func (gormDeduction) TableName() string { return "payroll_deductions" }

type gormGarnishment struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string
	EmployeeID   string
	OrderType    string
	MaxPercent   decimal.Decimal `gorm:"type:numeric(9,6)"`
	MaxAmount    decimal.Decimal `gorm:"type:numeric(18,2)"`
	Priority     int
	IsActive     bool
	Jurisdiction string
}

func (gormGarnishment) TableName() string { return "payroll_garnishments" }

type gormRate struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string
	EmployeeID string
	Job        string
	Project    string
	Department string
	Worksite   string
	HourlyRate decimal.Decimal `gorm:"type:numeric(18,4)"`
	SalaryRate decimal.Decimal `gorm:"type:numeric(18,4)"`
	Priority   int
	StartDate  time.Time
	EndDate    *time.Time
}

func (gormRate) TableName() string { return "payroll_rates" }

type gormTaxRuleVersion struct {
	ID            string `gorm:"primaryKey"`
	Jurisdiction  string
	TaxType       string
	IsEmployerTax bool
	Kind          string
	Brackets      []byte `gorm:"type:jsonb"`
	FlatRate      decimal.Decimal `gorm:"type:numeric(9,6)"`
	FlatAmount    decimal.Decimal `gorm:"type:numeric(18,2)"`
	WageBase      *decimal.Decimal `gorm:"type:numeric(18,2)"`
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	LogicHash     string
}

func (gormTaxRuleVersion) TableName() string { return "payroll_tax_rule_versions" }

type gormStatement struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string `gorm:"uniqueIndex:idx_gorm_payroll_statements_pre"`
	PayRunID         string
	PayRunEmployeeID string `gorm:"uniqueIndex:idx_gorm_payroll_statements_pre"`
	EmployeeID       string
	CalculationID    string
	NetPay           decimal.Decimal `gorm:"type:numeric(18,2)"`
	GrossPay         decimal.Decimal `gorm:"type:numeric(18,2)"`
	CreatedAt        time.Time
}

func (gormStatement) TableName() string { return "payroll_statements" }

type gormLineItem struct {
	ID            string `gorm:"primaryKey"`
	StatementID   string `gorm:"index:idx_gorm_payroll_line_items_statement"`
	LineType      string
	Amount        decimal.Decimal `gorm:"type:numeric(18,2)"`
	Quantity      *decimal.Decimal `gorm:"type:numeric(18,4)"`
	Rate          *decimal.Decimal `gorm:"type:numeric(18,4)"`
	AccountCode   string
	Jurisdiction  string
	RuleID        string
	SourceInputID string
	CalculationID string
	LineHash      string
}

func (gormLineItem) TableName() string { return "payroll_line_items" }

// GORMRepository implements RepositoryInterface using GORM, an
// alternate data-access path behind the gorm build tag.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM-backed payroll repository.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// EnsureSchema auto-migrates the payroll tables.
func (r *GORMRepository) EnsureSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&gormPayPeriod{}, &gormPayRun{}, &gormPayRunEmployee{}, &gormTimeEntry{},
		&gormAdjustment{}, &gormDeduction{}, &gormGarnishment{}, &gormRate{},
		&gormTaxRuleVersion{}, &gormStatement{}, &gormLineItem{},
	)
}

type gormTxKey struct{}

// WithAdvisoryLock runs fn inside a GORM transaction holding a
// transaction-scoped Postgres advisory lock keyed on hashtext(payRunID).
func (r *GORMRepository) WithAdvisoryLock(ctx context.Context, payRunID string, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, payRunID).Error; err != nil {
			return fmt.Errorf("acquire pay run lock: %w", err)
		}
		return fn(context.WithValue(ctx, gormTxKey{}, tx))
	})
}

func (r *GORMRepository) tx(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// GetPayRun retrieves a pay run by ID.
func (r *GORMRepository) GetPayRun(ctx context.Context, tenantID, payRunID string) (*PayRun, error) {
	var g gormPayRun
	err := r.tx(ctx).Where("tenant_id = ? AND id = ?", tenantID, payRunID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("pay run not found: %s", payRunID)
	}
	if err != nil {
		return nil, fmt.Errorf("get pay run: %w", err)
	}
	return &PayRun{
		ID: g.ID, TenantID: g.TenantID, LegalEntityID: g.LegalEntityID, PayPeriodID: g.PayPeriodID,
		Status: Status(g.Status), ReopenCount: g.ReopenCount, ApprovedAt: g.ApprovedAt, ApprovedBy: g.ApprovedBy,
		CommittedAt: g.CommittedAt, VoidReason: g.VoidReason, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}, nil
}

// CreatePayPeriod inserts a new pay period.
func (r *GORMRepository) CreatePayPeriod(ctx context.Context, p *PayPeriod) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	g := &gormPayPeriod{ID: p.ID, TenantID: p.TenantID, LegalEntityID: p.LegalEntityID, StartDate: p.StartDate, EndDate: p.EndDate}
	if err := r.tx(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create pay period: %w", err)
	}
	return nil
}

// CreatePayRun inserts a new pay run in the draft status.
func (r *GORMRepository) CreatePayRun(ctx context.Context, run *PayRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = StatusDraft
	}
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now
	g := &gormPayRun{
		ID: run.ID, TenantID: run.TenantID, LegalEntityID: run.LegalEntityID, PayPeriodID: run.PayPeriodID,
		Status: string(run.Status), CreatedAt: run.CreatedAt, UpdatedAt: run.UpdatedAt,
	}
	if err := r.tx(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create pay run: %w", err)
	}
	return nil
}

// UpdatePayRunStatusCAS transitions a pay run's status only if its current
// status still matches from.
func (r *GORMRepository) UpdatePayRunStatusCAS(ctx context.Context, tenantID, payRunID string, from, to Status) (bool, error) {
	updates := map[string]any{"status": string(to), "updated_at": time.Now()}
	if to == StatusCommitted {
		updates["committed_at"] = time.Now()
	}
	result := r.tx(ctx).Model(&gormPayRun{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, payRunID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("transition pay run status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListTimeEntries returns every time entry in a pay period.
func (r *GORMRepository) ListTimeEntries(ctx context.Context, tenantID, payPeriodID string) ([]TimeEntry, error) {
	var rows []gormTimeEntry
	if err := r.tx(ctx).Where("tenant_id = ? AND pay_period_id = ?", tenantID, payPeriodID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	out := make([]TimeEntry, len(rows))
	for i, g := range rows {
		out[i] = TimeEntry{
			ID: g.ID, TenantID: g.TenantID, EmployeeID: g.EmployeeID, LegalEntityID: g.LegalEntityID,
			WorkDate: g.WorkDate, Hours: g.Hours,
			Dimensions:       ratecard.Dimensions{Job: g.DimJob, Project: g.DimProject, Department: g.DimDepartment, Worksite: g.DimWorksite},
			RateOverride:     g.RateOverride,
			LockedByPayRunID: g.LockedByPayRunID, LockedAt: g.LockedAt,
		}
	}
	return out, nil
}

// ListAdjustments returns every pay input adjustment targeting a pay period.
func (r *GORMRepository) ListAdjustments(ctx context.Context, tenantID, payPeriodID string) ([]PayInputAdjustment, error) {
	var rows []gormAdjustment
	if err := r.tx(ctx).Where("tenant_id = ? AND pay_period_id = ?", tenantID, payPeriodID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	out := make([]PayInputAdjustment, len(rows))
	for i, g := range rows {
		out[i] = PayInputAdjustment{
			ID: g.ID, TenantID: g.TenantID, EmployeeID: g.EmployeeID, PayRunID: g.PayRunID, PayPeriodID: g.PayPeriodID,
			Type: AdjustmentType(g.Type), Amount: g.Amount, Description: g.Description, PreTax: g.PreTax,
			LockedByPayRunID: g.LockedByPayRunID, LockedAt: g.LockedAt,
		}
	}
	return out, nil
}

// ListDeductions returns every deduction configured for an employee.
func (r *GORMRepository) ListDeductions(ctx context.Context, tenantID, employeeID string) ([]Deduction, error) {
	var rows []gormDeduction
	if err := r.tx(ctx).Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list deductions: %w", err)
	}
	out := make([]Deduction, len(rows))
	for i, g := range rows {
		out[i] = Deduction{ID: g.ID, EmployeeID: g.EmployeeID, Code: g.Code, PreTax: g.PreTax, IsPercent: g.IsPercent, Rate: g.Rate, FlatAmount: g.FlatAmount, IsActive: g.IsActive}
	}
	return out, nil
}

// ListGarnishments returns every garnishment order configured for an
// employee.
func (r *GORMRepository) ListGarnishments(ctx context.Context, tenantID, employeeID string) ([]Garnishment, error) {
	var rows []gormGarnishment
	if err := r.tx(ctx).Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list garnishments: %w", err)
	}
	out := make([]Garnishment, len(rows))
	for i, g := range rows {
		out[i] = Garnishment{ID: g.ID, EmployeeID: g.EmployeeID, OrderType: g.OrderType, MaxPercent: g.MaxPercent, MaxAmount: g.MaxAmount, Priority: g.Priority, IsActive: g.IsActive, Jurisdiction: g.Jurisdiction}
	}
	return out, nil
}

// ListRates returns every pay rate candidate configured for an employee.
func (r *GORMRepository) ListRates(ctx context.Context, tenantID, employeeID string) ([]ratecard.PayRate, error) {
	var rows []gormRate
	if err := r.tx(ctx).Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	out := make([]ratecard.PayRate, len(rows))
	for i, g := range rows {
		out[i] = ratecard.PayRate{
			ID: g.ID, TenantID: g.TenantID, EmployeeID: g.EmployeeID,
			Job: g.Job, Project: g.Project, Department: g.Department, Worksite: g.Worksite,
			HourlyRate: g.HourlyRate, SalaryRate: g.SalaryRate, Priority: g.Priority,
			StartDate: g.StartDate, EndDate: g.EndDate,
		}
	}
	return out, nil
}

// ListEffectiveTaxRules returns every tax rule version effective on asOf.
func (r *GORMRepository) ListEffectiveTaxRules(ctx context.Context, asOf time.Time) ([]TaxRuleVersion, error) {
	var rows []gormTaxRuleVersion
	if err := r.tx(ctx).Where("effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", asOf, asOf).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list effective tax rules: %w", err)
	}
	out := make([]TaxRuleVersion, len(rows))
	for i, g := range rows {
		t := TaxRuleVersion{
			ID: g.ID, Jurisdiction: g.Jurisdiction, TaxType: g.TaxType, IsEmployerTax: g.IsEmployerTax,
			Kind: TaxRuleKind(g.Kind), FlatRate: g.FlatRate, FlatAmount: g.FlatAmount, WageBase: g.WageBase,
			EffectiveFrom: g.EffectiveFrom, EffectiveTo: g.EffectiveTo, LogicHash: g.LogicHash,
		}
		if len(g.Brackets) > 0 {
			if err := json.Unmarshal(g.Brackets, &t.Brackets); err != nil {
				return nil, fmt.Errorf("unmarshal tax brackets: %w", err)
			}
		}
		out[i] = t
	}
	return out, nil
}

// LockInputs marks a set of time entries and adjustments as locked by
// payRunID.
func (r *GORMRepository) LockInputs(ctx context.Context, tenantID, payRunID string, timeEntryIDs, adjustmentIDs []string, lockedAt time.Time) error {
	if err := r.tx(ctx).Model(&gormTimeEntry{}).
		Where("tenant_id = ? AND id IN ? AND locked_by_pay_run_id IS NULL", tenantID, timeEntryIDs).
		Updates(map[string]any{"locked_by_pay_run_id": payRunID, "locked_at": lockedAt}).Error; err != nil {
		return fmt.Errorf("lock time entries: %w", err)
	}
	if err := r.tx(ctx).Model(&gormAdjustment{}).
		Where("tenant_id = ? AND id IN ? AND locked_by_pay_run_id IS NULL", tenantID, adjustmentIDs).
		Updates(map[string]any{"locked_by_pay_run_id": payRunID, "locked_at": lockedAt}).Error; err != nil {
		return fmt.Errorf("lock adjustments: %w", err)
	}
	return nil
}

// UnlockInputs releases every time entry and adjustment locked by payRunID.
func (r *GORMRepository) UnlockInputs(ctx context.Context, tenantID, payRunID string) error {
	if err := r.tx(ctx).Model(&gormTimeEntry{}).
		Where("tenant_id = ? AND locked_by_pay_run_id = ?", tenantID, payRunID).
		Updates(map[string]any{"locked_by_pay_run_id": nil, "locked_at": nil}).Error; err != nil {
		return fmt.Errorf("unlock time entries: %w", err)
	}
	if err := r.tx(ctx).Model(&gormAdjustment{}).
		Where("tenant_id = ? AND locked_by_pay_run_id = ?", tenantID, payRunID).
		Updates(map[string]any{"locked_by_pay_run_id": nil, "locked_at": nil}).Error; err != nil {
		return fmt.Errorf("unlock adjustments: %w", err)
	}
	return nil
}

// UpsertPayRunEmployee records one employee's inclusion outcome for a pay
// run.
func (r *GORMRepository) UpsertPayRunEmployee(ctx context.Context, e *PayRunEmployee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	g := &gormPayRunEmployee{ID: e.ID, PayRunID: e.PayRunID, EmployeeID: e.EmployeeID, Status: string(e.Status), ErrorMsg: e.ErrorMsg, Gross: e.Gross, Net: e.Net}
	err := r.tx(ctx).Clauses(onConflictUpdatePayRunEmployee()).Create(g).Error
	if err != nil {
		return fmt.Errorf("upsert pay run employee: %w", err)
	}
	return nil
}

// GetPayRunEmployeeID resolves the pay-run-employee row ID backing one
// employee's inclusion in payRunID — the key a statement is pinned to (§3).
func (r *GORMRepository) GetPayRunEmployeeID(ctx context.Context, payRunID, employeeID string) (string, error) {
	var g gormPayRunEmployee
	err := r.tx(ctx).Where("pay_run_id = ? AND employee_id = ?", payRunID, employeeID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("pay run employee not found for pay_run %s employee %s", payRunID, employeeID)
	}
	if err != nil {
		return "", fmt.Errorf("get pay run employee id: %w", err)
	}
	return g.ID, nil
}

// GetStatementByPayRunEmployeeID looks up a previously committed statement
// by the pay-run-employee row it belongs to, returning (nil, nil) when
// absent.
func (r *GORMRepository) GetStatementByPayRunEmployeeID(ctx context.Context, tenantID, payRunEmployeeID string) (*PayStatement, error) {
	var g gormStatement
	err := r.tx(ctx).Where("tenant_id = ? AND pay_run_employee_id = ?", tenantID, payRunEmployeeID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get statement by pay run employee id: %w", err)
	}
	return &PayStatement{
		ID: g.ID, PayRunID: g.PayRunID, PayRunEmployeeID: g.PayRunEmployeeID, EmployeeID: g.EmployeeID,
		CalculationID: g.CalculationID, NetPay: g.NetPay, GrossPay: g.GrossPay, CreatedAt: g.CreatedAt,
	}, nil
}

// InsertStatement persists a pay statement and its line items.
func (r *GORMRepository) InsertStatement(ctx context.Context, tenantID string, stmt *PayStatement, lines []PayLineItem) error {
	if stmt.ID == "" {
		stmt.ID = uuid.New().String()
	}
	if stmt.CreatedAt.IsZero() {
		stmt.CreatedAt = time.Now()
	}
	g := &gormStatement{
		ID: stmt.ID, TenantID: tenantID, PayRunID: stmt.PayRunID, PayRunEmployeeID: stmt.PayRunEmployeeID,
		EmployeeID: stmt.EmployeeID, CalculationID: stmt.CalculationID, NetPay: stmt.NetPay, GrossPay: stmt.GrossPay,
		CreatedAt: stmt.CreatedAt,
	}
	result := r.tx(ctx).Clauses(onConflictDoNothingStatement()).Create(g)
	if result.Error != nil {
		return fmt.Errorf("insert statement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	for _, lc := range lines {
		if lc.ID == "" {
			lc.ID = uuid.New().String()
		}
		row := &gormLineItem{
			ID: lc.ID, StatementID: stmt.ID, LineType: string(lc.LineType), Amount: lc.Amount,
			Quantity: lc.Quantity, Rate: lc.Rate, AccountCode: lc.AccountCode, Jurisdiction: lc.Jurisdiction,
			RuleID: lc.RuleID, SourceInputID: lc.SourceInputID, CalculationID: lc.CalculationID, LineHash: lc.LineHash,
		}
		if err := r.tx(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

// ListPayRunEmployees returns every pay-run-employee row for a run.
func (r *GORMRepository) ListPayRunEmployees(ctx context.Context, payRunID string) ([]PayRunEmployee, error) {
	var rows []gormPayRunEmployee
	if err := r.tx(ctx).Where("pay_run_id = ?", payRunID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pay run employees: %w", err)
	}
	out := make([]PayRunEmployee, len(rows))
	for i, g := range rows {
		out[i] = PayRunEmployee{ID: g.ID, PayRunID: g.PayRunID, EmployeeID: g.EmployeeID, Status: InclusionStatus(g.Status), ErrorMsg: g.ErrorMsg, Gross: g.Gross, Net: g.Net}
	}
	return out, nil
}

// SetApproval transitions a pay run from preview to approved, stamping
// approved_at/approved_by.
func (r *GORMRepository) SetApproval(ctx context.Context, tenantID, payRunID, approvedBy string, at time.Time) (bool, error) {
	result := r.tx(ctx).Model(&gormPayRun{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, payRunID, string(StatusPreview)).
		Updates(map[string]any{"status": string(StatusApproved), "approved_at": at, "approved_by": approvedBy, "updated_at": at})
	if result.Error != nil {
		return false, fmt.Errorf("approve pay run: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Reopen transitions a pay run from approved back to preview, clearing
// approved_at/approved_by and incrementing reopen_count.
func (r *GORMRepository) Reopen(ctx context.Context, tenantID, payRunID string) (bool, error) {
	result := r.tx(ctx).Model(&gormPayRun{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, payRunID, string(StatusApproved)).
		Updates(map[string]any{
			"status": string(StatusPreview), "approved_at": nil, "approved_by": "",
			"reopen_count": gorm.Expr("reopen_count + 1"), "updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("reopen pay run: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetVoided transitions a pay run to voided, recording reason.
func (r *GORMRepository) SetVoided(ctx context.Context, tenantID, payRunID, reason string) (bool, error) {
	result := r.tx(ctx).Model(&gormPayRun{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, payRunID, []string{string(StatusCommitted), string(StatusPaid)}).
		Updates(map[string]any{"status": string(StatusVoided), "void_reason": reason, "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("void pay run: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
