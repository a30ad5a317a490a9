// Package payroll implements the pay-run lifecycle: input staging, the
// per-employee calculation pipeline, and idempotent commitment of pay
// statements and line items.
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/payline"
	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

// EngineVersion is a required field of every calculation; it flows into
// every calculation ID so a behavior change in the engine always produces a
// new identifier for otherwise-identical inputs.
const EngineVersion = "payroll-engine-1"

// WorkerType classifies how an employee is engaged.
type WorkerType string

const (
	WorkerEmployee   WorkerType = "EMPLOYEE"
	WorkerContractor WorkerType = "CONTRACTOR"
)

// PayType is how an employee's base compensation is structured.
type PayType string

const (
	PayHourly PayType = "HOURLY"
	PaySalary PayType = "SALARY"
)

// FLSAStatus is the employee's exemption status under wage-and-hour rules.
type FLSAStatus string

const (
	FLSAExempt    FLSAStatus = "EXEMPT"
	FLSANonExempt FLSAStatus = "NON_EXEMPT"
)

// Employee is an identity within a legal entity; Employment carries the
// time-bounded relationship details (§3).
type Employee struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	LegalEntityID string    `json:"legal_entity_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Employment is an employee's time-bounded engagement with a legal entity.
type Employment struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	EmployeeID    string     `json:"employee_id"`
	LegalEntityID string     `json:"legal_entity_id"`
	WorkerType    WorkerType `json:"worker_type"`
	PayType       PayType    `json:"pay_type"`
	FLSAStatus    FLSAStatus `json:"flsa_status"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// ActiveOn reports whether the employment covers asOf.
func (e Employment) ActiveOn(asOf time.Time) bool {
	if asOf.Before(e.StartDate) {
		return false
	}
	return e.EndDate == nil || !asOf.After(*e.EndDate)
}

// PayPeriod is a bounded calendar window a pay run is computed over.
type PayPeriod struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	LegalEntityID string    `json:"legal_entity_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Status is a pay run's position in the state machine of §4.3.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPreview   Status = "preview"
	StatusApproved  Status = "approved"
	StatusCommitted Status = "committed"
	StatusPaid      Status = "paid"
	StatusVoided    Status = "voided"
)

// PayRun is one batch computation of payroll for a legal entity over a pay
// period.
type PayRun struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	LegalEntityID string     `json:"legal_entity_id"`
	PayPeriodID   string     `json:"pay_period_id"`
	Status        Status     `json:"status"`
	ReopenCount   int        `json:"reopen_count"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	CommittedAt   *time.Time `json:"committed_at,omitempty"`
	VoidReason    string     `json:"void_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// InclusionStatus is a pay-run-employee's participation state.
type InclusionStatus string

const (
	InclusionIncluded InclusionStatus = "included"
	InclusionExcluded InclusionStatus = "excluded"
	InclusionError    InclusionStatus = "error"
)

// PayRunEmployee is one employee's inclusion in a pay run.
type PayRunEmployee struct {
	ID         string          `json:"id"`
	PayRunID   string          `json:"pay_run_id"`
	EmployeeID string          `json:"employee_id"`
	Status     InclusionStatus `json:"status"`
	ErrorMsg   string          `json:"error_message,omitempty"`
	Gross      decimal.Decimal `json:"gross"`
	Net        decimal.Decimal `json:"net"`
}

// TimeEntry is a unit of worked time feeding the calculation engine.
// Mutable until locked by an approved pay run (I7).
type TimeEntry struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	EmployeeID       string           `json:"employee_id"`
	LegalEntityID    string           `json:"legal_entity_id"`
	WorkDate         time.Time        `json:"work_date"`
	Hours            decimal.Decimal  `json:"hours"`
	Dimensions       ratecard.Dimensions `json:"dimensions"`
	RateOverride     *decimal.Decimal `json:"rate_override,omitempty"`
	LockedByPayRunID *string          `json:"locked_by_pay_run_id,omitempty"`
	LockedAt         *time.Time       `json:"locked_at,omitempty"`
}

// IsLocked reports whether the row is currently frozen against mutation.
func (t TimeEntry) IsLocked() bool {
	return t.LockedByPayRunID != nil
}

// AdjustmentType distinguishes pay input adjustments that aren't derived
// from worked time: one-off earnings, deductions, reimbursements.
type AdjustmentType string

const (
	AdjustmentEarning       AdjustmentType = "EARNING"
	AdjustmentDeduction     AdjustmentType = "DEDUCTION"
	AdjustmentReimbursement AdjustmentType = "REIMBURSEMENT"
)

// PayInputAdjustment is a mutable, non-time-entry input to the calculation
// engine, targeting either a specific pay run or an open pay period.
type PayInputAdjustment struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	EmployeeID       string          `json:"employee_id"`
	PayRunID         string          `json:"pay_run_id,omitempty"`
	PayPeriodID      string          `json:"pay_period_id,omitempty"`
	Type             AdjustmentType  `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description,omitempty"`
	PreTax           bool            `json:"pre_tax"`
	LockedByPayRunID *string         `json:"locked_by_pay_run_id,omitempty"`
	LockedAt         *time.Time      `json:"locked_at,omitempty"`
}

// IsLocked reports whether the row is currently frozen against mutation.
func (a PayInputAdjustment) IsLocked() bool {
	return a.LockedByPayRunID != nil
}

// Deduction is an active pre-tax or post-tax recurring deduction on an
// employment.
type Deduction struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employee_id"`
	Code       string          `json:"code"`
	PreTax     bool            `json:"pre_tax"`
	IsPercent  bool            `json:"is_percent"`
	Rate       decimal.Decimal `json:"rate"`
	FlatAmount decimal.Decimal `json:"flat_amount"`
	IsActive   bool            `json:"is_active"`
}

// Garnishment is an active order against disposable income.
type Garnishment struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	OrderType   string          `json:"order_type"`
	MaxPercent  decimal.Decimal `json:"max_percent"`
	MaxAmount   decimal.Decimal `json:"max_amount"`
	Priority    int             `json:"priority"`
	IsActive    bool            `json:"is_active"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
}

// TaxBracket is one rate band of a bracketed tax rule.
type TaxBracket struct {
	Min  decimal.Decimal `json:"min"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Rate decimal.Decimal `json:"rate"`
}

// TaxRuleKind discriminates the tagged variant of a tax rule's payload
// (§9): bracketed progressive rates, or a flat percentage.
type TaxRuleKind string

const (
	TaxRuleBracketed TaxRuleKind = "bracketed"
	TaxRuleFlat      TaxRuleKind = "flat"
)

// TaxRuleVersion is an effective-dated (jurisdiction, tax type) rule. The
// canonical form is persisted and versioned by LogicHash so two processes
// agreeing on LogicHash agree on behavior without transmitting the payload.
type TaxRuleVersion struct {
	ID            string          `json:"id"`
	Jurisdiction  string          `json:"jurisdiction"`
	TaxType       string          `json:"tax_type"`
	IsEmployerTax bool            `json:"is_employer_tax"`
	Kind          TaxRuleKind     `json:"kind"`
	Brackets      []TaxBracket    `json:"brackets,omitempty"`
	FlatRate      decimal.Decimal `json:"flat_rate,omitempty"`
	FlatAmount    decimal.Decimal `json:"flat_amount,omitempty"`
	WageBase      *decimal.Decimal `json:"wage_base,omitempty"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	LogicHash     string          `json:"logic_hash"`
}

// EffectiveOn reports whether the rule version applies on asOf.
func (r TaxRuleVersion) EffectiveOn(asOf time.Time) bool {
	if asOf.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !asOf.After(*r.EffectiveTo)
}

// Apply computes the tax owed on taxableWages under this rule, honoring a
// wage-base cap where set (§4.5 step 6/7).
func (r TaxRuleVersion) Apply(taxableWages decimal.Decimal) decimal.Decimal {
	base := taxableWages
	if r.WageBase != nil && base.GreaterThan(*r.WageBase) {
		base = *r.WageBase
	}
	if base.IsNegative() {
		base = decimal.Zero
	}

	switch r.Kind {
	case TaxRuleFlat:
		return base.Mul(r.FlatRate).Add(r.FlatAmount).Round(4)
	case TaxRuleBracketed:
		total := decimal.Zero
		for _, b := range r.Brackets {
			upper := base
			if b.Max != nil && b.Max.LessThan(upper) {
				upper = *b.Max
			}
			if upper.LessThanOrEqual(b.Min) {
				continue
			}
			total = total.Add(upper.Sub(b.Min).Mul(b.Rate))
		}
		return total.Round(4)
	default:
		return decimal.Zero
	}
}

// CalculationResult is the per-employee output of the calculation engine: a
// deterministic set of line candidates keyed by a content-addressed
// calculation ID. Not always persisted as a row — only materialized at
// commit (§3).
type CalculationResult struct {
	PayRunID      string                  `json:"pay_run_id"`
	EmployeeID    string                  `json:"employee_id"`
	CalculationID string                  `json:"calculation_id"`
	Lines         []payline.LineCandidate `json:"lines"`
	Gross         decimal.Decimal         `json:"gross"`
	Net           decimal.Decimal         `json:"net"`
	TaxableWages  decimal.Decimal         `json:"taxable_wages"`
	EmployeeTaxes decimal.Decimal         `json:"employee_taxes"`
	EmployerTaxes decimal.Decimal         `json:"employer_taxes"`
	ThirdParty    decimal.Decimal         `json:"third_party"`
}

// PayStatement is the immutable, per-employee output of a committed pay
// run.
type PayStatement struct {
	ID               string          `json:"id"`
	PayRunID         string          `json:"pay_run_id"`
	PayRunEmployeeID string          `json:"pay_run_employee_id"`
	EmployeeID       string          `json:"employee_id"`
	CalculationID    string          `json:"calculation_id"`
	NetPay           decimal.Decimal `json:"net_pay"`
	GrossPay         decimal.Decimal `json:"gross_pay"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PayLineItem is a persisted payline.LineCandidate belonging to a statement.
type PayLineItem struct {
	ID            string `json:"id"`
	StatementID   string `json:"statement_id"`
	payline.LineCandidate
}
