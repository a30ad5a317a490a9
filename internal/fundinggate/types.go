// Package fundinggate evaluates whether a legal entity's available cleared
// funds cover what a pay run or a rail submission requires, before money
// moves.
package fundinggate

import (
	"github.com/shopspring/decimal"
)

// Outcome is the result category of a gate evaluation.
type Outcome string

const (
	OutcomePass     Outcome = "pass"
	OutcomeSoftFail Outcome = "soft_fail"
	OutcomeHardFail Outcome = "hard_fail"
)

// Reason is a machine-readable code paired with a human message, returned
// alongside a gate outcome.
type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InsufficientFundsReason is the canonical first reason when available <
// required.
const InsufficientFundsReason = "INSUFFICIENT_FUNDS"

// FundingModel selects which components of an included-statement total are
// additively required, so a tenant can request anything from a net-pay-only
// minimum up to the full prefund_all sum (resolves the funding-gate Open
// Question in favor of explicit, per-component toggles rather than a fixed
// enum of named models).
type FundingModel struct {
	Name                 string `json:"name"`
	IncludeNetPay        bool   `json:"include_net_pay"`
	IncludeEmployeeTaxes bool   `json:"include_employee_taxes"`
	IncludeEmployerTaxes bool   `json:"include_employer_taxes"`
	IncludeThirdParty    bool   `json:"include_third_party"`
}

// PrefundAll requires the full additive sum named in §4.7: net pay,
// employee taxes, employer taxes, and third-party (garnishment remittance)
// amounts.
func PrefundAll() FundingModel {
	return FundingModel{
		Name: "prefund_all", IncludeNetPay: true, IncludeEmployeeTaxes: true,
		IncludeEmployerTaxes: true, IncludeThirdParty: true,
	}
}

// NetPayOnly requires only the net-pay component — the historical minimum
// this design note's Open Question resolution supersedes as the default,
// kept as an explicit opt-in.
func NetPayOnly() FundingModel {
	return FundingModel{Name: "net_pay_only", IncludeNetPay: true}
}

// StatementTotals is the per-pay-run aggregate a gate evaluation is computed
// against.
type StatementTotals struct {
	NetPay        decimal.Decimal `json:"net_pay"`
	EmployeeTaxes decimal.Decimal `json:"employee_taxes"`
	EmployerTaxes decimal.Decimal `json:"employer_taxes"`
	ThirdParty    decimal.Decimal `json:"third_party"`
}

// Required sums the components the model includes.
func (m FundingModel) Required(t StatementTotals) decimal.Decimal {
	total := decimal.Zero
	if m.IncludeNetPay {
		total = total.Add(t.NetPay)
	}
	if m.IncludeEmployeeTaxes {
		total = total.Add(t.EmployeeTaxes)
	}
	if m.IncludeEmployerTaxes {
		total = total.Add(t.EmployerTaxes)
	}
	if m.IncludeThirdParty {
		total = total.Add(t.ThirdParty)
	}
	return total
}

// Evaluation is a persisted gate decision.
type Evaluation struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	LegalEntityID  string          `json:"legal_entity_id"`
	PayRunID       string          `json:"pay_run_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Outcome        Outcome         `json:"outcome"`
	Required       decimal.Decimal `json:"required"`
	Available      decimal.Decimal `json:"available"`
	Reasons        []Reason        `json:"reasons"`
	Strict         bool            `json:"strict"`
}
