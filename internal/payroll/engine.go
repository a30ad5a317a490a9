package payroll

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/payline"
	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

// EmployeeInputs is every mutable input the calculation engine consumes for
// one employee's pipeline run (§4.5 step 1).
type EmployeeInputs struct {
	EmployeeID   string
	AsOf         time.Time
	TimeEntries  []TimeEntry
	Adjustments  []PayInputAdjustment
	Deductions   []Deduction
	Garnishments []Garnishment
	Rates        []ratecard.PayRate
}

// Rules is the effective-dated rule set the engine resolves against (§4.5
// step 2).
type Rules struct {
	TaxRules []TaxRuleVersion
}

// Engine runs the deterministic per-employee calculation pipeline.
type Engine struct{}

// NewEngine constructs a calculation engine. The engine carries no mutable
// state between calls — every entry point takes its context explicitly
// (§9: no ambient lookup).
func NewEngine() *Engine {
	return &Engine{}
}

// Calculate runs the full pipeline of §4.5 for one employee and returns a
// CalculationResult, or an error if rate resolution fails (the caller marks
// the employee `error` and continues with the others — §4.5 Failure policy).
func (e *Engine) Calculate(payRunID string, in EmployeeInputs, rules Rules) (CalculationResult, error) {
	inputsFingerprint := fingerprintInputs(in)
	rulesFingerprint := fingerprintRules(rules)

	var lines []payline.LineCandidate
	netRaw := decimal.Zero

	// Step 3: earnings.
	for _, te := range in.TimeEntries {
		var override *ratecard.PayRate
		if te.RateOverride != nil {
			override = &ratecard.PayRate{HourlyRate: *te.RateOverride}
		}
		resolved, err := ratecard.Resolve(in.Rates, te.Dimensions, override)
		if err != nil {
			return CalculationResult{}, fmt.Errorf("resolve rate for time entry %s: %w", te.ID, err)
		}
		rate := resolved.HourlyRate
		hours := te.Hours
		earning := hours.Mul(rate)
		netRaw = netRaw.Add(earning)
		lines = append(lines, payline.New(payline.LineEarning, earning, &hours, &rate, "", "", "", te.ID, ""))
	}

	// Reimbursement adjustments feed gross alongside earnings (§3 I6).
	for _, adj := range in.Adjustments {
		if adj.Type != AdjustmentReimbursement {
			continue
		}
		netRaw = netRaw.Add(adj.Amount)
		lines = append(lines, payline.New(payline.LineReimbursement, adj.Amount, nil, nil, "", "", "", adj.ID, ""))
	}
	for _, adj := range in.Adjustments {
		if adj.Type != AdjustmentEarning {
			continue
		}
		netRaw = netRaw.Add(adj.Amount)
		lines = append(lines, payline.New(payline.LineEarning, adj.Amount, nil, nil, "", "", "", adj.ID, ""))
	}

	gross := payline.Gross(lines)

	// Step 4: pre-tax deductions.
	pretaxTotal := decimal.Zero
	for _, d := range in.Deductions {
		if !d.IsActive || !d.PreTax {
			continue
		}
		amount := deductionAmount(d, gross)
		if amount.IsZero() {
			continue
		}
		pretaxTotal = pretaxTotal.Add(amount)
		netRaw = netRaw.Sub(amount)
		lines = append(lines, payline.New(payline.LineDeduction, amount, nil, nil, d.Code, "", d.ID, "", ""))
	}
	for _, adj := range in.Adjustments {
		if adj.Type != AdjustmentDeduction || !adj.PreTax {
			continue
		}
		pretaxTotal = pretaxTotal.Add(adj.Amount)
		netRaw = netRaw.Sub(adj.Amount)
		lines = append(lines, payline.New(payline.LineDeduction, adj.Amount, nil, nil, "", "", "", adj.ID, ""))
	}

	// Step 5: taxable wages = gross - pretax deductions, floored at 0.
	taxableWages := gross.Sub(pretaxTotal)
	if taxableWages.IsNegative() {
		taxableWages = decimal.Zero
	}

	employeeTaxes := decimal.Zero
	employerTaxes := decimal.Zero

	// Steps 6/7: employee then employer taxes.
	for _, rule := range rulesEffective(rules, in.AsOf) {
		owed := rule.Apply(taxableWages)
		if owed.IsZero() {
			continue
		}
		if rule.IsEmployerTax {
			employerTaxes = employerTaxes.Add(owed)
			lines = append(lines, payline.New(payline.LineEmployerTax, owed, nil, nil, "", rule.Jurisdiction, rule.ID, "", ""))
		} else {
			employeeTaxes = employeeTaxes.Add(owed)
			netRaw = netRaw.Sub(owed)
			lines = append(lines, payline.New(payline.LineTax, owed, nil, nil, "", rule.Jurisdiction, rule.ID, "", ""))
		}
	}

	// Step 8: post-tax deductions.
	for _, d := range in.Deductions {
		if !d.IsActive || d.PreTax {
			continue
		}
		amount := deductionAmount(d, gross)
		if amount.IsZero() {
			continue
		}
		netRaw = netRaw.Sub(amount)
		lines = append(lines, payline.New(payline.LineDeduction, amount, nil, nil, d.Code, "", d.ID, "", ""))
	}
	for _, adj := range in.Adjustments {
		if adj.Type != AdjustmentDeduction || adj.PreTax {
			continue
		}
		netRaw = netRaw.Sub(adj.Amount)
		lines = append(lines, payline.New(payline.LineDeduction, adj.Amount, nil, nil, "", "", "", adj.ID, ""))
	}

	// Step 9: garnishments, processed in ascending priority order (lowest
	// number is most senior). Disposable income is net-so-far excluding any
	// garnishment lines already built, so it is fixed once before the loop
	// and every order draws against the same base, not a running remainder.
	thirdParty := decimal.Zero
	disposable := netRaw
	if disposable.IsNegative() {
		disposable = decimal.Zero
	}
	garnishments := append([]Garnishment(nil), in.Garnishments...)
	sort.Slice(garnishments, func(i, j int) bool { return garnishments[i].Priority < garnishments[j].Priority })
	for _, g := range garnishments {
		if !g.IsActive {
			continue
		}
		allowed := disposable.Mul(g.MaxPercent)
		if g.MaxAmount.IsPositive() && g.MaxAmount.LessThan(allowed) {
			allowed = g.MaxAmount
		}
		if allowed.IsNegative() {
			allowed = decimal.Zero
		}
		if allowed.IsZero() {
			continue
		}
		thirdParty = thirdParty.Add(allowed)
		netRaw = netRaw.Sub(allowed)
		lines = append(lines, payline.New(payline.LineDeduction, allowed, nil, nil, g.OrderType, g.Jurisdiction, g.ID, "", ""))
	}

	// Step 10: rounding reconciliation against the higher-precision running
	// total, rounded once at the very end.
	expectedNet := netRaw.Round(2)
	lines = payline.ReconcileRounding(lines, expectedNet, "", "")

	// Step 11: calculation ID.
	calcID := calculationID(payRunID, in.EmployeeID, in.AsOf, inputsFingerprint, rulesFingerprint)
	for i := range lines {
		lines[i].CalculationID = calcID
	}

	return CalculationResult{
		PayRunID:      payRunID,
		EmployeeID:    in.EmployeeID,
		CalculationID: calcID,
		Lines:         lines,
		Gross:         gross,
		Net:           payline.Net(lines),
		TaxableWages:  taxableWages,
		EmployeeTaxes: employeeTaxes,
		EmployerTaxes: employerTaxes,
		ThirdParty:    thirdParty,
	}, nil
}

func deductionAmount(d Deduction, gross decimal.Decimal) decimal.Decimal {
	if d.IsPercent {
		return gross.Mul(d.Rate)
	}
	return d.FlatAmount
}

func rulesEffective(rules Rules, asOf time.Time) []TaxRuleVersion {
	var out []TaxRuleVersion
	for _, r := range rules.TaxRules {
		if r.EffectiveOn(asOf) {
			out = append(out, r)
		}
	}
	return out
}

// calculationID derives the 32-char content-addressed identifier of §4.5
// step 11 / §3: identical engine version, pay run, employee, as-of date,
// inputs, and rules always produce the same ID (P4).
func calculationID(payRunID, employeeID string, asOf time.Time, inputsFingerprint, rulesFingerprint string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		EngineVersion, payRunID, employeeID, asOf.UTC().Format("2006-01-02"), inputsFingerprint, rulesFingerprint)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// fingerprintInputs hashes a sorted, canonical representation of every
// mutable input tuple so that reordering rows from storage never changes
// the fingerprint (§4.5 step 1).
func fingerprintInputs(in EmployeeInputs) string {
	type tuple struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
		Data any    `json:"data"`
	}
	var tuples []tuple
	for _, te := range in.TimeEntries {
		tuples = append(tuples, tuple{"time_entry", te.ID, map[string]any{
			"work_date": te.WorkDate.UTC().Format(time.RFC3339),
			"hours":     te.Hours.StringFixed(4),
			"job":       te.Dimensions.Job, "project": te.Dimensions.Project,
			"department": te.Dimensions.Department, "worksite": te.Dimensions.Worksite,
		}})
	}
	for _, adj := range in.Adjustments {
		tuples = append(tuples, tuple{"adjustment", adj.ID, map[string]any{
			"type": adj.Type, "amount": adj.Amount.StringFixed(4), "pre_tax": adj.PreTax,
		}})
	}
	for _, d := range in.Deductions {
		tuples = append(tuples, tuple{"deduction", d.ID, map[string]any{
			"active": d.IsActive, "pre_tax": d.PreTax, "percent": d.IsPercent,
			"rate": d.Rate.StringFixed(4), "flat_amount": d.FlatAmount.StringFixed(4),
		}})
	}
	for _, g := range in.Garnishments {
		tuples = append(tuples, tuple{"garnishment", g.ID, map[string]any{
			"active": g.IsActive, "max_percent": g.MaxPercent.StringFixed(4),
			"max_amount": g.MaxAmount.StringFixed(4), "priority": g.Priority,
		}})
	}
	sort.Slice(tuples, func(i, j int) bool {
		if tuples[i].Kind != tuples[j].Kind {
			return tuples[i].Kind < tuples[j].Kind
		}
		return tuples[i].ID < tuples[j].ID
	})
	return sha256Hex(tuples)
}

// fingerprintRules hashes the sorted list of effective rule-version logic
// hashes (§4.5 step 2).
func fingerprintRules(rules Rules) string {
	hashes := make([]string, 0, len(rules.TaxRules))
	for _, r := range rules.TaxRules {
		hashes = append(hashes, r.LogicHash)
	}
	sort.Strings(hashes)
	return sha256Hex(hashes)
}

func sha256Hex(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("payroll: marshal fingerprint: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
