package payroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func flatTaxRule(jurisdiction string, rate string, employerTax bool) TaxRuleVersion {
	return TaxRuleVersion{
		ID:            jurisdiction + "-rule",
		Jurisdiction:  jurisdiction,
		TaxType:       "income",
		IsEmployerTax: employerTax,
		Kind:          TaxRuleFlat,
		FlatRate:      d(rate),
		EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		LogicHash:     jurisdiction + "-flat-" + rate,
	}
}

func baseInputs(employeeID string, hours string, hourlyRate string) EmployeeInputs {
	return EmployeeInputs{
		EmployeeID: employeeID,
		AsOf:       time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		TimeEntries: []TimeEntry{
			{ID: "te-1", EmployeeID: employeeID, WorkDate: time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), Hours: d(hours)},
		},
		Rates: []ratecard.PayRate{
			{ID: "rate-1", EmployeeID: employeeID, HourlyRate: d(hourlyRate), Priority: 1, StartDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestEngine_Calculate_IsDeterministic(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	rules := Rules{TaxRules: []TaxRuleVersion{flatTaxRule("US-FED", "0.10", false)}}

	first, err := e.Calculate("run-1", in, rules)
	require.NoError(t, err)
	second, err := e.Calculate("run-1", in, rules)
	require.NoError(t, err)

	assert.Equal(t, first.CalculationID, second.CalculationID)
	assert.True(t, first.Net.Equal(second.Net))
	assert.Len(t, first.CalculationID, 32)
}

func TestEngine_Calculate_DifferentInputsProduceDifferentCalculationID(t *testing.T) {
	e := NewEngine()
	rules := Rules{TaxRules: []TaxRuleVersion{flatTaxRule("US-FED", "0.10", false)}}

	a, err := e.Calculate("run-1", baseInputs("emp-1", "40", "20.00"), rules)
	require.NoError(t, err)
	b, err := e.Calculate("run-1", baseInputs("emp-1", "41", "20.00"), rules)
	require.NoError(t, err)

	assert.NotEqual(t, a.CalculationID, b.CalculationID)
}

func TestEngine_Calculate_GrossAndNetAndTaxes(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	rules := Rules{TaxRules: []TaxRuleVersion{
		flatTaxRule("US-FED", "0.10", false),
		flatTaxRule("US-FED-ER", "0.062", true),
	}}

	result, err := e.Calculate("run-1", in, rules)
	require.NoError(t, err)

	assert.True(t, result.Gross.Equal(d("800.00")), "gross: %s", result.Gross)
	assert.True(t, result.EmployeeTaxes.Equal(d("80.00")), "employee taxes: %s", result.EmployeeTaxes)
	assert.True(t, result.EmployerTaxes.Equal(d("49.60")), "employer taxes: %s", result.EmployerTaxes)
	assert.True(t, result.Net.Equal(d("720.00")), "net: %s", result.Net)

	// Employer taxes never affect net (I6).
	netWithoutEmployer := result.Gross.Sub(result.EmployeeTaxes)
	assert.True(t, result.Net.Equal(netWithoutEmployer))
}

func TestEngine_Calculate_PreTaxDeductionReducesTaxableWages(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	in.Deductions = []Deduction{
		{ID: "ded-1", EmployeeID: "emp-1", Code: "401K", PreTax: true, IsPercent: false, FlatAmount: d("100.00"), IsActive: true},
	}
	rules := Rules{TaxRules: []TaxRuleVersion{flatTaxRule("US-FED", "0.10", false)}}

	result, err := e.Calculate("run-1", in, rules)
	require.NoError(t, err)

	assert.True(t, result.TaxableWages.Equal(d("700.00")), "taxable wages: %s", result.TaxableWages)
	assert.True(t, result.EmployeeTaxes.Equal(d("70.00")), "employee taxes: %s", result.EmployeeTaxes)
}

func TestEngine_Calculate_GarnishmentsRespectPriorityAndCaps(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	in.Garnishments = []Garnishment{
		{ID: "g-2", EmployeeID: "emp-1", OrderType: "student_loan", MaxPercent: d("0.50"), MaxAmount: d("0"), Priority: 2, IsActive: true},
		{ID: "g-1", EmployeeID: "emp-1", OrderType: "child_support", MaxPercent: d("0.50"), MaxAmount: d("100.00"), Priority: 1, IsActive: true},
	}

	result, err := e.Calculate("run-1", in, Rules{})
	require.NoError(t, err)

	// Priority 1 (child support) is capped at 100.00 even though 50% of 800
	// would be 400. Priority 2 (student loan, uncapped) draws against the
	// same 800.00 disposable base, not the 700.00 left after priority 1.
	assert.True(t, result.ThirdParty.Equal(d("500.00")), "third party: %s", result.ThirdParty)
	assert.True(t, result.Net.Equal(d("300.00")), "net: %s", result.Net)
}

func TestEngine_Calculate_InactiveGarnishmentsAndDeductionsAreSkipped(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	in.Deductions = []Deduction{
		{ID: "ded-1", EmployeeID: "emp-1", Code: "OLD", PreTax: false, FlatAmount: d("50.00"), IsActive: false},
	}
	in.Garnishments = []Garnishment{
		{ID: "g-1", EmployeeID: "emp-1", OrderType: "lien", MaxPercent: d("1.00"), Priority: 1, IsActive: false},
	}

	result, err := e.Calculate("run-1", in, Rules{})
	require.NoError(t, err)

	assert.True(t, result.Net.Equal(d("800.00")), "net: %s", result.Net)
	assert.True(t, result.ThirdParty.IsZero())
}

func TestEngine_Calculate_RateOverrideBypassesResolution(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "10", "20.00")
	override := d("99.00")
	in.TimeEntries[0].RateOverride = &override

	result, err := e.Calculate("run-1", in, Rules{})
	require.NoError(t, err)

	assert.True(t, result.Gross.Equal(d("990.00")), "gross: %s", result.Gross)
}

func TestEngine_Calculate_UnresolvableRateReturnsError(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "10", "20.00")
	in.Rates = nil

	_, err := e.Calculate("run-1", in, Rules{})
	require.Error(t, err)
}

func TestEngine_Calculate_TaxRuleNotEffectiveOnAsOfIsIgnored(t *testing.T) {
	e := NewEngine()
	in := baseInputs("emp-1", "40", "20.00")
	future := flatTaxRule("US-FED", "0.10", false)
	future.EffectiveFrom = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := e.Calculate("run-1", in, Rules{TaxRules: []TaxRuleVersion{future}})
	require.NoError(t, err)

	assert.True(t, result.EmployeeTaxes.IsZero())
	assert.True(t, result.Net.Equal(result.Gross))
}
