package payline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNew_FixesSignByType(t *testing.T) {
	cases := []struct {
		lineType  LineType
		magnitude string
		want      string
	}{
		{LineEarning, "100.00", "100.00"},
		{LineReimbursement, "25.00", "25.00"},
		{LineEmployerTax, "7.65", "7.65"},
		{LineDeduction, "50.00", "-50.00"},
		{LineTax, "12.34", "-12.34"},
	}
	for _, tc := range cases {
		lc := New(tc.lineType, d(tc.magnitude), nil, nil, "", "", "", "", "")
		assert.True(t, lc.Amount.Equal(d(tc.want)), "%s: got %s want %s", tc.lineType, lc.Amount, tc.want)
	}
}

func TestNew_RoundingLineKeepsCallerSign(t *testing.T) {
	positive := New(LineRounding, d("0.01"), nil, nil, "", "", "", "", "")
	negative := New(LineRounding, d("-0.01"), nil, nil, "", "", "", "", "")
	assert.True(t, positive.Amount.Equal(d("0.01")))
	assert.True(t, negative.Amount.Equal(d("-0.01")))
}

func TestNew_RoundsToTwoDecimalPlaces(t *testing.T) {
	lc := New(LineEarning, d("100.004999"), nil, nil, "", "", "", "", "")
	assert.True(t, lc.Amount.Equal(d("100.00")))

	lc = New(LineEarning, d("100.005"), nil, nil, "", "", "", "", "")
	assert.True(t, lc.Amount.Equal(d("100.01")))
}

func TestNew_LineHashIsStableForIdenticalInputs(t *testing.T) {
	rate := d("25.00")
	qty := d("8.00")
	l1 := New(LineEarning, d("200.00"), &qty, &rate, "1000", "", "rule-1", "time-entry-1", "calc-1")
	l2 := New(LineEarning, d("200.00"), &qty, &rate, "1000", "", "rule-1", "time-entry-1", "calc-1")
	assert.Equal(t, l1.LineHash, l2.LineHash)
	assert.Len(t, l1.LineHash, 32)
}

func TestNew_LineHashChangesWithAnyField(t *testing.T) {
	base := New(LineEarning, d("200.00"), nil, nil, "1000", "", "", "time-entry-1", "calc-1")
	differentAmount := New(LineEarning, d("200.01"), nil, nil, "1000", "", "", "time-entry-1", "calc-1")
	differentSource := New(LineEarning, d("200.00"), nil, nil, "1000", "", "", "time-entry-2", "calc-1")

	assert.NotEqual(t, base.LineHash, differentAmount.LineHash)
	assert.NotEqual(t, base.LineHash, differentSource.LineHash)
}

func TestNet_ExcludesEmployerTax(t *testing.T) {
	lines := []LineCandidate{
		New(LineEarning, d("1000.00"), nil, nil, "", "", "", "", ""),
		New(LineTax, d("100.00"), nil, nil, "", "", "", "", ""),
		New(LineEmployerTax, d("76.50"), nil, nil, "", "", "", "", ""),
	}
	require.True(t, Net(lines).Equal(d("900.00")))
}

func TestGross_SumsEarningAndReimbursement(t *testing.T) {
	lines := []LineCandidate{
		New(LineEarning, d("1000.00"), nil, nil, "", "", "", "", ""),
		New(LineReimbursement, d("50.00"), nil, nil, "", "", "", "", ""),
		New(LineDeduction, d("100.00"), nil, nil, "", "", "", "", ""),
	}
	require.True(t, Gross(lines).Equal(d("1050.00")))
}

func TestReconcileRounding_AppendsDeltaLine(t *testing.T) {
	lines := []LineCandidate{
		New(LineEarning, d("1000.00"), nil, nil, "", "", "", "", ""),
		New(LineTax, d("100.005"), nil, nil, "", "", "", "", ""),
	}
	// Net so far: 1000.00 - 100.01 (half-up rounded) = 899.99
	got := ReconcileRounding(lines, d("900.00"), "src", "calc-1")
	require.Len(t, got, 3)
	assert.Equal(t, LineRounding, got[2].LineType)
	assert.True(t, got[2].Amount.Equal(d("0.01")))
}

func TestReconcileRounding_NoOpWhenAlreadyBalanced(t *testing.T) {
	lines := []LineCandidate{
		New(LineEarning, d("1000.00"), nil, nil, "", "", "", "", ""),
	}
	got := ReconcileRounding(lines, d("1000.00"), "src", "calc-1")
	assert.Len(t, got, 1)
}
