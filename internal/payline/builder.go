package payline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// internalScale is the fixed-point precision used for in-flight arithmetic,
// rounded half-up to 2 decimal places only when a line is persisted (§4.2).
const internalScale = 4

// persistedScale is the rounding precision for persisted monetary fields.
const persistedScale = 2

// New constructs a LineCandidate, fixing its sign by type: callers always
// pass a non-negative magnitude for every type except ROUNDING, which
// already carries its own sign (the reconciliation delta can go either
// way). The returned amount is rounded half-up to 2 decimal places and the
// line_hash is computed over the final, rounded fields.
func New(lineType LineType, magnitude decimal.Decimal, quantity, rate *decimal.Decimal, accountCode, jurisdiction, ruleID, sourceInputID, calculationID string) LineCandidate {
	amount := magnitude.Round(persistedScale)
	switch {
	case lineType == LineRounding:
		// magnitude already carries its sign; no adjustment.
	case nonNegativeTypes[lineType]:
		amount = amount.Abs()
	case nonPositiveTypes[lineType]:
		amount = amount.Abs().Neg()
	}

	lc := LineCandidate{
		LineType:      lineType,
		Amount:        amount,
		Quantity:      quantity,
		Rate:          rate,
		AccountCode:   accountCode,
		Jurisdiction:  jurisdiction,
		RuleID:        ruleID,
		SourceInputID: sourceInputID,
		CalculationID: calculationID,
	}
	lc.LineHash = hash(lc)
	return lc
}

// hash computes the first 32 hex characters of a SHA-256 over a canonical
// JSON object. encoding/json sorts map keys, which is what gives the hash
// its cross-process stability — not an accident of this implementation,
// but a property relied on deliberately.
func hash(lc LineCandidate) string {
	canonical := map[string]any{
		"line_type":       lc.LineType,
		"amount":          lc.Amount.StringFixed(persistedScale),
		"quantity":        decimalOrNil(lc.Quantity),
		"rate":            decimalOrNil(lc.Rate),
		"account_code":    stringOrNil(lc.AccountCode),
		"jurisdiction":    stringOrNil(lc.Jurisdiction),
		"rule_id":         stringOrNil(lc.RuleID),
		"source_input_id": stringOrNil(lc.SourceInputID),
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		// canonical only contains strings, decimals, and nils — Marshal
		// cannot fail on this shape.
		panic(fmt.Sprintf("payline: marshal canonical line: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:32]
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(internalScale)
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Net sums every non-EMPLOYER_TAX line's signed amount (I6).
func Net(lines []LineCandidate) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.LineType == LineEmployerTax {
			continue
		}
		total = total.Add(l.Amount)
	}
	return total
}

// Gross sums EARNING and REIMBURSEMENT line amounts (I6).
func Gross(lines []LineCandidate) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.LineType == LineEarning || l.LineType == LineReimbursement {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// ReconcileRounding appends a single ROUNDING line equal to the gap between
// expectedNet and the current non-employer-tax total, or does nothing if
// the two already agree to the cent.
func ReconcileRounding(lines []LineCandidate, expectedNet decimal.Decimal, sourceInputID, calculationID string) []LineCandidate {
	delta := expectedNet.Sub(Net(lines))
	if delta.IsZero() {
		return lines
	}
	return append(lines, New(LineRounding, delta, nil, nil, "", "", "", sourceInputID, calculationID))
}
