// Package payline builds signed, content-hashed pay-statement line items
// from caller-supplied magnitudes, and reconciles rounding drift against an
// expected net.
package payline

import (
	"github.com/shopspring/decimal"
)

// LineType is the category of a pay-statement line item.
type LineType string

const (
	LineEarning      LineType = "EARNING"
	LineDeduction    LineType = "DEDUCTION"
	LineTax          LineType = "TAX"
	LineEmployerTax  LineType = "EMPLOYER_TAX"
	LineReimbursement LineType = "REIMBURSEMENT"
	LineRounding     LineType = "ROUNDING"
)

// nonNegativeTypes must never carry a negative signed amount (I5).
var nonNegativeTypes = map[LineType]bool{
	LineEarning:       true,
	LineReimbursement: true,
	LineEmployerTax:   true,
}

// nonPositiveTypes must never carry a positive signed amount (I5).
var nonPositiveTypes = map[LineType]bool{
	LineDeduction: true,
	LineTax:       true,
}

// LineCandidate is a single pay-statement line item prior to persistence.
type LineCandidate struct {
	LineType      LineType        `json:"line_type"`
	Amount        decimal.Decimal `json:"amount"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	AccountCode   string          `json:"account_code,omitempty"`
	Jurisdiction  string          `json:"jurisdiction,omitempty"`
	RuleID        string          `json:"rule_id,omitempty"`
	SourceInputID string          `json:"source_input_id,omitempty"`
	CalculationID string          `json:"calculation_id,omitempty"`
	LineHash      string          `json:"line_hash"`
}
