// Package ratecard resolves the pay rate that applies to a time entry given
// an employee, an as-of date, and optional dimensional qualifiers.
package ratecard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dimensions is the optional qualifier tuple a caller may supply when
// resolving a rate: job, project, department, worksite.
type Dimensions struct {
	Job        string
	Project    string
	Department string
	Worksite   string
}

// PayRate is one candidate rate for an employee over an effective date
// range, optionally narrowed by dimensional qualifiers.
type PayRate struct {
	ID            string
	TenantID      string
	LegalEntityID string
	EmployeeID    string
	HourlyRate    decimal.Decimal
	SalaryRate    decimal.Decimal
	StartDate     time.Time
	EndDate       *time.Time
	Job           string
	Project       string
	Department    string
	Worksite      string
	Priority      int
	CreatedAt     time.Time
}

// effectiveOn reports whether the rate covers asOf.
func (r PayRate) effectiveOn(asOf time.Time) bool {
	if asOf.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || !asOf.After(*r.EndDate)
}

// The dimension weights mirror §4.1: job outranks project outranks department
// outranks worksite.
const (
	weightJob        = 8
	weightProject     = 4
	weightDepartment  = 2
	weightWorksite    = 1
)

// disqualified is returned by score when a rate specifies a dimension the
// caller's qualifiers contradict.
const disqualified = -1
