package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

// mockRepository is an in-memory RepositoryInterface used to exercise the
// commit procedure and the lifecycle service without a database. Its
// WithAdvisoryLock runs fn directly and takes no lock.
type mockRepository struct {
	payRuns       map[string]*PayRun
	payRunEmps    map[string][]PayRunEmployee
	timeEntries   map[string][]TimeEntry
	adjustments   map[string][]PayInputAdjustment
	deductions    map[string][]Deduction
	garnishments  map[string][]Garnishment
	rates         map[string][]ratecard.PayRate
	taxRules      []TaxRuleVersion
	statements    map[string]*PayStatement // keyed by tenantID|payRunEmployeeID
	lockedTime    map[string]bool
	lockedAdj     map[string]bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		payRuns:      make(map[string]*PayRun),
		payRunEmps:   make(map[string][]PayRunEmployee),
		timeEntries:  make(map[string][]TimeEntry),
		adjustments:  make(map[string][]PayInputAdjustment),
		deductions:   make(map[string][]Deduction),
		garnishments: make(map[string][]Garnishment),
		rates:        make(map[string][]ratecard.PayRate),
		statements:   make(map[string]*PayStatement),
		lockedTime:   make(map[string]bool),
		lockedAdj:    make(map[string]bool),
	}
}

func (m *mockRepository) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockRepository) CreatePayPeriod(ctx context.Context, p *PayPeriod) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (m *mockRepository) CreatePayRun(ctx context.Context, r *PayRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = StatusDraft
	}
	cp := *r
	m.payRuns[r.ID] = &cp
	return nil
}

func (m *mockRepository) GetPayRun(ctx context.Context, tenantID, payRunID string) (*PayRun, error) {
	r, ok := m.payRuns[payRunID]
	if !ok {
		return nil, fmt.Errorf("pay run not found: %s", payRunID)
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepository) UpdatePayRunStatusCAS(ctx context.Context, tenantID, payRunID string, from, to Status) (bool, error) {
	r, ok := m.payRuns[payRunID]
	if !ok {
		return false, fmt.Errorf("pay run not found: %s", payRunID)
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *mockRepository) ListTimeEntries(ctx context.Context, tenantID, payPeriodID string) ([]TimeEntry, error) {
	return m.timeEntries[payPeriodID], nil
}

func (m *mockRepository) ListAdjustments(ctx context.Context, tenantID, payPeriodID string) ([]PayInputAdjustment, error) {
	return m.adjustments[payPeriodID], nil
}

func (m *mockRepository) ListDeductions(ctx context.Context, tenantID, employeeID string) ([]Deduction, error) {
	return m.deductions[employeeID], nil
}

func (m *mockRepository) ListGarnishments(ctx context.Context, tenantID, employeeID string) ([]Garnishment, error) {
	return m.garnishments[employeeID], nil
}

func (m *mockRepository) ListRates(ctx context.Context, tenantID, employeeID string) ([]ratecard.PayRate, error) {
	return m.rates[employeeID], nil
}

func (m *mockRepository) ListEffectiveTaxRules(ctx context.Context, asOf time.Time) ([]TaxRuleVersion, error) {
	var out []TaxRuleVersion
	for _, r := range m.taxRules {
		if r.EffectiveOn(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepository) LockInputs(ctx context.Context, tenantID, payRunID string, timeEntryIDs, adjustmentIDs []string, lockedAt time.Time) error {
	for _, id := range timeEntryIDs {
		m.lockedTime[id] = true
	}
	for _, id := range adjustmentIDs {
		m.lockedAdj[id] = true
	}
	return nil
}

func (m *mockRepository) UnlockInputs(ctx context.Context, tenantID, payRunID string) error {
	for id := range m.lockedTime {
		delete(m.lockedTime, id)
	}
	for id := range m.lockedAdj {
		delete(m.lockedAdj, id)
	}
	return nil
}

func (m *mockRepository) UpsertPayRunEmployee(ctx context.Context, e *PayRunEmployee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	rows := m.payRunEmps[e.PayRunID]
	for i, row := range rows {
		if row.EmployeeID == e.EmployeeID {
			rows[i] = *e
			m.payRunEmps[e.PayRunID] = rows
			return nil
		}
	}
	m.payRunEmps[e.PayRunID] = append(rows, *e)
	return nil
}

func (m *mockRepository) ListPayRunEmployees(ctx context.Context, payRunID string) ([]PayRunEmployee, error) {
	return m.payRunEmps[payRunID], nil
}

func (m *mockRepository) SetApproval(ctx context.Context, tenantID, payRunID, approvedBy string, at time.Time) (bool, error) {
	r, ok := m.payRuns[payRunID]
	if !ok || r.Status != StatusPreview {
		return false, nil
	}
	r.Status = StatusApproved
	r.ApprovedBy = approvedBy
	r.ApprovedAt = &at
	return true, nil
}

func (m *mockRepository) Reopen(ctx context.Context, tenantID, payRunID string) (bool, error) {
	r, ok := m.payRuns[payRunID]
	if !ok || r.Status != StatusApproved {
		return false, nil
	}
	r.Status = StatusPreview
	r.ApprovedAt = nil
	r.ApprovedBy = ""
	r.ReopenCount++
	return true, nil
}

func (m *mockRepository) SetVoided(ctx context.Context, tenantID, payRunID, reason string) (bool, error) {
	r, ok := m.payRuns[payRunID]
	if !ok || (r.Status != StatusCommitted && r.Status != StatusPaid) {
		return false, nil
	}
	r.Status = StatusVoided
	r.VoidReason = reason
	return true, nil
}

func (m *mockRepository) GetPayRunEmployeeID(ctx context.Context, payRunID, employeeID string) (string, error) {
	for _, row := range m.payRunEmps[payRunID] {
		if row.EmployeeID == employeeID {
			return row.ID, nil
		}
	}
	return "", fmt.Errorf("pay run employee not found for pay_run %s employee %s", payRunID, employeeID)
}

func (m *mockRepository) GetStatementByPayRunEmployeeID(ctx context.Context, tenantID, payRunEmployeeID string) (*PayStatement, error) {
	stmt, ok := m.statements[tenantID+"|"+payRunEmployeeID]
	if !ok {
		return nil, nil
	}
	cp := *stmt
	return &cp, nil
}

func (m *mockRepository) InsertStatement(ctx context.Context, tenantID string, stmt *PayStatement, lines []PayLineItem) error {
	key := tenantID + "|" + stmt.PayRunEmployeeID
	if _, exists := m.statements[key]; exists {
		return nil
	}
	if stmt.ID == "" {
		stmt.ID = uuid.New().String()
	}
	cp := *stmt
	m.statements[key] = &cp
	return nil
}

// WithAdvisoryLock runs fn directly: the mock has no concurrent callers, so
// there is nothing to serialize against.
func (m *mockRepository) WithAdvisoryLock(ctx context.Context, payRunID string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
