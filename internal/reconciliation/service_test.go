package reconciliation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/railprovider"
)

// mockRepository is an in-memory RepositoryInterface.
type mockRepository struct {
	accounts    map[string]*BankAccount
	settlements map[string]*Settlement
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts:    make(map[string]*BankAccount),
		settlements: make(map[string]*Settlement),
	}
}

func (m *mockRepository) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockRepository) GetOrCreateBankAccount(ctx context.Context, tenantID, legalEntityID, providerName string) (*BankAccount, error) {
	key := tenantID + "|" + legalEntityID + "|" + providerName
	if a, ok := m.accounts[key]; ok {
		return a, nil
	}
	a := &BankAccount{ID: uuid.New().String(), TenantID: tenantID, LegalEntityID: legalEntityID, ProviderName: providerName, CreatedAt: time.Now()}
	m.accounts[key] = a
	return a, nil
}

func (m *mockRepository) UpsertSettlement(ctx context.Context, s *Settlement) (bool, error) {
	key := s.BankAccountID + "|" + s.ExternalTraceID
	if existing, ok := m.settlements[key]; ok {
		existing.Status = s.Status
		existing.ReturnCode = s.ReturnCode
		return false, nil
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.settlements[key] = s
	return true, nil
}

// fakeProvider returns a fixed set of settlement records.
type fakeProvider struct {
	name    string
	records []railprovider.SettlementRecord
}

func (p *fakeProvider) Name() string                        { return p.name }
func (p *fakeProvider) Capabilities() railprovider.Capabilities { return railprovider.Capabilities{} }
func (p *fakeProvider) Submit(ctx context.Context, payload railprovider.InstructionPayload) (railprovider.SubmitResult, error) {
	return railprovider.SubmitResult{}, nil
}
func (p *fakeProvider) GetStatus(ctx context.Context, providerRequestID string) (railprovider.StatusResult, error) {
	return railprovider.StatusResult{}, nil
}
func (p *fakeProvider) Cancel(ctx context.Context, providerRequestID string) (railprovider.CancelResult, error) {
	return railprovider.CancelResult{}, nil
}
func (p *fakeProvider) Reconcile(ctx context.Context, date time.Time) ([]railprovider.SettlementRecord, error) {
	return p.records, nil
}

// fakeProviderSource is an in-memory ProviderSource.
type fakeProviderSource struct {
	providers map[string]railprovider.Provider
}

func (f *fakeProviderSource) Names() []string {
	var names []string
	for n := range f.providers {
		names = append(names, n)
	}
	return names
}

func (f *fakeProviderSource) Get(name string) (railprovider.Provider, bool) {
	p, ok := f.providers[name]
	return p, ok
}

// fakeMatcher is a SettlementMatcher stub recording every call.
type fakeMatcher struct {
	matchedTraceIDs map[string]bool
	calls           []string
	err             error
}

func (f *fakeMatcher) HandleSettlement(ctx context.Context, provider string, record railprovider.SettlementRecord) (bool, error) {
	f.calls = append(f.calls, record.ExternalTraceID)
	if f.err != nil {
		return false, f.err
	}
	return f.matchedTraceIDs[record.ExternalTraceID], nil
}

func TestRun_PullsUpsertsAndMatches(t *testing.T) {
	repo := newMockRepository()
	provider := &fakeProvider{name: "sandbox-ach", records: []railprovider.SettlementRecord{
		{ExternalTraceID: "trace-1", Status: railprovider.StatusSettled, Amount: decimal.RequireFromString("100.00"), Currency: "USD", Direction: railprovider.DirectionCredit, EffectiveDate: time.Now()},
		{ExternalTraceID: "trace-2", Status: railprovider.StatusReturned, Amount: decimal.RequireFromString("50.00"), Currency: "USD", Direction: railprovider.DirectionCredit, EffectiveDate: time.Now()},
	}}
	sources := &fakeProviderSource{providers: map[string]railprovider.Provider{"sandbox-ach": provider}}
	matcher := &fakeMatcher{matchedTraceIDs: map[string]bool{"trace-1": true}}

	svc := NewServiceWithRepository(repo, sources, matcher, nil)
	result, err := svc.Run(context.Background(), "t1", "le1", time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProvidersSwept)
	assert.Equal(t, 2, result.Pulled)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Unmatched)
	assert.Len(t, repo.settlements, 2)
}

func TestRun_UpsertIsIdempotentAcrossSweeps(t *testing.T) {
	repo := newMockRepository()
	provider := &fakeProvider{name: "sandbox-ach", records: []railprovider.SettlementRecord{
		{ExternalTraceID: "trace-1", Status: railprovider.StatusSubmitted, EffectiveDate: time.Now()},
	}}
	sources := &fakeProviderSource{providers: map[string]railprovider.Provider{"sandbox-ach": provider}}
	matcher := &fakeMatcher{matchedTraceIDs: map[string]bool{}}
	svc := NewServiceWithRepository(repo, sources, matcher, nil)

	_, err := svc.Run(context.Background(), "t1", "le1", time.Now())
	require.NoError(t, err)
	require.Len(t, repo.settlements, 1)

	provider.records[0].Status = railprovider.StatusSettled
	_, err = svc.Run(context.Background(), "t1", "le1", time.Now())
	require.NoError(t, err)

	require.Len(t, repo.settlements, 1, "a repeat sweep must update, not duplicate")
	for _, s := range repo.settlements {
		assert.Equal(t, railprovider.StatusSettled, s.Status)
	}
}

func TestRun_ProviderErrorDoesNotAbortOtherProviders(t *testing.T) {
	repo := newMockRepository()
	bad := &erroringProvider{name: "bad"}
	good := &fakeProvider{name: "good", records: []railprovider.SettlementRecord{
		{ExternalTraceID: "trace-1", Status: railprovider.StatusSettled, EffectiveDate: time.Now()},
	}}
	sources := &fakeProviderSource{providers: map[string]railprovider.Provider{"bad": bad, "good": good}}
	matcher := &fakeMatcher{matchedTraceIDs: map[string]bool{"trace-1": true}}
	svc := NewServiceWithRepository(repo, sources, matcher, nil)

	result, err := svc.Run(context.Background(), "t1", "le1", time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, 1, result.Matched)
}

type erroringProvider struct{ name string }

func (p *erroringProvider) Name() string                           { return p.name }
func (p *erroringProvider) Capabilities() railprovider.Capabilities { return railprovider.Capabilities{} }
func (p *erroringProvider) Submit(ctx context.Context, payload railprovider.InstructionPayload) (railprovider.SubmitResult, error) {
	return railprovider.SubmitResult{}, nil
}
func (p *erroringProvider) GetStatus(ctx context.Context, providerRequestID string) (railprovider.StatusResult, error) {
	return railprovider.StatusResult{}, nil
}
func (p *erroringProvider) Cancel(ctx context.Context, providerRequestID string) (railprovider.CancelResult, error) {
	return railprovider.CancelResult{}, nil
}
func (p *erroringProvider) Reconcile(ctx context.Context, date time.Time) ([]railprovider.SettlementRecord, error) {
	return nil, fmt.Errorf("provider unavailable")
}
