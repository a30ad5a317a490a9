package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/events"
	"github.com/ledgerline/payroll-psp/internal/railprovider"
)

// SettlementMatcher is the subset of internal/payments's Service this
// package depends on to close the loop from a settlement record back to
// the instruction it belongs to. Kept narrow so tests can fake it.
type SettlementMatcher interface {
	HandleSettlement(ctx context.Context, provider string, record railprovider.SettlementRecord) (matched bool, err error)
}

// ProviderSource is the subset of railprovider's Registry this package
// needs: the closed set of providers to sweep, by name.
type ProviderSource interface {
	Names() []string
	Get(name string) (railprovider.Provider, bool)
}

var _ ProviderSource = (*railprovider.Registry)(nil)

// Service pulls settlement records from every registered rail provider,
// persists them idempotently, and matches each one to the payment
// instruction it settles (§4.10).
type Service struct {
	repo      RepositoryInterface
	providers ProviderSource
	payments  SettlementMatcher
	emitter   *events.Emitter
}

// NewService creates a pgx-backed reconciliation service.
func NewService(db *pgxpool.Pool, providers ProviderSource, payments SettlementMatcher, emitter *events.Emitter) *Service {
	return &Service{repo: NewRepository(db), providers: providers, payments: payments, emitter: emitter}
}

// NewServiceWithRepository creates a reconciliation service over an
// arbitrary repository implementation (used by tests).
func NewServiceWithRepository(repo RepositoryInterface, providers ProviderSource, payments SettlementMatcher, emitter *events.Emitter) *Service {
	return &Service{repo: repo, providers: providers, payments: payments, emitter: emitter}
}

// EnsureSchema bootstraps the reconciliation tables.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// Run sweeps every registered rail provider for the given date, upserts
// each settlement record it returns, and matches it back to the payment
// instruction it belongs to (§4.10). A provider error aborts only that
// provider's sweep; the others still run.
func (s *Service) Run(ctx context.Context, tenantID, legalEntityID string, date time.Time) (Result, error) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypeReconciliationStarted, tenantID, "", map[string]any{
			"legal_entity_id": legalEntityID,
			"date":            date.Format("2006-01-02"),
		}))
	}

	var result Result
	var firstErr error

	for _, name := range s.providers.Names() {
		provider, ok := s.providers.Get(name)
		if !ok {
			continue
		}
		result.ProvidersSwept++

		account, err := s.repo.GetOrCreateBankAccount(ctx, tenantID, legalEntityID, name)
		if err != nil {
			firstErr = firstNonNil(firstErr, fmt.Errorf("provider %s: %w", name, err))
			continue
		}

		records, err := provider.Reconcile(ctx, date)
		if err != nil {
			firstErr = firstNonNil(firstErr, fmt.Errorf("provider %s: reconcile: %w", name, err))
			continue
		}

		for _, rec := range records {
			result.Pulled++
			if _, err := s.repo.UpsertSettlement(ctx, &Settlement{
				BankAccountID:   account.ID,
				ExternalTraceID: rec.ExternalTraceID,
				EffectiveDate:   rec.EffectiveDate,
				Status:          rec.Status,
				Amount:          rec.Amount,
				Currency:        rec.Currency,
				Direction:       rec.Direction,
				ReturnCode:      rec.ReturnCode,
				RawPayload:      rec.RawPayload,
			}); err != nil {
				firstErr = firstNonNil(firstErr, fmt.Errorf("provider %s: upsert settlement %s: %w", name, rec.ExternalTraceID, err))
				continue
			}
			if s.emitter != nil {
				s.emitter.Emit(ctx, events.New(events.TypeSettlementReceived, tenantID, "", map[string]any{
					"provider":           name,
					"external_trace_id": rec.ExternalTraceID,
					"status":             string(rec.Status),
				}))
			}

			matched, err := s.payments.HandleSettlement(ctx, name, rec)
			if err != nil {
				firstErr = firstNonNil(firstErr, fmt.Errorf("provider %s: match settlement %s: %w", name, rec.ExternalTraceID, err))
				continue
			}
			if matched {
				result.Matched++
				if s.emitter != nil {
					s.emitter.Emit(ctx, events.New(events.TypeSettlementMatched, tenantID, "", map[string]any{
						"provider":           name,
						"external_trace_id": rec.ExternalTraceID,
					}))
				}
			} else {
				result.Unmatched++
				if s.emitter != nil {
					s.emitter.Emit(ctx, events.New(events.TypeSettlementUnmatched, tenantID, "", map[string]any{
						"provider":           name,
						"external_trace_id": rec.ExternalTraceID,
					}))
				}
			}
		}
	}

	if s.emitter != nil {
		if firstErr != nil {
			s.emitter.Emit(ctx, events.New(events.TypeReconciliationFailed, tenantID, "", map[string]any{
				"legal_entity_id": legalEntityID,
				"error":           firstErr.Error(),
			}))
		} else {
			s.emitter.Emit(ctx, events.New(events.TypeReconciliationCompleted, tenantID, "", map[string]any{
				"legal_entity_id": legalEntityID,
				"pulled":          result.Pulled,
				"matched":         result.Matched,
				"unmatched":       result.Unmatched,
			}))
		}
	}

	return result, firstErr
}

func firstNonNil(existing, next error) error {
	if existing != nil {
		return existing
	}
	return next
}
