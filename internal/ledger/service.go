package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// DefaultReservationTTL is used when a caller doesn't specify one.
const DefaultReservationTTL = 24 * time.Hour

// Service is the ledger core: append-only double-entry postings with strict
// idempotency, plus reservations against an account's available balance.
type Service struct {
	repo    RepositoryInterface
	emitter *events.Emitter
}

// NewService creates a pgx-backed ledger service.
func NewService(db *pgxpool.Pool, emitter *events.Emitter) *Service {
	return &Service{repo: NewRepository(db), emitter: emitter}
}

// NewServiceWithRepository creates a ledger service over an arbitrary
// repository implementation (used by tests and the gorm-backed adapter).
func NewServiceWithRepository(repo RepositoryInterface, emitter *events.Emitter) *Service {
	return &Service{repo: repo, emitter: emitter}
}

// EnsureSchema bootstraps the ledger tables.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// CreateAccount registers a new ledger account under a legal entity.
func (s *Service) CreateAccount(ctx context.Context, a *Account) error {
	if a.AccountType == "" {
		return fmt.Errorf("account_type is required")
	}
	return s.repo.CreateAccount(ctx, a)
}

// PostEntry appends a balanced double-entry posting. A repeat call with the
// same (tenant, idempotency_key) returns the original entry without writing
// a new row (I3).
func (s *Service) PostEntry(ctx context.Context, e Entry) (*Entry, error) {
	if e.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency_key is required")
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger entry: %w", err)
	}

	posted, created, err := s.repo.PostEntry(ctx, &e)
	if err != nil {
		return nil, err
	}
	if created && s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypeLedgerEntryPosted, posted.TenantID, posted.CorrelationID, map[string]any{
			"entry_id":          posted.ID,
			"entry_type":        posted.EntryType,
			"debit_account_id":  posted.DebitAccountID,
			"credit_account_id": posted.CreditAccountID,
			"amount":            posted.Amount.StringFixed(2),
		}))
	}
	return posted, nil
}

// ReverseEntry posts a new entry with debit and credit swapped against the
// original, recorded as entry_type "reversal" pointing back at it. Routed
// through PostEntry so the reversal itself is idempotent under its own key.
func (s *Service) ReverseEntry(ctx context.Context, tenantID, legalEntityID, originalEntryID, idempotencyKey, reason string) (*Entry, error) {
	original, err := s.repo.GetEntry(ctx, tenantID, originalEntryID)
	if err != nil {
		return nil, fmt.Errorf("load original entry: %w", err)
	}

	reversal := Entry{
		TenantID:        tenantID,
		LegalEntityID:   legalEntityID,
		IdempotencyKey:  idempotencyKey,
		EntryType:       "reversal",
		DebitAccountID:  original.CreditAccountID,
		CreditAccountID: original.DebitAccountID,
		Amount:          original.Amount,
		SourceType:      "psp_ledger_entry",
		SourceID:        original.ID,
		CorrelationID:   original.CorrelationID,
		Metadata:        map[string]any{"reason": reason},
	}

	posted, _, err := s.repo.PostEntry(ctx, &reversal)
	if err != nil {
		return nil, fmt.Errorf("post reversal entry: %w", err)
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypeLedgerEntryReversed, tenantID, posted.CorrelationID, map[string]any{
			"entry_id":          posted.ID,
			"original_entry_id": originalEntryID,
			"reason":            reason,
		}))
	}
	return posted, nil
}

// Balance returns an account's available and reserved positions (§4.6:
// available = Σcredits − Σdebits over the account; reserved = Σ active
// reservations tied to the account).
func (s *Service) Balance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	return s.repo.Balance(ctx, tenantID, accountID)
}

// CreateReservation ties up funds against an account for ttl (defaulting to
// DefaultReservationTTL when zero).
func (s *Service) CreateReservation(ctx context.Context, tenantID, legalEntityID, accountID string, amount decimal.Decimal, ttl time.Duration) (*Reservation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("reservation amount must be greater than zero")
	}
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	res := &Reservation{
		TenantID:      tenantID,
		LegalEntityID: legalEntityID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        ReservationActive,
		ExpiresAt:     time.Now().Add(ttl),
	}
	if err := s.repo.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypeReservationCreated, tenantID, "", map[string]any{
			"reservation_id": res.ID,
			"account_id":     accountID,
			"amount":         amount.StringFixed(2),
		}))
	}
	return res, nil
}

// ReleaseReservation frees reserved funds without consuming them.
func (s *Service) ReleaseReservation(ctx context.Context, tenantID, reservationID, reason string) error {
	if err := s.repo.ReleaseReservation(ctx, tenantID, reservationID, reason); err != nil {
		return err
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.New(events.TypeReservationReleased, tenantID, "", map[string]any{
			"reservation_id": reservationID,
			"reason":         reason,
		}))
	}
	return nil
}

// ConsumeReservation marks a reservation as spent against a posted ledger
// entry, releasing its hold on the account's available balance permanently.
func (s *Service) ConsumeReservation(ctx context.Context, tenantID, reservationID, againstEntryID string) error {
	return s.repo.ConsumeReservation(ctx, tenantID, reservationID, againstEntryID)
}

// ExpireReservations flips every reservation past its TTL to expired. Called
// by the scheduler's reservation-TTL sweep.
func (s *Service) ExpireReservations(ctx context.Context) (int64, error) {
	return s.repo.ExpireReservations(ctx, time.Now())
}

// ClientFundingClearingAccountType is the account type the funding gate
// sums over when computing available cleared funds (§4.7).
const ClientFundingClearingAccountType = "client_funding_clearing"

// AvailableForFunding computes the funding gate's available side (§4.7):
// the gross clearing balance across every client_funding_clearing account
// in the legal entity, minus every active reservation tied to it.
func (s *Service) AvailableForFunding(ctx context.Context, tenantID, legalEntityID string) (decimal.Decimal, error) {
	clearing, err := s.repo.ClearingBalance(ctx, tenantID, legalEntityID, ClientFundingClearingAccountType)
	if err != nil {
		return decimal.Zero, err
	}
	reserved, err := s.repo.ActiveReservationTotal(ctx, tenantID, legalEntityID)
	if err != nil {
		return decimal.Zero, err
	}
	return clearing.Sub(reserved), nil
}
