package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryInterface defines the contract for ledger data access.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, tenantID, accountID string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID, legalEntityID string) ([]Account, error)
	PostEntry(ctx context.Context, e *Entry) (*Entry, bool, error)
	GetEntryByIdempotencyKey(ctx context.Context, tenantID, key string) (*Entry, error)
	GetEntry(ctx context.Context, tenantID, entryID string) (*Entry, error)
	Balance(ctx context.Context, tenantID, accountID string) (Balance, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, tenantID, reservationID string) (*Reservation, error)
	ReleaseReservation(ctx context.Context, tenantID, reservationID, reason string) error
	ConsumeReservation(ctx context.Context, tenantID, reservationID, againstEntryID string) error
	ExpireReservations(ctx context.Context, asOf time.Time) (int64, error)
	ClearingBalance(ctx context.Context, tenantID, legalEntityID, accountType string) (decimal.Decimal, error)
	ActiveReservationTotal(ctx context.Context, tenantID, legalEntityID string) (decimal.Decimal, error)
}

// Repository is the pgx-backed ledger store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new ledger repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the ledger tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_accounts (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			account_type TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_accounts_entity ON ledger_accounts(tenant_id, legal_entity_id);

		CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			idempotency_key TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			debit_account_id UUID NOT NULL,
			credit_account_id UUID NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			source_type TEXT NOT NULL DEFAULT '',
			source_id TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_debit ON ledger_entries(debit_account_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_credit ON ledger_entries(credit_account_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_correlation ON ledger_entries(correlation_id);

		CREATE TABLE IF NOT EXISTS ledger_reservations (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			account_id UUID NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			released_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_reservations_entity ON ledger_reservations(tenant_id, legal_entity_id, status);
		CREATE INDEX IF NOT EXISTS idx_ledger_reservations_expiry ON ledger_reservations(status, expires_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// CreateAccount inserts a new ledger account.
func (r *Repository) CreateAccount(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_accounts (id, tenant_id, legal_entity_id, account_type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.TenantID, a.LegalEntityID, a.AccountType, a.IsActive, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ledger account: %w", err)
	}
	return nil
}

// GetAccount retrieves a ledger account by ID.
func (r *Repository) GetAccount(ctx context.Context, tenantID, accountID string) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, account_type, is_active, created_at
		FROM ledger_accounts WHERE tenant_id = $1 AND id = $2
	`, tenantID, accountID).Scan(&a.ID, &a.TenantID, &a.LegalEntityID, &a.AccountType, &a.IsActive, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("ledger account not found: %s", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns every account belonging to a legal entity.
func (r *Repository) ListAccounts(ctx context.Context, tenantID, legalEntityID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, legal_entity_id, account_type, is_active, created_at
		FROM ledger_accounts WHERE tenant_id = $1 AND legal_entity_id = $2 ORDER BY created_at
	`, tenantID, legalEntityID)
	if err != nil {
		return nil, fmt.Errorf("list ledger accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.LegalEntityID, &a.AccountType, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger account: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// PostEntry inserts a ledger entry idempotently by (tenant_id,
// idempotency_key): a repeat post under the same key returns the existing
// row and reports created=false, never writing a second row (I3).
func (r *Repository) PostEntry(ctx context.Context, e *Entry) (*Entry, bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("marshal entry metadata: %w", err)
	}

	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			id, tenant_id, legal_entity_id, idempotency_key, entry_type,
			debit_account_id, credit_account_id, amount, source_type, source_id,
			correlation_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`,
		e.ID, e.TenantID, e.LegalEntityID, e.IdempotencyKey, e.EntryType,
		e.DebitAccountID, e.CreditAccountID, e.Amount, e.SourceType, e.SourceID,
		e.CorrelationID, metadata, e.CreatedAt,
	).Scan(&id)

	if err == pgx.ErrNoRows {
		existing, getErr := r.GetEntryByIdempotencyKey(ctx, e.TenantID, e.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("post ledger entry: %w", err)
	}
	return e, true, nil
}

// GetEntryByIdempotencyKey looks up a previously posted entry by its key.
func (r *Repository) GetEntryByIdempotencyKey(ctx context.Context, tenantID, key string) (*Entry, error) {
	return r.scanEntry(ctx, `
		SELECT id, tenant_id, legal_entity_id, idempotency_key, entry_type,
		       debit_account_id, credit_account_id, amount, source_type, source_id,
		       correlation_id, metadata, created_at
		FROM ledger_entries WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key)
}

// GetEntry retrieves an entry by ID.
func (r *Repository) GetEntry(ctx context.Context, tenantID, entryID string) (*Entry, error) {
	return r.scanEntry(ctx, `
		SELECT id, tenant_id, legal_entity_id, idempotency_key, entry_type,
		       debit_account_id, credit_account_id, amount, source_type, source_id,
		       correlation_id, metadata, created_at
		FROM ledger_entries WHERE tenant_id = $1 AND id = $2
	`, tenantID, entryID)
}

func (r *Repository) scanEntry(ctx context.Context, query, tenantID, key string) (*Entry, error) {
	var e Entry
	var metadata []byte
	err := r.db.QueryRow(ctx, query, tenantID, key).Scan(
		&e.ID, &e.TenantID, &e.LegalEntityID, &e.IdempotencyKey, &e.EntryType,
		&e.DebitAccountID, &e.CreditAccountID, &e.Amount, &e.SourceType, &e.SourceID,
		&e.CorrelationID, &metadata, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("ledger entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return &e, nil
}

// Balance computes an account's available position from posted entries and
// its reserved position from active reservations on the account.
func (r *Repository) Balance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	var debits, credits decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE debit_account_id = $2), 0),
			COALESCE(SUM(amount) FILTER (WHERE credit_account_id = $2), 0)
		FROM ledger_entries WHERE tenant_id = $1 AND (debit_account_id = $2 OR credit_account_id = $2)
	`, tenantID, accountID).Scan(&debits, &credits)
	if err != nil {
		return Balance{}, fmt.Errorf("compute ledger balance: %w", err)
	}

	var reserved decimal.Decimal
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_reservations
		WHERE tenant_id = $1 AND account_id = $2 AND status = $3
	`, tenantID, accountID, ReservationActive).Scan(&reserved)
	if err != nil {
		return Balance{}, fmt.Errorf("compute reserved balance: %w", err)
	}

	return Balance{AccountID: accountID, Available: credits.Sub(debits), Reserved: reserved}, nil
}

// CreateReservation inserts a new reservation in the active status.
func (r *Repository) CreateReservation(ctx context.Context, res *Reservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	if res.Status == "" {
		res.Status = ReservationActive
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_reservations (id, tenant_id, legal_entity_id, account_id, amount, status, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, res.ID, res.TenantID, res.LegalEntityID, res.AccountID, res.Amount, res.Status, res.Reason, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID.
func (r *Repository) GetReservation(ctx context.Context, tenantID, reservationID string) (*Reservation, error) {
	var res Reservation
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, account_id, amount, status, reason, expires_at, created_at, released_at
		FROM ledger_reservations WHERE tenant_id = $1 AND id = $2
	`, tenantID, reservationID).Scan(
		&res.ID, &res.TenantID, &res.LegalEntityID, &res.AccountID, &res.Amount,
		&res.Status, &res.Reason, &res.ExpiresAt, &res.CreatedAt, &res.ReleasedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("reservation not found: %s", reservationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// ReleaseReservation transitions an active reservation to released.
func (r *Repository) ReleaseReservation(ctx context.Context, tenantID, reservationID, reason string) error {
	return r.transitionReservation(ctx, tenantID, reservationID, ReservationReleased, reason)
}

// ConsumeReservation transitions an active reservation to consumed, tying it
// to the ledger entry that drew the funds down.
func (r *Repository) ConsumeReservation(ctx context.Context, tenantID, reservationID, againstEntryID string) error {
	return r.transitionReservation(ctx, tenantID, reservationID, ReservationConsumed, fmt.Sprintf("entry:%s", againstEntryID))
}

func (r *Repository) transitionReservation(ctx context.Context, tenantID, reservationID string, status ReservationStatus, reason string) error {
	now := time.Now()
	result, err := r.db.Exec(ctx, `
		UPDATE ledger_reservations
		SET status = $1, reason = $2, released_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = $6
	`, status, reason, now, tenantID, reservationID, ReservationActive)
	if err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("reservation not found or not active: %s", reservationID)
	}
	return nil
}

// ClearingBalance sums credits minus debits across every account of the
// given type belonging to a legal entity (§4.7 funding-gate available
// computation: the gross clearing position before reservations).
func (r *Repository) ClearingBalance(ctx context.Context, tenantID, legalEntityID, accountType string) (decimal.Decimal, error) {
	var debits, credits decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(le.amount) FILTER (WHERE le.debit_account_id = a.id), 0),
			COALESCE(SUM(le.amount) FILTER (WHERE le.credit_account_id = a.id), 0)
		FROM ledger_accounts a
		LEFT JOIN ledger_entries le ON le.tenant_id = a.tenant_id
			AND (le.debit_account_id = a.id OR le.credit_account_id = a.id)
		WHERE a.tenant_id = $1 AND a.legal_entity_id = $2 AND a.account_type = $3
	`, tenantID, legalEntityID, accountType).Scan(&debits, &credits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute clearing balance: %w", err)
	}
	return credits.Sub(debits), nil
}

// ActiveReservationTotal sums every active, unexpired reservation tied to
// any account belonging to the legal entity.
func (r *Repository) ActiveReservationTotal(ctx context.Context, tenantID, legalEntityID string) (decimal.Decimal, error) {
	var reserved decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(res.amount), 0)
		FROM ledger_reservations res
		JOIN ledger_accounts a ON a.id = res.account_id AND a.tenant_id = res.tenant_id
		WHERE res.tenant_id = $1 AND a.legal_entity_id = $2 AND res.status = $3 AND res.expires_at > $4
	`, tenantID, legalEntityID, ReservationActive, time.Now()).Scan(&reserved)
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute active reservation total: %w", err)
	}
	return reserved, nil
}

// ExpireReservations flips every active reservation whose TTL has elapsed to
// expired, and reports how many rows were affected. Called by the
// reservation-TTL scheduler sweep.
func (r *Repository) ExpireReservations(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE ledger_reservations
		SET status = $1, released_at = $2
		WHERE status = $3 AND expires_at <= $2
	`, ReservationExpired, asOf, ReservationActive)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	return result.RowsAffected(), nil
}
