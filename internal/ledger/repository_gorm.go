//go:build gorm

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// gormAccount is the GORM row mapping for ledger_accounts.
type gormAccount struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"index:idx_gorm_ledger_accounts_entity"`
	LegalEntityID string `gorm:"index:idx_gorm_ledger_accounts_entity"`
	AccountType   string
	IsActive      bool
	CreatedAt     time.Time
}

func (gormAccount) TableName() string { return "ledger_accounts" }

// gormEntry is the GORM row mapping for ledger_entries.
type gormEntry struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"uniqueIndex:idx_gorm_ledger_entries_idem"`
	LegalEntityID   string
	IdempotencyKey  string `gorm:"uniqueIndex:idx_gorm_ledger_entries_idem"`
	EntryType       string
	DebitAccountID  string
	CreditAccountID string
	Amount          decimal.Decimal `gorm:"type:numeric(18,2)"`
	SourceType      string
	SourceID        string
	CorrelationID   string
	Metadata        []byte `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

func (gormEntry) TableName() string { return "ledger_entries" }

// gormReservation is the GORM row mapping for ledger_reservations.
type gormReservation struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"index:idx_gorm_ledger_reservations_entity"`
	LegalEntityID string
	AccountID     string
	Amount        decimal.Decimal `gorm:"type:numeric(18,2)"`
	Status        string
	Reason        string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	ReleasedAt    *time.Time
}

func (gormReservation) TableName() string { return "ledger_reservations" }

// GORMRepository implements RepositoryInterface using GORM, an
// alternate data-access path behind the gorm build tag.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM-backed ledger repository.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// EnsureSchema auto-migrates the ledger tables.
func (r *GORMRepository) EnsureSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&gormAccount{}, &gormEntry{}, &gormReservation{})
}

func toGormAccount(a *Account) *gormAccount {
	return &gormAccount{
		ID: a.ID, TenantID: a.TenantID, LegalEntityID: a.LegalEntityID,
		AccountType: a.AccountType, IsActive: a.IsActive, CreatedAt: a.CreatedAt,
	}
}

func fromGormAccount(g *gormAccount) *Account {
	return &Account{
		ID: g.ID, TenantID: g.TenantID, LegalEntityID: g.LegalEntityID,
		AccountType: g.AccountType, IsActive: g.IsActive, CreatedAt: g.CreatedAt,
	}
}

// CreateAccount inserts a new ledger account.
func (r *GORMRepository) CreateAccount(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(toGormAccount(a)).Error; err != nil {
		return fmt.Errorf("create ledger account: %w", err)
	}
	return nil
}

// GetAccount retrieves a ledger account by ID.
func (r *GORMRepository) GetAccount(ctx context.Context, tenantID, accountID string) (*Account, error) {
	var g gormAccount
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, accountID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger account not found: %s", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return fromGormAccount(&g), nil
}

// ListAccounts returns every account belonging to a legal entity.
func (r *GORMRepository) ListAccounts(ctx context.Context, tenantID, legalEntityID string) ([]Account, error) {
	var rows []gormAccount
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND legal_entity_id = ?", tenantID, legalEntityID).
		Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list ledger accounts: %w", err)
	}
	out := make([]Account, len(rows))
	for i := range rows {
		out[i] = *fromGormAccount(&rows[i])
	}
	return out, nil
}

// PostEntry inserts a ledger entry idempotently by (tenant_id,
// idempotency_key), same contract as the pgx repository.
func (r *GORMRepository) PostEntry(ctx context.Context, e *Entry) (*Entry, bool, error) {
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

	g := &gormEntry{
		ID: e.ID, TenantID: e.TenantID, LegalEntityID: e.LegalEntityID,
		IdempotencyKey: e.IdempotencyKey, EntryType: e.EntryType,
		DebitAccountID: e.DebitAccountID, CreditAccountID: e.CreditAccountID,
		Amount: e.Amount, SourceType: e.SourceType, SourceID: e.SourceID,
		CorrelationID: e.CorrelationID, Metadata: metadata, CreatedAt: e.CreatedAt,
	}

	err = r.db.WithContext(ctx).Create(g).Error
	if err != nil {
		existing, getErr := r.GetEntryByIdempotencyKey(ctx, e.TenantID, e.IdempotencyKey)
		if getErr != nil {
			return nil, false, fmt.Errorf("post ledger entry: %w", err)
		}
		return existing, false, nil
	}
	return e, true, nil
}

// GetEntryByIdempotencyKey looks up a previously posted entry by its key.
func (r *GORMRepository) GetEntryByIdempotencyKey(ctx context.Context, tenantID, key string) (*Entry, error) {
	var g gormEntry
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return fromGormEntry(&g)
}

// GetEntry retrieves an entry by ID.
func (r *GORMRepository) GetEntry(ctx context.Context, tenantID, entryID string) (*Entry, error) {
	var g gormEntry
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, entryID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return fromGormEntry(&g)
}

func fromGormEntry(g *gormEntry) (*Entry, error) {
	e := &Entry{
		ID: g.ID, TenantID: g.TenantID, LegalEntityID: g.LegalEntityID,
		IdempotencyKey: g.IdempotencyKey, EntryType: g.EntryType,
		DebitAccountID: g.DebitAccountID, CreditAccountID: g.CreditAccountID,
		Amount: g.Amount, SourceType: g.SourceType, SourceID: g.SourceID,
		CorrelationID: g.CorrelationID, CreatedAt: g.CreatedAt,
	}
	if len(g.Metadata) > 0 {
		if err := json.Unmarshal(g.Metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return e, nil
}

// Balance computes an account's available and reserved positions.
func (r *GORMRepository) Balance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	var sums struct {
		Debits  decimal.Decimal
		Credits decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&gormEntry{}).
		Select("COALESCE(SUM(amount) FILTER (WHERE debit_account_id = @acct), 0) AS debits, "+
			"COALESCE(SUM(amount) FILTER (WHERE credit_account_id = @acct), 0) AS credits",
			map[string]any{"acct": accountID}).
		Where("tenant_id = ? AND (debit_account_id = ? OR credit_account_id = ?)", tenantID, accountID, accountID).
		Scan(&sums).Error
	if err != nil {
		return Balance{}, fmt.Errorf("compute ledger balance: %w", err)
	}

	var reserved decimal.Decimal
	err = r.db.WithContext(ctx).Model(&gormReservation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND account_id = ? AND status = ?", tenantID, accountID, ReservationActive).
		Scan(&reserved).Error
	if err != nil {
		return Balance{}, fmt.Errorf("compute reserved balance: %w", err)
	}

	return Balance{AccountID: accountID, Available: sums.Credits.Sub(sums.Debits), Reserved: reserved}, nil
}

// CreateReservation inserts a new reservation in the active status.
func (r *GORMRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	if res.Status == "" {
		res.Status = ReservationActive
	}
	g := &gormReservation{
		ID: res.ID, TenantID: res.TenantID, LegalEntityID: res.LegalEntityID,
		AccountID: res.AccountID, Amount: res.Amount, Status: string(res.Status),
		Reason: res.Reason, ExpiresAt: res.ExpiresAt, CreatedAt: res.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID.
func (r *GORMRepository) GetReservation(ctx context.Context, tenantID, reservationID string) (*Reservation, error) {
	var g gormReservation
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, reservationID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reservation not found: %s", reservationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &Reservation{
		ID: g.ID, TenantID: g.TenantID, LegalEntityID: g.LegalEntityID, AccountID: g.AccountID,
		Amount: g.Amount, Status: ReservationStatus(g.Status), Reason: g.Reason,
		ExpiresAt: g.ExpiresAt, CreatedAt: g.CreatedAt, ReleasedAt: g.ReleasedAt,
	}, nil
}

// ReleaseReservation transitions an active reservation to released.
func (r *GORMRepository) ReleaseReservation(ctx context.Context, tenantID, reservationID, reason string) error {
	return r.transition(ctx, tenantID, reservationID, ReservationReleased, reason)
}

// ConsumeReservation transitions an active reservation to consumed.
func (r *GORMRepository) ConsumeReservation(ctx context.Context, tenantID, reservationID, againstEntryID string) error {
	return r.transition(ctx, tenantID, reservationID, ReservationConsumed, fmt.Sprintf("entry:%s", againstEntryID))
}

func (r *GORMRepository) transition(ctx context.Context, tenantID, reservationID string, status ReservationStatus, reason string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&gormReservation{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, reservationID, ReservationActive).
		Updates(map[string]any{"status": string(status), "reason": reason, "released_at": now})
	if result.Error != nil {
		return fmt.Errorf("transition reservation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reservation not found or not active: %s", reservationID)
	}
	return nil
}

// ExpireReservations flips every active reservation whose TTL has elapsed to
// expired.
func (r *GORMRepository) ExpireReservations(ctx context.Context, asOf time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&gormReservation{}).
		Where("status = ? AND expires_at <= ?", ReservationActive, asOf).
		Updates(map[string]any{"status": string(ReservationExpired), "released_at": asOf})
	if result.Error != nil {
		return 0, fmt.Errorf("expire reservations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearingBalance sums credits minus debits across every account of the
// given type belonging to a legal entity.
func (r *GORMRepository) ClearingBalance(ctx context.Context, tenantID, legalEntityID, accountType string) (decimal.Decimal, error) {
	var accountIDs []string
	if err := r.db.WithContext(ctx).Model(&gormAccount{}).
		Where("tenant_id = ? AND legal_entity_id = ? AND account_type = ?", tenantID, legalEntityID, accountType).
		Pluck("id", &accountIDs).Error; err != nil {
		return decimal.Zero, fmt.Errorf("list clearing accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return decimal.Zero, nil
	}

	var debits, credits decimal.Decimal
	row := r.db.WithContext(ctx).Raw(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE debit_account_id IN ?), 0),
			COALESCE(SUM(amount) FILTER (WHERE credit_account_id IN ?), 0)
		FROM ledger_entries WHERE tenant_id = ? AND (debit_account_id IN ? OR credit_account_id IN ?)
	`, accountIDs, accountIDs, tenantID, accountIDs, accountIDs).Row()
	if err := row.Scan(&debits, &credits); err != nil {
		return decimal.Zero, fmt.Errorf("compute clearing balance: %w", err)
	}
	return credits.Sub(debits), nil
}

// ActiveReservationTotal sums every active, unexpired reservation tied to
// any account belonging to the legal entity.
func (r *GORMRepository) ActiveReservationTotal(ctx context.Context, tenantID, legalEntityID string) (decimal.Decimal, error) {
	var accountIDs []string
	if err := r.db.WithContext(ctx).Model(&gormAccount{}).
		Where("tenant_id = ? AND legal_entity_id = ?", tenantID, legalEntityID).
		Pluck("id", &accountIDs).Error; err != nil {
		return decimal.Zero, fmt.Errorf("list legal entity accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return decimal.Zero, nil
	}

	var reserved decimal.Decimal
	row := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0) FROM ledger_reservations
		WHERE tenant_id = ? AND account_id IN ? AND status = ? AND expires_at > ?
	`, tenantID, accountIDs, ReservationActive, time.Now()).Row()
	if err := row.Scan(&reserved); err != nil {
		return decimal.Zero, fmt.Errorf("compute active reservation total: %w", err)
	}
	return reserved, nil
}
