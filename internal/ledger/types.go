package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the lifecycle status of a reservation against an account.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationConsumed  ReservationStatus = "consumed"
	ReservationExpired   ReservationStatus = "expired"
)

// Account is a ledger account scoped to a legal entity, e.g. a client
// funding clearing account or a tax liability account.
type Account struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	LegalEntityID string    `json:"legal_entity_id"`
	AccountType   string    `json:"account_type"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Entry is an append-only double-entry ledger posting. Rows are never
// updated or deleted; corrections are expressed as new reversal entries.
type Entry struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	LegalEntityID   string          `json:"legal_entity_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	EntryType       string          `json:"entry_type"`
	DebitAccountID  string          `json:"debit_account_id"`
	CreditAccountID string          `json:"credit_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	SourceType      string          `json:"source_type"`
	SourceID        string          `json:"source_id"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate enforces I2: distinct accounts, positive amount.
func (e *Entry) Validate() error {
	if e.DebitAccountID == "" || e.CreditAccountID == "" {
		return errors.New("entry requires both a debit and a credit account")
	}
	if e.DebitAccountID == e.CreditAccountID {
		return errors.New("debit_account and credit_account must differ")
	}
	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

// EntrySet is a group of entries that must balance as a whole — used when a
// single operation posts more than one entry (e.g. a net-pay disbursement
// plus its tax-liability leg).
type EntrySet []Entry

// IsBalanced reports whether total debits equal total credits across every
// entry in the set, keyed by account.
func (s EntrySet) IsBalanced() bool {
	balances := map[string]decimal.Decimal{}
	for _, e := range s {
		balances[e.DebitAccountID] = balances[e.DebitAccountID].Sub(e.Amount)
		balances[e.CreditAccountID] = balances[e.CreditAccountID].Add(e.Amount)
	}
	total := decimal.Zero
	for _, v := range balances {
		total = total.Add(v)
	}
	return total.IsZero()
}

// Balance is an account's observable position.
type Balance struct {
	AccountID string          `json:"account_id"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// Reservation holds funds against an account for a bounded time, pending
// consumption or release.
type Reservation struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	LegalEntityID string            `json:"legal_entity_id"`
	AccountID     string            `json:"account_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        ReservationStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	ExpiresAt     time.Time         `json:"expires_at"`
	CreatedAt     time.Time         `json:"created_at"`
	ReleasedAt    *time.Time        `json:"released_at,omitempty"`
}

// IsActive reports whether the reservation still ties up funds: active and
// not past its TTL.
func (r *Reservation) IsActive(asOf time.Time) bool {
	return r.Status == ReservationActive && asOf.Before(r.ExpiresAt)
}
