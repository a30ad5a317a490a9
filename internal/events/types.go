package events

import "time"

// Category groups related event types for coarse-grained subscription.
type Category string

const (
	CategoryFunding        Category = "funding"
	CategoryPayment        Category = "payment"
	CategoryLedger         Category = "ledger"
	CategorySettlement     Category = "settlement"
	CategoryLiability      Category = "liability"
	CategoryReconciliation Category = "reconciliation"
)

// Type enumerates the canonical event types a tenant's activity log can
// contain. Payload field sets are additive-only across schema versions:
// fields may be added, never removed or renamed, and required-field
// additions must carry defaults.
type Type string

const (
	TypeFundingRequested          Type = "FundingRequested"
	TypeFundingApproved           Type = "FundingApproved"
	TypeFundingBlocked            Type = "FundingBlocked"
	TypeFundingInsufficientFunds  Type = "FundingInsufficientFunds"
	TypePaymentInstructionCreated Type = "PaymentInstructionCreated"
	TypePaymentSubmitted          Type = "PaymentSubmitted"
	TypePaymentAccepted           Type = "PaymentAccepted"
	TypePaymentSettled            Type = "PaymentSettled"
	TypePaymentFailed             Type = "PaymentFailed"
	TypePaymentReturned           Type = "PaymentReturned"
	TypePaymentCanceled           Type = "PaymentCanceled"
	TypeLedgerEntryPosted         Type = "LedgerEntryPosted"
	TypeLedgerEntryReversed       Type = "LedgerEntryReversed"
	TypeReservationCreated        Type = "ReservationCreated"
	TypeReservationReleased       Type = "ReservationReleased"
	TypeSettlementReceived        Type = "SettlementReceived"
	TypeSettlementMatched         Type = "SettlementMatched"
	TypeSettlementUnmatched       Type = "SettlementUnmatched"
	TypeSettlementStatusChanged   Type = "SettlementStatusChanged"
	TypeLiabilityClassified       Type = "LiabilityClassified"
	TypeLiabilityRecoveryStarted  Type = "LiabilityRecoveryStarted"
	TypeLiabilityRecovered        Type = "LiabilityRecovered"
	TypeLiabilityWrittenOff       Type = "LiabilityWrittenOff"
	TypeReconciliationStarted     Type = "ReconciliationStarted"
	TypeReconciliationCompleted   Type = "ReconciliationCompleted"
	TypeReconciliationFailed      Type = "ReconciliationFailed"
	// TypePayRunCommitted is raised by the commit service on a successful
	// transition to committed; it does not belong to any of the canonical
	// PSP categories above, so it is filed under ledger (it always
	// accompanies ledger-affecting payment instruction creation downstream).
	TypePayRunCommitted Type = "PayRunCommitted"
)

// categoryOf maps every known type to its category. Used only to default
// Metadata.Category when a caller constructs an Event without setting it
// explicitly.
var categoryOf = map[Type]Category{
	TypeFundingRequested:          CategoryFunding,
	TypeFundingApproved:           CategoryFunding,
	TypeFundingBlocked:            CategoryFunding,
	TypeFundingInsufficientFunds:  CategoryFunding,
	TypePaymentInstructionCreated: CategoryPayment,
	TypePaymentSubmitted:          CategoryPayment,
	TypePaymentAccepted:           CategoryPayment,
	TypePaymentSettled:            CategoryPayment,
	TypePaymentFailed:             CategoryPayment,
	TypePaymentReturned:           CategoryPayment,
	TypePaymentCanceled:           CategoryPayment,
	TypeLedgerEntryPosted:         CategoryLedger,
	TypeLedgerEntryReversed:       CategoryLedger,
	TypeReservationCreated:        CategoryLedger,
	TypeReservationReleased:       CategoryLedger,
	TypeSettlementReceived:        CategorySettlement,
	TypeSettlementMatched:         CategorySettlement,
	TypeSettlementUnmatched:       CategorySettlement,
	TypeSettlementStatusChanged:   CategorySettlement,
	TypeLiabilityClassified:       CategoryLiability,
	TypeLiabilityRecoveryStarted:  CategoryLiability,
	TypeLiabilityRecovered:        CategoryLiability,
	TypeLiabilityWrittenOff:       CategoryLiability,
	TypeReconciliationStarted:     CategoryReconciliation,
	TypeReconciliationCompleted:   CategoryReconciliation,
	TypeReconciliationFailed:      CategoryReconciliation,
	TypePayRunCommitted:           CategoryLedger,
}

// Metadata carries the envelope fields every domain event has regardless of
// its payload shape.
type Metadata struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	TenantID      string    `json:"tenant_id"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Source        string    `json:"source,omitempty"`
	SchemaVersion int       `json:"schema_version"`
}

// Event is an immutable, typed record of a notable state change. Payload is
// a plain map so the emitter and event store never need to know the
// concrete shape of any one event type; handlers type-assert the fields
// they care about.
type Event struct {
	Type     Type           `json:"event_type"`
	Category Category       `json:"category"`
	Metadata Metadata       `json:"metadata"`
	Payload  map[string]any `json:"payload"`
}

// New constructs an Event, defaulting Category from Type and SchemaVersion
// to 1 when unset.
func New(typ Type, tenantID, correlationID string, payload map[string]any) Event {
	cat, ok := categoryOf[typ]
	if !ok {
		cat = Category("unknown")
	}
	return Event{
		Type:     typ,
		Category: cat,
		Metadata: Metadata{
			TenantID:      tenantID,
			CorrelationID: correlationID,
			SchemaVersion: 1,
		},
		Payload: payload,
	}
}
