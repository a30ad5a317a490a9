// Package railprovider defines the pure-adapter interface every payment
// rail implementation satisfies, plus the closed registry the payment
// orchestrator selects providers from by capability match.
package railprovider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Rail is the wire format an instruction travels over. Canonical here
// rather than in payments: providers are selected by rail capability, and
// payments aliases this type so the dependency stays one-directional
// (payments -> railprovider, never the reverse).
type Rail string

const (
	RailACHCredit Rail = "ach_credit"
	RailACHDebit  Rail = "ach_debit"
	RailWire      Rail = "wire"
	RailRTP       Rail = "rtp"
	RailFedNow    Rail = "fednow"
	RailCheck     Rail = "check"
)

// Direction is the flow of funds relative to the tenant.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Capabilities declares what an instruction shape a provider can carry,
// plus the operational envelope around it (§4.9).
type Capabilities struct {
	ACHCredit           bool
	ACHDebit            bool
	Wire                bool
	RTP                 bool
	FedNow              bool
	Check               bool
	Cutoffs             []string
	Limits              map[string]decimal.Decimal
	SettlementTimelines map[string]time.Duration
}

// InstructionPayload is everything a provider needs to submit a payment; the
// orchestrator builds this from a payments.Instruction without the provider
// package importing payments (keeps the dependency one-directional).
type InstructionPayload struct {
	InstructionID  string
	Amount         decimal.Decimal
	Currency       string
	PayeeName      string
	PayeeAccountRef string
	PayeeRoutingRef string
	Rail            Rail
	Direction       Direction
	SettlementDate  *time.Time
}

// SubmitResult is a provider's synchronous response to submit (§4.9).
type SubmitResult struct {
	ProviderRequestID      string
	Accepted               bool
	Message                string
	TraceID                string
	EstimatedSettlementDate *time.Time
}

// Status is the provider-reported lifecycle state of a submitted request.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusSettled   Status = "settled"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
	StatusReturned  Status = "returned"
	StatusUnknown   Status = "unknown"
)

// StatusResult is the response to get_status (§4.9).
type StatusResult struct {
	Status          Status
	Message         string
	ExternalTraceID string
	EffectiveDate   *time.Time
	ReturnCode      string
}

// CancelResult is the response to cancel (§4.9).
type CancelResult struct {
	Success  bool
	Message  string
	CanRetry bool
}

// SettlementRecord is one row a reconcile(date) sweep returns (§4.9, §4.10).
type SettlementRecord struct {
	ExternalTraceID string
	EffectiveDate   time.Time
	Status          Status
	Amount          decimal.Decimal
	Currency        string
	Direction       Direction
	ReturnCode      string
	RawPayload      map[string]any
}

// ErrorClass distinguishes a transient provider failure (retry up to
// retry_count) from a permanent one (mark the attempt and instruction
// failed) per §7's ProviderError taxonomy.
type ErrorClass string

const (
	ErrorTransient ErrorClass = "transient"
	ErrorPermanent ErrorClass = "permanent"
)

// ProviderError reports a rail call failure and whether it is worth
// retrying.
type ProviderError struct {
	Class   ErrorClass
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// Provider is the variant-set interface every rail implementation
// satisfies (§4.9). Implementations MUST be pure adapters: no persistence,
// no event emission, no state shared across providers.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Submit(ctx context.Context, payload InstructionPayload) (SubmitResult, error)
	GetStatus(ctx context.Context, providerRequestID string) (StatusResult, error)
	Cancel(ctx context.Context, providerRequestID string) (CancelResult, error)
	Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error)
}
