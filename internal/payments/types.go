// Package payments orchestrates disbursement instructions: creating them
// idempotently, selecting a rail provider by capability match, and tracking
// each submission attempt through to a terminal status.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/payroll-psp/internal/railprovider"
)

// Rail and Direction are aliases onto railprovider's canonical definitions:
// providers are selected by rail capability, so railprovider owns these
// types and payments reuses them rather than the other way around, keeping
// the payments -> railprovider dependency one-directional.
type Rail = railprovider.Rail

const (
	RailACHCredit = railprovider.RailACHCredit
	RailACHDebit  = railprovider.RailACHDebit
	RailWire      = railprovider.RailWire
	RailRTP       = railprovider.RailRTP
	RailFedNow    = railprovider.RailFedNow
	RailCheck     = railprovider.RailCheck
)

// Direction is the flow of funds relative to the tenant.
type Direction = railprovider.Direction

const (
	DirectionCredit = railprovider.DirectionCredit // funds leave the tenant, e.g. payroll disbursement
	DirectionDebit  = railprovider.DirectionDebit  // funds are pulled into the tenant, e.g. funding draw
)

// InstructionStatus is an instruction's position in its lifecycle.
type InstructionStatus string

const (
	InstructionCreated  InstructionStatus = "created"
	InstructionAccepted InstructionStatus = "accepted"
	InstructionSettled  InstructionStatus = "settled"
	InstructionFailed   InstructionStatus = "failed"
	InstructionReturned InstructionStatus = "returned"
	InstructionCanceled InstructionStatus = "canceled"
)

// Payee is the destination of a payment instruction. Bank details are
// intentionally opaque here (a token or masked reference) — the core never
// needs the raw account number, only the provider does.
type Payee struct {
	Name            string `json:"name"`
	AccountRef      string `json:"account_ref"`
	RoutingRef      string `json:"routing_ref,omitempty"`
	Rail            Rail   `json:"rail"`
	AddressLine1    string `json:"address_line1,omitempty"`
	AddressLine2    string `json:"address_line2,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
}

// Instruction is a single requested payment, idempotent by
// (tenant_id, idempotency_key) (§4.8).
type Instruction struct {
	ID                     string            `json:"id"`
	TenantID               string            `json:"tenant_id"`
	LegalEntityID          string            `json:"legal_entity_id"`
	Purpose                string            `json:"purpose"`
	Amount                 decimal.Decimal   `json:"amount"`
	Currency               string            `json:"currency"`
	Payee                  Payee             `json:"payee"`
	Direction              Direction         `json:"direction"`
	IdempotencyKey         string            `json:"idempotency_key"`
	Source                string            `json:"source"`
	RequestedSettlementDate *time.Time       `json:"requested_settlement_date,omitempty"`
	Status                 InstructionStatus `json:"status"`
	ProviderName           string            `json:"provider_name,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// AttemptStatus mirrors the rail provider's reported status for one submit
// attempt (§4.9 StatusResult).
type AttemptStatus string

const (
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptAccepted  AttemptStatus = "accepted"
	AttemptSettled   AttemptStatus = "settled"
	AttemptFailed    AttemptStatus = "failed"
	AttemptReversed  AttemptStatus = "reversed"
	AttemptReturned  AttemptStatus = "returned"
	AttemptUnknown   AttemptStatus = "unknown"
)

// Attempt is one provider submission of an instruction, unique by
// (provider, provider_request_id) (§4.8).
type Attempt struct {
	ID                    string          `json:"id"`
	InstructionID         string          `json:"instruction_id"`
	Provider              string          `json:"provider"`
	ProviderRequestID      string          `json:"provider_request_id"`
	Status                AttemptStatus   `json:"status"`
	Message               string          `json:"message,omitempty"`
	TraceID               string          `json:"trace_id,omitempty"`
	ExternalTraceID       string          `json:"external_trace_id,omitempty"`
	EstimatedSettlementAt *time.Time      `json:"estimated_settlement_date,omitempty"`
	ReturnCode            string          `json:"return_code,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// CapabilityRequest is the (rail, direction) pair an instruction needs a
// provider to support (§4.8 capability match).
type CapabilityRequest struct {
	Rail      Rail
	Direction Direction
}
